package service

import (
	"context"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/domain"
)

// ConversationStore is the registry's persistence port. Implementations must
// make the counter and last-message mutations targeted single-field updates.
type ConversationStore interface {
	Insert(ctx context.Context, c *domain.Conversation) error
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	FindDirect(ctx context.Context, directKey string) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID string, limit int64) ([]*domain.Conversation, error)
	SetLastMessage(ctx context.Context, id string, lm *domain.LastMessage) error
	SetLastMessagePreview(ctx context.Context, id, messageID, preview string) error
	ClearLastMessage(ctx context.Context, id string) error
	IncrementUnread(ctx context.Context, id string, userIDs []string) error
	ResetUnread(ctx context.Context, id, userID string) error
	AddParticipant(ctx context.Context, id string, p domain.Participant) error
	ReactivateParticipant(ctx context.Context, id, userID string) error
	DeactivateParticipant(ctx context.Context, id, userID string, leftAt time.Time) error
	Archive(ctx context.Context, id string) error
}

type MessageStore interface {
	Insert(ctx context.Context, m *domain.Message) error
	Get(ctx context.Context, id string) (*domain.Message, error)
	SetContent(ctx context.Context, id, content string, editedAt time.Time) error
	SoftDelete(ctx context.Context, id, placeholder string) error
	NewestVisible(ctx context.Context, conversationID string) (*domain.Message, error)
	List(ctx context.Context, conversationID string, skip, limit int64) ([]*domain.Message, error)
	Search(ctx context.Context, conversationID, query string, limit int64) ([]*domain.Message, error)
	AddReaction(ctx context.Context, id string, reaction domain.Reaction) (bool, error)
	RemoveReaction(ctx context.Context, id, userID, emoji string) error
}

type ReceiptStore interface {
	Insert(ctx context.Context, rec *domain.ReadReceipt) (bool, error)
	ListByMessage(ctx context.Context, messageID string) ([]*domain.ReadReceipt, error)
	LastPerUser(ctx context.Context, conversationID string) (map[string]*domain.ReadReceipt, error)
}

// Event is what the core hands to the fan-out sink after a mutation.
type Event struct {
	Kind           string      `json:"kind"`
	ConversationID string      `json:"conversation_id"`
	ActorID        string      `json:"actor_id"`
	Payload        interface{} `json:"payload,omitempty"`
	At             time.Time   `json:"at"`
}

const (
	EventConversationCreated = "conversation.created"
	EventMessageCreated      = "message.created"
	EventMessageEdited       = "message.edited"
	EventMessageDeleted      = "message.deleted"
	EventReactionAdded       = "reaction.added"
	EventReactionRemoved     = "reaction.removed"
)

// Notifier is the injected fan-out port. Publishing is fire-and-forget;
// implementations log failures instead of surfacing them to callers.
type Notifier interface {
	Publish(ctx context.Context, ev Event)
}

// UnreadCache is an optional read-through cache for unread counters.
type UnreadCache interface {
	GetUnread(ctx context.Context, conversationID, userID string) (int64, bool)
	SetUnread(ctx context.Context, conversationID, userID string, n int64)
	InvalidateUnread(ctx context.Context, conversationID string, userIDs ...string)
}
