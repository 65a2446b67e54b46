package access

import (
	"context"

	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/domain"
)

type Capability string

const (
	CapRead  Capability = "read"
	CapWrite Capability = "write"
	CapAdmin Capability = "admin"
)

type ConversationSource interface {
	Get(ctx context.Context, id string) (*domain.Conversation, error)
}

// Gate checks that a principal is an active participant of a conversation
// before any read or write reaches the stores. It has no side effects.
type Gate struct {
	convs ConversationSource
}

func NewGate(convs ConversationSource) *Gate {
	return &Gate{convs: convs}
}

// Require returns the conversation when the principal holds the capability,
// Forbidden when they are not an active participant (or not an admin for
// CapAdmin), and NotFound when the conversation does not exist.
func (g *Gate) Require(ctx context.Context, conversationID, userID string, capability Capability) (*domain.Conversation, error) {
	conv, err := g.convs.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	p, ok := conv.Participant(userID)
	if !ok || !p.IsActive {
		return nil, apperr.E(apperr.ErrForbidden, "user %s is not an active participant of %s", userID, conversationID)
	}
	if capability == CapAdmin && p.Role != domain.RoleAdmin {
		return nil, apperr.E(apperr.ErrForbidden, "user %s is not an admin of %s", userID, conversationID)
	}
	return conv, nil
}
