package domain

import (
	"sort"
	"strings"
	"time"
)

const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Participant struct {
	UserID   string     `bson:"user_id" json:"user_id"`
	Role     string     `bson:"role" json:"role"`
	JoinedAt time.Time  `bson:"joined_at" json:"joined_at"`
	LeftAt   *time.Time `bson:"left_at,omitempty" json:"left_at,omitempty"`
	IsActive bool       `bson:"is_active" json:"is_active"`
}

type Settings struct {
	AllowFileSharing  bool       `bson:"allow_file_sharing" json:"allow_file_sharing"`
	AllowMediaSharing bool       `bson:"allow_media_sharing" json:"allow_media_sharing"`
	MaxAttachmentSize int64      `bson:"max_attachment_size" json:"max_attachment_size"`
	IsArchived        bool       `bson:"is_archived" json:"is_archived"`
	MuteUntil         *time.Time `bson:"mute_until,omitempty" json:"mute_until,omitempty"`
}

// LastMessage is a denormalized snapshot of the newest non-deleted message,
// kept on the conversation for list views.
type LastMessage struct {
	MessageID      string    `bson:"message_id" json:"message_id"`
	ContentPreview string    `bson:"content_preview" json:"content_preview"`
	SenderID       string    `bson:"sender_id" json:"sender_id"`
	SentAt         time.Time `bson:"sent_at" json:"sent_at"`
}

type Conversation struct {
	ID           string            `bson:"_id" json:"id"`
	Type         string            `bson:"type" json:"type"`
	DirectKey    string            `bson:"direct_key,omitempty" json:"-"`
	Context      map[string]string `bson:"context,omitempty" json:"context,omitempty"`
	Participants []Participant     `bson:"participants" json:"participants"`
	Settings     Settings          `bson:"settings" json:"settings"`
	LastMessage  *LastMessage      `bson:"last_message,omitempty" json:"last_message,omitempty"`
	UnreadCount  map[string]int64  `bson:"unread_count" json:"unread_count"`
	CreatedBy    string            `bson:"created_by" json:"created_by"`
	CreatedAt    time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `bson:"updated_at" json:"updated_at"`
}

// Participant returns the roster entry for userID, active or not.
func (c *Conversation) Participant(userID string) (*Participant, bool) {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i], true
		}
	}
	return nil, false
}

func (c *Conversation) ActiveParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.IsActive {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

// DirectKeyFor derives the deterministic pair key used to dedupe direct
// conversations between the same two users.
func DirectKeyFor(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}
