package domain

import "time"

const (
	MessageText = "text"
	MessageFile = "file"
)

// DeletedPlaceholder replaces the content of a soft-deleted message.
const DeletedPlaceholder = "This message was deleted"

type FileRef struct {
	FileName string `bson:"file_name" json:"file_name"`
	FileSize int64  `bson:"file_size" json:"file_size"`
	MimeType string `bson:"mime_type" json:"mime_type"`
	URL      string `bson:"url" json:"url"`
}

type Reaction struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	Emoji     string    `bson:"emoji" json:"emoji"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

type Message struct {
	ID             string     `bson:"_id" json:"id"`
	ConversationID string     `bson:"conversation_id" json:"conversation_id"`
	SenderID       string     `bson:"sender_id" json:"sender_id"`
	Type           string     `bson:"message_type" json:"message_type"`
	Content        string     `bson:"content" json:"content"`
	File           *FileRef   `bson:"file,omitempty" json:"file,omitempty"`
	ReplyTo        string     `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	Reactions      []Reaction `bson:"reactions" json:"reactions"`
	EditedAt       *time.Time `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	IsDeleted      bool       `bson:"is_deleted" json:"is_deleted"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
}

// Editable reports whether the sender may still change the content.
func (m *Message) Editable(now time.Time, window time.Duration) bool {
	return !m.IsDeleted && now.Sub(m.CreatedAt) <= window
}
