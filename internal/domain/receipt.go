package domain

import "time"

// ReadReceipt records that a user has read a message. At most one exists
// per (message, user) pair; re-marking is a no-op.
type ReadReceipt struct {
	ID             string    `bson:"_id" json:"id"`
	MessageID      string    `bson:"message_id" json:"message_id"`
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	UserID         string    `bson:"user_id" json:"user_id"`
	ReadAt         time.Time `bson:"read_at" json:"read_at"`
}
