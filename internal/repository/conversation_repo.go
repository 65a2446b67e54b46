package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/domain"
)

// ConversationRepository owns the conversations collection. Counter and
// last-message mutations are targeted per-field updates so concurrent sends
// and reads against the same conversation never overwrite each other.
type ConversationRepository struct {
	coll *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	coll := db.Collection("conversations")
	_, _ = coll.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "participants.user_id", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("participant_activity_idx"),
		},
		{
			Keys:    bson.D{{Key: "direct_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("direct_key_idx"),
		},
	})
	return &ConversationRepository{coll: coll}
}

func (r *ConversationRepository) Insert(ctx context.Context, c *domain.Conversation) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, c)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.E(apperr.ErrConflict, "direct conversation already exists")
	}
	return err
}

func (r *ConversationRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var c domain.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.E(apperr.ErrNotFound, "conversation %s", id)
		}
		return nil, err
	}
	if c.UnreadCount == nil {
		c.UnreadCount = map[string]int64{}
	}
	return &c, nil
}

func (r *ConversationRepository) FindDirect(ctx context.Context, directKey string) (*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var c domain.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"direct_key": directKey}).Decode(&c); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.E(apperr.ErrNotFound, "direct conversation %s", directKey)
		}
		return nil, err
	}
	if c.UnreadCount == nil {
		c.UnreadCount = map[string]int64{}
	}
	return &c, nil
}

func (r *ConversationRepository) ListForUser(ctx context.Context, userID string, limit int64) ([]*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	filter := bson.M{"participants": bson.M{"$elemMatch": bson.M{"user_id": userID, "is_active": true}}}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*domain.Conversation{}
	for cur.Next(ctx) {
		var c domain.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		if c.UnreadCount == nil {
			c.UnreadCount = map[string]int64{}
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}

func (r *ConversationRepository) SetLastMessage(ctx context.Context, id string, lm *domain.LastMessage) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"last_message": lm, "updated_at": time.Now().UTC()},
	})
	return err
}

// SetLastMessagePreview refreshes the snapshot content only while the
// snapshot still points at messageID, so a concurrent newer send wins.
func (r *ConversationRepository) SetLastMessagePreview(ctx context.Context, id, messageID, preview string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "last_message.message_id": messageID},
		bson.M{"$set": bson.M{"last_message.content_preview": preview, "updated_at": time.Now().UTC()}},
	)
	return err
}

func (r *ConversationRepository) ClearLastMessage(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.UpdateByID(ctx, id, bson.M{
		"$unset": bson.M{"last_message": ""},
		"$set":   bson.M{"updated_at": time.Now().UTC()},
	})
	return err
}

// IncrementUnread bumps unread_count.<uid> by one for each recipient in a
// single targeted update.
func (r *ConversationRepository) IncrementUnread(ctx context.Context, id string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	inc := bson.M{}
	for _, uid := range userIDs {
		inc["unread_count."+uid] = 1
	}
	_, err := r.coll.UpdateByID(ctx, id, bson.M{"$inc": inc})
	return err
}

func (r *ConversationRepository) ResetUnread(ctx context.Context, id, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"unread_count." + userID: 0}})
	return err
}

func (r *ConversationRepository) AddParticipant(ctx context.Context, id string, p domain.Participant) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "participants.user_id": bson.M{"$ne": p.UserID}},
		bson.M{
			"$push": bson.M{"participants": p},
			"$set":  bson.M{"unread_count." + p.UserID: 0, "updated_at": time.Now().UTC()},
		},
	)
	return err
}

func (r *ConversationRepository) ReactivateParticipant(ctx context.Context, id, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "participants.user_id": userID},
		bson.M{
			"$set": bson.M{
				"participants.$.is_active": true,
				"unread_count." + userID:   0,
				"updated_at":               time.Now().UTC(),
			},
			"$unset": bson.M{"participants.$.left_at": ""},
		},
	)
	return err
}

// DeactivateParticipant marks the roster entry inactive and drops the
// participant's unread counter, keeping the counter-map invariant.
func (r *ConversationRepository) DeactivateParticipant(ctx context.Context, id, userID string, leftAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "participants.user_id": userID},
		bson.M{
			"$set": bson.M{
				"participants.$.is_active": false,
				"participants.$.left_at":   leftAt,
				"updated_at":               time.Now().UTC(),
			},
			"$unset": bson.M{"unread_count." + userID: ""},
		},
	)
	return err
}

func (r *ConversationRepository) Archive(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"settings.is_archived": true, "updated_at": time.Now().UTC()},
	})
	return err
}
