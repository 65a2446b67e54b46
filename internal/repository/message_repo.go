package repository

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/domain"
)

type MessageRepository struct {
	coll *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	coll := db.Collection("messages")
	_, _ = coll.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
		Options: options.Index().SetName("conv_created_idx"),
	})
	return &MessageRepository{coll: coll}
}

func (r *MessageRepository) Insert(ctx context.Context, m *domain.Message) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if m.Reactions == nil {
		m.Reactions = []domain.Reaction{}
	}
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *MessageRepository) Get(ctx context.Context, id string) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var m domain.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.E(apperr.ErrNotFound, "message %s", id)
		}
		return nil, err
	}
	if m.Reactions == nil {
		m.Reactions = []domain.Reaction{}
	}
	return &m, nil
}

func (r *MessageRepository) SetContent(ctx context.Context, id, content string, editedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"content": content, "edited_at": editedAt},
	})
	return err
}

func (r *MessageRepository) SoftDelete(ctx context.Context, id, placeholder string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.UpdateByID(ctx, id, bson.M{
		"$set":   bson.M{"is_deleted": true, "content": placeholder},
		"$unset": bson.M{"file": ""},
	})
	return err
}

// NewestVisible returns the most recent non-deleted message, or NotFound
// when none remain.
func (r *MessageRepository) NewestVisible(ctx context.Context, conversationID string) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	var m domain.Message
	err := r.coll.FindOne(ctx, bson.M{"conversation_id": conversationID, "is_deleted": false}, opts).Decode(&m)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.E(apperr.ErrNotFound, "no visible message in %s", conversationID)
		}
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepository) List(ctx context.Context, conversationID string, skip, limit int64) ([]*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	cur, err := r.coll.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		if m.Reactions == nil {
			m.Reactions = []domain.Reaction{}
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

func (r *MessageRepository) Search(ctx context.Context, conversationID, query string, limit int64) ([]*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	filter := bson.M{
		"conversation_id": conversationID,
		"is_deleted":      false,
		"message_type":    domain.MessageText,
		"content":         primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

// AddReaction appends the reaction only if no (user, emoji) entry exists.
// Returns false when the pair is already present.
func (r *MessageRepository) AddReaction(ctx context.Context, id string, reaction domain.Reaction) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.coll.UpdateOne(ctx,
		bson.M{
			"_id": id,
			"reactions": bson.M{"$not": bson.M{"$elemMatch": bson.M{
				"user_id": reaction.UserID,
				"emoji":   reaction.Emoji,
			}}},
		},
		bson.M{"$push": bson.M{"reactions": reaction}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *MessageRepository) RemoveReaction(ctx context.Context, id, userID, emoji string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.UpdateByID(ctx, id, bson.M{
		"$pull": bson.M{"reactions": bson.M{"user_id": userID, "emoji": emoji}},
	})
	return err
}
