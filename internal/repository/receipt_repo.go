package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/conversation-service/internal/domain"
)

// ReceiptRepository stores read receipts in their own collection with a
// unique (message_id, user_id) index, so inserting twice is a cheap no-op
// instead of an ever-growing per-message array.
type ReceiptRepository struct {
	coll *mongo.Collection
}

func NewReceiptRepository(db *mongo.Database) *ReceiptRepository {
	coll := db.Collection("read_receipts")
	_, _ = coll.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("message_user_idx"),
		},
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "read_at", Value: -1}},
			Options: options.Index().SetName("conv_user_read_idx"),
		},
	})
	return &ReceiptRepository{coll: coll}
}

// Insert records the receipt unless one already exists for the pair.
// The boolean reports whether a new receipt was actually written.
func (r *ReceiptRepository) Insert(ctx context.Context, rec *domain.ReadReceipt) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"message_id": rec.MessageID, "user_id": rec.UserID},
		bson.M{"$setOnInsert": rec},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return res.UpsertedCount > 0, nil
}

func (r *ReceiptRepository) ListByMessage(ctx context.Context, messageID string) ([]*domain.ReadReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "read_at", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"message_id": messageID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*domain.ReadReceipt{}
	for cur.Next(ctx) {
		var rec domain.ReadReceipt
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, cur.Err()
}

// LastPerUser returns each user's most recent receipt in the conversation.
func (r *ReceiptRepository) LastPerUser(ctx context.Context, conversationID string) (map[string]*domain.ReadReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"conversation_id": conversationID}}},
		{{Key: "$sort", Value: bson.D{{Key: "read_at", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":  "$user_id",
			"last": bson.M{"$first": "$$ROOT"},
		}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := map[string]*domain.ReadReceipt{}
	for cur.Next(ctx) {
		var row struct {
			UserID string             `bson:"_id"`
			Last   domain.ReadReceipt `bson:"last"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		rec := row.Last
		out[row.UserID] = &rec
	}
	return out, cur.Err()
}
