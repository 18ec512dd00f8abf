package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	conversationCollection = "conversations"
	messageCollection      = "messages"
)

// EnsureIndexes create indexes the stores rely on.
// direct_key is unique so concurrent find-or-create of the same pair cannot insert twice.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(conversationCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "direct_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("uniq_direct_key"),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("participants_updated_at"),
		},
	})
	if err != nil {
		return storeError("create conversation indexes", err)
	}

	_, err = db.Collection(messageCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: 1}},
		Options: options.Index().SetName("conversation_timestamp"),
	})
	if err != nil {
		return storeError("create message indexes", err)
	}
	return nil
}
