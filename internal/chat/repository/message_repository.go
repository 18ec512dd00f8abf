package repository

import (
	"context"
	"errors"
	"time"

	"campus_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository message store. Messages are never physically removed.
type MessageRepository interface {
	InsertMessage(ctx context.Context, m *domain.Message) error
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	FindByIDs(ctx context.Context, ids []string) ([]*domain.Message, error)
	FindVisible(ctx context.Context, conversationID, viewerID string) ([]*domain.Message, error)
	FindLatestVisible(ctx context.Context, conversationID string) (*domain.Message, error)
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) (*domain.Message, error)
	SetReaction(ctx context.Context, id, userID, emoji string) (*domain.Message, error)
	MarkDeletedForEveryone(ctx context.Context, id string) (*domain.Message, error)
	AddDeletedBy(ctx context.Context, id, userID string) (*domain.Message, error)
	AddDeletedByMany(ctx context.Context, ids []string, userID string) (int64, error)
	ClearForUser(ctx context.Context, conversationID, userID string) (int64, error)
}

type messageRepository struct {
	coll *mongo.Collection
}

// NewMongoMessageRepository create mongo message store
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &messageRepository{coll: db.Collection(messageCollection)}
}

// InsertMessage insert new message
func (r *messageRepository) InsertMessage(ctx context.Context, m *domain.Message) error {
	if m.DeletedBy == nil {
		m.DeletedBy = []string{}
	}
	if m.Reactions == nil {
		m.Reactions = []domain.Reaction{}
	}
	_, err := r.coll.InsertOne(ctx, m)
	return storeError("insert message "+m.ID, err)
}

// FindByID find message by id
func (r *messageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	var m domain.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, storeError("message "+id, err)
	}
	return &m, nil
}

// FindByIDs messages matching ids, unknown ids are skipped
func (r *messageRepository) FindByIDs(ctx context.Context, ids []string) ([]*domain.Message, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, storeError("find messages", err)
	}
	defer cursor.Close(ctx)

	messages := []*domain.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, storeError("decode messages", err)
	}
	return messages, nil
}

// FindVisible messages of a conversation visible to viewerID, oldest first
func (r *messageRepository) FindVisible(ctx context.Context, conversationID, viewerID string) ([]*domain.Message, error) {
	filter := bson.M{
		"conversation_id":         conversationID,
		"is_deleted_for_everyone": false,
		"deleted_by":              bson.M{"$ne": viewerID},
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeError("list messages", err)
	}
	defer cursor.Close(ctx)

	messages := []*domain.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, storeError("decode messages", err)
	}
	return messages, nil
}

// FindLatestVisible newest message not deleted for everyone, nil when none left
func (r *messageRepository) FindLatestVisible(ctx context.Context, conversationID string) (*domain.Message, error) {
	filter := bson.M{"conversation_id": conversationID, "is_deleted_for_everyone": false}
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})

	var m domain.Message
	err := r.coll.FindOne(ctx, filter, opts).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("latest message", err)
	}
	return &m, nil
}

// UpdateContent edit in place, last write wins
func (r *messageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) (*domain.Message, error) {
	update := bson.M{"$set": bson.M{"content": content, "edited_at": editedAt}}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, update, "message "+id)
}

// SetReaction drop userID's reaction and append emoji (if any) in one pipeline update.
// Only entries of userID are filtered out.
func (r *messageRepository) SetReaction(ctx context.Context, id, userID, emoji string) (*domain.Message, error) {
	added := bson.A{}
	if emoji != "" {
		added = bson.A{bson.D{{Key: "user_id", Value: userID}, {Key: "emoji", Value: emoji}}}
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "reactions", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				bson.D{{Key: "$filter", Value: bson.D{
					{Key: "input", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$reactions", bson.A{}}}}},
					{Key: "as", Value: "r"},
					{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$r.user_id", userID}}}},
				}}},
				bson.D{{Key: "$literal", Value: added}},
			}}}},
		}}},
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, update, "message "+id)
}

// MarkDeletedForEveryone tombstone, deleted_by untouched
func (r *messageRepository) MarkDeletedForEveryone(ctx context.Context, id string) (*domain.Message, error) {
	update := bson.M{"$set": bson.M{"is_deleted_for_everyone": true}}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, update, "message "+id)
}

// AddDeletedBy idempotent per-viewer delete
func (r *messageRepository) AddDeletedBy(ctx context.Context, id, userID string) (*domain.Message, error) {
	update := bson.M{"$addToSet": bson.M{"deleted_by": userID}}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, update, "message "+id)
}

// AddDeletedByMany per-viewer delete of a batch, returns matched count
func (r *messageRepository) AddDeletedByMany(ctx context.Context, ids []string, userID string) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$addToSet": bson.M{"deleted_by": userID}},
	)
	if err != nil {
		return 0, storeError("delete messages", err)
	}
	return res.MatchedCount, nil
}

// ClearForUser hide every message of the conversation for userID
func (r *messageRepository) ClearForUser(ctx context.Context, conversationID, userID string) (int64, error) {
	filter := bson.M{
		"conversation_id":         conversationID,
		"is_deleted_for_everyone": false,
		"deleted_by":              bson.M{"$ne": userID},
	}
	res, err := r.coll.UpdateMany(ctx, filter, bson.M{"$addToSet": bson.M{"deleted_by": userID}})
	if err != nil {
		return 0, storeError("clear conversation", err)
	}
	return res.ModifiedCount, nil
}

func (r *messageRepository) findOneAndUpdate(ctx context.Context, filter, update interface{}, op string) (*domain.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m domain.Message
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m); err != nil {
		return nil, storeError(op, err)
	}
	return &m, nil
}
