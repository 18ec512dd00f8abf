package repository

import (
	"context"
	"time"

	"campus_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationRepository conversation store. Every method is a single-document write.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, c *domain.Conversation) error
	FindByID(ctx context.Context, id string) (*domain.Conversation, error)
	FindDirect(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	FindByParticipant(ctx context.Context, userID string) ([]*domain.Conversation, error)
	ApplyMessage(ctx context.Context, id string, last domain.LastMessage, recipients []string) (*domain.Conversation, error)
	UpdateLastMessageIfCurrent(ctx context.Context, id string, last domain.LastMessage) (bool, error)
	ReplaceLastMessage(ctx context.Context, id, expectedMessageID string, last *domain.LastMessage) (*domain.Conversation, error)
	ResetUnread(ctx context.Context, id, userID string) error
	AddParticipants(ctx context.Context, id string, userIDs []string) (*domain.Conversation, error)
	RemoveParticipant(ctx context.Context, id, userID string) (*domain.Conversation, error)
	SetPinnedMessage(ctx context.Context, id, messageID string) (*domain.Conversation, error)
	SetDescription(ctx context.Context, id, description string) (*domain.Conversation, error)
}

type conversationRepository struct {
	coll *mongo.Collection
}

// NewMongoConversationRepository create mongo conversation store
func NewMongoConversationRepository(db *mongo.Database) ConversationRepository {
	return &conversationRepository{coll: db.Collection(conversationCollection)}
}

// unreadKey field path of one user's counter; userID must satisfy pkg.SafeKey.
// JWTMiddleware and the domain constructors reject ids that would split the path.
func unreadKey(userID string) string {
	return "unread_counts." + userID
}

// CreateConversation insert, duplicate direct_key returns a conflict error
func (r *conversationRepository) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	if c.UnreadCounts == nil {
		c.UnreadCounts = domain.UnreadCounts{}
	}
	_, err := r.coll.InsertOne(ctx, c)
	return storeError("insert conversation "+c.ID, err)
}

// FindByID find conversation by id
func (r *conversationRepository) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, storeError("conversation "+id, err)
	}
	return &c, nil
}

// FindDirect find the 1:1 conversation of an unordered pair
func (r *conversationRepository) FindDirect(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	var c domain.Conversation
	filter := bson.M{"direct_key": domain.DirectKey(userA, userB), "is_group": false}
	if err := r.coll.FindOne(ctx, filter).Decode(&c); err != nil {
		return nil, storeError("direct conversation", err)
	}
	return &c, nil
}

// FindByParticipant all conversations of userID, newest activity first
func (r *conversationRepository) FindByParticipant(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, storeError("list conversations", err)
	}
	defer cursor.Close(ctx)

	conversations := []*domain.Conversation{}
	for cursor.Next(ctx) {
		var c domain.Conversation
		if err := cursor.Decode(&c); err != nil {
			return nil, storeError("decode conversation", err)
		}
		conversations = append(conversations, &c)
	}
	if err := cursor.Err(); err != nil {
		return nil, storeError("list conversations", err)
	}
	return conversations, nil
}

// ApplyMessage move projection, bump updated_at and $inc unread of recipients in one update
func (r *conversationRepository) ApplyMessage(ctx context.Context, id string, last domain.LastMessage, recipients []string) (*domain.Conversation, error) {
	update := bson.M{
		"$set": bson.M{
			"last_message": last,
			"updated_at":   last.Timestamp,
		},
	}
	if len(recipients) > 0 {
		inc := bson.M{}
		for _, p := range recipients {
			inc[unreadKey(p)] = 1
		}
		update["$inc"] = inc
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, update, "conversation "+id)
}

// UpdateLastMessageIfCurrent rewrite projection only while it still points at last.MessageID
func (r *conversationRepository) UpdateLastMessageIfCurrent(ctx context.Context, id string, last domain.LastMessage) (bool, error) {
	filter := bson.M{"_id": id, "last_message.message_id": last.MessageID}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"last_message": last}})
	if err != nil {
		return false, storeError("update last message", err)
	}
	return res.MatchedCount > 0, nil
}

// ReplaceLastMessage swap projection when it points at expectedMessageID, nil result when it moved on
func (r *conversationRepository) ReplaceLastMessage(ctx context.Context, id, expectedMessageID string, last *domain.LastMessage) (*domain.Conversation, error) {
	filter := bson.M{"_id": id, "last_message.message_id": expectedMessageID}
	c, err := r.findOneAndUpdate(ctx, filter, bson.M{"$set": bson.M{"last_message": last}}, "conversation "+id)
	if domain.IsNotFound(err) {
		return nil, nil
	}
	return c, err
}

// ResetUnread set unread of userID to 0, works without prior entry
func (r *conversationRepository) ResetUnread(ctx context.Context, id, userID string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{unreadKey(userID): 0}})
	if err != nil {
		return storeError("reset unread", err)
	}
	if res.MatchedCount == 0 {
		return domain.NewNotFoundError("conversation %s not found", id)
	}
	return nil
}

// AddParticipants $addToSet members into a group
func (r *conversationRepository) AddParticipants(ctx context.Context, id string, userIDs []string) (*domain.Conversation, error) {
	update := bson.M{
		"$addToSet": bson.M{"participants": bson.M{"$each": userIDs}},
		"$set":      bson.M{"updated_at": time.Now()},
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id, "is_group": true}, update, "group "+id)
}

// RemoveParticipant pull member, drop its unread entry and admin slot
func (r *conversationRepository) RemoveParticipant(ctx context.Context, id, userID string) (*domain.Conversation, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "participants", Value: bson.D{{Key: "$filter", Value: bson.D{
				{Key: "input", Value: "$participants"},
				{Key: "as", Value: "p"},
				{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$p", userID}}}},
			}}}},
			{Key: "group_admin", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$group_admin", userID}}},
				"$$REMOVE",
				"$group_admin",
			}}}},
			{Key: "updated_at", Value: "$$NOW"},
		}}},
		{{Key: "$unset", Value: unreadKey(userID)}},
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id, "is_group": true}, update, "group "+id)
}

// SetPinnedMessage pin messageID, empty unpins
func (r *conversationRepository) SetPinnedMessage(ctx context.Context, id, messageID string) (*domain.Conversation, error) {
	update := bson.M{"$set": bson.M{"pinned_message_id": messageID}}
	if messageID == "" {
		update = bson.M{"$unset": bson.M{"pinned_message_id": ""}}
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, update, "conversation "+id)
}

// SetDescription set the group description, empty removes it
func (r *conversationRepository) SetDescription(ctx context.Context, id, description string) (*domain.Conversation, error) {
	update := bson.M{"$set": bson.M{"description": description, "updated_at": time.Now()}}
	if description == "" {
		update = bson.M{"$unset": bson.M{"description": ""}, "$set": bson.M{"updated_at": time.Now()}}
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id, "is_group": true}, update, "group "+id)
}

func (r *conversationRepository) findOneAndUpdate(ctx context.Context, filter, update interface{}, op string) (*domain.Conversation, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var c domain.Conversation
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&c); err != nil {
		return nil, storeError(op, err)
	}
	return &c, nil
}
