package domain

import (
	"context"
	"encoding/json"
)

// EventType fan-out event name, shared with clients
type EventType string

const (
	EventNewMessage           EventType = "newMessage"
	EventConversationCreated  EventType = "conversationCreated"
	EventConversationUpdated  EventType = "conversationUpdated"
	EventMessageEdited        EventType = "messageEdited"
	EventMessageReacted       EventType = "messageReacted"
	EventMessageDeleted       EventType = "messageDeleted"
	EventMarkedAsRead         EventType = "markedAsRead"
	EventPinnedMessageUpdated EventType = "pinnedMessageUpdated"
	EventGroupUpdated         EventType = "groupUpdated"
	EventRemovedFromGroup     EventType = "removedFromGroup"
	EventMessagesCleared      EventType = "messagesCleared"
)

// TargetKind what a room is keyed by
type TargetKind string

const (
	// TargetUser every session of one user
	TargetUser TargetKind = "user"
	// TargetConversation every session that joined the conversation
	TargetConversation TargetKind = "conversation"
)

// Channel pub/sub channel name of a room
func Channel(kind TargetKind, id string) string {
	return "chat:" + string(kind) + ":" + id
}

// Publisher the only fan-out capability services depend on.
// Delivery is at-most-once; callers must not rely on acknowledgement.
type Publisher interface {
	Publish(ctx context.Context, event EventType, target TargetKind, targetID string, payload interface{}) error
}

// Envelope wire format of a published event
type Envelope struct {
	Event    EventType       `json:"event"`
	Target   TargetKind      `json:"target"`
	TargetID string          `json:"target_id"`
	Payload  json.RawMessage `json:"payload"`
	SentAt   int64           `json:"sent_at"`
}

// MessageDeletedPayload payload of messageDeleted
type MessageDeletedPayload struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	ForEveryone    bool   `json:"for_everyone"`
	UserID         string `json:"user_id"`
}

// ConversationRefPayload payload of markedAsRead, removedFromGroup, messagesCleared
type ConversationRefPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
}

// PinnedMessagePayload payload of pinnedMessageUpdated, Message nil when unpinned
type PinnedMessagePayload struct {
	ConversationID string   `json:"conversation_id"`
	Message        *Message `json:"message"`
}
