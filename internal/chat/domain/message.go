package domain

import (
	"strings"
	"time"
)

// AttachmentMarker projection text for file-only messages
const AttachmentMarker = "📎 Sent an attachment"

// FileRef opaque reference returned by the attachment store
type FileRef struct {
	ID          string `bson:"id" json:"id"`
	Name        string `bson:"name" json:"name"`
	ContentType string `bson:"content_type" json:"content_type"`
}

// Reaction one emoji per user
type Reaction struct {
	UserID string `bson:"user_id" json:"user_id"`
	Emoji  string `bson:"emoji" json:"emoji"`
}

// Message 對話訊息，僅以旗標刪除
type Message struct {
	ID                   string     `bson:"_id" json:"id"`
	ConversationID       string     `bson:"conversation_id" json:"conversation_id"`
	SenderID             string     `bson:"sender_id" json:"sender_id"`
	ReceiverID           string     `bson:"receiver_id,omitempty" json:"receiver_id,omitempty"`
	Content              string     `bson:"content" json:"content"`
	File                 *FileRef   `bson:"file,omitempty" json:"file,omitempty"`
	ReplyTo              string     `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	ForwardedFrom        string     `bson:"forwarded_from,omitempty" json:"forwarded_from,omitempty"`
	Reactions            []Reaction `bson:"reactions" json:"reactions"`
	Timestamp            time.Time  `bson:"timestamp" json:"timestamp"`
	EditedAt             *time.Time `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	IsDeletedForEveryone bool       `bson:"is_deleted_for_everyone" json:"is_deleted_for_everyone"`
	DeletedBy            []string   `bson:"deleted_by" json:"deleted_by"`
}

// ValidateBody a message needs non-blank content or a file
func ValidateBody(content string, file *FileRef) error {
	if strings.TrimSpace(content) == "" && file == nil {
		return NewValidationError("message content or file is required")
	}
	return nil
}

// NewMessage build a message sent by senderID into conv
func NewMessage(id string, conv *Conversation, senderID, content string, file *FileRef, replyTo string, now time.Time) (*Message, error) {
	if err := ValidateBody(content, file); err != nil {
		return nil, err
	}
	return &Message{
		ID:             id,
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     conv.Peer(senderID),
		Content:        content,
		File:           file,
		ReplyTo:        replyTo,
		Reactions:      []Reaction{},
		Timestamp:      now,
		DeletedBy:      []string{},
	}, nil
}

// Projection the conversation-level view of this message
func (m *Message) Projection() LastMessage {
	content := m.Content
	if m.File != nil && strings.TrimSpace(content) == "" {
		content = AttachmentMarker
	}
	return LastMessage{
		MessageID: m.ID,
		SenderID:  m.SenderID,
		Content:   content,
		File:      m.File,
		Timestamp: m.Timestamp,
	}
}

// Edit replace content in place, no history kept
func (m *Message) Edit(content string, now time.Time) error {
	if m.IsDeletedForEveryone {
		return NewValidationError("message %s was deleted", m.ID)
	}
	if err := ValidateBody(content, m.File); err != nil {
		return err
	}
	m.Content = content
	m.EditedAt = &now
	return nil
}

// React remove userID's previous reaction then append emoji when non-empty
func (m *Message) React(userID, emoji string) {
	kept := make([]Reaction, 0, len(m.Reactions)+1)
	for _, r := range m.Reactions {
		if r.UserID != userID {
			kept = append(kept, r)
		}
	}
	if emoji != "" {
		kept = append(kept, Reaction{UserID: userID, Emoji: emoji})
	}
	m.Reactions = kept
}

// ReactionOf current emoji of userID
func (m *Message) ReactionOf(userID string) (string, bool) {
	for _, r := range m.Reactions {
		if r.UserID == userID {
			return r.Emoji, true
		}
	}
	return "", false
}

// DeleteFor hide for userID only, false if already hidden
func (m *Message) DeleteFor(userID string) bool {
	for _, id := range m.DeletedBy {
		if id == userID {
			return false
		}
	}
	m.DeletedBy = append(m.DeletedBy, userID)
	return true
}

// DeleteForEveryone tombstone for all viewers, deletedBy untouched
func (m *Message) DeleteForEveryone() {
	m.IsDeletedForEveryone = true
}

// IsVisibleTo check viewer can still see the message
func (m *Message) IsVisibleTo(viewerID string) bool {
	if m.IsDeletedForEveryone {
		return false
	}
	for _, id := range m.DeletedBy {
		if id == viewerID {
			return false
		}
	}
	return true
}
