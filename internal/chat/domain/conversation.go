package domain

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"campus_chat_service/pkg"
)

const (
	// DefaultGroupName used when creator leaves the name blank
	DefaultGroupName = "Untitled Group"
	// DefaultGroupNameMaxLength group name limit in runes
	DefaultGroupNameMaxLength = 25
	// GroupDescriptionMaxLength group description limit in runes
	GroupDescriptionMaxLength = 500
)

// UnreadCounts participant -> unread message count, missing entry means 0
type UnreadCounts map[string]int

// Of read count of userID
func (u UnreadCounts) Of(userID string) int {
	return u[userID]
}

// Increment add one for every user
func (u UnreadCounts) Increment(userIDs ...string) {
	for _, id := range userIDs {
		u[id]++
	}
}

// Reset clear userID to zero
func (u UnreadCounts) Reset(userID string) {
	u[userID] = 0
}

// LastMessage denormalized projection of the newest message.
// It is a cache maintained by send/edit/delete and may lag the message store.
type LastMessage struct {
	MessageID string    `bson:"message_id" json:"message_id"`
	SenderID  string    `bson:"sender_id" json:"sender_id"`
	Content   string    `bson:"content" json:"content"`
	File      *FileRef  `bson:"file,omitempty" json:"file,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Conversation 1:1 或群組對話
type Conversation struct {
	ID              string       `bson:"_id" json:"id"`
	Participants    []string     `bson:"participants" json:"participants"`
	IsGroup         bool         `bson:"is_group" json:"is_group"`
	GroupName       string       `bson:"group_name,omitempty" json:"group_name,omitempty"`
	GroupAdmin      string       `bson:"group_admin,omitempty" json:"group_admin,omitempty"`
	Description     string       `bson:"description,omitempty" json:"description,omitempty"`
	CreatedBy       string       `bson:"created_by" json:"created_by"`
	DirectKey       string       `bson:"direct_key,omitempty" json:"-"`
	LastMessage     *LastMessage `bson:"last_message" json:"last_message"`
	PinnedMessageID string       `bson:"pinned_message_id,omitempty" json:"pinned_message_id,omitempty"`
	UnreadCounts    UnreadCounts `bson:"unread_counts" json:"unread_counts"`
	CreatedAt       time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `bson:"updated_at" json:"updated_at"`
}

// DirectKey unordered pair key, same for (a,b) and (b,a)
func DirectKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// NewDirectConversation build a 1:1 conversation between requester and other
func NewDirectConversation(id, requesterID, otherID string, now time.Time) (*Conversation, error) {
	if requesterID == "" || otherID == "" {
		return nil, NewValidationError("both participants are required")
	}
	if requesterID == otherID {
		return nil, NewValidationError("cannot start a conversation with yourself")
	}
	if !pkg.SafeKey(requesterID) || !pkg.SafeKey(otherID) {
		return nil, NewValidationError("invalid participant id")
	}
	return &Conversation{
		ID:           id,
		Participants: []string{requesterID, otherID},
		CreatedBy:    requesterID,
		DirectKey:    DirectKey(requesterID, otherID),
		UnreadCounts: UnreadCounts{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeGroupName trim, default blank names and enforce maxLen (runes)
func NormalizeGroupName(name string, maxLen int) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultGroupName, nil
	}
	if maxLen <= 0 {
		maxLen = DefaultGroupNameMaxLength
	}
	if utf8.RuneCountInString(name) > maxLen {
		return "", NewValidationError("group name exceeds %d characters", maxLen)
	}
	return name, nil
}

// NormalizeDescription trim, blank clears the description
func NormalizeDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > GroupDescriptionMaxLength {
		return "", NewValidationError("group description exceeds %d characters", GroupDescriptionMaxLength)
	}
	return description, nil
}

// NewGroupConversation build a group from resolved members.
// A non-admin creator joins the group and becomes its admin; an administrator only seeds it.
func NewGroupConversation(id string, creator Identity, name string, members []string, maxLen int, now time.Time) (*Conversation, error) {
	groupName, err := NormalizeGroupName(name, maxLen)
	if err != nil {
		return nil, err
	}

	participants := safeIDs(pkg.Unique(members))
	groupAdmin := ""
	if !creator.IsAdmin() && creator.UserID != "" {
		participants = pkg.Unique(append(participants, creator.UserID))
		groupAdmin = creator.UserID
	}
	if len(participants) == 0 {
		return nil, NewValidationError("no valid participants")
	}

	return &Conversation{
		ID:           id,
		Participants: participants,
		IsGroup:      true,
		GroupName:    groupName,
		GroupAdmin:   groupAdmin,
		CreatedBy:    creator.UserID,
		UnreadCounts: UnreadCounts{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// safeIDs drop ids that cannot key the per-user unread map
func safeIDs(ids []string) []string {
	out := ids[:0]
	for _, id := range ids {
		if pkg.SafeKey(id) {
			out = append(out, id)
		}
	}
	return out
}

// HasParticipant check userID in participants
func (c *Conversation) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}

// Others participants except userID
func (c *Conversation) Others(userID string) []string {
	return pkg.Remove(c.Participants, userID)
}

// Peer the other side of a 1:1 conversation, empty for groups
func (c *Conversation) Peer(userID string) string {
	if c.IsGroup {
		return ""
	}
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// CanManage group admin or an administrator may change membership
func (c *Conversation) CanManage(actor Identity) bool {
	return actor.IsAdmin() || (c.GroupAdmin != "" && c.GroupAdmin == actor.UserID)
}

// ApplyMessage move the projection to m and count it as unread for everyone but the sender
func (c *Conversation) ApplyMessage(m *Message) {
	last := m.Projection()
	c.LastMessage = &last
	c.UpdatedAt = m.Timestamp
	if c.UnreadCounts == nil {
		c.UnreadCounts = UnreadCounts{}
	}
	c.UnreadCounts.Increment(c.Others(m.SenderID)...)
}

// MarkRead reset unread of userID
func (c *Conversation) MarkRead(userID string) {
	if c.UnreadCounts == nil {
		c.UnreadCounts = UnreadCounts{}
	}
	c.UnreadCounts.Reset(userID)
}

// AddParticipants append new members, return the ones actually added
func (c *Conversation) AddParticipants(userIDs []string) []string {
	var added []string
	for _, id := range safeIDs(pkg.Unique(userIDs)) {
		if !c.HasParticipant(id) {
			c.Participants = append(c.Participants, id)
			added = append(added, id)
		}
	}
	return added
}

// RemoveParticipant drop userID and its unread entry, clear admin slot if needed
func (c *Conversation) RemoveParticipant(userID string) {
	c.Participants = pkg.Remove(c.Participants, userID)
	delete(c.UnreadCounts, userID)
	if c.GroupAdmin == userID {
		c.GroupAdmin = ""
	}
}
