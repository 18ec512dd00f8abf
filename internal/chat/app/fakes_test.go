package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"campus_chat_service/internal/chat/domain"
)

// memoryStore in-memory conversation / message / directory state for behaviour tests
type memoryStore struct {
	mu            sync.Mutex
	conversations map[string]*domain.Conversation
	messages      map[string]*domain.Message
	classes       map[string][]string
	roles         map[string]domain.Role
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		conversations: map[string]*domain.Conversation{},
		messages:      map[string]*domain.Message{},
		classes:       map[string][]string{},
		roles:         map[string]domain.Role{},
	}
}

func cloneConversation(c *domain.Conversation) *domain.Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.UnreadCounts = domain.UnreadCounts{}
	for k, v := range c.UnreadCounts {
		out.UnreadCounts[k] = v
	}
	if c.LastMessage != nil {
		last := *c.LastMessage
		out.LastMessage = &last
	}
	return &out
}

func cloneMessage(m *domain.Message) *domain.Message {
	out := *m
	out.Reactions = append([]domain.Reaction{}, m.Reactions...)
	out.DeletedBy = append([]string{}, m.DeletedBy...)
	return &out
}

type memoryConversations struct{ s *memoryStore }

func (r memoryConversations) CreateConversation(_ context.Context, c *domain.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.conversations {
		if c.DirectKey != "" && existing.DirectKey == c.DirectKey {
			return domain.NewConflictError("insert conversation", nil)
		}
	}
	r.s.conversations[c.ID] = cloneConversation(c)
	return nil
}

func (r memoryConversations) FindByID(_ context.Context, id string) (*domain.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.get(id)
}

func (r memoryConversations) get(id string) (*domain.Conversation, error) {
	c, ok := r.s.conversations[id]
	if !ok {
		return nil, domain.NewNotFoundError("conversation %s not found", id)
	}
	return cloneConversation(c), nil
}

func (r memoryConversations) FindDirect(_ context.Context, userA, userB string) (*domain.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := domain.DirectKey(userA, userB)
	for _, c := range r.s.conversations {
		if !c.IsGroup && c.DirectKey == key {
			return cloneConversation(c), nil
		}
	}
	return nil, domain.NewNotFoundError("direct conversation not found")
}

func (r memoryConversations) FindByParticipant(_ context.Context, userID string) ([]*domain.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domain.Conversation{}
	for _, c := range r.s.conversations {
		if c.HasParticipant(userID) {
			out = append(out, cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r memoryConversations) update(id string, fn func(c *domain.Conversation)) (*domain.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return nil, domain.NewNotFoundError("conversation %s not found", id)
	}
	fn(c)
	return cloneConversation(c), nil
}

func (r memoryConversations) ApplyMessage(_ context.Context, id string, last domain.LastMessage, recipients []string) (*domain.Conversation, error) {
	return r.update(id, func(c *domain.Conversation) {
		c.LastMessage = &last
		c.UpdatedAt = last.Timestamp
		c.UnreadCounts.Increment(recipients...)
	})
}

func (r memoryConversations) UpdateLastMessageIfCurrent(_ context.Context, id string, last domain.LastMessage) (bool, error) {
	matched := false
	_, err := r.update(id, func(c *domain.Conversation) {
		if c.LastMessage != nil && c.LastMessage.MessageID == last.MessageID {
			c.LastMessage = &last
			matched = true
		}
	})
	return matched, err
}

func (r memoryConversations) ReplaceLastMessage(_ context.Context, id, expectedMessageID string, last *domain.LastMessage) (*domain.Conversation, error) {
	matched := false
	c, err := r.update(id, func(c *domain.Conversation) {
		if c.LastMessage != nil && c.LastMessage.MessageID == expectedMessageID {
			c.LastMessage = last
			matched = true
		}
	})
	if err != nil || !matched {
		return nil, err
	}
	return c, nil
}

func (r memoryConversations) ResetUnread(_ context.Context, id, userID string) error {
	_, err := r.update(id, func(c *domain.Conversation) { c.MarkRead(userID) })
	return err
}

func (r memoryConversations) AddParticipants(_ context.Context, id string, userIDs []string) (*domain.Conversation, error) {
	return r.update(id, func(c *domain.Conversation) { c.AddParticipants(userIDs) })
}

func (r memoryConversations) RemoveParticipant(_ context.Context, id, userID string) (*domain.Conversation, error) {
	return r.update(id, func(c *domain.Conversation) { c.RemoveParticipant(userID) })
}

func (r memoryConversations) SetPinnedMessage(_ context.Context, id, messageID string) (*domain.Conversation, error) {
	return r.update(id, func(c *domain.Conversation) { c.PinnedMessageID = messageID })
}

func (r memoryConversations) SetDescription(_ context.Context, id, description string) (*domain.Conversation, error) {
	return r.update(id, func(c *domain.Conversation) { c.Description = description })
}

type memoryMessages struct{ s *memoryStore }

func (r memoryMessages) InsertMessage(_ context.Context, m *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.messages[m.ID] = cloneMessage(m)
	return nil
}

func (r memoryMessages) FindByID(_ context.Context, id string) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, domain.NewNotFoundError("message %s not found", id)
	}
	return cloneMessage(m), nil
}

func (r memoryMessages) FindByIDs(_ context.Context, ids []string) ([]*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domain.Message{}
	for _, id := range ids {
		if m, ok := r.s.messages[id]; ok {
			out = append(out, cloneMessage(m))
		}
	}
	return out, nil
}

func (r memoryMessages) sorted(conversationID string, keep func(m *domain.Message) bool) []*domain.Message {
	out := []*domain.Message{}
	for _, m := range r.s.messages {
		if m.ConversationID == conversationID && keep(m) {
			out = append(out, cloneMessage(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (r memoryMessages) FindVisible(_ context.Context, conversationID, viewerID string) ([]*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.sorted(conversationID, func(m *domain.Message) bool { return m.IsVisibleTo(viewerID) }), nil
}

func (r memoryMessages) FindLatestVisible(_ context.Context, conversationID string) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.sorted(conversationID, func(m *domain.Message) bool { return !m.IsDeletedForEveryone })
	if len(all) == 0 {
		return nil, nil
	}
	return all[len(all)-1], nil
}

func (r memoryMessages) update(id string, fn func(m *domain.Message)) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, domain.NewNotFoundError("message %s not found", id)
	}
	fn(m)
	return cloneMessage(m), nil
}

func (r memoryMessages) UpdateContent(_ context.Context, id, content string, editedAt time.Time) (*domain.Message, error) {
	return r.update(id, func(m *domain.Message) {
		m.Content = content
		m.EditedAt = &editedAt
	})
}

func (r memoryMessages) SetReaction(_ context.Context, id, userID, emoji string) (*domain.Message, error) {
	return r.update(id, func(m *domain.Message) { m.React(userID, emoji) })
}

func (r memoryMessages) MarkDeletedForEveryone(_ context.Context, id string) (*domain.Message, error) {
	return r.update(id, func(m *domain.Message) { m.DeleteForEveryone() })
}

func (r memoryMessages) AddDeletedBy(_ context.Context, id, userID string) (*domain.Message, error) {
	return r.update(id, func(m *domain.Message) { m.DeleteFor(userID) })
}

func (r memoryMessages) AddDeletedByMany(_ context.Context, ids []string, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if m, ok := r.s.messages[id]; ok {
			m.DeleteFor(userID)
			n++
		}
	}
	return n, nil
}

func (r memoryMessages) ClearForUser(_ context.Context, conversationID, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.messages {
		if m.ConversationID == conversationID && m.IsVisibleTo(userID) {
			m.DeleteFor(userID)
			n++
		}
	}
	return n, nil
}

type memoryDirectory struct{ s *memoryStore }

func (r memoryDirectory) StudentsInClasses(_ context.Context, classIDs []string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []string{}
	for _, id := range classIDs {
		out = append(out, r.s.classes[id]...)
	}
	return out, nil
}

func (r memoryDirectory) NonAdminUsers(_ context.Context, userIDs []string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []string{}
	for _, id := range userIDs {
		if role, ok := r.s.roles[id]; ok && role != domain.RoleAdmin {
			out = append(out, id)
		}
	}
	return out, nil
}

type publishedEvent struct {
	Event    domain.EventType
	Target   domain.TargetKind
	TargetID string
	Payload  interface{}
}

// recordingPublisher keep every published event in order
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.EventType, target domain.TargetKind, targetID string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Event: event, Target: target, TargetID: targetID, Payload: payload})
	return nil
}

func (p *recordingPublisher) count(event domain.EventType, target domain.TargetKind, targetID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Event == event && e.Target == target && e.TargetID == targetID {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// tickingClock every call is one second after the previous one
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func newMemoryServices(s *memoryStore) (*ConversationUseCase, *MessageUseCase, *recordingPublisher) {
	pub := &recordingPublisher{}
	convRepo := memoryConversations{s: s}
	msgRepo := memoryMessages{s: s}
	clock := tickingClock(time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC))

	convUC := NewConversationUseCase(convRepo, msgRepo, memoryDirectory{s: s}, pub, 25)
	convUC.now = clock
	msgUC := NewMessageUseCase(convRepo, msgRepo, convUC, pub)
	msgUC.now = clock
	return convUC, msgUC, pub
}
