package app

import (
	"context"
	"time"

	"campus_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockConversationRepository mock ConversationRepository
type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) conversation(args mock.Arguments) (*domain.Conversation, error) {
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationRepository) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockConversationRepository) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	return m.conversation(m.Called(ctx, id))
}

func (m *MockConversationRepository) FindDirect(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	return m.conversation(m.Called(ctx, userA, userB))
}

func (m *MockConversationRepository) FindByParticipant(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationRepository) ApplyMessage(ctx context.Context, id string, last domain.LastMessage, recipients []string) (*domain.Conversation, error) {
	return m.conversation(m.Called(ctx, id, last, recipients))
}

func (m *MockConversationRepository) UpdateLastMessageIfCurrent(ctx context.Context, id string, last domain.LastMessage) (bool, error) {
	args := m.Called(ctx, id, last)
	return args.Bool(0), args.Error(1)
}

func (m *MockConversationRepository) ReplaceLastMessage(ctx context.Context, id, expectedMessageID string, last *domain.LastMessage) (*domain.Conversation, error) {
	return m.conversation(m.Called(ctx, id, expectedMessageID, last))
}

func (m *MockConversationRepository) ResetUnread(ctx context.Context, id, userID string) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *MockConversationRepository) AddParticipants(ctx context.Context, id string, userIDs []string) (*domain.Conversation, error) {
	return m.conversation(m.Called(ctx, id, userIDs))
}

func (m *MockConversationRepository) RemoveParticipant(ctx context.Context, id, userID string) (*domain.Conversation, error) {
	return m.conversation(m.Called(ctx, id, userID))
}

func (m *MockConversationRepository) SetPinnedMessage(ctx context.Context, id, messageID string) (*domain.Conversation, error) {
	return m.conversation(m.Called(ctx, id, messageID))
}

func (m *MockConversationRepository) SetDescription(ctx context.Context, id, description string) (*domain.Conversation, error) {
	return m.conversation(m.Called(ctx, id, description))
}

// MockMessageRepository mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) message(args mock.Arguments) (*domain.Message, error) {
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepository) InsertMessage(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	return m.message(m.Called(ctx, id))
}

func (m *MockMessageRepository) FindVisible(ctx context.Context, conversationID, viewerID string) ([]*domain.Message, error) {
	args := m.Called(ctx, conversationID, viewerID)
	if args.Get(0) != nil {
		return args.Get(0).([]*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepository) FindByIDs(ctx context.Context, ids []string) ([]*domain.Message, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) != nil {
		return args.Get(0).([]*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepository) FindLatestVisible(ctx context.Context, conversationID string) (*domain.Message, error) {
	return m.message(m.Called(ctx, conversationID))
}

func (m *MockMessageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) (*domain.Message, error) {
	return m.message(m.Called(ctx, id, content, editedAt))
}

func (m *MockMessageRepository) SetReaction(ctx context.Context, id, userID, emoji string) (*domain.Message, error) {
	return m.message(m.Called(ctx, id, userID, emoji))
}

func (m *MockMessageRepository) MarkDeletedForEveryone(ctx context.Context, id string) (*domain.Message, error) {
	return m.message(m.Called(ctx, id))
}

func (m *MockMessageRepository) AddDeletedBy(ctx context.Context, id, userID string) (*domain.Message, error) {
	return m.message(m.Called(ctx, id, userID))
}

func (m *MockMessageRepository) AddDeletedByMany(ctx context.Context, ids []string, userID string) (int64, error) {
	args := m.Called(ctx, ids, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepository) ClearForUser(ctx context.Context, conversationID, userID string) (int64, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MockDirectoryRepository mock DirectoryRepository
type MockDirectoryRepository struct {
	mock.Mock
}

func (m *MockDirectoryRepository) StudentsInClasses(ctx context.Context, classIDs []string) ([]string, error) {
	args := m.Called(ctx, classIDs)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDirectoryRepository) NonAdminUsers(ctx context.Context, userIDs []string) ([]string, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockPublisher mock domain.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event domain.EventType, target domain.TargetKind, targetID string, payload interface{}) error {
	args := m.Called(ctx, event, target, targetID, payload)
	return args.Error(0)
}
