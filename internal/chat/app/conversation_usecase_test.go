package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"campus_chat_service/internal/chat/domain"
	"campus_chat_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetNewNop()
}

type conversationMocks struct {
	conv *MockConversationRepository
	msg  *MockMessageRepository
	dir  *MockDirectoryRepository
	pub  *MockPublisher
	uc   *ConversationUseCase
}

func newConversationMocks() conversationMocks {
	m := conversationMocks{
		conv: new(MockConversationRepository),
		msg:  new(MockMessageRepository),
		dir:  new(MockDirectoryRepository),
		pub:  new(MockPublisher),
	}
	m.uc = NewConversationUseCase(m.conv, m.msg, m.dir, m.pub, 25)
	return m
}

func (m conversationMocks) assertExpectations(t *testing.T) {
	m.conv.AssertExpectations(t)
	m.msg.AssertExpectations(t)
	m.dir.AssertExpectations(t)
	m.pub.AssertExpectations(t)
}

var (
	studentA = domain.Identity{UserID: "A", Role: domain.RoleStudent}
	adminU   = domain.Identity{UserID: "ADM", Role: domain.RoleAdmin}
)

// 測試 FindOrCreateDirect
func TestConversationUseCase_FindOrCreateDirect(t *testing.T) {
	ctx := context.Background()
	existing := &domain.Conversation{ID: "c1", Participants: []string{"B", "A"}, DirectKey: domain.DirectKey("A", "B")}

	t.Run("已存在直接回傳", func(t *testing.T) {
		m := newConversationMocks()
		m.conv.On("FindDirect", ctx, "A", "B").Return(existing, nil)

		c, err := m.uc.FindOrCreateDirect(ctx, studentA, "B")
		require.NoError(t, err)
		assert.Equal(t, "c1", c.ID)
		m.conv.AssertNotCalled(t, "CreateConversation", mock.Anything, mock.Anything)
		m.assertExpectations(t)
	})

	t.Run("不存在則建立並推播", func(t *testing.T) {
		m := newConversationMocks()
		m.conv.On("FindDirect", ctx, "A", "B").Return(nil, domain.NewNotFoundError("direct conversation not found"))
		m.conv.On("CreateConversation", ctx, mock.MatchedBy(func(c *domain.Conversation) bool {
			return !c.IsGroup && c.DirectKey == "A:B" && c.LastMessage == nil && len(c.UnreadCounts) == 0
		})).Return(nil)
		m.pub.On("Publish", ctx, domain.EventConversationCreated, domain.TargetUser, "A", mock.Anything).Return(nil)
		m.pub.On("Publish", ctx, domain.EventConversationCreated, domain.TargetUser, "B", mock.Anything).Return(nil)

		c, err := m.uc.FindOrCreateDirect(ctx, studentA, "B")
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, c.Participants)
		m.assertExpectations(t)
	})

	t.Run("同時建立遇到 unique 衝突時回傳既有對話", func(t *testing.T) {
		m := newConversationMocks()
		m.conv.On("FindDirect", ctx, "A", "B").Return(nil, domain.NewNotFoundError("direct conversation not found")).Once()
		m.conv.On("CreateConversation", ctx, mock.Anything).Return(domain.NewConflictError("insert conversation", nil))
		m.conv.On("FindDirect", ctx, "A", "B").Return(existing, nil).Once()

		c, err := m.uc.FindOrCreateDirect(ctx, studentA, "B")
		require.NoError(t, err)
		assert.Equal(t, "c1", c.ID)
		m.pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		m.assertExpectations(t)
	})

	t.Run("儲存錯誤往上回傳", func(t *testing.T) {
		m := newConversationMocks()
		m.conv.On("FindDirect", ctx, "A", "B").Return(nil, domain.NewTransientError("direct conversation", assert.AnError))

		_, err := m.uc.FindOrCreateDirect(ctx, studentA, "B")
		assert.True(t, domain.IsTransient(err))
	})

	t.Run("不能和自己建立", func(t *testing.T) {
		m := newConversationMocks()
		_, err := m.uc.FindOrCreateDirect(ctx, studentA, "A")
		assert.True(t, domain.IsValidation(err))
		m.conv.AssertNotCalled(t, "FindDirect", mock.Anything, mock.Anything, mock.Anything)
	})
}

// 測試 CreateGroup
func TestConversationUseCase_CreateGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("班級學生加上個別挑選，排除管理員", func(t *testing.T) {
		m := newConversationMocks()
		m.dir.On("StudentsInClasses", ctx, []string{"C"}).Return([]string{"S1", "S2"}, nil)
		m.dir.On("NonAdminUsers", ctx, []string{"T1", "ADM"}).Return([]string{"T1"}, nil)
		m.conv.On("CreateConversation", ctx, mock.MatchedBy(func(c *domain.Conversation) bool {
			return c.IsGroup && c.GroupAdmin == "A" && c.GroupName == "Lab" && len(c.Participants) == 4
		})).Return(nil)
		for _, id := range []string{"A", "S1", "S2", "T1"} {
			m.pub.On("Publish", ctx, domain.EventConversationCreated, domain.TargetUser, id, mock.Anything).Return(nil)
		}

		c, err := m.uc.CreateGroup(ctx, studentA, " Lab ", []string{"C", "C"}, []string{"T1", "ADM"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"A", "S1", "S2", "T1"}, c.Participants)
		assert.NotContains(t, c.Participants, "ADM")
		m.assertExpectations(t)
	})

	t.Run("管理員建立不成為 groupAdmin", func(t *testing.T) {
		m := newConversationMocks()
		m.dir.On("StudentsInClasses", ctx, []string{"C"}).Return([]string{"S1"}, nil)
		m.dir.On("NonAdminUsers", ctx, []string{}).Return([]string{}, nil)
		m.conv.On("CreateConversation", ctx, mock.Anything).Return(nil)
		m.pub.On("Publish", ctx, domain.EventConversationCreated, domain.TargetUser, "S1", mock.Anything).Return(nil)

		c, err := m.uc.CreateGroup(ctx, adminU, "", []string{"C"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"S1"}, c.Participants)
		assert.Empty(t, c.GroupAdmin)
		assert.Equal(t, domain.DefaultGroupName, c.GroupName)
		m.assertExpectations(t)
	})

	t.Run("沒有任何參與者時不寫入", func(t *testing.T) {
		m := newConversationMocks()
		m.dir.On("StudentsInClasses", ctx, []string{}).Return([]string{}, nil)
		m.dir.On("NonAdminUsers", ctx, []string{"ADM"}).Return([]string{}, nil)

		_, err := m.uc.CreateGroup(ctx, adminU, "Lab", nil, []string{"ADM"})
		assert.True(t, domain.IsValidation(err))
		m.conv.AssertNotCalled(t, "CreateConversation", mock.Anything, mock.Anything)
		m.assertExpectations(t)
	})

	t.Run("群組名稱過長", func(t *testing.T) {
		m := newConversationMocks()
		_, err := m.uc.CreateGroup(ctx, studentA, strings.Repeat("x", 26), []string{"C"}, nil)
		assert.True(t, domain.IsValidation(err))
		m.dir.AssertNotCalled(t, "StudentsInClasses", mock.Anything, mock.Anything)
	})

	t.Run("名冊查詢失敗", func(t *testing.T) {
		m := newConversationMocks()
		m.dir.On("StudentsInClasses", ctx, []string{"C"}).Return(nil, domain.NewTransientError("query class roster", assert.AnError))

		_, err := m.uc.CreateGroup(ctx, studentA, "Lab", []string{"C"}, nil)
		assert.True(t, domain.IsTransient(err))
		m.conv.AssertNotCalled(t, "CreateConversation", mock.Anything, mock.Anything)
	})
}

// 測試 MarkRead
func TestConversationUseCase_MarkRead(t *testing.T) {
	ctx := context.Background()
	conv := &domain.Conversation{ID: "g1", IsGroup: true, Participants: []string{"A", "B"}, UnreadCounts: domain.UnreadCounts{"B": 2}}

	t.Run("參與者可以歸零", func(t *testing.T) {
		m := newConversationMocks()
		m.conv.On("FindByID", ctx, "g1").Return(conv, nil)
		m.conv.On("ResetUnread", ctx, "g1", "B").Return(nil)
		m.pub.On("Publish", ctx, domain.EventMarkedAsRead, domain.TargetUser, "B", domain.ConversationRefPayload{ConversationID: "g1", UserID: "B"}).Return(nil)

		err := m.uc.MarkRead(ctx, domain.Identity{UserID: "B", Role: domain.RoleStudent}, "g1")
		require.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("非參與者", func(t *testing.T) {
		m := newConversationMocks()
		m.conv.On("FindByID", ctx, "g1").Return(conv, nil)

		err := m.uc.MarkRead(ctx, domain.Identity{UserID: "X"}, "g1")
		assert.True(t, domain.IsAuthorization(err))
		m.conv.AssertNotCalled(t, "ResetUnread", mock.Anything, mock.Anything, mock.Anything)
	})
}

// 測試群組成員管理
func TestConversationUseCase_Members(t *testing.T) {
	ctx := context.Background()
	group := func() *domain.Conversation {
		return &domain.Conversation{ID: "g1", IsGroup: true, GroupAdmin: "A", Participants: []string{"A", "B"}, UnreadCounts: domain.UnreadCounts{}}
	}

	t.Run("非管理者不能加人", func(t *testing.T) {
		m := newConversationMocks()
		m.conv.On("FindByID", ctx, "g1").Return(group(), nil)

		_, err := m.uc.AddMembers(ctx, domain.Identity{UserID: "B", Role: domain.RoleStudent}, "g1", nil, []string{"C"})
		assert.True(t, domain.IsAuthorization(err))
	})

	t.Run("加入新成員只推播新增的人", func(t *testing.T) {
		m := newConversationMocks()
		updated := group()
		updated.Participants = append(updated.Participants, "C")
		m.conv.On("FindByID", ctx, "g1").Return(group(), nil)
		m.dir.On("StudentsInClasses", ctx, []string{}).Return([]string{}, nil)
		m.dir.On("NonAdminUsers", ctx, []string{"B", "C"}).Return([]string{"B", "C"}, nil)
		m.conv.On("AddParticipants", ctx, "g1", []string{"C"}).Return(updated, nil)
		m.pub.On("Publish", ctx, domain.EventConversationCreated, domain.TargetUser, "C", updated).Return(nil)
		for _, id := range []string{"A", "B", "C"} {
			m.pub.On("Publish", ctx, domain.EventGroupUpdated, domain.TargetUser, id, updated).Return(nil)
		}

		c, err := m.uc.AddMembers(ctx, studentA, "g1", nil, []string{"B", "C"})
		require.NoError(t, err)
		assert.Contains(t, c.Participants, "C")
		m.assertExpectations(t)
	})

	t.Run("最後一人不能離開", func(t *testing.T) {
		m := newConversationMocks()
		solo := group()
		solo.Participants = []string{"A"}
		m.conv.On("FindByID", ctx, "g1").Return(solo, nil)

		err := m.uc.ExitGroup(ctx, studentA, "g1")
		assert.True(t, domain.IsValidation(err))
		m.conv.AssertNotCalled(t, "RemoveParticipant", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("1對1 對話不能移除成員", func(t *testing.T) {
		m := newConversationMocks()
		m.conv.On("FindByID", ctx, "c1").Return(&domain.Conversation{ID: "c1", Participants: []string{"A", "B"}}, nil)

		_, err := m.uc.RemoveMember(ctx, adminU, "c1", "B")
		assert.True(t, domain.IsValidation(err))
	})
}

// 測試群組描述
func TestConversationUseCase_UpdateDescription(t *testing.T) {
	ctx := context.Background()
	group := func() *domain.Conversation {
		return &domain.Conversation{ID: "g1", IsGroup: true, GroupAdmin: "A", Participants: []string{"A", "B"}, UnreadCounts: domain.UnreadCounts{}}
	}

	t.Run("管理者更新後推播給所有成員", func(t *testing.T) {
		m := newConversationMocks()
		updated := group()
		updated.Description = "期末專題"
		m.conv.On("FindByID", ctx, "g1").Return(group(), nil)
		m.conv.On("SetDescription", ctx, "g1", "期末專題").Return(updated, nil)
		for _, id := range []string{"A", "B"} {
			m.pub.On("Publish", ctx, domain.EventGroupUpdated, domain.TargetUser, id, updated).Return(nil)
		}

		c, err := m.uc.UpdateDescription(ctx, studentA, "g1", "  期末專題 ")
		require.NoError(t, err)
		assert.Equal(t, "期末專題", c.Description)
		m.assertExpectations(t)
	})

	t.Run("非管理者不能修改", func(t *testing.T) {
		m := newConversationMocks()
		m.conv.On("FindByID", ctx, "g1").Return(group(), nil)

		_, err := m.uc.UpdateDescription(ctx, domain.Identity{UserID: "B", Role: domain.RoleStudent}, "g1", "x")
		assert.True(t, domain.IsAuthorization(err))
		m.conv.AssertNotCalled(t, "SetDescription", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("描述過長不查詢也不寫入", func(t *testing.T) {
		m := newConversationMocks()
		_, err := m.uc.UpdateDescription(ctx, adminU, "g1", strings.Repeat("d", domain.GroupDescriptionMaxLength+1))
		assert.True(t, domain.IsValidation(err))
		m.conv.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("1對1 對話沒有描述", func(t *testing.T) {
		m := newConversationMocks()
		m.conv.On("FindByID", ctx, "c1").Return(&domain.Conversation{ID: "c1", Participants: []string{"A", "B"}}, nil)

		_, err := m.uc.UpdateDescription(ctx, adminU, "c1", "x")
		assert.True(t, domain.IsValidation(err))
	})
}

// 測試置頂訊息
func TestConversationUseCase_PinMessage(t *testing.T) {
	ctx := context.Background()
	conv := &domain.Conversation{ID: "g1", IsGroup: true, Participants: []string{"A", "B"}}

	t.Run("訊息不屬於此對話", func(t *testing.T) {
		m := newConversationMocks()
		m.conv.On("FindByID", ctx, "g1").Return(conv, nil)
		m.msg.On("FindByID", ctx, "m9").Return(&domain.Message{ID: "m9", ConversationID: "other"}, nil)

		_, err := m.uc.PinMessage(ctx, studentA, "g1", "m9")
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("置頂後推播到對話房間", func(t *testing.T) {
		m := newConversationMocks()
		msg := &domain.Message{ID: "m1", ConversationID: "g1", Timestamp: time.Now()}
		pinned := *conv
		pinned.PinnedMessageID = "m1"
		m.conv.On("FindByID", ctx, "g1").Return(conv, nil)
		m.msg.On("FindByID", ctx, "m1").Return(msg, nil)
		m.conv.On("SetPinnedMessage", ctx, "g1", "m1").Return(&pinned, nil)
		m.pub.On("Publish", ctx, domain.EventPinnedMessageUpdated, domain.TargetConversation, "g1",
			domain.PinnedMessagePayload{ConversationID: "g1", Message: msg}).Return(nil)

		c, err := m.uc.PinMessage(ctx, studentA, "g1", "m1")
		require.NoError(t, err)
		assert.Equal(t, "m1", c.PinnedMessageID)
		m.assertExpectations(t)
	})
}
