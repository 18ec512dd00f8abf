package app

import (
	"context"
	"time"

	"campus_chat_service/internal/chat/domain"
	"campus_chat_service/internal/chat/repository"
	"campus_chat_service/pkg"
	"campus_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConversationUseCase conversation lifecycle, membership and read state
type ConversationUseCase struct {
	convRepo           repository.ConversationRepository
	msgRepo            repository.MessageRepository
	directory          repository.DirectoryRepository
	publisher          domain.Publisher
	groupNameMaxLength int
	now                func() time.Time
	newID              func() string
}

// NewConversationUseCase create ConversationUseCase
func NewConversationUseCase(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	directory repository.DirectoryRepository,
	publisher domain.Publisher,
	groupNameMaxLength int,
) *ConversationUseCase {
	if groupNameMaxLength <= 0 {
		groupNameMaxLength = domain.DefaultGroupNameMaxLength
	}
	return &ConversationUseCase{
		convRepo:           convRepo,
		msgRepo:            msgRepo,
		directory:          directory,
		publisher:          publisher,
		groupNameMaxLength: groupNameMaxLength,
		now:                time.Now,
		newID:              func() string { return uuid.New().String() },
	}
}

// FindOrCreateDirect 1:1 對話，已存在則直接回傳
func (uc *ConversationUseCase) FindOrCreateDirect(ctx context.Context, requester domain.Identity, otherID string) (*domain.Conversation, error) {
	conv, err := domain.NewDirectConversation(uc.newID(), requester.UserID, otherID, uc.now())
	if err != nil {
		return nil, err
	}

	existing, err := uc.convRepo.FindDirect(ctx, requester.UserID, otherID)
	if err == nil {
		return existing, nil
	}
	if !domain.IsNotFound(err) {
		return nil, err
	}

	err = uc.convRepo.CreateConversation(ctx, conv)
	if domain.IsConflict(err) {
		// 同一對使用者同時建立，unique index 擋下後讀回已存在的對話
		logger.Log.Debug("direct conversation created concurrently", zap.String("direct_key", conv.DirectKey))
		return uc.convRepo.FindDirect(ctx, requester.UserID, otherID)
	}
	if err != nil {
		return nil, err
	}

	notifyUsers(ctx, uc.publisher, domain.EventConversationCreated, conv.Participants, conv)
	return conv, nil
}

// CreateGroup 由班級名單與個別挑選建立群組
func (uc *ConversationUseCase) CreateGroup(ctx context.Context, creator domain.Identity, groupName string, classIDs, individualIDs []string) (*domain.Conversation, error) {
	if _, err := domain.NormalizeGroupName(groupName, uc.groupNameMaxLength); err != nil {
		return nil, err
	}

	members, err := uc.resolveMembers(ctx, classIDs, individualIDs)
	if err != nil {
		return nil, err
	}

	conv, err := domain.NewGroupConversation(uc.newID(), creator, groupName, members, uc.groupNameMaxLength, uc.now())
	if err != nil {
		return nil, err
	}
	if err := uc.convRepo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	logger.Log.Info("group created",
		zap.String("conversation_id", conv.ID),
		zap.String("creator", creator.UserID),
		zap.Int("participants", len(conv.Participants)))
	notifyUsers(ctx, uc.publisher, domain.EventConversationCreated, conv.Participants, conv)
	return conv, nil
}

// resolveMembers students of the classes plus non-admin individual picks
func (uc *ConversationUseCase) resolveMembers(ctx context.Context, classIDs, individualIDs []string) ([]string, error) {
	students, err := uc.directory.StudentsInClasses(ctx, pkg.Unique(classIDs))
	if err != nil {
		return nil, err
	}
	picks, err := uc.directory.NonAdminUsers(ctx, pkg.Unique(individualIDs))
	if err != nil {
		return nil, err
	}
	return pkg.Unique(append(students, picks...)), nil
}

// ListConversations 依最後活動時間排序，每次重新查詢
func (uc *ConversationUseCase) ListConversations(ctx context.Context, actor domain.Identity) ([]*domain.Conversation, error) {
	return uc.convRepo.FindByParticipant(ctx, actor.UserID)
}

// GetConversation participant only
func (uc *ConversationUseCase) GetConversation(ctx context.Context, actor domain.Identity, id string) (*domain.Conversation, error) {
	conv, err := uc.convRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(actor.UserID) {
		return nil, domain.NewAuthorizationError("not a participant of conversation %s", id)
	}
	return conv, nil
}

// MarkRead 將自己的未讀數歸零，並同步自己其他裝置
func (uc *ConversationUseCase) MarkRead(ctx context.Context, actor domain.Identity, id string) error {
	if _, err := uc.GetConversation(ctx, actor, id); err != nil {
		return err
	}
	if err := uc.convRepo.ResetUnread(ctx, id, actor.UserID); err != nil {
		return err
	}
	notifyUsers(ctx, uc.publisher, domain.EventMarkedAsRead, []string{actor.UserID},
		domain.ConversationRefPayload{ConversationID: id, UserID: actor.UserID})
	return nil
}

// AddMembers add students of classes and individual picks to a group
func (uc *ConversationUseCase) AddMembers(ctx context.Context, actor domain.Identity, id string, classIDs, individualIDs []string) (*domain.Conversation, error) {
	conv, err := uc.manageableGroup(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	members, err := uc.resolveMembers(ctx, classIDs, individualIDs)
	if err != nil {
		return nil, err
	}
	var added []string
	for _, m := range members {
		if pkg.SafeKey(m) && !conv.HasParticipant(m) {
			added = append(added, m)
		}
	}
	if len(added) == 0 {
		return conv, nil
	}

	updated, err := uc.convRepo.AddParticipants(ctx, id, added)
	if err != nil {
		return nil, err
	}
	notifyUsers(ctx, uc.publisher, domain.EventConversationCreated, added, updated)
	notifyUsers(ctx, uc.publisher, domain.EventGroupUpdated, updated.Participants, updated)
	return updated, nil
}

// RemoveMember group admin / administrator removes userID
func (uc *ConversationUseCase) RemoveMember(ctx context.Context, actor domain.Identity, id, userID string) (*domain.Conversation, error) {
	conv, err := uc.manageableGroup(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, domain.NewNotFoundError("user %s is not in group %s", userID, id)
	}
	return uc.leave(ctx, conv, userID)
}

// ExitGroup actor leaves the group
func (uc *ConversationUseCase) ExitGroup(ctx context.Context, actor domain.Identity, id string) error {
	conv, err := uc.GetConversation(ctx, actor, id)
	if err != nil {
		return err
	}
	if !conv.IsGroup {
		return domain.NewValidationError("conversation %s is not a group", id)
	}
	_, err = uc.leave(ctx, conv, actor.UserID)
	return err
}

func (uc *ConversationUseCase) leave(ctx context.Context, conv *domain.Conversation, userID string) (*domain.Conversation, error) {
	if len(conv.Participants) <= 1 {
		return nil, domain.NewValidationError("group %s cannot be left empty", conv.ID)
	}
	updated, err := uc.convRepo.RemoveParticipant(ctx, conv.ID, userID)
	if err != nil {
		return nil, err
	}
	notifyUsers(ctx, uc.publisher, domain.EventRemovedFromGroup, []string{userID},
		domain.ConversationRefPayload{ConversationID: conv.ID, UserID: userID})
	notifyUsers(ctx, uc.publisher, domain.EventGroupUpdated, updated.Participants, updated)
	return updated, nil
}

// UpdateDescription group admin / administrator sets the group description
func (uc *ConversationUseCase) UpdateDescription(ctx context.Context, actor domain.Identity, id, description string) (*domain.Conversation, error) {
	description, err := domain.NormalizeDescription(description)
	if err != nil {
		return nil, err
	}
	if _, err := uc.manageableGroup(ctx, actor, id); err != nil {
		return nil, err
	}
	updated, err := uc.convRepo.SetDescription(ctx, id, description)
	if err != nil {
		return nil, err
	}
	notifyUsers(ctx, uc.publisher, domain.EventGroupUpdated, updated.Participants, updated)
	return updated, nil
}

func (uc *ConversationUseCase) manageableGroup(ctx context.Context, actor domain.Identity, id string) (*domain.Conversation, error) {
	conv, err := uc.convRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return nil, domain.NewValidationError("conversation %s is not a group", id)
	}
	if !conv.CanManage(actor) {
		return nil, domain.NewAuthorizationError("only the group admin can change members")
	}
	return conv, nil
}

// PinMessage pin a message of the conversation, broadcast to the conversation room
func (uc *ConversationUseCase) PinMessage(ctx context.Context, actor domain.Identity, id, messageID string) (*domain.Conversation, error) {
	if _, err := uc.GetConversation(ctx, actor, id); err != nil {
		return nil, err
	}
	msg, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ConversationID != id {
		return nil, domain.NewValidationError("message %s does not belong to conversation %s", messageID, id)
	}
	if msg.IsDeletedForEveryone {
		return nil, domain.NewValidationError("message %s was deleted", messageID)
	}

	updated, err := uc.convRepo.SetPinnedMessage(ctx, id, messageID)
	if err != nil {
		return nil, err
	}
	notifyConversation(ctx, uc.publisher, domain.EventPinnedMessageUpdated, id,
		domain.PinnedMessagePayload{ConversationID: id, Message: msg})
	return updated, nil
}

// UnpinMessage clear the pinned message
func (uc *ConversationUseCase) UnpinMessage(ctx context.Context, actor domain.Identity, id string) (*domain.Conversation, error) {
	if _, err := uc.GetConversation(ctx, actor, id); err != nil {
		return nil, err
	}
	updated, err := uc.convRepo.SetPinnedMessage(ctx, id, "")
	if err != nil {
		return nil, err
	}
	notifyConversation(ctx, uc.publisher, domain.EventPinnedMessageUpdated, id,
		domain.PinnedMessagePayload{ConversationID: id})
	return updated, nil
}

// PinnedMessage current pinned message, nil when none or no longer visible to actor
func (uc *ConversationUseCase) PinnedMessage(ctx context.Context, actor domain.Identity, id string) (*domain.Message, error) {
	conv, err := uc.GetConversation(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if conv.PinnedMessageID == "" {
		return nil, nil
	}
	msg, err := uc.msgRepo.FindByID(ctx, conv.PinnedMessageID)
	if domain.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !msg.IsVisibleTo(actor.UserID) {
		return nil, nil
	}
	return msg, nil
}
