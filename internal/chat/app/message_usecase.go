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

// SendInput send payload; ReceiverID opens (or reuses) a direct conversation when ConversationID is empty
type SendInput struct {
	ConversationID string
	ReceiverID     string
	Content        string
	File           *domain.FileRef
	ReplyTo        string
}

// MessageUseCase message lifecycle
type MessageUseCase struct {
	convRepo      repository.ConversationRepository
	msgRepo       repository.MessageRepository
	conversations *ConversationUseCase
	publisher     domain.Publisher
	now           func() time.Time
	newID         func() string
}

// NewMessageUseCase create MessageUseCase
func NewMessageUseCase(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	conversations *ConversationUseCase,
	publisher domain.Publisher,
) *MessageUseCase {
	return &MessageUseCase{
		convRepo:      convRepo,
		msgRepo:       msgRepo,
		conversations: conversations,
		publisher:     publisher,
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
	}
}

// Send 寫入訊息，更新對話投影與未讀數，再推播給所有參與者
func (uc *MessageUseCase) Send(ctx context.Context, sender domain.Identity, in SendInput) (*domain.Message, error) {
	if err := domain.ValidateBody(in.Content, in.File); err != nil {
		return nil, err
	}

	conv, err := uc.targetConversation(ctx, sender, in.ConversationID, in.ReceiverID)
	if err != nil {
		return nil, err
	}

	if in.ReplyTo != "" {
		reply, err := uc.msgRepo.FindByID(ctx, in.ReplyTo)
		if err != nil && !domain.IsNotFound(err) {
			return nil, err
		}
		if reply == nil || reply.ConversationID != conv.ID {
			return nil, domain.NewValidationError("reply target %s is not in this conversation", in.ReplyTo)
		}
	}

	return uc.deliver(ctx, conv, sender.UserID, in.Content, in.File, in.ReplyTo, "")
}

// Forward copy a visible message into another conversation
func (uc *MessageUseCase) Forward(ctx context.Context, actor domain.Identity, messageID, conversationID, receiverID string) (*domain.Message, error) {
	src, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := uc.participantConversation(ctx, actor, src.ConversationID); err != nil {
		return nil, err
	}
	if !src.IsVisibleTo(actor.UserID) {
		return nil, domain.NewNotFoundError("message %s not found", messageID)
	}

	conv, err := uc.targetConversation(ctx, actor, conversationID, receiverID)
	if err != nil {
		return nil, err
	}
	return uc.deliver(ctx, conv, actor.UserID, src.Content, src.File, "", src.ID)
}

func (uc *MessageUseCase) targetConversation(ctx context.Context, actor domain.Identity, conversationID, receiverID string) (*domain.Conversation, error) {
	switch {
	case conversationID != "":
		return uc.participantConversation(ctx, actor, conversationID)
	case receiverID != "":
		return uc.conversations.FindOrCreateDirect(ctx, actor, receiverID)
	default:
		return nil, domain.NewValidationError("conversation_id or receiver_id is required")
	}
}

// deliver insert then project. 兩次寫入不在同一個交易：投影更新失敗只記錄，訊息仍回傳
func (uc *MessageUseCase) deliver(ctx context.Context, conv *domain.Conversation, senderID, content string, file *domain.FileRef, replyTo, forwardedFrom string) (*domain.Message, error) {
	msg, err := domain.NewMessage(uc.newID(), conv, senderID, content, file, replyTo, uc.now())
	if err != nil {
		return nil, err
	}
	msg.ForwardedFrom = forwardedFrom

	if err := uc.msgRepo.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	firstMessage := conv.LastMessage == nil
	updated, err := uc.convRepo.ApplyMessage(ctx, conv.ID, msg.Projection(), conv.Others(senderID))
	if err != nil {
		logger.Log.Error("conversation projection update failed",
			zap.String("conversation_id", conv.ID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
		notifyUsers(ctx, uc.publisher, domain.EventNewMessage, conv.Participants, msg)
		return msg, nil
	}

	notifyUsers(ctx, uc.publisher, domain.EventNewMessage, updated.Participants, msg)
	event := domain.EventConversationUpdated
	if firstMessage {
		event = domain.EventConversationCreated
	}
	notifyUsers(ctx, uc.publisher, event, updated.Participants, updated)
	return msg, nil
}

// ListMessages 參與者可看到未被全域刪除、且自己未刪除的訊息，依時間遞增
func (uc *MessageUseCase) ListMessages(ctx context.Context, viewer domain.Identity, conversationID string) ([]*domain.Message, error) {
	if _, err := uc.participantConversation(ctx, viewer, conversationID); err != nil {
		return nil, err
	}
	return uc.msgRepo.FindVisible(ctx, conversationID, viewer.UserID)
}

// Edit 只有原發送者可以編輯；若為最後一則訊息則同步更新投影
func (uc *MessageUseCase) Edit(ctx context.Context, editor domain.Identity, messageID, content string) (*domain.Message, error) {
	msg, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != editor.UserID {
		return nil, domain.NewAuthorizationError("only the sender can edit message %s", messageID)
	}
	now := uc.now()
	draft := *msg
	if err := draft.Edit(content, now); err != nil {
		return nil, err
	}
	conv, err := uc.convRepo.FindByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}

	updated, err := uc.msgRepo.UpdateContent(ctx, messageID, content, now)
	if err != nil {
		return nil, err
	}

	notifyUsers(ctx, uc.publisher, domain.EventMessageEdited, conv.Participants, updated)

	projection := updated.Projection()
	current, err := uc.convRepo.UpdateLastMessageIfCurrent(ctx, conv.ID, projection)
	if err != nil {
		logger.Log.Error("last message update failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		return updated, nil
	}
	if current {
		conv.LastMessage = &projection
		notifyUsers(ctx, uc.publisher, domain.EventConversationUpdated, conv.Participants, conv)
	}
	return updated, nil
}

// React 每人一個反應；emoji 為空代表移除
func (uc *MessageUseCase) React(ctx context.Context, actor domain.Identity, messageID, emoji string) (*domain.Message, error) {
	msg, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	conv, err := uc.participantConversation(ctx, actor, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeletedForEveryone {
		return nil, domain.NewValidationError("message %s was deleted", messageID)
	}

	updated, err := uc.msgRepo.SetReaction(ctx, messageID, actor.UserID, emoji)
	if err != nil {
		return nil, err
	}
	notifyUsers(ctx, uc.publisher, domain.EventMessageReacted, conv.Participants, updated)
	return updated, nil
}

// Delete forEveryone 需為發送者；否則只對自己隱藏
func (uc *MessageUseCase) Delete(ctx context.Context, actor domain.Identity, messageID string, forEveryone bool) error {
	msg, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	conv, err := uc.participantConversation(ctx, actor, msg.ConversationID)
	if err != nil {
		return err
	}

	if forEveryone {
		if msg.SenderID != actor.UserID {
			return domain.NewAuthorizationError("only the sender can delete message %s for everyone", messageID)
		}
		if _, err := uc.msgRepo.MarkDeletedForEveryone(ctx, messageID); err != nil {
			return err
		}
	} else {
		if _, err := uc.msgRepo.AddDeletedBy(ctx, messageID, actor.UserID); err != nil {
			return err
		}
	}

	notifyUsers(ctx, uc.publisher, domain.EventMessageDeleted, conv.Participants, domain.MessageDeletedPayload{
		ID:             messageID,
		ConversationID: conv.ID,
		ForEveryone:    forEveryone,
		UserID:         actor.UserID,
	})

	if forEveryone && conv.LastMessage != nil && conv.LastMessage.MessageID == messageID {
		uc.recomputeLastMessage(ctx, conv, messageID)
	}
	return nil
}

// recomputeLastMessage point the projection at the newest surviving message, best effort
func (uc *MessageUseCase) recomputeLastMessage(ctx context.Context, conv *domain.Conversation, deletedID string) {
	latest, err := uc.msgRepo.FindLatestVisible(ctx, conv.ID)
	if err != nil {
		logger.Log.Error("find latest message failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		return
	}
	var last *domain.LastMessage
	if latest != nil {
		p := latest.Projection()
		last = &p
	}
	updated, err := uc.convRepo.ReplaceLastMessage(ctx, conv.ID, deletedID, last)
	if err != nil {
		logger.Log.Error("replace last message failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		return
	}
	if updated != nil {
		notifyUsers(ctx, uc.publisher, domain.EventConversationUpdated, updated.Participants, updated)
	}
}

// DeleteMany delete-for-me of several messages, only messages of conversations actor belongs to are touched.
// Unknown and foreign ids are skipped alike; returns how many were hidden.
func (uc *MessageUseCase) DeleteMany(ctx context.Context, actor domain.Identity, messageIDs []string) (int64, error) {
	ids := pkg.Unique(messageIDs)
	if len(ids) == 0 {
		return 0, domain.NewValidationError("message_ids is required")
	}
	found, err := uc.msgRepo.FindByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}

	member := map[string]bool{}
	var targets []*domain.Message
	for _, m := range found {
		ok, checked := member[m.ConversationID]
		if !checked {
			_, err := uc.participantConversation(ctx, actor, m.ConversationID)
			switch {
			case err == nil:
				ok = true
			case domain.IsAuthorization(err), domain.IsNotFound(err):
				ok = false
			default:
				return 0, err
			}
			member[m.ConversationID] = ok
		}
		if ok {
			targets = append(targets, m)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}

	targetIDs := make([]string, 0, len(targets))
	for _, m := range targets {
		targetIDs = append(targetIDs, m.ID)
	}
	n, err := uc.msgRepo.AddDeletedByMany(ctx, targetIDs, actor.UserID)
	if err != nil {
		return 0, err
	}
	for _, m := range targets {
		notifyUsers(ctx, uc.publisher, domain.EventMessageDeleted, []string{actor.UserID}, domain.MessageDeletedPayload{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			UserID:         actor.UserID,
		})
	}
	return n, nil
}

// ClearConversation hide every message of the conversation for actor
func (uc *MessageUseCase) ClearConversation(ctx context.Context, actor domain.Identity, conversationID string) (int64, error) {
	if _, err := uc.participantConversation(ctx, actor, conversationID); err != nil {
		return 0, err
	}
	n, err := uc.msgRepo.ClearForUser(ctx, conversationID, actor.UserID)
	if err != nil {
		return 0, err
	}
	notifyUsers(ctx, uc.publisher, domain.EventMessagesCleared, []string{actor.UserID},
		domain.ConversationRefPayload{ConversationID: conversationID, UserID: actor.UserID})
	return n, nil
}

func (uc *MessageUseCase) participantConversation(ctx context.Context, actor domain.Identity, conversationID string) (*domain.Conversation, error) {
	return uc.conversations.GetConversation(ctx, actor, conversationID)
}
