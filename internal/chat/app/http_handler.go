package app

import (
	"fmt"
	"strconv"

	"campus_chat_service/internal/chat/domain"
	"campus_chat_service/internal/chat/repository"
	"campus_chat_service/pkg/logger"
	"campus_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChatHTTPHandler REST surface of conversations, messages and attachments
type ChatHTTPHandler struct {
	conversationUC *ConversationUseCase
	messageUC      *MessageUseCase
	attachments    repository.AttachmentRepository
}

// NewChatHTTPHandler create ChatHTTPHandler, attachments may be nil when no object store is configured
func NewChatHTTPHandler(conversationUC *ConversationUseCase, messageUC *MessageUseCase, attachments repository.AttachmentRepository) *ChatHTTPHandler {
	return &ChatHTTPHandler{
		conversationUC: conversationUC,
		messageUC:      messageUC,
		attachments:    attachments,
	}
}

type directRequest struct {
	ParticipantID string `json:"participant_id"`
}

type groupRequest struct {
	GroupName         string   `json:"group_name"`
	ClassIDs          []string `json:"class_ids"`
	IndividualUserIDs []string `json:"individual_user_ids"`
}

type descriptionRequest struct {
	Description string `json:"description"`
}

type pinRequest struct {
	MessageID string `json:"message_id"`
}

type sendRequest struct {
	ConversationID string          `json:"conversation_id"`
	ReceiverID     string          `json:"receiver_id"`
	Content        string          `json:"content"`
	File           *domain.FileRef `json:"file"`
	ReplyTo        string          `json:"reply_to"`
}

type editRequest struct {
	Content string `json:"content"`
}

type reactRequest struct {
	Emoji string `json:"emoji"`
}

type deleteRequest struct {
	ForEveryone bool `json:"for_everyone"`
}

type deleteManyRequest struct {
	MessageIDs []string `json:"message_ids"`
}

type forwardRequest struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// identityFrom caller set by JWTMiddleware
func identityFrom(c *fiber.Ctx) domain.Identity {
	memberID, _ := c.Locals(middlewares.TokenMemberID).(string)
	role, _ := c.Locals(middlewares.TokenRole).(string)
	return domain.Identity{UserID: memberID, Role: domain.Role(role)}
}

func statusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return fiber.StatusBadRequest
	case domain.KindAuthorization:
		return fiber.StatusForbidden
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindConflict:
		return fiber.StatusConflict
	case domain.KindTransient:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusOf(err)
	if status >= fiber.StatusInternalServerError {
		logger.Log.Error("chat request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	return c.Status(status).JSON(errorResponse{Error: err.Error(), Kind: string(domain.KindOf(err))})
}

func badRequest(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid request", Kind: string(domain.KindValidation)})
}

// ListConversations godoc
// @Summary List my conversations
// @Description Conversations the caller participates in, most recent activity first
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Success 200 {array} domain.Conversation
// @Failure 503 {object} errorResponse
// @Router /api/conversations [get]
func (h *ChatHTTPHandler) ListConversations(c *fiber.Ctx) error {
	list, err := h.conversationUC.ListConversations(c.UserContext(), identityFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// GetConversation godoc
// @Summary Get a conversation
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} domain.Conversation
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /api/conversations/{id} [get]
func (h *ChatHTTPHandler) GetConversation(c *fiber.Ctx) error {
	conv, err := h.conversationUC.GetConversation(c.UserContext(), identityFrom(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(conv)
}

// FindOrCreateDirect godoc
// @Summary Open a 1:1 conversation
// @Description Returns the existing conversation of the pair or creates it
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body directRequest true "Other participant"
// @Success 200 {object} domain.Conversation
// @Failure 400 {object} errorResponse
// @Router /api/conversations/direct [post]
func (h *ChatHTTPHandler) FindOrCreateDirect(c *fiber.Ctx) error {
	var req directRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	conv, err := h.conversationUC.FindOrCreateDirect(c.UserContext(), identityFrom(c), req.ParticipantID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(conv)
}

// CreateGroup godoc
// @Summary Create a group conversation
// @Description Participants are the students of the classes plus the non-admin individual picks
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body groupRequest true "Group"
// @Success 201 {object} domain.Conversation
// @Failure 400 {object} errorResponse
// @Router /api/conversations/group [post]
func (h *ChatHTTPHandler) CreateGroup(c *fiber.Ctx) error {
	var req groupRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	conv, err := h.conversationUC.CreateGroup(c.UserContext(), identityFrom(c), req.GroupName, req.ClassIDs, req.IndividualUserIDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

// MarkRead godoc
// @Summary Mark a conversation read
// @Tags Conversations
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 204 {string} string "no content"
// @Failure 403 {object} errorResponse
// @Router /api/conversations/{id}/read [put]
func (h *ChatHTTPHandler) MarkRead(c *fiber.Ctx) error {
	if err := h.conversationUC.MarkRead(c.UserContext(), identityFrom(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListMessages godoc
// @Summary Messages of a conversation
// @Description Oldest first, without messages deleted for everyone or deleted by the caller
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {array} domain.Message
// @Failure 403 {object} errorResponse
// @Router /api/conversations/{id}/messages [get]
func (h *ChatHTTPHandler) ListMessages(c *fiber.Ctx) error {
	list, err := h.messageUC.ListMessages(c.UserContext(), identityFrom(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// AddMembers godoc
// @Summary Add members to a group
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param request body groupRequest true "class_ids / individual_user_ids"
// @Success 200 {object} domain.Conversation
// @Failure 403 {object} errorResponse
// @Router /api/conversations/{id}/members [put]
func (h *ChatHTTPHandler) AddMembers(c *fiber.Ctx) error {
	var req groupRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	conv, err := h.conversationUC.AddMembers(c.UserContext(), identityFrom(c), c.Params("id"), req.ClassIDs, req.IndividualUserIDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(conv)
}

// RemoveMember godoc
// @Summary Remove a member from a group
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param userId path string true "User ID"
// @Success 200 {object} domain.Conversation
// @Failure 403 {object} errorResponse
// @Router /api/conversations/{id}/members/{userId} [delete]
func (h *ChatHTTPHandler) RemoveMember(c *fiber.Ctx) error {
	conv, err := h.conversationUC.RemoveMember(c.UserContext(), identityFrom(c), c.Params("id"), c.Params("userId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(conv)
}

// ExitGroup godoc
// @Summary Leave a group
// @Tags Conversations
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 204 {string} string "no content"
// @Failure 400 {object} errorResponse
// @Router /api/conversations/{id}/exit [put]
func (h *ChatHTTPHandler) ExitGroup(c *fiber.Ctx) error {
	if err := h.conversationUC.ExitGroup(c.UserContext(), identityFrom(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdateDescription godoc
// @Summary Update the group description
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param request body descriptionRequest true "Description"
// @Success 200 {object} domain.Conversation
// @Failure 400 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Router /api/conversations/{id}/description [put]
func (h *ChatHTTPHandler) UpdateDescription(c *fiber.Ctx) error {
	var req descriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	conv, err := h.conversationUC.UpdateDescription(c.UserContext(), identityFrom(c), c.Params("id"), req.Description)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(conv)
}

// PinMessage godoc
// @Summary Pin a message
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param request body pinRequest true "Message"
// @Success 200 {object} domain.Conversation
// @Router /api/conversations/{id}/pin [put]
func (h *ChatHTTPHandler) PinMessage(c *fiber.Ctx) error {
	var req pinRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	conv, err := h.conversationUC.PinMessage(c.UserContext(), identityFrom(c), c.Params("id"), req.MessageID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(conv)
}

// UnpinMessage godoc
// @Summary Unpin the pinned message
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} domain.Conversation
// @Router /api/conversations/{id}/pin [delete]
func (h *ChatHTTPHandler) UnpinMessage(c *fiber.Ctx) error {
	conv, err := h.conversationUC.UnpinMessage(c.UserContext(), identityFrom(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(conv)
}

// PinnedMessage godoc
// @Summary Pinned message of a conversation
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} domain.Message
// @Success 204 {string} string "no content"
// @Router /api/conversations/{id}/pin [get]
func (h *ChatHTTPHandler) PinnedMessage(c *fiber.Ctx) error {
	msg, err := h.conversationUC.PinnedMessage(c.UserContext(), identityFrom(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if msg == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(msg)
}

// ClearConversation godoc
// @Summary Clear my copy of a conversation
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} map[string]int64
// @Router /api/conversations/{id}/clear [put]
func (h *ChatHTTPHandler) ClearConversation(c *fiber.Ctx) error {
	n, err := h.messageUC.ClearConversation(c.UserContext(), identityFrom(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"cleared": n})
}

// SendMessage godoc
// @Summary Send a message
// @Description conversation_id or receiver_id (opens the 1:1 conversation); content and/or file
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body sendRequest true "Message"
// @Success 201 {object} domain.Message
// @Failure 400 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 429 {object} errorResponse
// @Router /api/messages [post]
func (h *ChatHTTPHandler) SendMessage(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	msg, err := h.messageUC.Send(c.UserContext(), identityFrom(c), SendInput{
		ConversationID: req.ConversationID,
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		File:           req.File,
		ReplyTo:        req.ReplyTo,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// EditMessage godoc
// @Summary Edit a message
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Param request body editRequest true "Content"
// @Success 200 {object} domain.Message
// @Failure 403 {object} errorResponse
// @Router /api/messages/{id} [put]
func (h *ChatHTTPHandler) EditMessage(c *fiber.Ctx) error {
	var req editRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	msg, err := h.messageUC.Edit(c.UserContext(), identityFrom(c), c.Params("id"), req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(msg)
}

// ReactMessage godoc
// @Summary React to a message
// @Description One reaction per user; an empty emoji removes it
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Param request body reactRequest true "Emoji"
// @Success 200 {object} domain.Message
// @Router /api/messages/{id}/react [put]
func (h *ChatHTTPHandler) ReactMessage(c *fiber.Ctx) error {
	var req reactRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	msg, err := h.messageUC.React(c.UserContext(), identityFrom(c), c.Params("id"), req.Emoji)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(msg)
}

// DeleteMessage godoc
// @Summary Delete a message
// @Description for_everyone requires the sender; otherwise hidden for the caller only
// @Tags Messages
// @Accept json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Param request body deleteRequest false "Scope"
// @Success 204 {string} string "no content"
// @Failure 403 {object} errorResponse
// @Router /api/messages/{id}/delete [put]
func (h *ChatHTTPHandler) DeleteMessage(c *fiber.Ctx) error {
	var req deleteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c)
		}
	}
	if err := h.messageUC.Delete(c.UserContext(), identityFrom(c), c.Params("id"), req.ForEveryone); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteMessages godoc
// @Summary Delete several messages for me
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body deleteManyRequest true "Message IDs"
// @Success 200 {object} map[string]int64
// @Router /api/messages/delete-multiple [put]
func (h *ChatHTTPHandler) DeleteMessages(c *fiber.Ctx) error {
	var req deleteManyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	n, err := h.messageUC.DeleteMany(c.UserContext(), identityFrom(c), req.MessageIDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": n})
}

// ForwardMessage godoc
// @Summary Forward a message
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Param request body forwardRequest true "Target conversation or user"
// @Success 201 {object} domain.Message
// @Router /api/messages/{id}/forward [post]
func (h *ChatHTTPHandler) ForwardMessage(c *fiber.Ctx) error {
	var req forwardRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	msg, err := h.messageUC.Forward(c.UserContext(), identityFrom(c), c.Params("id"), req.ConversationID, req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// UploadAttachment godoc
// @Summary Upload an attachment
// @Description Returns the file reference to put in a message
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "File"
// @Success 201 {object} domain.FileRef
// @Failure 400 {object} errorResponse
// @Router /api/attachments [post]
func (h *ChatHTTPHandler) UploadAttachment(c *fiber.Ctx) error {
	if h.attachments == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{Error: "attachment store disabled"})
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "Missing file", Kind: string(domain.KindValidation)})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Log.Error("open upload failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "Failed to open file"})
	}
	defer file.Close()

	contentType := fileHeader.Header.Get(fiber.HeaderContentType)
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	ref, err := h.attachments.Upload(c.UserContext(), fileHeader.Filename, contentType, file, fileHeader.Size)
	if err != nil {
		return respondError(c, err)
	}
	logger.Log.Info("attachment uploaded",
		zap.String("attachment_id", ref.ID),
		zap.String("uploader", identityFrom(c).UserID),
		zap.Int64("size", fileHeader.Size))
	return c.Status(fiber.StatusCreated).JSON(ref)
}

// GetAttachment godoc
// @Summary Download an attachment
// @Description Redirects to a short-lived presigned URL
// @Tags Attachments
// @Security BearerAuth
// @Param id path string true "Attachment ID"
// @Success 307 {string} string "redirect to presigned url"
// @Failure 404 {object} errorResponse
// @Router /api/attachments/{id} [get]
func (h *ChatHTTPHandler) GetAttachment(c *fiber.Ctx) error {
	if h.attachments == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{Error: "attachment store disabled"})
	}
	u, err := h.attachments.URL(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Redirect(u, fiber.StatusTemporaryRedirect)
}

// ConnectCheck check chat service start
// @Summary Check chat service status
// @Tags Shared
// @Success 200 {string} string "chat service start!"
// @Router /health [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("chat service start!")
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Tags Shared
// @Param status query bool true "Debug status"
// @Success 200 {string} string "debug mode updated"
// @Failure 400 {string} string "Invalid status value"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	status, err := strconv.ParseBool(c.Query("status"))
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	logger.Log.SetDebugMode(status)
	logger.Log.Info("debug", zap.Bool("status", status))
	return c.SendString(fmt.Sprintf("chat service debug mode is : %t", status))
}
