package router

import (
	"context"

	"campus_chat_service/internal/chat/app"
	"campus_chat_service/pkg/metrics"
	"campus_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RateLimit per identity limit of message-mutating routes
type RateLimit struct {
	RPS   float64
	Burst int
}

// RegisterRoutes 注册聊天服務路由
// @title Campus Chat Service API
// @version 1.0
// @description Conversations, messages and live fan-out of the campus app
// @host localhost:8083
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func RegisterRoutes(r *fiber.App, h *app.ChatHTTPHandler, chatWebsocket *app.ChatWebsocketHandler, m *metrics.Metrics, limit RateLimit) {
	r.Get("/swagger/*", swagger.HandlerDefault)
	r.Get("/health", app.ConnectCheck)
	r.Post("/debug", app.DebugLogFlag)
	if m != nil {
		r.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	limiter := middlewares.RateLimit(limit.RPS, limit.Burst)
	api := r.Group("/api", middlewares.JWTMiddleware())

	conversations := api.Group("/conversations")
	conversations.Get("/", h.ListConversations)
	conversations.Post("/direct", h.FindOrCreateDirect)
	conversations.Post("/group", h.CreateGroup)
	conversations.Get("/:id", h.GetConversation)
	conversations.Put("/:id/read", h.MarkRead)
	conversations.Get("/:id/messages", h.ListMessages)
	conversations.Put("/:id/members", h.AddMembers)
	conversations.Delete("/:id/members/:userId", h.RemoveMember)
	conversations.Put("/:id/exit", h.ExitGroup)
	conversations.Put("/:id/description", h.UpdateDescription)
	conversations.Get("/:id/pin", h.PinnedMessage)
	conversations.Put("/:id/pin", h.PinMessage)
	conversations.Delete("/:id/pin", h.UnpinMessage)
	conversations.Put("/:id/clear", h.ClearConversation)

	messages := api.Group("/messages")
	messages.Post("/", limiter, h.SendMessage)
	// 需在 /:id 之前註冊
	messages.Put("/delete-multiple", h.DeleteMessages)
	messages.Put("/:id", limiter, h.EditMessage)
	messages.Put("/:id/react", h.ReactMessage)
	messages.Put("/:id/delete", h.DeleteMessage)
	messages.Post("/:id/forward", limiter, h.ForwardMessage)

	attachments := api.Group("/attachments")
	attachments.Post("/", limiter, h.UploadAttachment)
	attachments.Get("/:id", h.GetAttachment)

	r.Use("/ws", middlewares.JWTMiddleware(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(context.Background(), c)
	}))
}
