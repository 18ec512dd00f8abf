package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"campus_chat_service/internal/chat/domain"
	"campus_chat_service/pkg/logger"
	"campus_chat_service/pkg/metrics"
	"campus_chat_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const defaultPingInterval = 30 * time.Second

var errSessionClosed = errors.New("websocket session closed")

// frameWriter the part of a websocket connection a session writes to
type frameWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// wsSession one websocket connection; writes are serialized, every joined conversation has its own subscription
type wsSession struct {
	identity domain.Identity
	conn     frameWriter

	writeMu sync.Mutex
	closed  bool

	roomsMu sync.Mutex
	rooms   map[string]context.CancelFunc
}

func newSession(conn frameWriter, identity domain.Identity) *wsSession {
	return &wsSession{identity: identity, conn: conn, rooms: make(map[string]context.CancelFunc)}
}

func (s *wsSession) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	return s.conn.WriteMessage(messageType, data)
}

// send - 發送 JSON 給前端
func (s *wsSession) send(resp domain.WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Error("websocket marshal response", zap.String("action", resp.Action), zap.Error(err))
		return
	}
	if err := s.write(websocket.TextMessage, b); err != nil && !errors.Is(err, errSessionClosed) {
		logger.Log.Error("write message error", zap.String("userID", s.identity.UserID), zap.Error(err))
	}
}

func (s *wsSession) sendError(errorMsg string) {
	s.send(domain.WSResponse{
		Action:  "error",
		Success: false,
		Payload: map[string]interface{}{},
		Error:   errorMsg,
	})
}

// push forward a fan-out envelope; a removal from a group also drops that conversation room
func (s *wsSession) push(env domain.Envelope) {
	if env.Event == domain.EventRemovedFromGroup {
		var ref domain.ConversationRefPayload
		if err := json.Unmarshal(env.Payload, &ref); err == nil && ref.UserID == s.identity.UserID {
			s.leave(ref.ConversationID)
		}
	}
	s.send(domain.EventFrame(env))
}

func (s *wsSession) joined(conversationID string) bool {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	_, ok := s.rooms[conversationID]
	return ok
}

func (s *wsSession) leave(conversationID string) bool {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	cancel, ok := s.rooms[conversationID]
	if ok {
		cancel()
		delete(s.rooms, conversationID)
	}
	return ok
}

func (s *wsSession) close() {
	s.roomsMu.Lock()
	for id, cancel := range s.rooms {
		cancel()
		delete(s.rooms, id)
	}
	s.roomsMu.Unlock()

	s.writeMu.Lock()
	s.closed = true
	s.writeMu.Unlock()
}

// ChatWebsocketHandler 即時連線，包含所有需要的 UseCase
type ChatWebsocketHandler struct {
	conversationUC *ConversationUseCase
	messageUC      *MessageUseCase
	subscriber     EventSubscriber
	metrics        *metrics.Metrics
	pingInterval   time.Duration
}

// NewChatWebsocketHandler create ChatWebsocketHandler, metrics may be nil
func NewChatWebsocketHandler(
	conversationUC *ConversationUseCase,
	messageUC *MessageUseCase,
	subscriber EventSubscriber,
	m *metrics.Metrics,
	pingInterval time.Duration,
) *ChatWebsocketHandler {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &ChatWebsocketHandler{
		conversationUC: conversationUC,
		messageUC:      messageUC,
		subscriber:     subscriber,
		metrics:        m,
		pingInterval:   pingInterval,
	}
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	memberID, _ := conn.Locals(middlewares.TokenMemberID).(string)
	role, _ := conn.Locals(middlewares.TokenRole).(string)
	s := newSession(conn, domain.Identity{UserID: memberID, Role: domain.Role(role)})
	logger.Log.Info("websocket connected", zap.String("userID", memberID), zap.String("role", role))

	ticker := time.NewTicker(h.pingInterval)
	ctxClose, cancel := context.WithCancel(ctx)

	defer func() {
		ticker.Stop()
		cancel()
		s.close()
		if h.metrics != nil {
			h.metrics.Sessions.Dec()
		}
		logger.Log.Info("websocket close", zap.String("userID", memberID))
		conn.Close()
	}()
	if h.metrics != nil {
		h.metrics.Sessions.Inc()
	}

	//client發出close
	//fiber會自動處理(在read msg 回傳err),故需要SetCloseHandler另外接出
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Debug("websocket close frame", zap.String("userID", memberID), zap.Int("code", code))
		return nil
	})

	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(appData string) error {
		logger.Log.Debug("received pong", zap.String("userID", memberID))
		return nil
	})

	//client發出ping
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	//訂閱自己的 user room，所有裝置都會收到
	if err := h.subscriber.Subscribe(ctxClose, domain.TargetUser, memberID, s.push); err != nil {
		logger.Log.Error("subscribe user room", zap.String("userID", memberID), zap.Error(err))
		closeWebSocketConnection(conn, websocket.CloseInternalServerErr, "subscribe failed")
		return
	}

	// 定期發送 Ping
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := s.write(websocket.PingMessage, []byte("ping")); err != nil {
					if !errors.Is(err, errSessionClosed) {
						logger.Log.Warn("ping error", zap.String("userID", memberID), zap.Error(err))
					}
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Debug("connection closed", zap.String("userID", memberID))
			} else {
				//直接斷線 1006
				logger.Log.Warn("websocket read error", zap.String("userID", memberID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			s.sendError("unsupported message type")
			continue
		}
		h.textMessageAction(ctxClose, s, message)
	}
}

func (h *ChatWebsocketHandler) textMessageAction(ctx context.Context, s *wsSession, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		s.sendError("invalid request")
		return
	}

	resp := domain.WSResponse{Action: req.Action, Success: false, Payload: map[string]interface{}{}}
	fail := func(err error) {
		resp.Error = err.Error()
		resp.Payload["kind"] = domain.KindOf(err)
	}

	switch domain.Action(req.Action) {
	//進入對話，訂閱對話房間
	case domain.JoinConversation:
		if err := h.join(ctx, s, req.ConversationID); err != nil {
			fail(err)
			break
		}
		resp.Success = true
		resp.Payload["conversation_id"] = req.ConversationID

	//離開對話
	case domain.LeaveConversation:
		s.leave(req.ConversationID)
		resp.Success = true
		resp.Payload["conversation_id"] = req.ConversationID

	//傳送訊息，寫入 db 並推播給所有參與者
	case domain.SendMessage:
		m, err := h.messageUC.Send(ctx, s.identity, SendInput{
			ConversationID: req.ConversationID,
			ReceiverID:     req.ReceiverID,
			Content:        req.Content,
			File:           req.File,
			ReplyTo:        req.ReplyTo,
		})
		if err != nil {
			fail(err)
			break
		}
		resp.Success = true
		resp.Payload["message_id"] = m.ID
		resp.Payload["conversation_id"] = m.ConversationID

	//已讀，未讀數歸零
	case domain.MarkRead:
		if err := h.conversationUC.MarkRead(ctx, s.identity, req.ConversationID); err != nil {
			fail(err)
			break
		}
		resp.Success = true
		resp.Payload["conversation_id"] = req.ConversationID

	case domain.Ping:
		resp.Success = true
		resp.Payload["pong"] = time.Now().UnixMilli()

	default:
		resp.Error = "unknown action"
	}

	if resp.Error != "" {
		logger.Log.Warn("websocket action failed",
			zap.String("MemberID", s.identity.UserID),
			zap.String("Action", req.Action),
			zap.String("err", resp.Error))
	}
	s.send(resp)
}

// join participant check then subscribe the conversation room once per session
func (h *ChatWebsocketHandler) join(ctx context.Context, s *wsSession, conversationID string) error {
	if _, err := h.conversationUC.GetConversation(ctx, s.identity, conversationID); err != nil {
		return err
	}
	if s.joined(conversationID) {
		return nil
	}

	roomCtx, cancel := context.WithCancel(ctx)
	if err := h.subscriber.Subscribe(roomCtx, domain.TargetConversation, conversationID, s.push); err != nil {
		cancel()
		return err
	}

	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	if _, ok := s.rooms[conversationID]; ok {
		cancel()
		return nil
	}
	s.rooms[conversationID] = cancel
	return nil
}

func closeWebSocketConnection(conn *websocket.Conn, code int, reason string) {
	if err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason)); err != nil {
		logger.Log.Warn("failed to send close message", zap.Error(err))
	}
}
