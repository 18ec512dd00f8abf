package domain

import "encoding/json"

// Action websocket request action
type Action string

const (
	// JoinConversation subscribe the session to a conversation room
	JoinConversation Action = "join_conversation"
	// LeaveConversation unsubscribe the session from a conversation room
	LeaveConversation Action = "leave_conversation"
	// SendMessage send a message through the socket
	SendMessage Action = "send_message"
	// MarkRead reset own unread counter
	MarkRead Action = "mark_read"
	// Ping application level heartbeat
	Ping Action = "ping"
)

// WSRequest 前端傳入
type WSRequest struct {
	Action         string   `json:"action"`
	ConversationID string   `json:"conversation_id,omitempty"`
	ReceiverID     string   `json:"receiver_id,omitempty"`
	Content        string   `json:"content,omitempty"`
	File           *FileRef `json:"file,omitempty"`
	ReplyTo        string   `json:"reply_to,omitempty"`
}

// WSResponse 回傳前端；事件推播時 Action 為事件名稱，Data 為事件 payload
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Data    json.RawMessage        `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// EventFrame convert a published envelope into a push frame
func EventFrame(env Envelope) WSResponse {
	return WSResponse{
		Action:  string(env.Event),
		Success: true,
		Payload: map[string]interface{}{
			"target":    env.Target,
			"target_id": env.TargetID,
			"sent_at":   env.SentAt,
		},
		Data: env.Payload,
	}
}
