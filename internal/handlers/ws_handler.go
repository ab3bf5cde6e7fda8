package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/auth"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/service"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

// WSHandler owns one websocket connection end to end: upgrade-time
// authentication, the read loop that routes inbound events to the
// engines, and teardown on disconnect.
type WSHandler struct {
	hub      *ws.Hub
	registry *presence.Registry
	dispatch service.Dispatcher
	messages *service.MessageService
	groups   *service.GroupService

	jwtSecret           string
	trustClientIdentity bool

	pingInterval     time.Duration
	writeDeadline    time.Duration
	maxMsgSize       int64
	inboundPerSecond int

	log *zap.SugaredLogger
}

type Options struct {
	JWTSecret           string
	TrustClientIdentity bool
	PingInterval        time.Duration
	WriteDeadline       time.Duration
	MaxMessageSize      int64
	InboundPerSecond    int
}

func NewWSHandler(hub *ws.Hub, registry *presence.Registry, dispatch service.Dispatcher, messages *service.MessageService, groups *service.GroupService, opts Options, log *zap.SugaredLogger) *WSHandler {
	return &WSHandler{
		hub:                 hub,
		registry:            registry,
		dispatch:            dispatch,
		messages:            messages,
		groups:              groups,
		jwtSecret:           opts.JWTSecret,
		trustClientIdentity: opts.TrustClientIdentity,
		pingInterval:        opts.PingInterval,
		writeDeadline:       opts.WriteDeadline,
		maxMsgSize:          opts.MaxMessageSize,
		inboundPerSecond:    opts.InboundPerSecond,
		log:                 log,
	}
}

// Handle returns the connection handler for the fiber websocket route.
func (h *WSHandler) Handle() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		connID := uuid.NewString()
		client := ws.NewClient(connID, conn, h.inboundPerSecond)

		// identity derives from the token when one is presented; the
		// legacy client-declared joinUserRoom path only works with
		// trust_client_identity enabled
		token := conn.Query("token")
		if token != "" {
			claims, err := auth.ParseAndValidateToken(h.jwtSecret, token)
			if err != nil {
				_ = conn.WriteMessage(websocket.TextMessage, ws.Encode("error", map[string]any{"message": "Invalid token"}))
				_ = conn.Close()
				return
			}
			h.registry.Register(context.Background(), claims.UserID, connID)
		} else if !h.trustClientIdentity {
			_ = conn.WriteMessage(websocket.TextMessage, ws.Encode("error", map[string]any{"message": "Not authenticated"}))
			_ = conn.Close()
			return
		}

		h.hub.AddClient(client)
		go client.WritePump(h.pingInterval, h.writeDeadline)

		if userID, ok := h.registry.Resolve(connID); ok {
			// the announcing socket does not hear its own status
			h.dispatch.AllExcept(connID, "userStatus", map[string]any{"userId": userID, "status": presence.StatusOnline})
		}

		h.readLoop(conn, client)

		h.hub.RemoveClient(connID)
		if userID, ok := h.registry.Unregister(context.Background(), connID); ok {
			h.dispatch.All("userStatus", map[string]any{"userId": userID, "status": presence.StatusOffline})
		}
		client.Close()
	}
}

func (h *WSHandler) readLoop(conn *websocket.Conn, client *ws.Client) {
	conn.SetReadLimit(h.maxMsgSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if !client.Allow() {
			continue
		}
		var env ws.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		h.route(client.ID, env)
	}
}

func (h *WSHandler) route(connID string, env ws.Envelope) {
	ctx := context.Background()
	switch env.Event {
	case "joinUserRoom":
		h.joinUserRoom(ctx, connID, env.Data)

	case "joinConversation":
		var p struct {
			ConversationID string `json:"conversationId"`
		}
		if unmarshal(env.Data, &p) && p.ConversationID != "" {
			h.hub.JoinRoom(p.ConversationID, connID)
		}

	case "sendMessage":
		var in service.SendInput
		if !unmarshal(env.Data, &in) {
			return
		}
		if _, err := h.messages.Send(ctx, connID, in); err != nil {
			h.reportError(connID, err, "Failed to send message")
		}

	case "typing":
		var p struct {
			ConversationID string `json:"conversationId"`
			IsTyping       bool   `json:"isTyping"`
		}
		if unmarshal(env.Data, &p) {
			_ = h.messages.Typing(connID, p.ConversationID, p.IsTyping)
		}

	case "markAsRead":
		var p struct {
			MessageID      string `json:"messageId"`
			ConversationID string `json:"conversationId"`
		}
		if !unmarshal(env.Data, &p) {
			return
		}
		if err := h.messages.MarkRead(ctx, connID, p.MessageID, p.ConversationID); err != nil {
			h.reportError(connID, err, "Failed to mark message as read")
		}

	case "addReaction":
		var p struct {
			MessageID string `json:"messageId"`
			Emoji     string `json:"emoji"`
		}
		if !unmarshal(env.Data, &p) {
			return
		}
		if err := h.messages.ToggleReaction(ctx, connID, p.MessageID, p.Emoji); err != nil {
			h.reportError(connID, err, "Failed to add reaction")
		}

	case "deleteMessage":
		var p struct {
			MessageID      string `json:"messageId"`
			ConversationID string `json:"conversationId"`
		}
		if !unmarshal(env.Data, &p) {
			return
		}
		if err := h.messages.Delete(ctx, connID, p.MessageID, p.ConversationID); err != nil {
			h.reportError(connID, err, "Failed to delete message")
		}

	case "forwardMessage":
		var p struct {
			MessageID             string   `json:"messageId"`
			TargetConversationIDs []string `json:"targetConversationIds"`
		}
		if !unmarshal(env.Data, &p) {
			return
		}
		if _, err := h.messages.Forward(ctx, connID, p.MessageID, p.TargetConversationIDs); err != nil {
			h.reportError(connID, err, "Failed to forward message")
		}

	case "editMessage":
		var p struct {
			MessageID      string `json:"messageId"`
			ConversationID string `json:"conversationId"`
			NewContent     string `json:"newContent"`
		}
		if !unmarshal(env.Data, &p) {
			return
		}
		if err := h.messages.Edit(ctx, connID, p.MessageID, p.ConversationID, p.NewContent); err != nil {
			h.reportError(connID, err, "Failed to edit message")
		}

	case "pinnedMessage":
		var p struct {
			MessageID      string `json:"messageId"`
			ConversationID string `json:"conversationId"`
		}
		if !unmarshal(env.Data, &p) {
			return
		}
		if err := h.messages.TogglePin(ctx, connID, p.MessageID, p.ConversationID); err != nil {
			h.reportError(connID, err, "Failed to pin/unpin message")
		}

	case "muteConversation":
		var p struct {
			ConversationID string `json:"conversationId"`
		}
		if !unmarshal(env.Data, &p) {
			return
		}
		if err := h.messages.ToggleMute(ctx, connID, p.ConversationID); err != nil {
			h.reportError(connID, err, "Failed to mute/unmute the conversation")
		}

	case "addnewmember":
		var p struct {
			ConversationID string   `json:"conversationId"`
			NewUserIDs     []string `json:"newuserIds"`
		}
		if !unmarshal(env.Data, &p) {
			return
		}
		if _, err := h.groups.AddMembers(ctx, connID, p.ConversationID, p.NewUserIDs); err != nil {
			h.reportError(connID, err, "Failed to add new member")
		}

	case "removeMember":
		var p struct {
			ConversationID string `json:"conversationId"`
			MemberID       string `json:"memberId"`
		}
		if !unmarshal(env.Data, &p) {
			return
		}
		if err := h.groups.RemoveMember(ctx, connID, p.ConversationID, p.MemberID); err != nil {
			h.reportError(connID, err, "Failed to remove member")
		}

	case "makememberadmin":
		var p struct {
			ConversationID string `json:"conversationId"`
			MemberID       string `json:"memberId"`
		}
		if !unmarshal(env.Data, &p) {
			return
		}
		if err := h.groups.PromoteToAdmin(ctx, connID, p.ConversationID, p.MemberID); err != nil {
			h.reportError(connID, err, "Failed to make member admin")
		}

	case "leavetheconversation":
		var p struct {
			ConversationID string `json:"conversationId"`
		}
		if !unmarshal(env.Data, &p) {
			return
		}
		if err := h.groups.Leave(ctx, connID, p.ConversationID); err != nil {
			h.reportError(connID, err, "Failed to leave the conversation")
		}

	case "deletetheConversation":
		var p struct {
			ConversationID string `json:"conversationId"`
		}
		if !unmarshal(env.Data, &p) {
			return
		}
		if err := h.groups.DeleteConversation(ctx, connID, p.ConversationID); err != nil {
			h.reportError(connID, err, "Failed to delete the conversation")
		}

	case "EditGroupInfo":
		var p struct {
			ConversationID string `json:"conversationId"`
			Data           struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"data"`
		}
		if !unmarshal(env.Data, &p) {
			return
		}
		if err := h.groups.UpdateGroupInfo(ctx, connID, p.ConversationID, p.Data.Name, p.Data.Description); err != nil {
			h.reportError(connID, err, "Failed to edit the group info")
		}

	case "EditTheProfilePicture":
		var p struct {
			ConversationID string `json:"conversationId"`
			UploadedPhoto  string `json:"uploadedphoto"`
		}
		if !unmarshal(env.Data, &p) {
			return
		}
		if err := h.groups.UpdateGroupAvatar(ctx, connID, p.ConversationID, p.UploadedPhoto); err != nil {
			h.reportError(connID, err, "Failed to edit the profile picture")
		}

	default:
		h.log.Debugw("unknown event", "event", env.Event)
	}
}

// joinUserRoom accepts both the object form {userId} and the legacy
// bare-string payload.
func (h *WSHandler) joinUserRoom(ctx context.Context, connID string, data json.RawMessage) {
	var p struct {
		UserID string `json:"userId"`
	}
	if !unmarshal(data, &p) || p.UserID == "" {
		var s string
		if json.Unmarshal(data, &s) == nil {
			p.UserID = s
		}
	}
	if p.UserID == "" {
		return
	}

	if resolved, ok := h.registry.Resolve(connID); ok {
		// token-bound identity wins; a mismatching announcement is an error
		if p.UserID != resolved {
			h.hub.Send(connID, "error", map[string]any{"message": "Identity mismatch"})
		}
		return
	}
	if !h.trustClientIdentity {
		h.hub.Send(connID, "error", map[string]any{"message": "Not authenticated"})
		return
	}

	h.registry.Register(ctx, p.UserID, connID)
	h.dispatch.AllExcept(connID, "userStatus", map[string]any{"userId": p.UserID, "status": presence.StatusOnline})
}

// reportError maps an engine error to the caller-only error (or info)
// event. Unexpected errors are logged and masked with the per-op
// fallback message.
func (h *WSHandler) reportError(connID string, err error, fallback string) {
	var opErr *service.Error
	if errors.As(err, &opErr) {
		event := "error"
		if errors.Is(err, service.ErrInfo) {
			event = "info"
		}
		h.hub.Send(connID, event, map[string]any{"message": opErr.Error()})
		return
	}
	h.log.Errorw("operation failed", "err", err)
	h.hub.Send(connID, "error", map[string]any{"message": fallback})
}

func unmarshal(data json.RawMessage, v any) bool {
	return json.Unmarshal(data, v) == nil
}
