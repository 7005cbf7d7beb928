package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"school-notification-service/internal/ledger"
	"school-notification-service/internal/middleware"
	"school-notification-service/internal/repository"
	"school-notification-service/pkg/xerrors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: Implement proper origin checking
	},
}

// SocketHandler owns the WebSocket surface: handshake, auth, and routing of
// client frames. Outbound pushes go through the Hub.
type SocketHandler struct {
	hub       *Hub
	ledger    *ledger.Ledger
	directory repository.Directory
	verifier  *middleware.TokenVerifier
	logger    *zap.Logger
}

func NewSocketHandler(
	hub *Hub,
	ldg *ledger.Ledger,
	directory repository.Directory,
	verifier *middleware.TokenVerifier,
	logger *zap.Logger,
) *SocketHandler {
	return &SocketHandler{
		hub:       hub,
		ledger:    ldg,
		directory: directory,
		verifier:  verifier,
		logger:    logger,
	}
}

// HandleConnection authenticates and upgrades a new WebSocket connection
func (h *SocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		h.logger.Warn("Unauthorized WebSocket connection attempt")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := h.verifier.Verify(token)
	if err != nil {
		h.rejectAfterUpgrade(w, r, "INVALID_TOKEN", "Authentication failed. Please sign in again.")
		return
	}

	user, err := h.directory.GetUser(r.Context(), claims.UserID)
	if err != nil || !user.Active() {
		h.logger.Warn("Inactive or unknown user attempted to connect",
			zap.String("user_id", claims.UserID))
		h.rejectAfterUpgrade(w, r, "ACCOUNT_INACTIVE", "Your account is not active.")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection",
			zap.String("user_id", claims.UserID),
			zap.Error(err))
		return
	}

	client := &Client{
		ID:       fmt.Sprintf("%s_%d", claims.UserID, time.Now().Unix()),
		UserID:   claims.UserID,
		SchoolID: claims.SchoolID,
		Role:     claims.Role,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		hub:      h.hub,
		handler:  h,
		rooms:    make(map[string]struct{}),
	}

	h.hub.register(client)

	client.SendEvent("connected", map[string]interface{}{
		"userId":   claims.UserID,
		"schoolId": claims.SchoolID,
		"role":     claims.Role,
	})
	h.pushUnreadCount(r.Context(), client)

	go client.writePump()
	go client.readPump()

	h.logger.Info("New WebSocket connection",
		zap.String("client_id", client.ID),
		zap.String("user_id", claims.UserID),
		zap.String("school_id", claims.SchoolID))
}

// rejectAfterUpgrade upgrades just long enough to tell the client why it is
// being turned away, then closes.
func (h *SocketHandler) rejectAfterUpgrade(w http.ResponseWriter, r *http.Request, code, message string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "Failed to upgrade connection", http.StatusInternalServerError)
		return
	}

	frame, _ := json.Marshal(&Event{Event: "connection_error", Error: code, Data: message})
	conn.WriteMessage(websocket.TextMessage, frame)

	time.Sleep(100 * time.Millisecond) // Give time for message to send
	conn.Close()
}

// handleMessage routes incoming frames by event name
func (h *SocketHandler) handleMessage(client *Client, data []byte) {
	var msg inboundEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Error("Failed to parse WebSocket message",
			zap.String("client_id", client.ID),
			zap.Error(err))
		client.SendError("Invalid message format")
		return
	}

	h.logger.Debug("Received WebSocket message",
		zap.String("event", msg.Event),
		zap.String("client_id", client.ID))

	ctx := context.Background()

	switch msg.Event {
	case "subscribe:personal":
		h.handleSubscribePersonal(client)
	case "subscribe:school":
		h.handleSubscribeSchool(client)
	case "mark:read":
		h.handleMarkRead(ctx, client, msg.Data)
	case "get:unread-count":
		h.pushUnreadCount(ctx, client)
	case "typing:start", "typing:stop":
		h.handleTyping(client, msg.Event, msg.Data)
	default:
		client.SendError(fmt.Sprintf("Unknown event: %s", msg.Event))
	}
}

// subscribe:personal and subscribe:school are acknowledgements only; the
// rooms are joined automatically at registration.
func (h *SocketHandler) handleSubscribePersonal(client *Client) {
	client.SendEvent("subscribed", map[string]string{
		"type": "personal",
		"room": UserRoom(client.UserID),
	})
}

func (h *SocketHandler) handleSubscribeSchool(client *Client) {
	client.SendEvent("subscribed", map[string]string{
		"type": "school",
		"room": SchoolRoom(client.SchoolID),
	})
}

func (h *SocketHandler) handleMarkRead(ctx context.Context, client *Client, data json.RawMessage) {
	var req struct {
		DeliveryID string `json:"deliveryId"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.DeliveryID == "" {
		client.SendError("deliveryId is required")
		return
	}

	if err := h.ledger.RecordRead(ctx, req.DeliveryID, client.UserID); err != nil {
		switch {
		case errors.Is(err, xerrors.ErrUnauthorized):
			client.SendError("Notification does not belong to you")
		case errors.Is(err, xerrors.ErrNotFound):
			client.SendError("Notification not found")
		default:
			h.logger.Error("Failed to mark notification as read",
				zap.String("delivery_id", req.DeliveryID),
				zap.Error(err))
			client.SendError("Failed to mark as read")
		}
		return
	}

	client.SendEvent("marked:read", map[string]string{
		"deliveryId": req.DeliveryID,
	})
	h.pushUnreadCount(ctx, client)
}

func (h *SocketHandler) pushUnreadCount(ctx context.Context, client *Client) {
	count, err := h.ledger.UnreadCount(ctx, client.UserID)
	if err != nil {
		h.logger.Error("Failed to count unread notifications",
			zap.String("user_id", client.UserID),
			zap.Error(err))
		return
	}
	client.SendEvent("unread:count", map[string]int{"count": count})
}

// handleTyping relays typing indicators to a room the sender belongs to.
// Nothing is persisted.
func (h *SocketHandler) handleTyping(client *Client, event string, data json.RawMessage) {
	var req struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Room == "" {
		client.SendError("room is required")
		return
	}
	if !h.hub.InRoom(client, req.Room) {
		client.SendError("Not a member of room")
		return
	}

	h.hub.BroadcastToRoom(req.Room, "user:typing", map[string]interface{}{
		"userId": client.UserID,
		"typing": event == "typing:start",
	}, client)
}
