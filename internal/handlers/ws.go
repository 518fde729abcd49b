package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/consultly/chat-service/internal/api/middleware"
	"github.com/consultly/chat-service/internal/broadcast"
	"github.com/consultly/chat-service/internal/metrics"
	"github.com/consultly/chat-service/internal/store"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 8 * 1024
	sendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The platform gateway terminates the public edge and performs
		// origin checks before requests reach this service.
		return true
	},
}

// wsFrame is the client-to-server wire format.
type wsFrame struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// serverFrame is the server-to-client wire format. Broadcast events and
// transport-local error frames share this shape.
type serverFrame struct {
	Type    string      `json:"type"`
	RoomID  string      `json:"roomId,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

type wsClient struct {
	h      *Handler
	connID string
	ident  *middleware.Identity
	conn   *websocket.Conn

	send chan serverFrame
	done chan struct{}

	// joined is touched only by the read loop goroutine.
	joined map[string]*broadcast.Subscription
}

// ServeWS handles GET /chat/ws: it upgrades the connection and runs the
// realtime transport for one client.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsClient{
		h:      h,
		connID: uuid.NewString(),
		ident:  ident,
		conn:   conn,
		send:   make(chan serverFrame, sendBuffer),
		done:   make(chan struct{}),
		joined: make(map[string]*broadcast.Subscription),
	}

	metrics.WSConnections.Inc()
	h.logger.Info().
		Str("conn_id", c.connID).
		Str("user_id", ident.ID).
		Msg("websocket connected")

	global := h.bus.SubscribeGlobal(c.connID)
	go c.forward(global)
	go c.writePump()

	c.readPump()

	// Teardown. Presence is self-reported, so a dropped connection does
	// NOT mark the user offline; they stay listed until an explicit
	// offline signal arrives.
	for roomID := range c.joined {
		h.bus.Unsubscribe(roomID, c.connID)
	}
	h.bus.UnsubscribeGlobal(c.connID)
	close(c.done)
	conn.Close()

	metrics.WSConnections.Dec()
	h.logger.Info().
		Str("conn_id", c.connID).
		Str("user_id", ident.ID).
		Msg("websocket disconnected")
}

// forward pushes a subscription's events into the client's send queue
// until the subscription or the connection goes away.
func (c *wsClient) forward(sub *broadcast.Subscription) {
	for ev := range sub.C {
		select {
		case c.send <- serverFrame{Type: string(ev.Type), RoomID: ev.RoomID, Payload: ev.Payload}:
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) readPump() {
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame wsFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.h.logger.Warn().Err(err).Str("conn_id", c.connID).Msg("websocket read error")
			}
			return
		}
		c.handleFrame(frame)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}

func (c *wsClient) handleFrame(frame wsFrame) {
	switch frame.Type {
	case "join-room":
		c.handleJoin(frame.RoomID)
	case "leave-room":
		c.handleLeave(frame.RoomID)
	case "send-message":
		c.handleSendMessage(frame)
	case "typing":
		c.handleTyping(frame.RoomID, broadcast.EventTyping)
	case "stop-typing":
		c.handleTyping(frame.RoomID, broadcast.EventStopTyping)
	case "user-online":
		c.handleStatusChange(true)
	case "user-offline":
		c.handleStatusChange(false)
	default:
		c.sendError(frame.RoomID, "unknown frame type")
	}
}

func (c *wsClient) handleJoin(roomID string) {
	if roomID == "" {
		c.sendError("", "roomId is required")
		return
	}

	room, err := c.h.store.Room(context.Background(), roomID)
	if errors.Is(err, store.ErrRoomNotFound) {
		c.sendError(roomID, "room not found")
		return
	}
	if err != nil {
		c.sendError(roomID, "failed to join room")
		return
	}
	if !room.HasParticipant(c.ident.ID) {
		c.sendError(roomID, "not a participant of this room")
		return
	}

	sub := c.h.bus.Subscribe(roomID, c.connID)
	c.joined[roomID] = sub
	go c.forward(sub)
}

func (c *wsClient) handleLeave(roomID string) {
	if _, ok := c.joined[roomID]; !ok {
		return
	}
	delete(c.joined, roomID)
	c.h.bus.Unsubscribe(roomID, c.connID)
}

func (c *wsClient) handleSendMessage(frame wsFrame) {
	if frame.RoomID == "" {
		c.sendError("", "roomId is required")
		return
	}

	var in MessageInput
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &in); err != nil {
			c.sendError(frame.RoomID, "invalid message payload")
			return
		}
	}
	if err := in.validate(); err != nil {
		c.sendError(frame.RoomID, err.Error())
		return
	}

	stored, err := c.h.store.AppendMessage(context.Background(), frame.RoomID, in.message(c.ident))
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		c.sendError(frame.RoomID, "room not found")
		return
	case errors.Is(err, store.ErrNotParticipant):
		c.sendError(frame.RoomID, "not a participant of this room")
		return
	case err != nil:
		c.sendError(frame.RoomID, "failed to store message")
		return
	}

	metrics.MessagesSent.WithLabelValues(string(stored.Type)).Inc()
	c.h.bus.Publish(frame.RoomID, broadcast.Event{
		Type:    broadcast.EventNewMessage,
		Payload: stored,
	}, c.connID)
}

func (c *wsClient) handleTyping(roomID string, kind broadcast.EventType) {
	if roomID == "" {
		c.sendError("", "roomId is required")
		return
	}
	// Typing indicators are ephemeral: broadcast only, never stored.
	c.h.bus.Publish(roomID, broadcast.Event{
		Type: kind,
		Payload: broadcast.TypingPayload{
			UserID:   c.ident.ID,
			UserName: c.ident.Name,
		},
	}, c.connID)
}

func (c *wsClient) handleStatusChange(online bool) {
	if online {
		c.h.presence.SetOnline(c.ident.ID, c.ident.Name)
	} else {
		c.h.presence.SetOffline(c.ident.ID)
	}

	c.h.bus.PublishGlobal(broadcast.Event{
		Type: broadcast.EventStatusChange,
		Payload: broadcast.StatusPayload{
			UserID:   c.ident.ID,
			UserName: c.ident.Name,
			IsOnline: online,
		},
	}, c.connID)
}

func (c *wsClient) sendError(roomID, message string) {
	frame := serverFrame{Type: "error", RoomID: roomID, Payload: map[string]string{"message": message}}
	select {
	case c.send <- frame:
	case <-c.done:
	}
}
