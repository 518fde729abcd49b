// Package handlers implements the gateway surface of the chat service:
// the REST endpoints and the websocket transport that compose the room
// store, the presence tracker and the broadcaster.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/consultly/chat-service/internal/broadcast"
	"github.com/consultly/chat-service/internal/presence"
	"github.com/consultly/chat-service/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store    store.ChatStore
	presence *presence.Tracker
	bus      *broadcast.Broadcaster
	logger   zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(chatStore store.ChatStore, tracker *presence.Tracker, bus *broadcast.Broadcaster, logger zerolog.Logger) *Handler {
	return &Handler{store: chatStore, presence: tracker, bus: bus, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
