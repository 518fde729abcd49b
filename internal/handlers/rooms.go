package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/consultly/chat-service/internal/api/middleware"
	"github.com/consultly/chat-service/internal/metrics"
	"github.com/consultly/chat-service/internal/models"
	"github.com/consultly/chat-service/internal/store"
)

// CreateRoomRequest is the room creation body. The creator is always a
// participant whether or not they list themselves.
type CreateRoomRequest struct {
	Participants []string        `json:"participants"`
	Type         models.RoomType `json:"type,omitempty"`
	Name         string          `json:"name,omitempty"`
}

// CreateRoomResponse returns the resolved room. For an existing direct
// pair this is the prior room with its history intact, not a new one.
type CreateRoomResponse struct {
	RoomID string       `json:"roomId"`
	Room   *models.Room `json:"room"`
}

// ListRoomsResponse holds the caller's rooms, most recently active first.
type ListRoomsResponse struct {
	Rooms []models.RoomSummary `json:"rooms"`
}

// CreateRoom handles POST /chat/rooms.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if len(req.Participants) == 0 {
		h.Error(w, http.StatusBadRequest, "participants is required")
		return
	}
	if req.Type == "" {
		req.Type = models.RoomDirect
	}
	if !req.Type.Valid() {
		h.Error(w, http.StatusBadRequest, "type must be direct or group")
		return
	}

	room, err := h.store.ResolveOrCreate(r.Context(), ident.ID, req.Participants, req.Type, req.Name)
	if errors.Is(err, store.ErrInvalidParticipants) {
		h.Error(w, http.StatusBadRequest, "direct rooms need exactly two distinct participants")
		return
	}
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	metrics.RoomsCreated.WithLabelValues(string(room.Type)).Inc()
	h.JSON(w, http.StatusOK, CreateRoomResponse{RoomID: room.ID, Room: room})
}

// ListRooms handles GET /chat/rooms.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())

	rooms, err := h.store.RoomsForUser(r.Context(), ident.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}

	h.JSON(w, http.StatusOK, ListRoomsResponse{Rooms: rooms})
}
