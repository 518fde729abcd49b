package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/consultly/chat-service/internal/api/middleware"
	"github.com/consultly/chat-service/internal/broadcast"
	"github.com/consultly/chat-service/internal/metrics"
	"github.com/consultly/chat-service/internal/models"
	"github.com/consultly/chat-service/internal/store"
)

// Content length bounds, in characters.
const (
	minContentLen = 1
	maxContentLen = 1000
)

// MessageInput is the user-supplied portion of a message.
type MessageInput struct {
	Content  string             `json:"content"`
	Type     models.MessageType `json:"type,omitempty"`
	Metadata *models.Attachment `json:"metadata,omitempty"`
}

// validate normalizes the input and reports the first violation.
func (in *MessageInput) validate() error {
	if n := utf8.RuneCountInString(in.Content); n < minContentLen || n > maxContentLen {
		return errors.New("content must be between 1 and 1000 characters")
	}
	if in.Type == "" {
		in.Type = models.MessageText
	}
	if !in.Type.Valid() {
		return errors.New("type must be one of text, image, file")
	}
	if in.Type == models.MessageText {
		// Text messages carry no attachment.
		in.Metadata = nil
	}
	return nil
}

// message builds the storable message with the caller snapshotted as
// sender.
func (in *MessageInput) message(ident *middleware.Identity) *models.Message {
	return &models.Message{
		Sender: models.Sender{
			ID:           ident.ID,
			Name:         ident.Name,
			Role:         ident.Role,
			ProfileImage: ident.ProfileImage,
		},
		Content:    in.Content,
		Type:       in.Type,
		Attachment: in.Metadata,
	}
}

// HistoryResponse is the paged room history.
type HistoryResponse struct {
	Messages   []models.Message `json:"messages"`
	Pagination store.Pagination `json:"pagination"`
}

// GetHistory handles GET /chat/{roomId}.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	roomID := chi.URLParam(r, "roomID")

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	room, err := h.store.Room(r.Context(), roomID)
	if err == nil && !room.HasParticipant(ident.ID) {
		h.Error(w, http.StatusForbidden, "not a participant of this room")
		return
	}
	// Unknown room falls through: history reads degrade to an empty
	// page instead of 404, unlike the write paths.

	messages, pagination, err := h.store.History(r.Context(), roomID, page, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	h.JSON(w, http.StatusOK, HistoryResponse{Messages: messages, Pagination: pagination})
}

// PostMessageResponse wraps the stored message.
type PostMessageResponse struct {
	Message *models.Message `json:"message"`
}

// PostMessage handles POST /chat/{roomId}/message.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	roomID := chi.URLParam(r, "roomID")

	var in MessageInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := in.validate(); err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := h.store.AppendMessage(r.Context(), roomID, in.message(ident))
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		h.Error(w, http.StatusNotFound, "room not found")
		return
	case errors.Is(err, store.ErrNotParticipant):
		h.Error(w, http.StatusForbidden, "not a participant of this room")
		return
	case err != nil:
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	metrics.MessagesSent.WithLabelValues(string(stored.Type)).Inc()

	h.bus.Publish(roomID, broadcast.Event{
		Type:    broadcast.EventNewMessage,
		Payload: stored,
	}, "")

	h.JSON(w, http.StatusCreated, PostMessageResponse{Message: stored})
}

// MarkReadRequest selects which messages to flip. An absent or empty
// list means every currently unread message.
type MarkReadRequest struct {
	MessageIDs []string `json:"messageIds,omitempty"`
}

// MarkReadResponse acknowledges a read-state update.
type MarkReadResponse struct {
	Success    bool `json:"success"`
	MarkedRead int  `json:"markedRead"`
}

// MarkRead handles PUT /chat/{roomId}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	roomID := chi.URLParam(r, "roomID")

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	flipped, err := h.store.MarkRead(r.Context(), roomID, ident.ID, req.MessageIDs)
	if errors.Is(err, store.ErrRoomNotFound) {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to update read state")
		return
	}

	metrics.MessagesMarkedRead.Add(float64(flipped))
	h.JSON(w, http.StatusOK, MarkReadResponse{Success: true, MarkedRead: flipped})
}

// UnreadCountsResponse maps room id to the caller's unread count, only
// for rooms with a count above zero.
type UnreadCountsResponse struct {
	UnreadCounts map[string]int `json:"unreadCounts"`
}

// UnreadCounts handles GET /chat/unread-count.
func (h *Handler) UnreadCounts(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())

	counts, err := h.store.UnreadCounts(r.Context(), ident.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count unread messages")
		return
	}

	h.JSON(w, http.StatusOK, UnreadCountsResponse{UnreadCounts: counts})
}
