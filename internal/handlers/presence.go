package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/consultly/chat-service/internal/api/middleware"
	"github.com/consultly/chat-service/internal/broadcast"
	"github.com/consultly/chat-service/internal/models"
)

// OnlineStatusRequest is the self-reported presence update.
type OnlineStatusRequest struct {
	IsOnline bool `json:"isOnline"`
}

// OnlineUsersResponse lists everyone currently marked online.
type OnlineUsersResponse struct {
	OnlineUsers []models.PresenceEntry `json:"onlineUsers"`
}

// UpdateOnlineStatus handles PUT /chat/online-status.
func (h *Handler) UpdateOnlineStatus(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())

	var req OnlineStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.IsOnline {
		h.presence.SetOnline(ident.ID, ident.Name)
	} else {
		h.presence.SetOffline(ident.ID)
	}

	// Presence changes go to every connection, not a single room.
	h.bus.PublishGlobal(broadcast.Event{
		Type: broadcast.EventStatusChange,
		Payload: broadcast.StatusPayload{
			UserID:   ident.ID,
			UserName: ident.Name,
			IsOnline: req.IsOnline,
		},
	}, "")

	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ListOnlineUsers handles GET /chat/online-users.
func (h *Handler) ListOnlineUsers(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, OnlineUsersResponse{OnlineUsers: h.presence.ListOnline()})
}
