package models

import "time"

// RoomType distinguishes two-party and group rooms.
type RoomType string

const (
	RoomDirect RoomType = "direct"
	RoomGroup  RoomType = "group"
)

// Valid reports whether t is a known room type.
func (t RoomType) Valid() bool {
	return t == RoomDirect || t == RoomGroup
}

// Room groups messages and membership. Direct rooms have a deterministic
// id derived from the participant pair; group rooms get a generated one.
type Room struct {
	ID           string    `json:"id"`
	Type         RoomType  `json:"type"`
	Name         string    `json:"name,omitempty"` // group rooms only
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasParticipant reports whether userID is a member of the room.
func (r *Room) HasParticipant(userID string) bool {
	for _, id := range r.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// RoomSummary is a room decorated with the caller's view of it:
// last message and personal unread count.
type RoomSummary struct {
	Room
	LastMessage *Message `json:"lastMessage,omitempty"`
	UnreadCount int      `json:"unreadCount"`
}

// LastActivity is the room's last message time, or its creation time
// when the log is empty. Used for most-recent-first ordering.
func (s *RoomSummary) LastActivity() time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.Timestamp
	}
	return s.CreatedAt
}
