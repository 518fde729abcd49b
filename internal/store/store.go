// Package store owns all chat state: room identity and membership plus
// each room's bounded message log. The service holds a single ChatStore
// instance; nothing outside the process mutates it.
package store

import (
	"context"
	"errors"

	"github.com/consultly/chat-service/internal/models"
)

// MaxRetainedMessages is the hard per-room cap. Once exceeded the oldest
// messages are discarded; there is no archive tier.
const MaxRetainedMessages = 1000

// Default paging for history reads.
const (
	DefaultPage  = 1
	DefaultLimit = 50
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrNotParticipant      = errors.New("not a room participant")
	ErrInvalidParticipants = errors.New("invalid participant list")
)

// Pagination describes the retained window a History call was served from.
// Total counts retained messages only, never evicted ones.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// ChatStore is the repository for rooms, messages and read state.
type ChatStore interface {
	// ResolveOrCreate returns the room for the given participants,
	// creating it if needed. Direct rooms are deduplicated by their
	// unordered participant pair; group rooms are always new.
	ResolveOrCreate(ctx context.Context, creatorID string, participants []string, roomType models.RoomType, name string) (*models.Room, error)

	// Room returns the room with the given id, or ErrRoomNotFound.
	Room(ctx context.Context, roomID string) (*models.Room, error)

	// RoomsForUser lists the rooms userID belongs to, most recently
	// active first, each with last message and unread count.
	RoomsForUser(ctx context.Context, userID string) ([]models.RoomSummary, error)

	// AppendMessage stores msg at the tail of the room's log, evicting
	// from the head past the retention cap. The sender must be a
	// participant. Fills in ID and Timestamp when unset.
	AppendMessage(ctx context.Context, roomID string, msg *models.Message) (*models.Message, error)

	// History returns a page of the retained log in send order. An
	// unknown room yields an empty page, not an error.
	History(ctx context.Context, roomID string, page, limit int) ([]models.Message, Pagination, error)

	// MarkRead flips read=true on the given messages (all unread when
	// messageIDs is empty), skipping any message authored by readerID.
	// Returns the number of messages flipped.
	MarkRead(ctx context.Context, roomID, readerID string, messageIDs []string) (int, error)

	// UnreadCount counts retained messages not yet read that were
	// authored by someone other than readerID.
	UnreadCount(ctx context.Context, roomID, readerID string) (int, error)

	// UnreadCounts returns per-room unread counts for userID across the
	// rooms they belong to, omitting rooms with a zero count.
	UnreadCounts(ctx context.Context, userID string) (map[string]int, error)
}
