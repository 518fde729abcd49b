package models

import "time"

// MessageType distinguishes the message variants.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile:
		return true
	}
	return false
}

// Sender is a snapshot of the author taken at send time. A later rename
// does not rewrite stored messages.
type Sender struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// Attachment carries the payload of image and file messages.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Message represents a chat message retained in a room's log.
type Message struct {
	ID         string      `json:"id"` // ULID
	RoomID     string      `json:"roomId"`
	Sender     Sender      `json:"sender"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
	Attachment *Attachment `json:"attachment,omitempty"` // image/file only
	Timestamp  time.Time   `json:"timestamp"`
	Read       bool        `json:"read"` // flips false->true, never back
}
