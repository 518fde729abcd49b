package models

import "time"

// PresenceEntry is a user's self-reported online state. It is created by
// an explicit online signal and removed only by an explicit offline one;
// transport connectivity plays no part.
type PresenceEntry struct {
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
	LastSeen time.Time `json:"lastSeen"`
}
