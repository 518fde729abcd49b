// Package presence tracks which users have reported themselves online.
// Entries live until an explicit offline signal: there is no heartbeat
// and no TTL, so a user who drops their connection without signing off
// stays listed. Presence is independent of transport connectivity.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/consultly/chat-service/internal/models"
)

// Tracker is the process-wide online-user registry.
type Tracker struct {
	mu     sync.RWMutex
	online map[string]models.PresenceEntry
}

// NewTracker creates an empty presence tracker.
func NewTracker() *Tracker {
	return &Tracker{online: make(map[string]models.PresenceEntry)}
}

// SetOnline upserts the user's entry, refreshing lastSeen.
func (t *Tracker) SetOnline(userID, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online[userID] = models.PresenceEntry{
		UserID:   userID,
		Name:     name,
		LastSeen: time.Now().UTC(),
	}
}

// SetOffline removes the user's entry. Idempotent when absent.
func (t *Tracker) SetOffline(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.online, userID)
}

// IsOnline reports whether the user currently has an entry.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

// ListOnline returns all entries ordered by user id for stable output.
func (t *Tracker) ListOnline() []models.PresenceEntry {
	t.mu.RLock()
	entries := make([]models.PresenceEntry, 0, len(t.online))
	for _, e := range t.online {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UserID < entries[j].UserID
	})
	return entries
}
