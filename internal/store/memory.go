package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/consultly/chat-service/internal/idgen"
	"github.com/consultly/chat-service/internal/metrics"
	"github.com/consultly/chat-service/internal/models"
)

// MemoryStore keeps all chat state in process memory. History does not
// survive a restart; callers treat that as expected, not exceptional.
//
// The registry lock guards the room map only. Each room carries its own
// lock, so mutations on unrelated rooms proceed independently while two
// writers on the same room are serialized. Rooms are never deleted, so a
// *room fetched under the registry lock stays valid after release.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	mu       sync.RWMutex
	info     models.Room
	messages []models.Message
}

// NewMemoryStore creates an empty in-memory chat store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*room)}
}

// DirectRoomID derives the deterministic id for a two-party room:
// the participant ids sorted and joined with "_". Symmetric, so both
// participants resolve to the same room.
func DirectRoomID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// snapshot returns a copy safe to hand to callers. Must be called with
// at least a read lock on the room.
func (r *room) snapshot() *models.Room {
	info := r.info
	info.Participants = append([]string(nil), r.info.Participants...)
	return &info
}

func (r *room) lastMessage() *models.Message {
	if len(r.messages) == 0 {
		return nil
	}
	last := r.messages[len(r.messages)-1]
	return &last
}

func (r *room) unreadCount(readerID string) int {
	n := 0
	for i := range r.messages {
		if !r.messages[i].Read && r.messages[i].Sender.ID != readerID {
			n++
		}
	}
	return n
}

func (s *MemoryStore) ResolveOrCreate(ctx context.Context, creatorID string, participants []string, roomType models.RoomType, name string) (*models.Room, error) {
	ids := dedupe(creatorID, participants)
	if len(ids) == 0 {
		return nil, ErrInvalidParticipants
	}

	switch roomType {
	case models.RoomDirect:
		if len(ids) != 2 {
			return nil, ErrInvalidParticipants
		}
		id := DirectRoomID(ids[0], ids[1])

		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.rooms[id]; ok {
			existing.mu.RLock()
			defer existing.mu.RUnlock()
			return existing.snapshot(), nil
		}
		r := &room{info: models.Room{
			ID:           id,
			Type:         models.RoomDirect,
			Participants: ids,
			CreatedAt:    time.Now().UTC(),
		}}
		s.rooms[id] = r
		return r.snapshot(), nil

	case models.RoomGroup:
		// Group rooms are never deduplicated by membership: every call
		// allocates a fresh room even for an identical participant set.
		r := &room{info: models.Room{
			ID:           uuid.NewString(),
			Type:         models.RoomGroup,
			Name:         strings.TrimSpace(name),
			Participants: ids,
			CreatedAt:    time.Now().UTC(),
		}}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.rooms[r.info.ID] = r
		return r.snapshot(), nil

	default:
		return nil, ErrInvalidParticipants
	}
}

func (s *MemoryStore) Room(ctx context.Context, roomID string) (*models.Room, error) {
	r, ok := s.lookup(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot(), nil
}

func (s *MemoryStore) RoomsForUser(ctx context.Context, userID string) ([]models.RoomSummary, error) {
	s.mu.RLock()
	members := make([]*room, 0)
	for _, r := range s.rooms {
		if r.info.HasParticipant(userID) {
			members = append(members, r)
		}
	}
	s.mu.RUnlock()

	summaries := make([]models.RoomSummary, 0, len(members))
	for _, r := range members {
		r.mu.RLock()
		summaries = append(summaries, models.RoomSummary{
			Room:        *r.snapshot(),
			LastMessage: r.lastMessage(),
			UnreadCount: r.unreadCount(userID),
		})
		r.mu.RUnlock()
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity().After(summaries[j].LastActivity())
	})
	return summaries, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, roomID string, msg *models.Message) (*models.Message, error) {
	r, ok := s.lookup(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.info.HasParticipant(msg.Sender.ID) {
		return nil, ErrNotParticipant
	}

	stored := *msg
	stored.RoomID = roomID
	if stored.ID == "" {
		stored.ID = idgen.NewMessageID()
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}
	stored.Read = false

	r.messages = append(r.messages, stored)
	if n := len(r.messages) - MaxRetainedMessages; n > 0 {
		// Evict oldest-first, compacting in place so the backing array
		// does not pin discarded messages.
		r.messages = append(r.messages[:0], r.messages[n:]...)
		metrics.MessagesEvicted.Add(float64(n))
	}

	out := stored
	return &out, nil
}

func (s *MemoryStore) History(ctx context.Context, roomID string, page, limit int) ([]models.Message, Pagination, error) {
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	r, ok := s.lookup(roomID)
	if !ok {
		// Unknown room reads degrade to an empty page. Callers probe
		// room existence this way, so it must not become an error.
		return []models.Message{}, Pagination{Page: page, Limit: limit}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.messages)
	pages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]models.Message, end-start)
	copy(out, r.messages[start:end])

	return out, Pagination{Page: page, Limit: limit, Total: total, Pages: pages}, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, roomID, readerID string, messageIDs []string) (int, error) {
	r, ok := s.lookup(roomID)
	if !ok {
		return 0, ErrRoomNotFound
	}

	var wanted map[string]struct{}
	if len(messageIDs) > 0 {
		wanted = make(map[string]struct{}, len(messageIDs))
		for _, id := range messageIDs {
			wanted[id] = struct{}{}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	flipped := 0
	for i := range r.messages {
		m := &r.messages[i]
		if m.Read || m.Sender.ID == readerID {
			// The reader's own messages are never flipped by their own
			// action; a no-op, not an error.
			continue
		}
		if wanted != nil {
			if _, ok := wanted[m.ID]; !ok {
				continue
			}
		}
		m.Read = true
		flipped++
	}
	return flipped, nil
}

func (s *MemoryStore) UnreadCount(ctx context.Context, roomID, readerID string) (int, error) {
	r, ok := s.lookup(roomID)
	if !ok {
		return 0, ErrRoomNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unreadCount(readerID), nil
}

func (s *MemoryStore) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	s.mu.RLock()
	members := make([]*room, 0)
	for _, r := range s.rooms {
		if r.info.HasParticipant(userID) {
			members = append(members, r)
		}
	}
	s.mu.RUnlock()

	counts := make(map[string]int)
	for _, r := range members {
		r.mu.RLock()
		if n := r.unreadCount(userID); n > 0 {
			counts[r.info.ID] = n
		}
		r.mu.RUnlock()
	}
	return counts, nil
}

func (s *MemoryStore) lookup(roomID string) (*room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	return r, ok
}

// dedupe returns the unique participant ids with the creator included,
// preserving first-seen order and dropping blanks.
func dedupe(creatorID string, participants []string) []string {
	seen := make(map[string]struct{}, len(participants)+1)
	out := make([]string, 0, len(participants)+1)
	for _, id := range participants {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if creatorID != "" {
		if _, ok := seen[creatorID]; !ok {
			out = append(out, creatorID)
		}
	}
	return out
}
