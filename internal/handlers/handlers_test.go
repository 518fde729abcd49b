package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/consultly/chat-service/internal/api"
	"github.com/consultly/chat-service/internal/broadcast"
	"github.com/consultly/chat-service/internal/handlers"
	"github.com/consultly/chat-service/internal/models"
	"github.com/consultly/chat-service/internal/presence"
	"github.com/consultly/chat-service/internal/store"
)

type fixture struct {
	router http.Handler
	store  *store.MemoryStore
	bus    *broadcast.Broadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	chatStore := store.NewMemoryStore()
	bus := broadcast.New(zerolog.Nop())
	t.Cleanup(bus.Close)

	h := handlers.NewHandler(chatStore, presence.NewTracker(), bus, zerolog.Nop())
	return &fixture{
		router: api.NewRouter(zerolog.Nop(), h, nil, nil),
		store:  chatStore,
		bus:    bus,
	}
}

// do performs a request as the given user and returns the recorder.
func (f *fixture) do(t *testing.T, userID, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
		req.Header.Set("X-User-Name", "User "+userID)
		req.Header.Set("X-User-Role", "client")
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decoding response: %v (body %q)", err, rec.Body.String())
	}
}

func (f *fixture) createDirectRoom(t *testing.T, creator, other string) string {
	t.Helper()
	rec := f.do(t, creator, http.MethodPost, "/chat/rooms", handlers.CreateRoomRequest{
		Participants: []string{other},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create room: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp handlers.CreateRoomResponse
	decode(t, rec, &resp)
	return resp.RoomID
}

func TestMissingIdentityRejected(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "", http.MethodGet, "/chat/rooms", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateRoomIdempotentForDirect(t *testing.T) {
	f := newFixture(t)

	first := f.createDirectRoom(t, "u1", "a1")
	if first != "a1_u1" {
		t.Fatalf("expected deterministic id a1_u1, got %s", first)
	}

	// Other participant creating "again" resolves to the same room.
	second := f.createDirectRoom(t, "a1", "u1")
	if second != first {
		t.Fatalf("expected same room, got %s and %s", first, second)
	}
}

func TestCreateRoomValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "u1", http.MethodPost, "/chat/rooms", handlers.CreateRoomRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty participants: expected 400, got %d", rec.Code)
	}

	rec = f.do(t, "u1", http.MethodPost, "/chat/rooms", handlers.CreateRoomRequest{
		Participants: []string{"a1", "a2"},
		Type:         models.RoomDirect,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("three-party direct: expected 400, got %d", rec.Code)
	}

	rec = f.do(t, "u1", http.MethodPost, "/chat/rooms", map[string]interface{}{
		"participants": []string{"a1"},
		"type":         "broadcast",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad type: expected 400, got %d", rec.Code)
	}
}

func TestPostMessageContentBounds(t *testing.T) {
	f := newFixture(t)
	roomID := f.createDirectRoom(t, "u1", "a1")

	send := func(content string) int {
		rec := f.do(t, "u1", http.MethodPost, "/chat/"+roomID+"/message", handlers.MessageInput{Content: content})
		return rec.Code
	}

	if code := send(""); code != http.StatusBadRequest {
		t.Fatalf("empty content: expected 400, got %d", code)
	}
	if code := send(strings.Repeat("x", 1001)); code != http.StatusBadRequest {
		t.Fatalf("1001 chars: expected 400, got %d", code)
	}
	if code := send(strings.Repeat("x", 1000)); code != http.StatusCreated {
		t.Fatalf("1000 chars: expected 201, got %d", code)
	}
}

func TestPostMessageTypeValidation(t *testing.T) {
	f := newFixture(t)
	roomID := f.createDirectRoom(t, "u1", "a1")

	rec := f.do(t, "u1", http.MethodPost, "/chat/"+roomID+"/message", map[string]string{
		"content": "hello",
		"type":    "video",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", rec.Code)
	}

	rec = f.do(t, "u1", http.MethodPost, "/chat/"+roomID+"/message", map[string]interface{}{
		"content":  "see attached",
		"type":     "image",
		"metadata": map[string]interface{}{"url": "https://cdn.example/p.png", "size": 1234},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp handlers.PostMessageResponse
	decode(t, rec, &resp)
	if resp.Message.Type != models.MessageImage || resp.Message.Attachment == nil {
		t.Fatalf("expected image message with attachment, got %+v", resp.Message)
	}
}

func TestPostMessageUnknownRoomIs404(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "u1", http.MethodPost, "/chat/nope/message", handlers.MessageInput{Content: "hi"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPostMessageNonParticipantIs403(t *testing.T) {
	f := newFixture(t)
	roomID := f.createDirectRoom(t, "u1", "a1")

	rec := f.do(t, "intruder", http.MethodPost, "/chat/"+roomID+"/message", handlers.MessageInput{Content: "hi"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestSenderSnapshotOnMessage(t *testing.T) {
	f := newFixture(t)
	roomID := f.createDirectRoom(t, "u1", "a1")

	rec := f.do(t, "u1", http.MethodPost, "/chat/"+roomID+"/message", handlers.MessageInput{Content: "hello"})
	var resp handlers.PostMessageResponse
	decode(t, rec, &resp)

	if resp.Message.Sender.ID != "u1" || resp.Message.Sender.Name != "User u1" {
		t.Fatalf("expected sender snapshot, got %+v", resp.Message.Sender)
	}
	if resp.Message.ID == "" || resp.Message.Timestamp.IsZero() {
		t.Fatal("expected assigned id and timestamp")
	}
	if resp.Message.Read {
		t.Fatal("new message must start unread")
	}
}

func TestHistoryUnknownRoomSoftMiss(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "u1", http.MethodGet, "/chat/never-created", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 soft miss, got %d", rec.Code)
	}
	var resp handlers.HistoryResponse
	decode(t, rec, &resp)
	if len(resp.Messages) != 0 || resp.Pagination.Total != 0 {
		t.Fatalf("expected empty history, got %+v", resp)
	}
}

func TestHistoryNonParticipantIs403(t *testing.T) {
	f := newFixture(t)
	roomID := f.createDirectRoom(t, "u1", "a1")

	rec := f.do(t, "intruder", http.MethodGet, "/chat/"+roomID, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHistoryScenario(t *testing.T) {
	f := newFixture(t)
	roomID := f.createDirectRoom(t, "u1", "a1")

	for i := 0; i < 3; i++ {
		f.do(t, "u1", http.MethodPost, "/chat/"+roomID+"/message", handlers.MessageInput{Content: fmt.Sprintf("u1-%d", i)})
	}
	for i := 0; i < 2; i++ {
		f.do(t, "a1", http.MethodPost, "/chat/"+roomID+"/message", handlers.MessageInput{Content: fmt.Sprintf("a1-%d", i)})
	}

	rec := f.do(t, "u1", http.MethodGet, "/chat/"+roomID+"?page=1&limit=50", nil)
	var resp handlers.HistoryResponse
	decode(t, rec, &resp)
	if len(resp.Messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(resp.Messages))
	}

	var counts handlers.UnreadCountsResponse
	rec = f.do(t, "a1", http.MethodGet, "/chat/unread-count", nil)
	decode(t, rec, &counts)
	if counts.UnreadCounts[roomID] != 3 {
		t.Fatalf("expected a1 unread 3, got %d", counts.UnreadCounts[roomID])
	}

	rec = f.do(t, "u1", http.MethodGet, "/chat/unread-count", nil)
	decode(t, rec, &counts)
	if counts.UnreadCounts[roomID] != 2 {
		t.Fatalf("expected u1 unread 2, got %d", counts.UnreadCounts[roomID])
	}
}

func TestMarkReadFlow(t *testing.T) {
	f := newFixture(t)
	roomID := f.createDirectRoom(t, "u1", "a1")

	f.do(t, "a1", http.MethodPost, "/chat/"+roomID+"/message", handlers.MessageInput{Content: "one"})
	f.do(t, "a1", http.MethodPost, "/chat/"+roomID+"/message", handlers.MessageInput{Content: "two"})

	rec := f.do(t, "u1", http.MethodPut, "/chat/"+roomID+"/read", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp handlers.MarkReadResponse
	decode(t, rec, &resp)
	if !resp.Success || resp.MarkedRead != 2 {
		t.Fatalf("expected 2 marked read, got %+v", resp)
	}

	var counts handlers.UnreadCountsResponse
	rec = f.do(t, "u1", http.MethodGet, "/chat/unread-count", nil)
	decode(t, rec, &counts)
	if _, ok := counts.UnreadCounts[roomID]; ok {
		t.Fatal("expected room omitted once unread hits zero")
	}
}

func TestMarkReadUnknownRoomIs404(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "u1", http.MethodPut, "/chat/nope/read", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListRooms(t *testing.T) {
	f := newFixture(t)

	first := f.createDirectRoom(t, "u1", "a1")
	f.createDirectRoom(t, "u1", "a2")
	f.do(t, "a1", http.MethodPost, "/chat/"+first+"/message", handlers.MessageInput{Content: "newest activity"})

	rec := f.do(t, "u1", http.MethodGet, "/chat/rooms", nil)
	var resp handlers.ListRoomsResponse
	decode(t, rec, &resp)
	if len(resp.Rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(resp.Rooms))
	}
	if resp.Rooms[0].ID != first {
		t.Fatalf("expected active room first, got %s", resp.Rooms[0].ID)
	}
	if resp.Rooms[0].UnreadCount != 1 || resp.Rooms[0].LastMessage == nil {
		t.Fatalf("expected summary decoration, got %+v", resp.Rooms[0])
	}
}

func TestOnlineStatusRoundTrip(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "u1", http.MethodPut, "/chat/online-status", handlers.OnlineStatusRequest{IsOnline: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp handlers.OnlineUsersResponse
	rec = f.do(t, "a1", http.MethodGet, "/chat/online-users", nil)
	decode(t, rec, &resp)
	if len(resp.OnlineUsers) != 1 || resp.OnlineUsers[0].UserID != "u1" {
		t.Fatalf("expected u1 online, got %+v", resp.OnlineUsers)
	}

	f.do(t, "u1", http.MethodPut, "/chat/online-status", handlers.OnlineStatusRequest{IsOnline: false})

	rec = f.do(t, "a1", http.MethodGet, "/chat/online-users", nil)
	decode(t, rec, &resp)
	if len(resp.OnlineUsers) != 0 {
		t.Fatalf("expected nobody online, got %+v", resp.OnlineUsers)
	}
}

func TestPresenceChangeBroadcastsGlobally(t *testing.T) {
	f := newFixture(t)

	sub := f.bus.SubscribeGlobal("watcher")
	f.do(t, "u1", http.MethodPut, "/chat/online-status", handlers.OnlineStatusRequest{IsOnline: true})

	select {
	case ev := <-sub.C:
		if ev.Type != broadcast.EventStatusChange {
			t.Fatalf("unexpected event %+v", ev)
		}
		payload := ev.Payload.(broadcast.StatusPayload)
		if payload.UserID != "u1" || !payload.IsOnline {
			t.Fatalf("unexpected payload %+v", payload)
		}
	default:
		t.Fatal("expected status-change event on global stream")
	}
}

func TestNewMessageBroadcast(t *testing.T) {
	f := newFixture(t)
	roomID := f.createDirectRoom(t, "u1", "a1")

	sub := f.bus.Subscribe(roomID, "a1-conn")
	f.do(t, "u1", http.MethodPost, "/chat/"+roomID+"/message", handlers.MessageInput{Content: "hello"})

	select {
	case ev := <-sub.C:
		if ev.Type != broadcast.EventNewMessage {
			t.Fatalf("unexpected event %+v", ev)
		}
		msg := ev.Payload.(*models.Message)
		if msg.Content != "hello" || msg.RoomID != roomID {
			t.Fatalf("unexpected payload %+v", msg)
		}
	default:
		t.Fatal("expected new-message event")
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "", http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
