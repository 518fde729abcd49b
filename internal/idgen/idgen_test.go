package idgen

import (
	"sync"
	"testing"
)

func TestNewMessageIDMonotonic(t *testing.T) {
	prev := NewMessageID()
	for i := 0; i < 1000; i++ {
		id := NewMessageID()
		if id <= prev {
			t.Fatalf("ids must be strictly increasing: %s then %s", prev, id)
		}
		prev = id
	}
}

func TestNewMessageIDUniqueUnderConcurrency(t *testing.T) {
	const n = 100
	ids := make(chan string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- NewMessageID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
