package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(MemoryConfig{
		TTL:                  time.Hour,
		CompressionThreshold: 4,
		CompressionKeepLastN: 2,
		CleanupInterval:      time.Hour,
		LRUCacheSize:         4,
		SnapshotRingSize:     3,
	})
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemoryStore_CreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)

	session, err := s.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.State != models.SessionActive {
		t.Fatalf("state = %v, want active", session.State)
	}

	got, err := s.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != session.ID {
		t.Fatalf("got ID %q, want %q", got.ID, session.ID)
	}
}

func TestMemoryStore_GetReturnsCloneNotSharedState(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	session, _ := s.Create(ctx, "user-1")

	got, _ := s.Get(ctx, session.ID)
	got.Slots = map[string]any{"mutated": true}

	again, _ := s.Get(ctx, session.ID)
	if again.Slots != nil {
		t.Fatalf("mutation on returned session leaked into store: %+v", again.Slots)
	}
}

func TestMemoryStore_SaveRejectsUnknownSession(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	err := s.Save(ctx, &models.Session{ID: "does-not-exist"})
	if err == nil {
		t.Fatal("expected error saving unknown session, got nil")
	}
}

func TestMemoryStore_DeleteThenGetErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	session, _ := s.Create(ctx, "user-1")

	if err := s.Delete(ctx, session.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, session.ID); err == nil {
		t.Fatal("expected error getting deleted session, got nil")
	}
}

func TestMemoryStore_ExpiredSessionIsInaccessible(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	session, _ := s.Create(ctx, "user-1")

	// Force expiry by rewriting the stored session directly.
	s.mu.Lock()
	s.sessions[session.ID].TTL = time.Millisecond
	s.sessions[session.ID].LastActivity = time.Now().Add(-time.Hour)
	s.cache.remove(session.ID)
	s.mu.Unlock()

	if _, err := s.Get(ctx, session.ID); err == nil {
		t.Fatal("expected expired session to be inaccessible, got nil error")
	}
}

func TestMemoryStore_CompactionCollapsesOldestTurns(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	session, _ := s.Create(ctx, "user-1")

	for i := 0; i < 6; i++ {
		session.History = append(session.History, models.Turn{
			ID:          string(rune('a' + i)),
			UserMessage: "hi",
			Timestamp:   time.Now(),
		})
	}
	session.TurnCount = len(session.History)
	if err := s.Save(ctx, session); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, _ := s.Get(ctx, session.ID)
	if len(got.History) >= 6 {
		t.Fatalf("expected history to be compacted below 6, got %d", len(got.History))
	}
	if got.Context.CompressionLevel == 0 {
		t.Fatal("expected CompressionLevel to be incremented")
	}
	if got.TurnCount != 6 {
		t.Fatalf("turn_count invariant violated: got %d, want 6", got.TurnCount)
	}
}

func TestMemoryStore_RestorePriorSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	session, _ := s.Create(ctx, "user-1")

	session.CurrentIntent = "order.status"
	session.Context.Summary = "first save"
	if err := s.Save(ctx, session); err != nil {
		t.Fatalf("Save 1: %v", err)
	}

	session.Context.Summary = "second save"
	if err := s.Save(ctx, session); err != nil {
		t.Fatalf("Save 2: %v", err)
	}

	restored, err := s.Restore(ctx, session.ID, 0)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Context.Summary != "first save" {
		t.Fatalf("restored summary = %q, want %q", restored.Context.Summary, "first save")
	}
}

func TestMemoryStore_SearchFiltersByUserAndState(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	a, _ := s.Create(ctx, "user-1")
	_, _ = s.Create(ctx, "user-2")

	if err := s.Cancel(ctx, a.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	results, err := s.Search(ctx, SearchCriteria{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != a.ID {
		t.Fatalf("unexpected search results: %+v", results)
	}
	if results[0].State != models.SessionCancelled {
		t.Fatalf("state = %v, want cancelled", results[0].State)
	}
}

func TestMemoryStore_ConcurrentSavesAreSerializedPerSession(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	session, _ := s.Create(ctx, "user-1")

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			fresh, err := s.Get(ctx, session.ID)
			if err != nil {
				done <- err
				return
			}
			fresh.TurnCount++
			done <- s.Save(ctx, fresh)
		}()
	}
	for i := 0; i < 10; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent save: %v", err)
		}
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRU(2)
	c.put("a", &models.Session{ID: "a"})
	c.put("b", &models.Session{ID: "b"})
	c.get("a") // touch a, making b the LRU entry
	c.put("c", &models.Session{ID: "c"})

	if _, ok := c.get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if _, ok := c.get("a"); !ok {
		t.Fatal("expected a to survive eviction")
	}
	if _, ok := c.get("c"); !ok {
		t.Fatal("expected c to be present")
	}
}

func TestSnapshotRing_WrapsAtCapacity(t *testing.T) {
	r := newSnapshotRing(2)
	r.push(contextSnapshot{Context: models.SessionContext{Summary: "one"}})
	r.push(contextSnapshot{Context: models.SessionContext{Summary: "two"}})
	r.push(contextSnapshot{Context: models.SessionContext{Summary: "three"}})

	if r.count() != 2 {
		t.Fatalf("count = %d, want 2", r.count())
	}
	newest, ok := r.at(0)
	if !ok || newest.Context.Summary != "three" {
		t.Fatalf("at(0) = %+v, ok=%v, want three", newest, ok)
	}
	oldest, ok := r.at(1)
	if !ok || oldest.Context.Summary != "two" {
		t.Fatalf("at(1) = %+v, ok=%v, want two", oldest, ok)
	}
	if _, ok := r.at(2); ok {
		t.Fatal("expected at(2) to be out of range")
	}
}
