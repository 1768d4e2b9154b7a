package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fixedClock returns a settable time source for staleness tests.
func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil store")
		}
	}()
	NewManager(nil, 0)
}

func TestManager_SetAndGet(t *testing.T) {
	manager := NewManager(NewMemoryStore(), time.Hour)
	ctx := context.Background()
	key := Key{Resource: "repos", Owner: "octocat"}

	manager.Set(ctx, key, []byte(`{"records": []}`), 5*time.Minute)

	entry, status := manager.Get(ctx, key)
	if status != StatusHit {
		t.Fatalf("status = %s, want hit", status)
	}
	if string(entry.Payload) != `{"records": []}` {
		t.Errorf("Payload = %s", entry.Payload)
	}
	if entry.TTL != 5*time.Minute {
		t.Errorf("TTL = %v, want 5m", entry.TTL)
	}
}

func TestManager_Get_Miss(t *testing.T) {
	manager := NewManager(NewMemoryStore(), time.Hour)

	entry, status := manager.Get(context.Background(), Key{Resource: "repos", Owner: "ghost"})
	if status != StatusMiss {
		t.Errorf("status = %s, want miss", status)
	}
	if entry != nil {
		t.Errorf("entry = %+v, want nil", entry)
	}
}

// TestManager_StaleWithinGrace exercises the stale-while-revalidate
// contract: an entry one tick past its TTL is returned with StatusStale.
func TestManager_StaleWithinGrace(t *testing.T) {
	manager := NewManager(NewMemoryStore(), time.Hour)
	ctx := context.Background()
	key := Key{Resource: "repos", Owner: "octocat"}

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	manager.SetClock(fixedClock(start))
	manager.Set(ctx, key, []byte(`{"v": 1}`), 5*time.Minute)

	// Move one second past the TTL.
	manager.SetClock(fixedClock(start.Add(5*time.Minute + time.Second)))

	entry, status := manager.Get(ctx, key)
	if status != StatusStale {
		t.Fatalf("status = %s, want stale", status)
	}
	if entry == nil || string(entry.Payload) != `{"v": 1}` {
		t.Errorf("stale entry must still carry the payload, got %+v", entry)
	}
}

func TestManager_StalePastGraceIsMiss(t *testing.T) {
	manager := NewManager(NewMemoryStore(), 10*time.Minute)
	ctx := context.Background()
	key := Key{Resource: "repos", Owner: "octocat"}

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	manager.SetClock(fixedClock(start))
	manager.Set(ctx, key, []byte(`{"v": 1}`), 5*time.Minute)

	manager.SetClock(fixedClock(start.Add(16 * time.Minute)))

	if _, status := manager.Get(ctx, key); status != StatusMiss {
		t.Errorf("status = %s, want miss past the grace window", status)
	}
}

func TestManager_CorruptEntryIsMiss(t *testing.T) {
	store := NewMemoryStore()
	manager := NewManager(store, time.Hour)
	ctx := context.Background()
	key := Key{Resource: "repos", Owner: "octocat"}

	// Write garbage directly into the store.
	if err := store.Set(ctx, key.String(), "not json at all", 0); err != nil {
		t.Fatalf("store set: %v", err)
	}

	if _, status := manager.Get(ctx, key); status != StatusMiss {
		t.Errorf("status = %s, want miss for corrupt entry", status)
	}

	// The corrupt value must have been dropped.
	if _, found, _ := store.Get(ctx, key.String()); found {
		t.Error("corrupt entry should have been removed")
	}
}

// brokenStore fails every operation, simulating unreachable storage.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("storage unreachable")
}
func (brokenStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("storage unreachable")
}
func (brokenStore) Remove(context.Context, string) error {
	return errors.New("storage unreachable")
}

// TestManager_BrokenStoreDegradesToMiss verifies a broken cache degrades
// to "always fetch", never to "always fail".
func TestManager_BrokenStoreDegradesToMiss(t *testing.T) {
	manager := NewManager(brokenStore{}, time.Hour)
	ctx := context.Background()
	key := Key{Resource: "repos", Owner: "octocat"}

	if _, status := manager.Get(ctx, key); status != StatusMiss {
		t.Errorf("status = %s, want miss on storage failure", status)
	}

	// Set and Invalidate must not panic or propagate the failure.
	manager.Set(ctx, key, []byte(`{}`), time.Minute)
	manager.Invalidate(ctx, key)
}

func TestManager_Invalidate(t *testing.T) {
	manager := NewManager(NewMemoryStore(), time.Hour)
	ctx := context.Background()
	key := Key{Resource: "repos", Owner: "octocat"}

	manager.Set(ctx, key, []byte(`{}`), 5*time.Minute)
	manager.Invalidate(ctx, key)

	if _, status := manager.Get(ctx, key); status != StatusMiss {
		t.Errorf("status = %s, want miss after invalidate", status)
	}
}

func TestManager_LastWriteWins(t *testing.T) {
	manager := NewManager(NewMemoryStore(), time.Hour)
	ctx := context.Background()
	key := Key{Resource: "repos", Owner: "octocat"}

	manager.Set(ctx, key, []byte(`{"v": 1}`), 5*time.Minute)
	manager.Set(ctx, key, []byte(`{"v": 2}`), 5*time.Minute)

	entry, status := manager.Get(ctx, key)
	if status != StatusHit {
		t.Fatalf("status = %s, want hit", status)
	}
	if string(entry.Payload) != `{"v": 2}` {
		t.Errorf("Payload = %s, want the second write", entry.Payload)
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHit, "hit"},
		{StatusStale, "stale"},
		{StatusMiss, "miss"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
