package signature

import (
	"context"
	"testing"
	"time"
)

func TestCache_StoreAndGet_RoundTrips(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	c := New(store, 10, 10, time.Hour, time.Hour)
	defer c.Destroy()

	ctx := context.Background()
	if err = c.Store(ctx, "call_abc", "sig-1", "thought text"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	entry, ok := c.Get(ctx, "call_abc")
	if !ok {
		t.Fatal("expected a hit after Store")
	}
	if entry.Signature != "sig-1" {
		t.Errorf("expected signature sig-1, got %s", entry.Signature)
	}
}

func TestCache_Get_MissReturnsFalse(t *testing.T) {
	c := New(nil, 10, 10, time.Hour, time.Hour)
	defer c.Destroy()

	if _, ok := c.Get(context.Background(), "call_unknown"); ok {
		t.Error("expected a miss for an unknown id")
	}
}

func TestCache_L1Eviction_EvictsOldestOnOverflow(t *testing.T) {
	c := New(nil, 2, 2, time.Hour, time.Hour)
	defer c.Destroy()

	ctx := context.Background()
	_ = c.Store(ctx, "call_1", "sig-1", "")
	_ = c.Store(ctx, "call_2", "sig-2", "")
	_ = c.Store(ctx, "call_3", "sig-3", "")

	if _, ok := c.Get(ctx, "call_1"); ok {
		t.Error("expected call_1 to be evicted once capacity is exceeded")
	}
	if _, ok := c.Get(ctx, "call_3"); !ok {
		t.Error("expected call_3 to remain cached")
	}
}

func TestCache_ExpiredEntry_IsNotReturned(t *testing.T) {
	c := New(nil, 10, 10, time.Hour, time.Hour)
	defer c.Destroy()

	c.mu.Lock()
	c.l1["call_stale"] = Entry{Signature: "sig", Timestamp: time.Now().Add(-2 * time.Hour)}
	c.l1Order = append(c.l1Order, "call_stale")
	c.mu.Unlock()

	if _, ok := c.Get(context.Background(), "call_stale"); ok {
		t.Error("expected an expired entry to be treated as a miss")
	}
}

func TestCache_L2Fallback_PopulatesL1OnHit(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	if err = store.Put(ctx, "call_direct", Entry{Signature: "sig-direct", Timestamp: time.Now()}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	c := New(store, 10, 10, time.Hour, time.Hour)
	defer c.Destroy()

	entry, ok := c.Get(ctx, "call_direct")
	if !ok || entry.Signature != "sig-direct" {
		t.Fatalf("expected L2 fallback to surface sig-direct, got %+v ok=%v", entry, ok)
	}

	c.mu.Lock()
	_, inL1 := c.l1["call_direct"]
	c.mu.Unlock()
	if !inL1 {
		t.Error("expected the L2 hit to populate L1")
	}
}

func TestCache_Store_EmptyIDOrSignatureIsNoop(t *testing.T) {
	c := New(nil, 10, 10, time.Hour, time.Hour)
	defer c.Destroy()

	ctx := context.Background()
	if err := c.Store(ctx, "", "sig", ""); err != nil {
		t.Fatalf("Store with empty id: %v", err)
	}
	if err := c.Store(ctx, "call_x", "", ""); err != nil {
		t.Fatalf("Store with empty signature: %v", err)
	}
	if c.Size(ctx) != 0 {
		t.Error("expected no entries to be recorded")
	}
}

func TestFileStore_DeleteExpired_RemovesOnlyStale(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	_ = store.Put(ctx, "call_old", Entry{Signature: "sig-old", Timestamp: time.Now().Add(-2 * time.Hour)})
	_ = store.Put(ctx, "call_new", Entry{Signature: "sig-new", Timestamp: time.Now()})

	if err = store.DeleteExpired(ctx, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}

	if _, ok, _ := store.Get(ctx, "call_old"); ok {
		t.Error("expected call_old to be swept")
	}
	if _, ok, _ := store.Get(ctx, "call_new"); !ok {
		t.Error("expected call_new to survive the sweep")
	}
}

func TestFileStore_DeleteOldestFraction_EvictsBottomDecile(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		id := "call_" + string(rune('a'+i))
		_ = store.Put(ctx, id, Entry{Signature: "sig", Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	if err = store.DeleteOldestFraction(ctx, 0.10); err != nil {
		t.Fatalf("DeleteOldestFraction: %v", err)
	}

	size, _ := store.Size(ctx)
	if size != 9 {
		t.Errorf("expected 9 entries to remain after evicting the oldest decile, got %d", size)
	}
	if _, ok, _ := store.Get(ctx, "call_a"); ok {
		t.Error("expected the oldest entry to be evicted")
	}
}
