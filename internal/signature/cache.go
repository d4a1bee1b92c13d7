// Package signature implements the thought-signature continuity cache: a
// two-tier store, keyed by tool_call_id, that lets the streaming transformer
// re-attach upstream-issued opaque thought signatures to later tool-call
// turns after the caller's history has stripped them.
package signature

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Entry is one cached signature binding.
type Entry struct {
	Signature   string
	ThoughtText string
	Timestamp   time.Time
}

// Expired reports whether the entry is older than ttl as of now.
func (e Entry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) > ttl
}

// Store is the durable L2 backend contract. Implementations must be safe
// for concurrent use.
type Store interface {
	Get(ctx context.Context, id string) (Entry, bool, error)
	Put(ctx context.Context, id string, e Entry) error
	Delete(ctx context.Context, id string) error
	Size(ctx context.Context) (int, error)
	// DeleteOldestFraction removes the oldest-by-timestamp fraction (e.g. 0.1
	// for the bottom decile) of entries.
	DeleteOldestFraction(ctx context.Context, fraction float64) error
	// DeleteExpired removes every entry older than cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) error
	Close() error
}

const (
	// DefaultTTL is the lifetime of a cache entry from the moment it is
	// written, per spec §3/§4.6.
	DefaultTTL = time.Hour
	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = 10 * time.Minute
	// DefaultL1Capacity is the in-memory front's entry ceiling.
	DefaultL1Capacity = 1000
	// DefaultL2Capacity is the durable store's entry ceiling before eviction.
	DefaultL2Capacity = 10000
	// evictionFraction is the bottom decile removed once L2 hits capacity.
	evictionFraction = 0.10
)

// Cache is the two-tier signature cache. The in-memory L1 front is checked
// first; on miss, the durable L2 store is consulted and L1 is populated on
// hit. Writes go through to both tiers.
//
// Grounded on internal/cache/signature_cache.go's sync.Once+ticker sweep
// idiom, adapted to tool_call_id keying (instead of text-hash/model-group
// keying) and a durable L2 instead of an in-memory-only store, per spec §4.6.
type Cache struct {
	mu            sync.Mutex
	l1            map[string]Entry
	l1Order       []string // insertion order, oldest first, for eviction
	l1Capacity    int
	l2            Store
	l2Capacity    int
	ttl           time.Duration
	sweepInterval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Cache backed by l2 and starts its background sweep.
// Callers must call Destroy when done to stop the sweep and release l2.
func New(l2 Store, l1Capacity, l2Capacity int, ttl, sweepInterval time.Duration) *Cache {
	if l1Capacity <= 0 {
		l1Capacity = DefaultL1Capacity
	}
	if l2Capacity <= 0 {
		l2Capacity = DefaultL2Capacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	c := &Cache{
		l1:            make(map[string]Entry),
		l1Capacity:    l1Capacity,
		l2:            l2,
		l2Capacity:    l2Capacity,
		ttl:           ttl,
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
	}
	c.sweepExpired(context.Background()) // startup sweep, per spec §4.6
	c.wg.Add(1)
	go c.sweepLoop()
	return c
}

func (c *Cache) sweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepExpired(context.Background())
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache) sweepExpired(ctx context.Context) {
	cutoff := time.Now().Add(-c.ttl)

	c.mu.Lock()
	for id, e := range c.l1 {
		if e.Expired(time.Now(), c.ttl) {
			delete(c.l1, id)
			c.l1Order = removeFromOrder(c.l1Order, id)
		}
	}
	c.mu.Unlock()

	if c.l2 != nil {
		if err := c.l2.DeleteExpired(ctx, cutoff); err != nil {
			log.WithError(err).Warn("signature cache: expired sweep failed")
		}
	}
}

// Store writes a signature binding through to both tiers.
func (c *Cache) Store(ctx context.Context, toolCallID, signature, thoughtText string) error {
	if toolCallID == "" || signature == "" {
		return nil
	}
	entry := Entry{Signature: signature, ThoughtText: thoughtText, Timestamp: time.Now()}

	c.mu.Lock()
	c.putL1Locked(toolCallID, entry)
	c.mu.Unlock()

	if c.l2 == nil {
		return nil
	}

	if size, err := c.l2.Size(ctx); err == nil && size >= c.l2Capacity {
		if err = c.l2.DeleteOldestFraction(ctx, evictionFraction); err != nil {
			log.WithError(err).Warn("signature cache: eviction failed")
		}
	}
	return c.l2.Put(ctx, toolCallID, entry)
}

// Get returns the cached entry for toolCallID, checking L1 then L2 and
// populating L1 on an L2 hit.
func (c *Cache) Get(ctx context.Context, toolCallID string) (Entry, bool) {
	c.mu.Lock()
	entry, ok := c.l1[toolCallID]
	c.mu.Unlock()
	if ok {
		if entry.Expired(time.Now(), c.ttl) {
			return Entry{}, false
		}
		return entry, true
	}

	if c.l2 == nil {
		return Entry{}, false
	}
	entry, ok, err := c.l2.Get(ctx, toolCallID)
	if err != nil {
		log.WithError(err).Warn("signature cache: durable lookup failed")
		return Entry{}, false
	}
	if !ok || entry.Expired(time.Now(), c.ttl) {
		return Entry{}, false
	}

	c.mu.Lock()
	c.putL1Locked(toolCallID, entry)
	c.mu.Unlock()
	return entry, true
}

// Has reports whether a live (non-expired) entry exists for toolCallID.
func (c *Cache) Has(ctx context.Context, toolCallID string) bool {
	_, ok := c.Get(ctx, toolCallID)
	return ok
}

// Size returns the durable store's entry count, or the L1 count if there is
// no L2 configured.
func (c *Cache) Size(ctx context.Context) int {
	if c.l2 != nil {
		if n, err := c.l2.Size(ctx); err == nil {
			return n
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.l1)
}

// Clear empties L1. The durable store is left untouched; use Destroy to
// release it entirely.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.l1 = make(map[string]Entry)
	c.l1Order = nil
	c.mu.Unlock()
}

// Destroy stops the background sweep and closes the durable store.
func (c *Cache) Destroy() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}

// putL1Locked must be called with c.mu held.
func (c *Cache) putL1Locked(id string, e Entry) {
	if _, exists := c.l1[id]; !exists {
		c.l1Order = append(c.l1Order, id)
	}
	c.l1[id] = e
	for len(c.l1Order) > c.l1Capacity {
		oldest := c.l1Order[0]
		c.l1Order = c.l1Order[1:]
		delete(c.l1, oldest)
	}
}

func removeFromOrder(order []string, id string) []string {
	for i, v := range order {
		if v == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
