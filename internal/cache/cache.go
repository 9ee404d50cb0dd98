// Package cache holds the most recent valid snapshots in two tiers: a
// bounded in-memory LRU and an optional slower Store behind it. Tier one is
// the source of truth for the running process; tier two only back-fills it.
package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Guliveer/vitalis/sampler/internal/metrics"
	"github.com/Guliveer/vitalis/sampler/internal/models"
)

// DefaultKey is the key the collector stores its latest snapshot under.
const DefaultKey = "latest"

// Entry is a tier-one value. InsertedAt is read from the cache's clock and
// only ever compared against that clock.
type Entry struct {
	Snapshot   models.SystemSnapshot
	InsertedAt time.Time
}

// Options configures a Cache.
type Options struct {
	// Capacity bounds tier one. Values below 1 become 1.
	Capacity int
	// TierTwo is optional.
	TierTwo Store
	// IOTimeout bounds every tier-two read and write.
	IOTimeout time.Duration
	Clock     clockwork.Clock
	Logger    *zap.Logger
}

// Cache is safe for one writer and any number of readers.
type Cache struct {
	entries   *lru.Cache[string, Entry]
	tier2     Store
	ioTimeout time.Duration
	clock     clockwork.Clock
	logger    *zap.Logger
	warnLimit *rate.Limiter

	// Tier-two writes go through a single writer. queued holds the newest
	// unwritten entry per key; idle is closed while no writer runs.
	mu      sync.Mutex
	queued  map[string]StoredEntry
	writing bool
	idle    chan struct{}
}

// New creates a cache.
func New(opts Options) (*Cache, error) {
	capacity := opts.Capacity
	if capacity < 1 {
		capacity = 1
	}
	entries, err := lru.New[string, Entry](capacity)
	if err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = 2 * time.Second
	}
	idle := make(chan struct{})
	close(idle)
	return &Cache{
		entries:   entries,
		tier2:     opts.TierTwo,
		ioTimeout: opts.IOTimeout,
		clock:     opts.Clock,
		logger:    opts.Logger,
		warnLimit: rate.NewLimiter(rate.Every(time.Minute), 1),
		queued:    make(map[string]StoredEntry),
		idle:      idle,
	}, nil
}

// Put stores s under key. Tier one is updated before Put returns; the
// tier-two write happens in the background and its failure is only logged.
// Writes for a key land in Put order, and an entry still queued when a newer
// Put arrives is replaced without being written.
func (c *Cache) Put(key string, s models.SystemSnapshot) {
	now := c.clock.Now()
	c.entries.Add(key, Entry{Snapshot: s.Clone(), InsertedAt: now})

	if c.tier2 == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queued[key] = StoredEntry{Snapshot: s.Clone(), SavedAt: now}
	if !c.writing {
		c.writing = true
		c.idle = make(chan struct{})
		go c.writeQueued(c.idle)
	}
}

// writeQueued saves queued entries one at a time until the queue is empty,
// then closes idle.
func (c *Cache) writeQueued(idle chan struct{}) {
	for {
		c.mu.Lock()
		var (
			key    string
			stored StoredEntry
			found  bool
		)
		for k, e := range c.queued {
			key, stored, found = k, e, true
			break
		}
		if !found {
			c.writing = false
			close(idle)
			c.mu.Unlock()
			return
		}
		delete(c.queued, key)
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.ioTimeout)
		if err := c.tier2.Save(ctx, key, stored); err != nil {
			c.warn("Tier-two cache write failed", zap.String("key", key), zap.Error(err))
		}
		cancel()
	}
}

// Get returns the snapshot under key and its age. On a tier-one miss the
// second tier is consulted and a hit is copied back into tier one.
func (c *Cache) Get(key string) (models.SystemSnapshot, time.Duration, bool) {
	if e, ok := c.entries.Get(key); ok {
		metrics.IncCacheLookup(metrics.TierOne, metrics.ResultHit)
		return e.Snapshot.Clone(), c.age(e.InsertedAt), true
	}
	metrics.IncCacheLookup(metrics.TierOne, metrics.ResultMiss)

	if c.tier2 == nil {
		return models.SystemSnapshot{}, 0, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.ioTimeout)
	defer cancel()
	stored, ok, err := c.tier2.Load(ctx, key)
	if err != nil {
		metrics.IncCacheLookup(metrics.TierTwo, metrics.ResultError)
		c.warn("Tier-two cache read failed", zap.String("key", key), zap.Error(err))
		return models.SystemSnapshot{}, 0, false
	}
	if !ok {
		metrics.IncCacheLookup(metrics.TierTwo, metrics.ResultMiss)
		return models.SystemSnapshot{}, 0, false
	}
	metrics.IncCacheLookup(metrics.TierTwo, metrics.ResultHit)

	// Convert the wall-clock save time into an age once; from here on the
	// entry ages on the cache's clock.
	now := c.clock.Now()
	age := now.Sub(stored.SavedAt)
	if age < 0 {
		age = 0
	}
	c.entries.Add(key, Entry{Snapshot: stored.Snapshot, InsertedAt: now.Add(-age)})
	return stored.Snapshot.Clone(), age, true
}

// Peek returns the tier-one entry without touching recency or tier two.
func (c *Cache) Peek(key string) (Entry, bool) {
	return c.entries.Peek(key)
}

// Invalidate drops key from tier one. Tier two keeps it for the next run.
func (c *Cache) Invalidate(key string) {
	c.entries.Remove(key)
}

// Keys returns tier-one keys from least to most recently used.
func (c *Cache) Keys() []string {
	return c.entries.Keys()
}

// Len returns the number of tier-one entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Flush waits until every queued tier-two write has been attempted, or
// until ctx is done.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending writes and closes tier two.
func (c *Cache) Close(ctx context.Context) error {
	err := c.Flush(ctx)
	if c.tier2 != nil {
		if cerr := c.tier2.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (c *Cache) age(insertedAt time.Time) time.Duration {
	age := c.clock.Since(insertedAt)
	if age < 0 {
		return 0
	}
	return age
}

func (c *Cache) warn(msg string, fields ...zap.Field) {
	if c.warnLimit.Allow() {
		c.logger.Warn(msg, fields...)
		return
	}
	c.logger.Debug(msg, fields...)
}
