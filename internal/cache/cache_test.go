package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Guliveer/vitalis/sampler/internal/models"
)

func testSnapshot(at time.Time, cpu float64) models.SystemSnapshot {
	return models.NewSnapshot(at,
		models.NewProcessorStats([]float64{cpu}),
		models.MemoryStats{Total: 100, Used: 40, Available: 60},
		[]models.Volume{{Name: "sda1", Mount: "/", Total: 10, Available: 5}},
		models.HostInfo{Hostname: "h"})
}

// memStore is an in-memory Store that can be told to fail.
type memStore struct {
	mu      sync.Mutex
	entries map[string]StoredEntry
	failErr error
	saves   int
}

func newMemStore() *memStore { return &memStore{entries: make(map[string]StoredEntry)} }

func (m *memStore) Load(_ context.Context, key string) (StoredEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return StoredEntry{}, false, m.failErr
	}
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *memStore) Save(_ context.Context, key string, e StoredEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failErr != nil {
		return m.failErr
	}
	m.entries[key] = e
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memStore) Close() error { return nil }

func newTestCache(t *testing.T, capacity int, store Store, clock clockwork.Clock) *Cache {
	t.Helper()
	c, err := New(Options{
		Capacity: capacity,
		TierTwo:  store,
		Clock:    clock,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return c
}

func TestCache_RetainsMostRecentlyUsed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newTestCache(t, 3, nil, clock)

	for i := 0; i < 6; i++ {
		c.Put(fmt.Sprintf("k%d", i), testSnapshot(clock.Now(), float64(i)))
	}
	assert.Equal(t, []string{"k3", "k4", "k5"}, c.Keys())

	// Reading k3 makes k4 the eviction candidate.
	_, _, ok := c.Get("k3")
	require.True(t, ok)
	c.Put("k6", testSnapshot(clock.Now(), 6))
	assert.Equal(t, []string{"k5", "k3", "k6"}, c.Keys())

	_, _, ok = c.Get("k0")
	assert.False(t, ok)
}

func TestCache_AgeFromClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newTestCache(t, 2, nil, clock)

	c.Put(DefaultKey, testSnapshot(clock.Now(), 10))
	clock.Advance(1500 * time.Millisecond)

	s, age, ok := c.Get(DefaultKey)
	require.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, age)
	assert.InDelta(t, 10.0, s.Processor.Overall, 1e-9)
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := newTestCache(t, 1, nil, clockwork.NewFakeClock())
	c.Put(DefaultKey, testSnapshot(time.Now(), 10))

	s, _, _ := c.Get(DefaultKey)
	s.Processor.Cores[0] = 99
	again, _, _ := c.Get(DefaultKey)
	assert.Equal(t, 10.0, again.Processor.Cores[0])
}

func TestCache_TierTwoBackfill(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newMemStore()
	store.entries[DefaultKey] = StoredEntry{
		Snapshot: testSnapshot(clock.Now(), 42),
		SavedAt:  clock.Now().Add(-10 * time.Second),
	}
	c := newTestCache(t, 2, store, clock)

	s, age, ok := c.Get(DefaultKey)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, age)
	assert.InDelta(t, 42.0, s.Processor.Overall, 1e-9)

	e, ok := c.Peek(DefaultKey)
	require.True(t, ok, "tier one back-filled")

	clock.Advance(5 * time.Second)
	_, age, _ = c.Get(DefaultKey)
	assert.Equal(t, 15*time.Second, age, "back-filled entry keeps aging")
	assert.Equal(t, clock.Now().Add(-15*time.Second), e.InsertedAt)
}

func TestCache_WriteThroughAndFlush(t *testing.T) {
	store := newMemStore()
	c := newTestCache(t, 2, store, clockwork.NewFakeClock())

	c.Put(DefaultKey, testSnapshot(time.Now(), 1))
	require.NoError(t, c.Flush(context.Background()))

	_, ok, err := store.Load(context.Background(), DefaultKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

// slowStore delays saves of snapshots whose overall cpu matches slowCPU.
type slowStore struct {
	*memStore
	slowCPU float64
	delay   time.Duration
}

func (s *slowStore) Save(ctx context.Context, key string, e StoredEntry) error {
	if e.Snapshot.Processor.Overall == s.slowCPU {
		time.Sleep(s.delay)
	}
	return s.memStore.Save(ctx, key, e)
}

func TestCache_TierTwoKeepsLatestPut(t *testing.T) {
	store := &slowStore{memStore: newMemStore(), slowCPU: 10, delay: 100 * time.Millisecond}
	c := newTestCache(t, 2, store, clockwork.NewFakeClock())

	c.Put(DefaultKey, testSnapshot(time.Now(), 10))
	c.Put(DefaultKey, testSnapshot(time.Now(), 90))
	require.NoError(t, c.Flush(context.Background()))

	e, ok, err := store.Load(context.Background(), DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 90.0, e.Snapshot.Processor.Overall, 1e-9)
}

func TestCache_FlushTimesOutOnStuckWrite(t *testing.T) {
	store := &slowStore{memStore: newMemStore(), slowCPU: 10, delay: 200 * time.Millisecond}
	c := newTestCache(t, 2, store, clockwork.NewFakeClock())
	c.Put(DefaultKey, testSnapshot(time.Now(), 10))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Flush(ctx), context.DeadlineExceeded)
	require.NoError(t, c.Flush(context.Background()))
}

func TestCache_TierTwoFailureNotPropagated(t *testing.T) {
	store := newMemStore()
	store.failErr = errors.New("disk full")
	c := newTestCache(t, 2, store, clockwork.NewFakeClock())

	c.Put(DefaultKey, testSnapshot(time.Now(), 1))
	c.Put(DefaultKey, testSnapshot(time.Now(), 2))
	require.NoError(t, c.Flush(context.Background()))
	store.mu.Lock()
	assert.GreaterOrEqual(t, store.saves, 1)
	store.mu.Unlock()

	s, _, ok := c.Get(DefaultKey)
	require.True(t, ok)
	assert.InDelta(t, 2.0, s.Processor.Overall, 1e-9)

	_, _, ok = c.Get("other")
	assert.False(t, ok, "tier-two read error is a miss")
}

func TestCache_InvalidateKeepsTierTwo(t *testing.T) {
	store := newMemStore()
	c := newTestCache(t, 2, store, clockwork.NewFakeClock())
	c.Put(DefaultKey, testSnapshot(time.Now(), 1))
	require.NoError(t, c.Flush(context.Background()))

	c.Invalidate(DefaultKey)
	_, ok := c.Peek(DefaultKey)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	_, _, ok = c.Get(DefaultKey)
	assert.True(t, ok, "served from tier two")
}

func TestFileStore_RoundTripAndCorruption(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, 10, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	saved := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, fs.Save(ctx, "host/latest", StoredEntry{Snapshot: testSnapshot(saved, 12), SavedAt: saved}))
	assert.Equal(t, 1, fs.Count())
	assert.FileExists(t, filepath.Join(dir, "host_latest.json"))

	e, ok, err := fs.Load(ctx, "host/latest")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, saved.Equal(e.SavedAt))
	assert.InDelta(t, 12.0, e.Snapshot.Processor.Overall, 1e-9)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0640))
	_, ok, err = fs.Load(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, filepath.Join(dir, "bad.json"))

	require.NoError(t, fs.Delete(ctx, "host/latest"))
	require.NoError(t, fs.Delete(ctx, "host/latest"))
	_, ok, _ = fs.Load(ctx, "host/latest")
	assert.False(t, ok)
}

func TestFileStore_DropsOldestWhenFull(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, 1, zaptest.NewLogger(t))
	require.NoError(t, err)

	big := make([]byte, 1024*1024)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.json"), big, 0640))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.json"), past, past))

	require.NoError(t, fs.Save(context.Background(), "new", StoredEntry{Snapshot: testSnapshot(time.Now(), 1), SavedAt: time.Now()}))
	assert.NoFileExists(t, filepath.Join(dir, "old.json"))
	assert.FileExists(t, filepath.Join(dir, "new.json"))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(RedisOptions{Addr: mr.Addr(), TTL: time.Minute})
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	_, ok, err := store.Load(ctx, DefaultKey)
	require.NoError(t, err)
	assert.False(t, ok)

	saved := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, store.Save(ctx, DefaultKey, StoredEntry{Snapshot: testSnapshot(saved, 33), SavedAt: saved}))
	assert.True(t, mr.Exists(DefaultRedisPrefix+DefaultKey))
	assert.Equal(t, time.Minute, mr.TTL(DefaultRedisPrefix+DefaultKey))

	e, ok, err := store.Load(ctx, DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 33.0, e.Snapshot.Processor.Overall, 1e-9)

	require.NoError(t, mr.Set(DefaultRedisPrefix+"broken", "garbage"))
	_, ok, err = store.Load(ctx, "broken")
	assert.Error(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Delete(ctx, DefaultKey))
	assert.False(t, mr.Exists(DefaultRedisPrefix+DefaultKey))
}

func TestCache_WithRedisTier(t *testing.T) {
	mr := miniredis.RunT(t)
	clock := clockwork.NewFakeClock()
	store := NewRedisStore(RedisOptions{Addr: mr.Addr()})

	writer := newTestCache(t, 1, store, clock)
	writer.Put(DefaultKey, testSnapshot(clock.Now(), 77))
	require.NoError(t, writer.Flush(context.Background()))

	clock.Advance(3 * time.Second)
	reader := newTestCache(t, 1, store, clock)
	s, age, ok := reader.Get(DefaultKey)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, age)
	assert.InDelta(t, 77.0, s.Processor.Overall, 1e-9)
	require.NoError(t, reader.Close(context.Background()))
}
