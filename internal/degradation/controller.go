// Package degradation tracks how far the sampler's output has fallen from
// live data and produces the best snapshot obtainable at each level.
package degradation

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sampler/internal/metrics"
	"github.com/Guliveer/vitalis/sampler/internal/models"
)

// Level is an ordinal from live data down to a static placeholder.
type Level int

const (
	LevelLive Level = iota
	LevelCached
	LevelSimulated
	LevelStatic
)

func (l Level) String() string {
	switch l {
	case LevelLive:
		return "live"
	case LevelCached:
		return "cached"
	case LevelSimulated:
		return "simulated"
	case LevelStatic:
		return "static"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Source maps a level onto the snapshot source served at that level.
func (l Level) Source() models.Source {
	switch l {
	case LevelCached:
		return models.SourceCached
	case LevelSimulated:
		return models.SourceSimulated
	case LevelStatic:
		return models.SourceStatic
	default:
		return models.SourceLive
	}
}

// SnapshotSource is the cache read path the controller falls back to.
type SnapshotSource interface {
	Get(key string) (models.SystemSnapshot, time.Duration, bool)
}

// DefaultHorizon caps how far simulated values are extrapolated.
const DefaultHorizon = 30 * time.Second

// Controller owns the degradation level. It is not safe for concurrent use.
type Controller struct {
	logger  *zap.Logger
	clock   clockwork.Clock
	cache   SnapshotSource
	key     string
	trend   *Trend
	horizon time.Duration

	level Level
}

// Option configures a Controller.
type Option func(*Controller)

// WithTrendSize sets how many live samples feed extrapolation.
func WithTrendSize(n int) Option {
	return func(c *Controller) { c.trend = NewTrend(n) }
}

// WithHorizon caps the extrapolation distance.
func WithHorizon(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.horizon = d
		}
	}
}

// NewController creates a controller at LevelLive reading fallbacks for key
// from cache. cache may be nil.
func NewController(logger *zap.Logger, clock clockwork.Clock, cache SnapshotSource, key string, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Controller{
		logger:  logger,
		clock:   clock,
		cache:   cache,
		key:     key,
		trend:   NewTrend(DefaultTrendSize),
		horizon: DefaultHorizon,
	}
	for _, opt := range opts {
		opt(c)
	}
	metrics.SetDegradationLevel(int(c.level))
	return c
}

// Current returns the level.
func (c *Controller) Current() Level { return c.level }

// Escalate moves one step toward Static. It is a no-op at Static.
func (c *Controller) Escalate() (Level, bool) {
	if c.level >= LevelStatic {
		return c.level, false
	}
	return c.set(c.level + 1), true
}

// Recover moves one step toward Live. It is a no-op at Live.
func (c *Controller) Recover() (Level, bool) {
	if c.level <= LevelLive {
		return c.level, false
	}
	return c.set(c.level - 1), true
}

func (c *Controller) set(l Level) Level {
	c.logger.Info("Degradation level changed",
		zap.Stringer("from", c.level),
		zap.Stringer("to", l))
	c.level = l
	metrics.SetDegradationLevel(int(l))
	return l
}

// Observe feeds a live snapshot into the trend.
func (c *Controller) Observe(s models.SystemSnapshot) {
	c.trend.Push(s)
}

// BestEffort returns the best snapshot obtainable at the current level and
// its age. A level whose data is missing falls through to the next one
// down, so the returned snapshot's Source may be lower than the level. At
// Live it behaves as Cached.
func (c *Controller) BestEffort() (models.SystemSnapshot, time.Duration) {
	level := c.level
	if level == LevelLive {
		level = LevelCached
	}

	if level == LevelCached {
		if s, age, ok := c.cached(); ok {
			return s.WithSource(models.SourceCached), age
		}
		level = LevelSimulated
	}

	if level == LevelSimulated {
		if s, age, ok := c.simulated(); ok {
			return s, age
		}
	}

	return models.StaticPlaceholder(c.clock.Now()), 0
}

func (c *Controller) cached() (models.SystemSnapshot, time.Duration, bool) {
	if c.cache != nil {
		if s, age, ok := c.cache.Get(c.key); ok {
			return s, age, true
		}
	}
	if s, ok := c.trend.Last(); ok {
		return s, c.clock.Since(s.CapturedAt), true
	}
	return models.SystemSnapshot{}, 0, false
}

// simulated extrapolates the last live snapshot along the observed trend.
// The returned age is that of the underlying live data.
func (c *Controller) simulated() (models.SystemSnapshot, time.Duration, bool) {
	base, age, ok := c.cached()
	if !ok {
		return models.SystemSnapshot{}, 0, false
	}
	now := c.clock.Now()
	elapsed := now.Sub(base.CapturedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	dt := elapsed
	if dt > c.horizon {
		dt = c.horizon
	}
	cpuSlope, memSlope := c.trend.Slopes()
	secs := dt.Seconds()

	cpuDelta := cpuSlope * secs
	cores := make([]float64, len(base.Processor.Cores))
	for i, v := range base.Processor.Cores {
		cores[i] = v + cpuDelta
	}
	proc := models.NewProcessorStats(cores)

	mem := base.Memory
	used := float64(mem.Used) + memSlope*secs
	switch {
	case used < 0:
		used = 0
	case used > float64(mem.Total):
		used = float64(mem.Total)
	}
	newUsed := uint64(used)
	if newUsed > mem.Used {
		diff := newUsed - mem.Used
		if diff > mem.Available {
			mem.Available = 0
		} else {
			mem.Available -= diff
		}
	} else {
		mem.Available += mem.Used - newUsed
		if mem.Available > mem.Total {
			mem.Available = mem.Total
		}
	}
	mem.Used = newUsed

	host := base.Host
	host.UptimeSeconds += uint64(elapsed / time.Second)

	s := models.NewSnapshot(now, proc, mem, base.Storage, host)
	s.Source = models.SourceSimulated
	return s, age, true
}
