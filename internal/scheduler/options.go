package scheduler

import (
	"fmt"
	"time"

	"github.com/Guliveer/vitalis/sampler/internal/cache"
	"github.com/Guliveer/vitalis/sampler/internal/recovery"
)

// Interval bounds apply to configuration and to SetInterval requests.
const (
	MinInterval = 100 * time.Millisecond
	MaxInterval = 10 * time.Second
)

// CategoryPolicy decides what a failed category does to its cycle.
type CategoryPolicy int

const (
	// PerCategory fills a failed category from the last cached snapshot
	// and fails the cycle only when that is impossible.
	PerCategory CategoryPolicy = iota
	// WholeCycle fails the cycle on any category failure.
	WholeCycle
)

func (p CategoryPolicy) String() string {
	if p == WholeCycle {
		return "whole-cycle"
	}
	return "per-category"
}

// ParseCategoryPolicy accepts "per-category" and "whole-cycle".
func ParseCategoryPolicy(s string) (CategoryPolicy, error) {
	switch s {
	case "", "per-category":
		return PerCategory, nil
	case "whole-cycle":
		return WholeCycle, nil
	default:
		return PerCategory, fmt.Errorf("unknown category policy %q (want per-category or whole-cycle)", s)
	}
}

// Options is the loop's immutable configuration. Only the interval can
// change afterwards, through a SetInterval request.
type Options struct {
	Interval       time.Duration
	FetchTimeout   time.Duration
	CollectOnStart bool
	CategoryPolicy CategoryPolicy
	// CacheKey is where live snapshots are stored.
	CacheKey string
	// Context is the recovery context key.
	Context string
	// FlushTimeout bounds the tier-two flush on shutdown.
	FlushTimeout time.Duration
}

// DefaultOptions returns a one-second loop.
func DefaultOptions() Options {
	return Options{
		Interval:       time.Second,
		FetchTimeout:   5 * time.Second,
		CollectOnStart: true,
		CategoryPolicy: PerCategory,
		CacheKey:       cache.DefaultKey,
		Context:        recovery.ContextCollection,
		FlushTimeout:   2 * time.Second,
	}
}

// ValidateInterval checks d against the allowed bounds.
func ValidateInterval(d time.Duration) error {
	if d < MinInterval || d > MaxInterval {
		return fmt.Errorf("interval %s outside [%s, %s]", d, MinInterval, MaxInterval)
	}
	return nil
}

func (o Options) withDefaults() (Options, error) {
	def := DefaultOptions()
	if o.CacheKey == "" {
		o.CacheKey = def.CacheKey
	}
	if o.Context == "" {
		o.Context = def.Context
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = def.FlushTimeout
	}
	if err := ValidateInterval(o.Interval); err != nil {
		return o, err
	}
	return o, nil
}
