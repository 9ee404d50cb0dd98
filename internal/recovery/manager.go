// Package recovery decides what the collector does after a failed attempt.
// It keeps a retry policy, a circuit breaker and a fallback table per
// context key. A Manager is owned by a single goroutine; the mutex only
// guards read-only views taken from elsewhere.
package recovery

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	serrors "github.com/Guliveer/vitalis/sampler/internal/errors"
)

// ContextCollection is the context key used by the collector loop.
const ContextCollection = "collection"

// Action is what the caller should do next.
type Action int

const (
	ActionRetry Action = iota
	ActionUseFallback
	ActionLogAndContinue
	ActionShutdown
)

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionUseFallback:
		return "use_fallback"
	case ActionLogAndContinue:
		return "log_and_continue"
	case ActionShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision is the routing result for one failure.
type Decision struct {
	Action Action
	Kind   serrors.Kind
	// Delay is set for ActionRetry.
	Delay time.Duration
	// Attempt counts failed attempts in the current cycle.
	Attempt int
	// BreakerOpen is set when the breaker rejected the call.
	BreakerOpen bool
}

// Manager routes failures per context.
type Manager struct {
	mu sync.Mutex

	logger          *zap.Logger
	clock           clockwork.Clock
	breakerSettings BreakerSettings

	policies  map[string]RetryPolicy
	backoffs  map[string]*backoff.ExponentialBackOff
	attempts  map[string]int
	fallbacks map[string]map[serrors.Kind]Action
	breakers  map[string]*breaker
}

// NewManager creates a manager with no policies registered.
func NewManager(logger *zap.Logger, clock clockwork.Clock, settings BreakerSettings) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if settings.TripThreshold == 0 {
		settings.TripThreshold = 1
	}
	return &Manager{
		logger:          logger,
		clock:           clock,
		breakerSettings: settings,
		policies:        make(map[string]RetryPolicy),
		backoffs:        make(map[string]*backoff.ExponentialBackOff),
		attempts:        make(map[string]int),
		fallbacks:       make(map[string]map[serrors.Kind]Action),
		breakers:        make(map[string]*breaker),
	}
}

// RegisterPolicy sets the retry policy for ctxKey.
func (m *Manager) RegisterPolicy(ctxKey string, p RetryPolicy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("retry policy for %q: %w", ctxKey, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[ctxKey] = p
	m.backoffs[ctxKey] = p.NewBackOff(m.clock)
	return nil
}

// RegisterFallback overrides the routing of kind under ctxKey. Breaker
// rejections are not affected.
func (m *Manager) RegisterFallback(ctxKey string, kind serrors.Kind, action Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fallbacks[ctxKey] == nil {
		m.fallbacks[ctxKey] = make(map[serrors.Kind]Action)
	}
	m.fallbacks[ctxKey][kind] = action
}

// RegisterDefaults installs the collector's standard policy and treats an
// unsupported platform as fatal for collection.
func (m *Manager) RegisterDefaults(p RetryPolicy) error {
	if err := m.RegisterPolicy(ContextCollection, p); err != nil {
		return err
	}
	m.RegisterFallback(ContextCollection, serrors.KindUnsupportedPlatform, ActionShutdown)
	return nil
}

// BeginCycle resets the attempt budget for ctxKey.
func (m *Manager) BeginCycle(ctxKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[ctxKey] = 0
	if b, ok := m.backoffs[ctxKey]; ok {
		b.Reset()
	}
}

// RecordSuccess clears the attempt counter after a fully successful cycle.
func (m *Manager) RecordSuccess(ctxKey string) {
	m.BeginCycle(ctxKey)
}

// Execute runs fn through ctxKey's breaker. When the breaker rejects the
// call fn is not run and the error wraps ErrBreakerOpen.
func (m *Manager) Execute(ctxKey string, fn func() error) error {
	b := m.breaker(ctxKey)
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %v", ctxKey, ErrBreakerOpen, err)
	}

	m.mu.Lock()
	if isBreakerSuccess(err) {
		b.failures = 0
	} else {
		b.failures++
	}
	m.mu.Unlock()
	return err
}

// ClassifyAndRoute decides the next action for err under ctxKey. Retry
// decisions consume one attempt from the cycle's budget.
func (m *Manager) ClassifyAndRoute(err error, ctxKey string) Decision {
	kind := serrors.Dominant(err)
	d := Decision{Action: ActionLogAndContinue, Kind: kind}

	if errors.Is(err, ErrBreakerOpen) {
		d.Action = ActionUseFallback
		d.BreakerOpen = true
		return d
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if action, ok := m.fallbacks[ctxKey][kind]; ok {
		d.Action = action
		return d
	}

	switch {
	case kind == serrors.KindTimeout:
		p, ok := m.policies[ctxKey]
		if !ok {
			return d
		}
		m.attempts[ctxKey]++
		d.Attempt = m.attempts[ctxKey]
		if d.Attempt >= p.MaxAttempts {
			d.Action = ActionUseFallback
			return d
		}
		d.Action = ActionRetry
		d.Delay = m.backoffs[ctxKey].NextBackOff()
		if d.Delay == backoff.Stop {
			d.Delay = p.Delay(d.Attempt)
		}
	case serrors.IsTransport(kind):
		// The breaker already counted this attempt.
		d.Action = ActionLogAndContinue
	default:
		d.Action = ActionLogAndContinue
	}
	return d
}

// Breaker returns the current view of ctxKey's breaker.
func (m *Manager) Breaker(ctxKey string) BreakerState {
	b := m.breaker(ctxKey)
	m.mu.Lock()
	defer m.mu.Unlock()
	return b.state(m.breakerSettings.TripThreshold)
}

// Attempts returns the failed attempts recorded for ctxKey this cycle.
func (m *Manager) Attempts(ctxKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[ctxKey]
}

func (m *Manager) breaker(ctxKey string) *breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[ctxKey]
	if !ok {
		b = m.newBreaker(ctxKey)
		m.breakers[ctxKey] = b
	}
	return b
}
