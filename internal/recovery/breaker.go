package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	serrors "github.com/Guliveer/vitalis/sampler/internal/errors"
	"github.com/Guliveer/vitalis/sampler/internal/metrics"
)

// BreakerSettings configures every per-context breaker.
type BreakerSettings struct {
	// TripThreshold is the number of consecutive failed attempts that opens
	// the breaker.
	TripThreshold uint32
	// CoolDown is how long an open breaker rejects calls before letting a
	// single trial call through. It is measured in wall-clock time, not on the
	// Manager's clock, so a fake clock cannot shorten it.
	CoolDown time.Duration
}

// DefaultBreakerSettings trips after three failures and allows a trial call after 30s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{TripThreshold: 3, CoolDown: 30 * time.Second}
}

// BreakerPhase mirrors the breaker's state machine.
type BreakerPhase int

const (
	BreakerClosed BreakerPhase = iota
	BreakerHalfOpen
	BreakerOpen
)

func (p BreakerPhase) String() string {
	switch p {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "open"
	}
}

// BreakerState is a read-only view of one context's breaker.
type BreakerState struct {
	Phase               BreakerPhase
	ConsecutiveFailures uint32
	TripThreshold       uint32
	// OpenSince and TrialAfter are wall-clock times, matching CoolDown.
	OpenSince  time.Time
	TrialAfter time.Time
	// Trial is set while the breaker is half-open and the next call is
	// the single trial call.
	Trial bool
}

// ErrBreakerOpen is returned by Execute when the breaker rejected the call
// without running it.
var ErrBreakerOpen = errors.New("circuit breaker open")

type breaker struct {
	cb        *gobreaker.CircuitBreaker
	coolDown  time.Duration
	openSince time.Time
	// failures survives gobreaker's generation reset so the view keeps
	// the streak that opened the breaker.
	failures uint32
}

func (m *Manager) newBreaker(ctxKey string) *breaker {
	b := &breaker{coolDown: m.breakerSettings.CoolDown}
	threshold := m.breakerSettings.TripThreshold
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        ctxKey,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     m.breakerSettings.CoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				b.openSince = time.Now()
			}
			metrics.SetBreakerState(name, int(phaseOf(to)))
			m.logger.Sugar().Infof("Circuit breaker %s: %s -> %s", name, from, to)
		},
		IsSuccessful: isBreakerSuccess,
	})
	metrics.SetBreakerState(ctxKey, int(BreakerClosed))
	return b
}

// isBreakerSuccess counts only transport-class failures against the
// breaker. Cancellation is never the dependency's fault.
func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	return !serrors.IsTransport(serrors.Dominant(err))
}

func phaseOf(s gobreaker.State) BreakerPhase {
	switch s {
	case gobreaker.StateHalfOpen:
		return BreakerHalfOpen
	case gobreaker.StateOpen:
		return BreakerOpen
	default:
		return BreakerClosed
	}
}

func (b *breaker) state(threshold uint32) BreakerState {
	phase := phaseOf(b.cb.State())
	st := BreakerState{
		Phase:               phase,
		ConsecutiveFailures: b.failures,
		TripThreshold:       threshold,
		Trial:               phase == BreakerHalfOpen,
	}
	if phase != BreakerClosed {
		st.OpenSince = b.openSince
		st.TrialAfter = b.openSince.Add(b.coolDown)
	}
	return st
}
