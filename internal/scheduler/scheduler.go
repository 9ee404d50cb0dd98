// Package scheduler runs the collector loop: it waits for a tick, fans out
// to the metrics provider, applies recovery and degradation policy to the
// outcome and publishes the result on the update channel. The breaker and
// degradation state it drives are touched only from the loop goroutine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sampler/internal/cache"
	"github.com/Guliveer/vitalis/sampler/internal/collector"
	"github.com/Guliveer/vitalis/sampler/internal/degradation"
	serrors "github.com/Guliveer/vitalis/sampler/internal/errors"
	"github.com/Guliveer/vitalis/sampler/internal/models"
	"github.com/Guliveer/vitalis/sampler/internal/recovery"
	"github.com/Guliveer/vitalis/sampler/internal/updates"
)

// Deps are the collaborators the loop drives. Controls and Clock are
// optional.
type Deps struct {
	Provider    collector.Provider
	Cache       *cache.Cache
	Recovery    *recovery.Manager
	Degradation *degradation.Controller
	Channel     *updates.Channel
	Controls    *updates.Controls
	Clock       clockwork.Clock
	Logger      *zap.Logger
}

// Scheduler is the collector loop.
type Scheduler struct {
	provider    collector.Provider
	cache       *cache.Cache
	recovery    *recovery.Manager
	degradation *degradation.Controller
	channel     *updates.Channel
	controls    <-chan updates.Request
	clock       clockwork.Clock
	logger      *zap.Logger
	opts        Options

	fsm      *fsm.FSM
	interval time.Duration
	cycle    uint64
	lastAt   time.Time

	// latest holds the freshest value seen for each category, including
	// those from partial cycles.
	latest     models.SystemSnapshot
	haveLatest bool

	// lastFailure is the kind of the most recent attempted-call failure,
	// reported for breaker rejections.
	lastFailure serrors.Kind
	// lastNotice is the last CollectionFailed sent while the breaker was
	// open; repeats are suppressed until the level changes.
	lastNotice *notice
}

type notice struct {
	kind  serrors.Kind
	level degradation.Level
}

// New validates opts and wires the loop.
func New(deps Deps, opts Options) (*Scheduler, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if deps.Provider == nil || deps.Cache == nil || deps.Recovery == nil ||
		deps.Degradation == nil || deps.Channel == nil {
		return nil, errors.New("scheduler: provider, cache, recovery, degradation and channel are required")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Scheduler{
		provider:    deps.Provider,
		cache:       deps.Cache,
		recovery:    deps.Recovery,
		degradation: deps.Degradation,
		channel:     deps.Channel,
		clock:       deps.Clock,
		logger:      deps.Logger,
		opts:        opts,
		interval:    opts.Interval,
	}
	if deps.Controls != nil {
		s.controls = deps.Controls.C()
	}
	s.fsm = newLoopFSM(s.logger)
	return s, nil
}

// Handle tracks a running loop.
type Handle struct {
	done chan struct{}
	err  error
}

// Done is closed when the loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the loop exits and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Start runs the loop in a new goroutine until ctx is cancelled, a Shutdown
// request arrives or recovery decides to stop.
func (s *Scheduler) Start(ctx context.Context) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.err = s.Run(ctx)
	}()
	return h
}

// Run is the blocking form of Start. It returns nil when stopped by
// cancellation or request, and the terminal error when recovery shut the
// loop down.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Collector loop started",
		zap.Duration("interval", s.interval),
		zap.Stringer("category_policy", s.opts.CategoryPolicy))

	if s.opts.CollectOnStart {
		if stop, err := s.runCycle(ctx); stop {
			return s.stop(ctx, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return s.stop(ctx, nil)
		case req := <-s.controls:
			if stop := s.handleRequest(req, ticker); stop {
				return s.stop(ctx, nil)
			}
		case <-ticker.Chan():
			// Cancellation wins over a tick that raced it.
			if ctx.Err() != nil {
				return s.stop(ctx, nil)
			}
			if stop, err := s.runCycle(ctx); stop {
				return s.stop(ctx, err)
			}
		}
	}
}

// Interval returns the effective interval. Only meaningful from the loop
// goroutine or after the loop has exited.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// State returns the loop's current state.
func (s *Scheduler) State() string { return s.fsm.Current() }

// LastKnownGood reads the latest cached snapshot and its age. Safe to call
// from any goroutine.
func (s *Scheduler) LastKnownGood() (models.SystemSnapshot, time.Duration, bool) {
	return s.cache.Get(s.opts.CacheKey)
}

func (s *Scheduler) handleRequest(req updates.Request, ticker clockwork.Ticker) bool {
	switch r := req.(type) {
	case updates.SetInterval:
		if err := ValidateInterval(r.Interval); err != nil {
			s.logger.Warn("Rejected interval change", zap.Error(err))
		} else if r.Interval != s.interval {
			s.interval = r.Interval
			ticker.Reset(r.Interval)
			s.logger.Info("Interval changed", zap.Duration("interval", r.Interval))
		}
		s.send(updates.ConfigApplied{Interval: s.interval})
	case updates.Shutdown:
		s.logger.Info("Shutdown requested", zap.String("reason", r.Reason))
		return true
	default:
		s.logger.Warn("Unknown control request", zap.String("type", fmt.Sprintf("%T", req)))
	}
	return false
}

// stop flushes the cache, drops the live tier-one entry and sends the final
// ShutdownAck. The channel is closed afterwards.
func (s *Scheduler) stop(ctx context.Context, terminal error) error {
	s.transition(eventShutdown)

	reason := "stopped"
	switch {
	case terminal != nil:
		reason = terminal.Error()
	case ctx.Err() != nil:
		reason = "cancelled"
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), s.opts.FlushTimeout)
	defer cancel()
	if err := s.cache.Flush(flushCtx); err != nil {
		s.logger.Warn("Cache flush incomplete", zap.Error(err))
	}
	s.cache.Invalidate(s.opts.CacheKey)

	s.send(updates.ShutdownAck{Reason: reason})
	s.channel.Close()
	s.logger.Info("Collector loop stopped",
		zap.String("reason", reason),
		zap.Uint64("cycles", s.cycle))
	return terminal
}

func (s *Scheduler) send(msg updates.Message) {
	if err := s.channel.Send(msg); err != nil {
		s.logger.Debug("Discarded message", zap.String("type", fmt.Sprintf("%T", msg)), zap.Error(err))
	}
}
