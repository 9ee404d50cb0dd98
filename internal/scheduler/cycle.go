package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sampler/internal/collector"
	serrors "github.com/Guliveer/vitalis/sampler/internal/errors"
	"github.com/Guliveer/vitalis/sampler/internal/metrics"
	"github.com/Guliveer/vitalis/sampler/internal/models"
	"github.com/Guliveer/vitalis/sampler/internal/recovery"
	"github.com/Guliveer/vitalis/sampler/internal/updates"
)

// attempt is the result of one guarded fetch.
type attempt struct {
	sample   collector.Sample
	snapshot models.SystemSnapshot
	filled   []models.Category
}

// runCycle performs one collection cycle. It reports whether the loop must
// stop, with the terminal error when recovery asked for a shutdown.
func (s *Scheduler) runCycle(ctx context.Context) (bool, error) {
	start := s.clock.Now()
	s.cycle++
	s.transition(eventFetch)
	s.recovery.BeginCycle(s.opts.Context)

	log := s.logger.With(zap.Uint64("cycle", s.cycle))

	for {
		var a attempt
		err := s.recovery.Execute(s.opts.Context, func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a.sample = collector.Gather(ctx, s.provider, s.opts.FetchTimeout)
			if err := ctx.Err(); err != nil {
				return err
			}
			s.countCategoryErrors(a.sample)
			var aerr error
			a.snapshot, a.filled, aerr = s.assemble(a.sample)
			return aerr
		})
		if ctx.Err() != nil {
			log.Debug("Cycle abandoned on cancellation")
			return true, nil
		}

		if err == nil {
			s.transition(eventPublish)
			s.publishLive(a, log)
			if len(a.filled) > 0 {
				metrics.RecordCycle(metrics.OutcomePartial, s.clock.Since(start))
			} else {
				metrics.RecordCycle(metrics.OutcomeSuccess, s.clock.Since(start))
			}
			s.transition(eventWait)
			return false, nil
		}

		d := s.recovery.ClassifyAndRoute(err, s.opts.Context)
		if !d.BreakerOpen {
			s.lastFailure = d.Kind
		}
		log.Warn("Collection failed",
			zap.Stringer("kind", d.Kind),
			zap.Stringer("action", d.Action),
			zap.Int("attempt", d.Attempt),
			zap.Error(err))

		if d.Action == recovery.ActionRetry {
			if !s.sleep(ctx, d.Delay) {
				return true, nil
			}
			continue
		}

		s.transition(eventPublish)
		switch d.Action {
		case recovery.ActionUseFallback:
			s.publishFallback(err, d, log)
			metrics.RecordCycle(metrics.OutcomeFallback, s.clock.Since(start))

		case recovery.ActionShutdown:
			s.send(updates.CollectionFailed{
				Error:    s.describe(err, d),
				Cycle:    s.cycle,
				Terminal: true,
			})
			metrics.RecordCycle(metrics.OutcomeShutdown, s.clock.Since(start))
			log.Error("Collection cannot continue", zap.Error(err))
			return true, err

		default:
			s.send(updates.CollectionFailed{Error: s.describe(err, d), Cycle: s.cycle})
			metrics.RecordCycle(metrics.OutcomeLogged, s.clock.Since(start))
		}
		s.transition(eventWait)
		return false, nil
	}
}

// assemble builds the cycle's snapshot. Under PerCategory a failed category
// is taken from the freshest value seen for it, falling back to the cached
// snapshot; the cycle still fails when every category failed or there is
// nothing to fill from.
func (s *Scheduler) assemble(sample collector.Sample) (models.SystemSnapshot, []models.Category, error) {
	if !sample.Complete() {
		if s.opts.CategoryPolicy == WholeCycle || len(sample.Failed) == len(models.Categories) {
			return models.SystemSnapshot{}, nil, sample.Err()
		}
		base, ok := s.latest, s.haveLatest
		if !ok {
			base, _, ok = s.cache.Get(s.opts.CacheKey)
		}
		if !ok {
			return models.SystemSnapshot{}, nil, sample.Err()
		}
		return s.fill(sample, base)
	}

	return models.NewSnapshot(s.captureTime(), sample.Processor, sample.Memory, sample.Storage, sample.Host), nil, nil
}

func (s *Scheduler) fill(sample collector.Sample, base models.SystemSnapshot) (models.SystemSnapshot, []models.Category, error) {
	var filled []models.Category
	for _, c := range models.Categories {
		if _, failed := sample.Failed[c]; !failed {
			continue
		}
		filled = append(filled, c)
		switch c {
		case models.CategoryProcessor:
			sample.Processor = base.Processor
		case models.CategoryMemory:
			sample.Memory = base.Memory
		case models.CategoryStorage:
			sample.Storage = base.Storage
		case models.CategoryHost:
			sample.Host = base.Host
		}
	}
	snap := models.NewSnapshot(s.captureTime(), sample.Processor, sample.Memory, sample.Storage, sample.Host)
	snap.StaleCategories = filled
	return snap, filled, nil
}

// captureTime never goes backwards across cycles.
func (s *Scheduler) captureTime() time.Time {
	now := s.clock.Now()
	if now.Before(s.lastAt) {
		now = s.lastAt
	}
	s.lastAt = now
	return now
}

// publishLive handles a cycle that produced a snapshot. Every snapshot
// becomes the fill source for later partial cycles. A complete snapshot
// refreshes the cache and trend and steps degradation back toward live; a
// partial one is delivered with an informational failure and leaves the
// level alone.
func (s *Scheduler) publishLive(a attempt, log *zap.Logger) {
	s.latest, s.haveLatest = a.snapshot, true
	if len(a.filled) > 0 {
		cerr := a.sample.Err()
		s.send(updates.CollectionFailed{
			Error: updates.ErrorDescriptor{
				Kind:       serrors.Dominant(cerr),
				Context:    s.opts.Context,
				Message:    cerr.Error(),
				Level:      s.degradation.Current(),
				Categories: a.filled,
			},
			Cycle: s.cycle,
		})
		s.send(updates.SnapshotReady{
			Snapshot: a.snapshot,
			Level:    s.degradation.Current(),
			Stale:    true,
			Cycle:    s.cycle,
		})
		log.Info("Published partial snapshot", zap.Int("filled", len(a.filled)))
		return
	}

	s.cache.Put(s.opts.CacheKey, a.snapshot)
	s.degradation.Observe(a.snapshot)
	s.recovery.RecordSuccess(s.opts.Context)
	s.lastNotice = nil
	level, _ := s.degradation.Recover()

	s.send(updates.SnapshotReady{
		Snapshot: a.snapshot,
		Level:    level,
		Cycle:    s.cycle,
	})
	log.Debug("Published snapshot", zap.Float64("cpu", a.snapshot.Processor.Overall))
}

func (s *Scheduler) publishFallback(err error, d recovery.Decision, log *zap.Logger) {
	level, _ := s.degradation.Escalate()
	snap, age := s.degradation.BestEffort()

	desc := s.describe(err, d)
	n := notice{kind: desc.Kind, level: level}
	if d.BreakerOpen && s.lastNotice != nil && *s.lastNotice == n {
		log.Debug("Suppressed repeated failure while breaker open")
	} else {
		s.send(updates.CollectionFailed{Error: desc, Cycle: s.cycle})
	}
	if d.BreakerOpen {
		s.lastNotice = &n
	}

	s.send(updates.SnapshotReady{
		Snapshot: snap,
		Level:    level,
		Stale:    true,
		Age:      age,
		Cycle:    s.cycle,
	})
	log.Info("Published fallback snapshot",
		zap.Stringer("level", level),
		zap.Stringer("source", snap.Source),
		zap.Duration("age", age))
}

func (s *Scheduler) describe(err error, d recovery.Decision) updates.ErrorDescriptor {
	kind := d.Kind
	if d.BreakerOpen {
		kind = s.lastFailure
	}
	return updates.ErrorDescriptor{
		Kind:     kind,
		Context:  s.opts.Context,
		Message:  err.Error(),
		Level:    s.degradation.Current(),
		Attempts: s.recovery.Attempts(s.opts.Context),
	}
}

func (s *Scheduler) countCategoryErrors(sample collector.Sample) {
	for c, err := range sample.Failed {
		metrics.IncCategoryError(c.String(), serrors.KindOf(err).String())
	}
}

// sleep waits d on the loop clock. It returns false if ctx ended first.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return ctx.Err() == nil
	}
}
