// Package viewstate owns what a front end shows: the latest snapshot, its
// health, the last reported error and the loop's effective settings. It is
// fed only through the update channel and never blocks on it.
package viewstate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sampler/internal/degradation"
	"github.com/Guliveer/vitalis/sampler/internal/models"
	"github.com/Guliveer/vitalis/sampler/internal/updates"
)

// State is the consumer-side view. The zero value is a state with no data.
type State struct {
	Snapshot    models.SystemSnapshot
	HasSnapshot bool
	Health      models.Health
	Level       degradation.Level
	Stale       bool
	Age         time.Duration
	Cycle       uint64

	// LastError is the most recent failure; cleared by a fresh live
	// snapshot.
	LastError *updates.ErrorDescriptor
	Terminal  bool

	Interval   time.Duration
	Stopped    bool
	StopReason string
}

// Apply folds one message into the state.
func (s *State) Apply(msg updates.Message) {
	switch m := msg.(type) {
	case updates.SnapshotReady:
		s.Snapshot = m.Snapshot
		s.HasSnapshot = true
		s.Health = m.Snapshot.Health()
		s.Level = m.Level
		s.Stale = m.Stale
		s.Age = m.Age
		s.Cycle = m.Cycle
		if !m.Stale && m.Level == degradation.LevelLive {
			s.LastError = nil
		}
	case updates.CollectionFailed:
		e := m.Error
		s.LastError = &e
		s.Level = e.Level
		s.Cycle = m.Cycle
		if m.Terminal {
			s.Terminal = true
		}
	case updates.ConfigApplied:
		s.Interval = m.Interval
	case updates.ShutdownAck:
		s.Stopped = true
		s.StopReason = m.Reason
	}
}

// Pump applies every message currently queued on ch and returns how many
// were applied. It never waits.
func (s *State) Pump(ch *updates.Channel) int {
	n := 0
	for {
		msg, ok := ch.TryRecv()
		if !ok {
			return n
		}
		s.Apply(msg)
		n++
	}
}

// Consumer pumps a channel into a State whenever it signals readiness and
// hands a copy to OnChange. It is the foreground reader of the binary.
type Consumer struct {
	ch       *updates.Channel
	logger   *zap.Logger
	state    State
	OnChange func(State)
}

// NewConsumer creates a consumer for ch.
func NewConsumer(ch *updates.Channel, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{ch: ch, logger: logger}
}

// State returns the current view. Only valid from the Run goroutine or after
// Run returned.
func (c *Consumer) State() State { return c.state }

// Run drains until the loop acknowledges shutdown or ctx is done.
func (c *Consumer) Run(ctx context.Context) State {
	for {
		if c.pump() && c.state.Stopped {
			return c.state
		}
		select {
		case <-ctx.Done():
			c.pump()
			return c.state
		case <-c.ch.Ready():
		}
	}
}

func (c *Consumer) pump() bool {
	n := c.state.Pump(c.ch)
	if n == 0 {
		return false
	}
	c.log()
	if c.OnChange != nil {
		c.OnChange(c.state)
	}
	return true
}

func (c *Consumer) log() {
	s := c.state
	if s.LastError != nil && !s.HasSnapshot {
		c.logger.Warn("No snapshot yet", zap.String("error", s.LastError.Message))
		return
	}
	if !s.HasSnapshot {
		return
	}
	fields := []zap.Field{
		zap.Uint64("cycle", s.Cycle),
		zap.Float64("cpu", s.Snapshot.Processor.Overall),
		zap.Float64("memory", s.Snapshot.Memory.UsagePercent()),
		zap.Stringer("health", s.Health),
		zap.Stringer("level", s.Level),
	}
	if s.Stale {
		fields = append(fields, zap.Bool("stale", true), zap.Duration("age", s.Age))
	}
	if s.LastError != nil {
		fields = append(fields, zap.Stringer("last_error", s.LastError.Kind))
	}
	c.logger.Info("Snapshot", fields...)
}
