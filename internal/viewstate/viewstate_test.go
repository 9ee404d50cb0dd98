package viewstate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Guliveer/vitalis/sampler/internal/degradation"
	serrors "github.com/Guliveer/vitalis/sampler/internal/errors"
	"github.com/Guliveer/vitalis/sampler/internal/models"
	"github.com/Guliveer/vitalis/sampler/internal/updates"
)

func snapshot(cpu float64) models.SystemSnapshot {
	return models.NewSnapshot(time.Unix(1700000000, 0),
		models.NewProcessorStats([]float64{cpu}),
		models.MemoryStats{Total: 100, Used: 10, Available: 90},
		nil, models.HostInfo{Hostname: "h"})
}

func TestApply(t *testing.T) {
	var s State
	assert.False(t, s.HasSnapshot)

	s.Apply(updates.ConfigApplied{Interval: 2 * time.Second})
	assert.Equal(t, 2*time.Second, s.Interval)

	s.Apply(updates.SnapshotReady{Snapshot: snapshot(10), Level: degradation.LevelLive, Cycle: 1})
	require.True(t, s.HasSnapshot)
	assert.Equal(t, models.HealthExcellent, s.Health)
	assert.Equal(t, uint64(1), s.Cycle)

	s.Apply(updates.CollectionFailed{
		Error: updates.ErrorDescriptor{Kind: serrors.KindAPICallFailed, Level: degradation.LevelCached, Message: "boom"},
		Cycle: 2,
	})
	require.NotNil(t, s.LastError)
	assert.Equal(t, serrors.KindAPICallFailed, s.LastError.Kind)
	assert.Equal(t, degradation.LevelCached, s.Level)
	assert.Equal(t, 10.0, s.Snapshot.Processor.Overall, "snapshot kept across failures")

	s.Apply(updates.SnapshotReady{Snapshot: snapshot(95), Level: degradation.LevelCached, Stale: true, Age: 3 * time.Second, Cycle: 2})
	assert.True(t, s.Stale)
	assert.Equal(t, 3*time.Second, s.Age)
	assert.NotNil(t, s.LastError, "stale data keeps the error visible")

	s.Apply(updates.SnapshotReady{Snapshot: snapshot(20), Level: degradation.LevelLive, Cycle: 3})
	assert.Nil(t, s.LastError)
	assert.False(t, s.Stale)

	s.Apply(updates.CollectionFailed{Error: updates.ErrorDescriptor{Kind: serrors.KindUnsupportedPlatform}, Terminal: true})
	s.Apply(updates.ShutdownAck{Reason: "stopped"})
	assert.True(t, s.Terminal)
	assert.True(t, s.Stopped)
	assert.Equal(t, "stopped", s.StopReason)
}

func TestPump_NonBlocking(t *testing.T) {
	ch := updates.NewChannel(8)
	var s State
	assert.Equal(t, 0, s.Pump(ch))

	require.NoError(t, ch.Send(updates.ConfigApplied{Interval: time.Second}))
	require.NoError(t, ch.Send(updates.SnapshotReady{Snapshot: snapshot(10), Cycle: 1}))
	assert.Equal(t, 2, s.Pump(ch))
	assert.Equal(t, 0, ch.Len())
	assert.Equal(t, time.Second, s.Interval)
}

func TestConsumer_RunsUntilShutdownAck(t *testing.T) {
	ch := updates.NewChannel(8)
	c := NewConsumer(ch, zaptest.NewLogger(t))
	var changes int
	c.OnChange = func(State) { changes++ }

	done := make(chan State)
	go func() { done <- c.Run(context.Background()) }()

	require.NoError(t, ch.Send(updates.SnapshotReady{Snapshot: snapshot(10), Cycle: 1}))
	require.NoError(t, ch.Send(updates.ShutdownAck{Reason: "cancelled"}))
	ch.Close()

	select {
	case s := <-done:
		assert.True(t, s.Stopped)
		assert.True(t, s.HasSnapshot)
		assert.GreaterOrEqual(t, changes, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumer_StopsOnContext(t *testing.T) {
	ch := updates.NewChannel(8)
	c := NewConsumer(ch, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := c.Run(ctx)
	assert.False(t, s.Stopped)
}
