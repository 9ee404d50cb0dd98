package scheduler

import (
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sampler/internal/metrics"
)

// Loop states.
const (
	StateWaiting      = "waiting_for_tick"
	StateFetching     = "fetching"
	StatePublishing   = "publishing"
	StateShuttingDown = "shutting_down"
)

const (
	eventFetch    = "fetch"
	eventPublish  = "publish"
	eventWait     = "wait"
	eventShutdown = "shutdown"
)

var allStates = []string{StateWaiting, StateFetching, StatePublishing, StateShuttingDown}

func newLoopFSM(logger *zap.Logger) *fsm.FSM {
	return fsm.NewFSM(
		StateWaiting,
		fsm.Events{
			{Name: eventFetch, Src: []string{StateWaiting}, Dst: StateFetching},
			{Name: eventPublish, Src: []string{StateFetching}, Dst: StatePublishing},
			{Name: eventWait, Src: []string{StatePublishing, StateFetching}, Dst: StateWaiting},
			{Name: eventShutdown, Src: []string{StateWaiting, StateFetching, StatePublishing}, Dst: StateShuttingDown},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("Loop state", zap.String("from", e.Src), zap.String("to", e.Dst))
				metrics.SetLoopState(e.Dst, allStates)
			},
		},
	)
}

// transition fires event, ignoring events invalid in the current state.
// The loop's context is not passed on: fsm aborts transitions under a done
// context, and shutdown must still be recorded after cancellation.
func (s *Scheduler) transition(event string) {
	if err := s.fsm.Event(context.Background(), event); err != nil {
		s.logger.Debug("Ignored loop event",
			zap.String("event", event),
			zap.String("state", s.fsm.Current()),
			zap.Error(err))
	}
}
