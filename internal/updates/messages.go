// Package updates carries messages from the collector loop to the
// presentation-state owner, and control requests back the other way.
package updates

import (
	"time"

	"github.com/Guliveer/vitalis/sampler/internal/degradation"
	serrors "github.com/Guliveer/vitalis/sampler/internal/errors"
	"github.com/Guliveer/vitalis/sampler/internal/models"
)

// Message is one of SnapshotReady, CollectionFailed, ConfigApplied or
// ShutdownAck.
type Message interface {
	isMessage()
}

// SnapshotReady delivers a snapshot. Stale is set when any of it did not
// come from this cycle's live fetch.
type SnapshotReady struct {
	Snapshot models.SystemSnapshot
	Level    degradation.Level
	Stale    bool
	// Age of the underlying data; zero for live snapshots.
	Age   time.Duration
	Cycle uint64
}

// ErrorDescriptor summarizes a failed or partially failed cycle.
type ErrorDescriptor struct {
	Kind       serrors.Kind
	Context    string
	Message    string
	Level      degradation.Level
	Attempts   int
	Categories []models.Category
}

// CollectionFailed reports a failure. When Terminal is set no further
// snapshots follow.
type CollectionFailed struct {
	Error    ErrorDescriptor
	Cycle    uint64
	Terminal bool
}

// ConfigApplied acknowledges a new effective interval.
type ConfigApplied struct {
	Interval time.Duration
}

// ShutdownAck is always the last message the loop sends.
type ShutdownAck struct {
	Reason string
}

func (SnapshotReady) isMessage()    {}
func (CollectionFailed) isMessage() {}
func (ConfigApplied) isMessage()    {}
func (ShutdownAck) isMessage()      {}
