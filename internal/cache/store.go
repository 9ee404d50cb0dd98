package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	serrors "github.com/Guliveer/vitalis/sampler/internal/errors"
	"github.com/Guliveer/vitalis/sampler/internal/models"
)

// StoredEntry is the tier-two representation of an entry. SavedAt is wall
// clock time since it has to mean something to another process.
type StoredEntry struct {
	Snapshot models.SystemSnapshot `json:"snapshot"`
	SavedAt  time.Time             `json:"saved_at"`
}

// Store is a slower, larger tier consulted on tier-one misses.
type Store interface {
	// Load returns the entry for key. A missing key is (zero, false, nil).
	Load(ctx context.Context, key string) (StoredEntry, bool, error)
	Save(ctx context.Context, key string, e StoredEntry) error
	Delete(ctx context.Context, key string) error
	Close() error
}

func encodeEntry(e StoredEntry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, serrors.Wrap(err, serrors.KindConversionFailed, "encode cache entry")
	}
	return data, nil
}

func decodeEntry(data []byte) (StoredEntry, error) {
	var e StoredEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return StoredEntry{}, serrors.Wrap(err, serrors.KindConversionFailed, "decode cache entry")
	}
	if err := e.Snapshot.Memory.Validate(); err != nil {
		return StoredEntry{}, serrors.Wrap(err, serrors.KindValidationFailed, "decode cache entry")
	}
	return e, nil
}
