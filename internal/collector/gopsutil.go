package collector

import (
	"time"

	"go.uber.org/zap"
)

// GopsutilProvider implements Provider against the local host.
type GopsutilProvider struct {
	logger       *zap.Logger
	sampleWindow time.Duration
	release      *releaseCache
}

// NewGopsutilProvider creates a provider. sampleWindow is how long the
// processor sample measures; zero compares against the previous call and
// never blocks.
func NewGopsutilProvider(logger *zap.Logger, sampleWindow time.Duration) *GopsutilProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GopsutilProvider{
		logger:       logger,
		sampleWindow: sampleWindow,
		release:      &releaseCache{lookup: lookupOSRelease},
	}
}

var _ Provider = (*GopsutilProvider)(nil)
