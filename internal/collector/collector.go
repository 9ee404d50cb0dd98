// Package collector defines the Provider contract the sampler consumes and
// a gopsutil-backed implementation of it.
package collector

import (
	"context"

	"github.com/Guliveer/vitalis/sampler/internal/models"
)

// Provider answers the four independent metric queries. Implementations
// must honor ctx cancellation and should return errors classified with
// internal/errors so the recovery manager can route them.
type Provider interface {
	// Processor returns per-core utilization.
	Processor(ctx context.Context) (models.ProcessorStats, error)

	// Memory returns absolute memory counters.
	Memory(ctx context.Context) (models.MemoryStats, error)

	// Storage returns usage for every local volume. An empty list is valid.
	Storage(ctx context.Context) ([]models.Volume, error)

	// Host returns machine identity and uptime.
	Host(ctx context.Context) (models.HostInfo, error)
}
