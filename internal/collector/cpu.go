// Processor usage collector. Uses gopsutil for cross-platform CPU metrics.
package collector

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/Guliveer/vitalis/sampler/internal/models"
)

// Processor gathers per-core utilization. With a zero sample window the
// figures are relative to the previous call, so the first reading after
// start may be coarse.
func (p *GopsutilProvider) Processor(ctx context.Context) (models.ProcessorStats, error) {
	cores, err := cpu.PercentWithContext(ctx, p.sampleWindow, true)
	if err != nil {
		return models.ProcessorStats{}, Classify("processor", err)
	}
	return models.NewProcessorStats(cores), nil
}
