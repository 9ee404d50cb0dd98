// Memory usage collector. Uses gopsutil for cross-platform memory metrics.
package collector

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"

	serrors "github.com/Guliveer/vitalis/sampler/internal/errors"
	"github.com/Guliveer/vitalis/sampler/internal/models"
)

// Memory gathers total, used and available bytes.
func (p *GopsutilProvider) Memory(ctx context.Context) (models.MemoryStats, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return models.MemoryStats{}, Classify("memory", err)
	}
	m := models.MemoryStats{
		Total:     v.Total,
		Used:      v.Used,
		Available: v.Available,
	}
	if err := m.Validate(); err != nil {
		return models.MemoryStats{}, serrors.Wrap(err, serrors.KindInvalidData, "memory")
	}
	return m, nil
}
