// Host identity collector. Uses gopsutil host for hostname, kernel, uptime and
// boot time; OS name and version come from the release lookup.
package collector

import (
	"context"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/Guliveer/vitalis/sampler/internal/models"
)

// Host gathers machine identity and uptime.
func (p *GopsutilProvider) Host(ctx context.Context) (models.HostInfo, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return models.HostInfo{}, Classify("host", err)
	}
	// host.Info caches boot time; uptime is read fresh so it keeps moving.
	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		uptime = info.Uptime
	}

	rel := p.release.get(ctx)
	name := rel.Name
	if name == "" {
		name = info.Platform
	}
	version := rel.Version
	if version == unknownVersion && info.PlatformVersion != "" {
		version = info.PlatformVersion
	}

	return models.HostInfo{
		OSName:        name,
		OSVersion:     version,
		KernelVersion: info.KernelVersion,
		Hostname:      info.Hostname,
		UptimeSeconds: uptime,
		BootTime:      info.BootTime,
	}, nil
}
