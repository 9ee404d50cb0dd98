// Storage collector. Reports local volumes only.
package collector

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sampler/internal/models"
)

// skippedFSTypes are virtual and remote filesystems that never describe
// local storage.
var skippedFSTypes = map[string]bool{
	// Virtual / system filesystems
	"devfs":         true,
	"autofs":        true,
	"nullfs":        true,
	"tmpfs":         true,
	"sysfs":         true,
	"proc":          true,
	"procfs":        true,
	"devtmpfs":      true,
	"cgroup":        true,
	"cgroup2":       true,
	"overlay":       true,
	"squashfs":      true,
	"fuse.snapfuse": true,
	"nsfs":          true,
	"pstore":        true,
	"debugfs":       true,
	"tracefs":       true,
	"securityfs":    true,
	"configfs":      true,
	"fusectl":       true,
	"mqueue":        true,
	"hugetlbfs":     true,
	"binfmt_misc":   true,
	"efivarfs":      true,
	"bpf":           true,
	"ramfs":         true,

	// Network / remote filesystems
	"nfs":           true,
	"nfs4":          true,
	"cifs":          true,
	"smbfs":         true,
	"fuse.sshfs":    true,
	"fuse.rclone":   true,
	"9p":            true,
	"afs":           true,
	"ncpfs":         true,
	"glusterfs":     true,
	"lustre":        true,
	"ceph":          true,
	"fuse.ceph":     true,
	"gpfs":          true,
	"pvfs2":         true,
	"fuse.s3fs":     true,
	"fuse.gcsfuse":  true,
	"fuse.blobfuse": true,
	"davfs2":        true,
}

var systemMountPrefixes = []string{
	"/System/Volumes/",
	"/private/var/vm",
	"/snap/",
}

func isSystemMount(mount string) bool {
	for _, prefix := range systemMountPrefixes {
		if strings.HasPrefix(mount, prefix) {
			return true
		}
	}
	return false
}

// Storage lists usage per local volume in partition table order. Volumes
// that cannot be queried are skipped; only a failure to list partitions is
// reported.
func (p *GopsutilProvider) Storage(ctx context.Context) ([]models.Volume, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, Classify("storage", err)
	}

	volumes := make([]models.Volume, 0, len(partitions))
	seen := make(map[string]bool, len(partitions))
	for _, part := range partitions {
		if skippedFSTypes[part.Fstype] || isSystemMount(part.Mountpoint) || seen[part.Mountpoint] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, Classify("storage", err)
		}
		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil {
			p.logger.Debug("Skipping inaccessible volume",
				zap.String("mount", part.Mountpoint),
				zap.Error(err))
			continue
		}
		if usage.Total == 0 {
			continue
		}
		seen[part.Mountpoint] = true
		volumes = append(volumes, models.Volume{
			Name:      volumeName(part.Device, part.Mountpoint),
			Mount:     part.Mountpoint,
			Fs:        part.Fstype,
			Total:     usage.Total,
			Available: usage.Free,
		})
	}
	return volumes, nil
}

func volumeName(device, mount string) string {
	if device == "" {
		return mount
	}
	if i := strings.LastIndexAny(device, `/\`); i >= 0 && i < len(device)-1 {
		return device[i+1:]
	}
	return device
}
