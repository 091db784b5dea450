package probe

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"gpflash/pkg/types"
)

// partitionsFunc lists mounted partitions; replaced in tests.
type partitionsFunc func(ctx context.Context, all bool) ([]disk.PartitionStat, error)

// VolumeProbe enumerates mounted partitions and matches the last element of
// each mount point against the volume label (e.g. /media/pi/RPI-RP2).
// It works wherever the desktop auto-mounts removable media by label.
type VolumeProbe struct {
	label      string
	partitions partitionsFunc
}

// NewVolumeProbe matches mount points named label.
func NewVolumeProbe(label string) *VolumeProbe {
	return &VolumeProbe{label: label, partitions: disk.PartitionsWithContext}
}

func (p *VolumeProbe) Name() string { return "volume" }

func (p *VolumeProbe) Present(ctx context.Context) (Presence, error) {
	parts, err := p.partitions(ctx, false)
	if err != nil && len(parts) == 0 {
		return Presence{}, err
	}
	for _, part := range parts {
		if part.Mountpoint == "" {
			continue
		}
		if strings.EqualFold(filepath.Base(part.Mountpoint), p.label) {
			return Presence{
				Present: true,
				Device:  types.Device{Node: part.Device, Source: p.Name()},
				At:      time.Now(),
			}, nil
		}
	}
	// partial enumeration without a match is still an unknown, not an absence
	return Presence{}, err
}
