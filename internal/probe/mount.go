package probe

import (
	"context"
	"time"

	"gpflash/internal/common/fsutil"
	"gpflash/pkg/types"
)

// MountProbe reports presence when a fixed mount path exists, e.g.
// /Volumes/RPI-RP2 on macOS.
type MountProbe struct {
	path string
}

// NewMountProbe watches path.
func NewMountProbe(path string) *MountProbe { return &MountProbe{path: path} }

func (p *MountProbe) Name() string { return "mount" }

func (p *MountProbe) Present(ctx context.Context) (Presence, error) {
	if err := ctx.Err(); err != nil {
		return Presence{}, err
	}
	ok, err := fsutil.Exists(p.path)
	if err != nil || !ok {
		return Presence{}, err
	}
	return Presence{
		Present: true,
		Device:  types.Device{Node: p.path, Source: p.Name()},
		At:      time.Now(),
	}, nil
}
