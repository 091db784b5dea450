//go:build windows

package probe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/windows"

	"gpflash/pkg/types"
)

// DriveLabelProbe scans logical drives for a volume with the given label.
type DriveLabelProbe struct {
	label string
}

// NewDriveLabelProbe matches drives labeled label.
func NewDriveLabelProbe(label string) *DriveLabelProbe { return &DriveLabelProbe{label: label} }

func (p *DriveLabelProbe) Name() string { return "label" }

func (p *DriveLabelProbe) Present(ctx context.Context) (Presence, error) {
	roots, err := logicalDrives()
	if err != nil {
		return Presence{}, err
	}
	var errs error
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return Presence{}, err
		}
		label, err := volumeLabel(root)
		if err != nil {
			// empty card readers and optical drives report not-ready
			if !errors.Is(err, windows.ERROR_NOT_READY) {
				errs = multierror.Append(errs, err)
			}
			continue
		}
		if strings.EqualFold(label, p.label) {
			return Presence{
				Present: true,
				Device:  types.Device{Node: root, Source: p.Name()},
				At:      time.Now(),
			}, nil
		}
	}
	return Presence{}, errs
}

func logicalDrives() ([]string, error) {
	n, err := windows.GetLogicalDriveStrings(0, nil)
	if err != nil {
		return nil, err
	}
	buf := make([]uint16, n+1)
	n, err = windows.GetLogicalDriveStrings(uint32(len(buf)), &buf[0])
	if err != nil {
		return nil, err
	}
	var roots []string
	start := 0
	for i := 0; i < int(n); i++ {
		if buf[i] == 0 {
			if i > start {
				roots = append(roots, windows.UTF16ToString(buf[start:i]))
			}
			start = i + 1
		}
	}
	return roots, nil
}

func volumeLabel(root string) (string, error) {
	rootPtr, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return "", err
	}
	var name [windows.MAX_PATH + 1]uint16
	if err := windows.GetVolumeInformation(rootPtr, &name[0], uint32(len(name)), nil, nil, nil, nil, 0); err != nil {
		return "", err
	}
	return windows.UTF16ToString(name[:]), nil
}
