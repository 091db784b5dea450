//go:build gousb

package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"gpflash/pkg/types"
)

// USBProbe looks for the bootloader's USB VID:PID through libusb.
type USBProbe struct {
	mu  sync.Mutex
	ctx *gousb.Context
	vid gousb.ID
	pid gousb.ID
}

// NewUSBProbe opens a libusb context. Close releases it.
func NewUSBProbe(vid, pid uint16) (*USBProbe, error) {
	c, err := newUSBContext()
	if err != nil {
		return nil, err
	}
	return &USBProbe{ctx: c, vid: gousb.ID(vid), pid: gousb.ID(pid)}, nil
}

// newUSBContext converts libusb initialisation panics into errors.
func newUSBContext() (c *gousb.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to initialize USB: %v", r)
		}
	}()
	return gousb.NewContext(), nil
}

func (p *USBProbe) Name() string { return "usb" }

func (p *USBProbe) Present(ctx context.Context) (Presence, error) {
	if err := ctx.Err(); err != nil {
		return Presence{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var found *gousb.DeviceDesc
	devs, err := p.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == p.vid && desc.Product == p.pid {
			if found == nil {
				found = desc
			}
		}
		// never open: the descriptor is all we need
		return false
	})
	for _, d := range devs {
		_ = d.Close()
	}
	if found == nil {
		return Presence{}, err
	}
	return Presence{
		Present: true,
		Device: types.Device{
			VendorID: fmt.Sprintf("%04x", uint16(found.Vendor)),
			ModelID:  fmt.Sprintf("%04x", uint16(found.Product)),
			Node:     fmt.Sprintf("usb:%03d/%03d", found.Bus, found.Address),
			Source:   p.Name(),
		},
		At: time.Now(),
	}, nil
}

// Close releases the libusb context.
func (p *USBProbe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctx.Close()
}
