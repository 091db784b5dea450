//go:build !gousb

package probe

// This file provides a no-CGO stub for the libusb probe. It is compiled when
// the 'gousb' build tag is NOT set, keeping default builds CGO-free.

import "context"

// USBProbe is a stub that refuses to run without the 'gousb' build tag.
type USBProbe struct{}

// NewUSBProbe fails fast: libusb support is not available in this build.
func NewUSBProbe(vid, pid uint16) (*USBProbe, error) {
	return nil, dependencyUnavailableError{msg: "usb probe not built (missing 'gousb' build tag)"}
}

func (p *USBProbe) Name() string { return "usb" }

func (p *USBProbe) Present(ctx context.Context) (Presence, error) {
	return Presence{}, dependencyUnavailableError{msg: "usb probe not built (missing 'gousb' build tag)"}
}

func (p *USBProbe) Close() error { return nil }
