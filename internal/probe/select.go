package probe

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// RP2040 BOOTSEL USB identity.
const (
	BootselVendorID  uint16 = 0x2e8a
	BootselProductID uint16 = 0x0003
)

// Watcher.Run releases the libusb context through Close.
var _ io.Closer = (*USBProbe)(nil)

// Mode names accepted by Config.Mode.
const (
	ModeAuto   = "auto"
	ModeMount  = "mount"
	ModeVolume = "volume"
	ModeLabel  = "label"
	ModeUdev   = "udev"
	ModeUSB    = "usb"
)

// Config selects and tunes the presence mechanism.
type Config struct {
	Mode         string
	VolumeLabel  string
	MountPath    string
	USBVendor    string
	USBModel     string
	PollInterval time.Duration
	Timeout      time.Duration
	Logger       zerolog.Logger
}

// New builds a Watcher for cfg.Mode. ModeAuto picks by host OS: drive
// labels on Windows, the fixed mount path on macOS, udev (falling back to
// volume polling) on Linux, volume polling elsewhere.
func New(cfg Config) (*Watcher, error) {
	return newForOS(cfg, runtime.GOOS)
}

func newForOS(cfg Config, goos string) (*Watcher, error) {
	wc := WatcherConfig{PollInterval: cfg.PollInterval, ProbeTimeout: cfg.Timeout, Logger: cfg.Logger}
	mode := cfg.Mode
	if mode == "" || mode == ModeAuto {
		mode = autoMode(goos)
	}
	switch mode {
	case ModeMount:
		return NewPollWatcher(NewMountProbe(cfg.MountPath), wc), nil
	case ModeVolume:
		return NewPollWatcher(NewVolumeProbe(cfg.VolumeLabel), wc), nil
	case ModeLabel:
		if goos != "windows" {
			return nil, fmt.Errorf("probe mode %q: %w", mode, errUnsupported)
		}
		return NewPollWatcher(NewDriveLabelProbe(cfg.VolumeLabel), wc), nil
	case ModeUdev:
		if goos != "linux" {
			return nil, fmt.Errorf("probe mode %q: %w", mode, errUnsupported)
		}
		wc.Fallback = NewVolumeProbe(cfg.VolumeLabel)
		src := NewUdevSource(Match{Vendor: cfg.USBVendor, Model: cfg.USBModel}, cfg.Logger)
		return NewEventWatcher(src, wc), nil
	case ModeUSB:
		p, err := NewUSBProbe(BootselVendorID, BootselProductID)
		if err != nil {
			return nil, fmt.Errorf("probe mode %q: %w", mode, err)
		}
		return NewPollWatcher(p, wc), nil
	default:
		return nil, fmt.Errorf("unknown probe mode %q", cfg.Mode)
	}
}

func autoMode(goos string) string {
	switch goos {
	case "windows":
		return ModeLabel
	case "darwin":
		return ModeMount
	case "linux":
		return ModeUdev
	default:
		return ModeVolume
	}
}
