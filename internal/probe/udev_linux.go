//go:build linux

package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// udevMulticastGroup receives events after udev has enriched them with
// ID_VENDOR/ID_MODEL; the kernel group (1) carries raw events without them.
const udevMulticastGroup = 2

const ueventBufferSize = 64 * 1024

// UdevSource subscribes to block-device hotplug events over netlink.
type UdevSource struct {
	match Match
	log   zerolog.Logger
}

// NewUdevSource filters events to devices matching m.
func NewUdevSource(m Match, log zerolog.Logger) *UdevSource {
	return &UdevSource{match: m, log: log.With().Str("component", "probe").Str("source", "udev").Logger()}
}

func (s *UdevSource) Name() string { return "udev" }

func (s *UdevSource) Subscribe(ctx context.Context) (<-chan Presence, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("netlink socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: udevMulticastGroup}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netlink bind: %w", err)
	}
	out := make(chan Presence, 8)
	go s.readLoop(ctx, fd, out)
	return out, nil
}

// readLoop polls the socket with a short timeout so cancellation is
// noticed promptly, and closes both the socket and out on exit.
func (s *UdevSource) readLoop(ctx context.Context, fd int, out chan<- Presence) {
	defer close(out)
	defer unix.Close(fd)
	set := newDeviceSet(s.match)
	buf := make([]byte, ueventBufferSize)
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := unix.Poll(fds, 250)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			s.log.Error().Err(err).Msg("netlink poll failed")
			return
		}
		if n == 0 {
			continue
		}
		for {
			m, _, err := unix.Recvfrom(fd, buf, 0)
			if err != nil {
				if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
					break
				}
				s.log.Error().Err(err).Msg("netlink read failed")
				return
			}
			if m <= 0 {
				break
			}
			evt := parseUEvent(buf[:m])
			p, changed := set.apply(evt)
			if !changed {
				continue
			}
			p.At = time.Now()
			s.log.Debug().Uint8("action", uint8(evt.action)).Str("node", evt.node()).Bool("present", p.Present).Msg("block event")
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}
}
