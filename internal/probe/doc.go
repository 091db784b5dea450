// Package probe detects an RP2040 board sitting in its BOOTSEL
// (mass-storage) mode.
//
// Platforms differ in how presence is observed, so the package offers two
// shapes behind one contract:
//
//   - Poller: a bounded, repeatable "is it there now" check (mount path,
//     mounted volume label, Windows drive label, libusb VID:PID).
//   - EventSource: a stream of add/remove notifications (Linux udev
//     netlink), where a matching add is itself the presence signal.
//
// A Watcher drives either shape and turns the resulting level signal into
// presence edges: exactly one edge per absent→present transition. The
// orchestrator only ever consumes edges, so it never branches on platform.
//
// Build tags:
//
//   - gousb: enables USBProbe (cgo + libusb). Without the tag the
//     constructor returns a dependency-unavailable error.
package probe
