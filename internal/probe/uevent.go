package probe

import (
	"bytes"
	"encoding/binary"
	"strings"

	"gpflash/pkg/types"
)

// ueventAction is the udev/kernel action of a hotplug message.
type ueventAction uint8

const (
	ueventUnknown ueventAction = iota
	ueventAdd
	ueventRemove
	ueventChange
)

// uevent is a parsed netlink hotplug message.
type uevent struct {
	action    ueventAction
	devpath   string // DEVPATH
	subsystem string // SUBSYSTEM
	devtype   string // DEVTYPE (disk, partition)
	devname   string // DEVNAME (/dev/sda or sda)
	vendor    string // ID_VENDOR
	model     string // ID_MODEL
	vendorID  string // ID_VENDOR_ID
	modelID   string // ID_MODEL_ID
	label     string // ID_FS_LABEL
}

// libudev frames start with this prefix, followed by a fixed header whose
// properties_off/properties_len fields locate the NUL-separated properties.
var libudevPrefix = []byte("libudev\x00")

const (
	libudevMagic      = 0xfeedcafe
	libudevHeaderSize = 40
)

// parseUEvent accepts both libudev-framed messages (udev multicast group)
// and raw kernel messages ("add@/devpath\0KEY=VALUE\0...").
func parseUEvent(data []byte) uevent {
	if bytes.HasPrefix(data, libudevPrefix) {
		props, ok := libudevProperties(data)
		if !ok {
			return uevent{}
		}
		data = props
	}
	evt := uevent{}
	for _, field := range bytes.Split(data, []byte{0}) {
		if len(field) == 0 {
			continue
		}
		s := string(field)
		key, value, ok := strings.Cut(s, "=")
		if !ok {
			// kernel header line: action@devpath
			if action, devpath, found := strings.Cut(s, "@"); found {
				if evt.action == ueventUnknown {
					evt.action = parseAction(action)
				}
				if evt.devpath == "" {
					evt.devpath = devpath
				}
			}
			continue
		}
		switch key {
		case "ACTION":
			evt.action = parseAction(value)
		case "DEVPATH":
			evt.devpath = value
		case "SUBSYSTEM":
			evt.subsystem = value
		case "DEVTYPE":
			evt.devtype = value
		case "DEVNAME":
			evt.devname = value
		case "ID_VENDOR":
			evt.vendor = value
		case "ID_MODEL":
			evt.model = value
		case "ID_VENDOR_ID":
			evt.vendorID = value
		case "ID_MODEL_ID":
			evt.modelID = value
		case "ID_FS_LABEL":
			evt.label = value
		}
	}
	return evt
}

func libudevProperties(data []byte) ([]byte, bool) {
	if len(data) < libudevHeaderSize {
		return nil, false
	}
	if binary.BigEndian.Uint32(data[8:12]) != libudevMagic {
		return nil, false
	}
	off := binary.NativeEndian.Uint32(data[16:20])
	n := binary.NativeEndian.Uint32(data[20:24])
	end := uint64(off) + uint64(n)
	if off < libudevHeaderSize || end > uint64(len(data)) {
		return nil, false
	}
	return data[off:end], true
}

func parseAction(s string) ueventAction {
	switch s {
	case "add":
		return ueventAdd
	case "remove":
		return ueventRemove
	case "change":
		return ueventChange
	default:
		return ueventUnknown
	}
}

// node returns the device node, preferring DEVNAME.
func (e uevent) node() string {
	if e.devname != "" {
		if strings.HasPrefix(e.devname, "/") {
			return e.devname
		}
		return "/dev/" + e.devname
	}
	if e.devpath != "" {
		return "/dev/" + e.devpath[strings.LastIndexByte(e.devpath, '/')+1:]
	}
	return ""
}

func (e uevent) device() types.Device {
	return types.Device{
		Vendor:   e.vendor,
		Model:    e.model,
		VendorID: e.vendorID,
		ModelID:  e.modelID,
		Node:     e.node(),
		Source:   "udev",
	}
}

// Match selects the block devices that count as "the board in BOOTSEL".
type Match struct {
	Vendor string // ID_VENDOR, e.g. RPI
	Model  string // ID_MODEL, e.g. RP2
}

// matches reports whether evt describes the bootloader's whole-disk device.
func (m Match) matches(evt uevent) bool {
	if evt.subsystem != "block" || evt.devtype != "disk" {
		return false
	}
	return strings.EqualFold(evt.vendor, m.Vendor) && strings.EqualFold(evt.model, m.Model)
}

// deviceSet tracks matching nodes currently attached; presence is "any".
type deviceSet struct {
	match Match
	nodes map[string]Presence
}

func newDeviceSet(m Match) *deviceSet {
	return &deviceSet{match: m, nodes: make(map[string]Presence)}
}

// apply folds evt into the set and reports the resulting presence level and
// whether the level may have changed.
func (s *deviceSet) apply(evt uevent) (Presence, bool) {
	node := evt.node()
	switch evt.action {
	case ueventAdd, ueventChange:
		if !s.match.matches(evt) {
			return Presence{}, false
		}
		if _, ok := s.nodes[node]; ok && evt.action == ueventChange {
			return Presence{}, false
		}
		p := Presence{Present: true, Device: evt.device()}
		s.nodes[node] = p
		return p, true
	case ueventRemove:
		if _, ok := s.nodes[node]; !ok {
			return Presence{}, false
		}
		delete(s.nodes, node)
		for _, p := range s.nodes {
			return p, true
		}
		return Presence{}, true
	}
	return Presence{}, false
}
