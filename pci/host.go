package pci

import (
	"fmt"
	"log/slog"
)

// DevFun folds a device number and a function number into the key used
// to register and look up devices on a bus.
func DevFun(dev, fun int) int {
	return dev<<3 | fun
}

// Host is the registry side of the configuration-space bus: a table of
// functions indexed by dev/fun, plus the list of devices participating
// in legacy I/O space broadcasts.
type Host struct {
	devs   map[int]Device
	ioDevs []IODevice
}

// NewHost returns an empty host bus.
func NewHost() *Host {
	return &Host{devs: make(map[int]Device)}
}

// Register installs dev at the given dev/fun key. An existing
// registration at the same key is replaced with a warning.
func (h *Host) Register(devFun int, dev Device) {
	if _, ok := h.devs[devFun]; ok {
		slog.Warn("pci: replacing registered device", "devfun", fmt.Sprintf("%#02x", devFun))
	}

	h.devs[devFun] = dev
}

// Find looks up the function at bus/dev/fun. Only bus 0 is populated;
// unpopulated slots report not-found rather than failing.
func (h *Host) Find(bus, dev, fun uint8) (Device, bool) {
	if bus != 0 {
		return nil, false
	}

	d, ok := h.devs[DevFun(int(dev), int(fun))]
	return d, ok
}

// AttachIO adds dev to the set of devices offered I/O space accesses.
func (h *Host) AttachIO(dev IODevice) {
	h.ioDevs = append(h.ioDevs, dev)
}

// IORead offers the access to each attached I/O device in attachment
// order until one claims it.
func (h *Host) IORead(offset uint32, size int) (uint32, bool) {
	for _, d := range h.ioDevs {
		if v, ok := d.IORead(offset, size); ok {
			return v, true
		}
	}

	return 0, false
}

// IOWrite offers the access to each attached I/O device in attachment
// order until one claims it.
func (h *Host) IOWrite(offset uint32, value uint32, size int) bool {
	for _, d := range h.ioDevs {
		if d.IOWrite(offset, value, size) {
			return true
		}
	}

	return false
}

// IOReadBroadcast is IORead with unclaimed accesses degraded to a
// warning: guest software may legitimately probe unimplemented ports.
func (h *Host) IOReadBroadcast(offset uint32, size int) uint32 {
	v, ok := h.IORead(offset, size)
	if !ok {
		slog.Warn("pci: read from unmapped I/O space",
			"offset", fmt.Sprintf("%#x", offset), "size", size)
	}

	return v
}

// IOWriteBroadcast is IOWrite with unclaimed accesses degraded to a
// warning. The write is dropped.
func (h *Host) IOWriteBroadcast(offset uint32, value uint32, size int) {
	if !h.IOWrite(offset, value, size) {
		slog.Warn("pci: write to unmapped I/O space",
			"offset", fmt.Sprintf("%#x", offset), "size", size)
	}
}
