// Package mmio routes physical-address loads and stores to registered
// device windows.
package mmio

import (
	"fmt"
	"log/slog"
)

// Handler services loads and stores for one registered window. The
// offset is relative to the window base. Handlers must tolerate any
// size in {1, 2, 4}.
type Handler interface {
	MMIORead(offset uint32, size int) uint32
	MMIOWrite(offset uint32, value uint32, size int)
}

// Region is a window registered in the physical address space.
type Region struct {
	Base    uint32
	Size    uint32
	Handler Handler
}

func (r *Region) contains(addr uint32) bool {
	return addr >= r.Base && addr-r.Base < r.Size
}

// Bus is the address-space router. The zero value is ready to use.
type Bus struct {
	regions []Region
	last    int // most recently hit region, -1 when invalid
}

// NewBus returns an empty router.
func NewBus() *Bus {
	return &Bus{last: -1}
}

// Register installs a window. At most one region may own a base
// address: registering a second region at the same base replaces the
// first with a warning.
func (b *Bus) Register(base, size uint32, h Handler) {
	for i := range b.regions {
		if b.regions[i].Base == base {
			slog.Warn("mmio: replacing region",
				"base", fmt.Sprintf("%#x", base), "size", fmt.Sprintf("%#x", size))
			b.regions[i] = Region{Base: base, Size: size, Handler: h}
			b.last = -1
			return
		}
	}

	b.regions = append(b.regions, Region{Base: base, Size: size, Handler: h})
	b.last = -1
}

// Unregister retires the window at base owned by h. It reports whether
// a matching registration existed.
func (b *Bus) Unregister(base, size uint32, h Handler) bool {
	for i := range b.regions {
		r := &b.regions[i]
		if r.Base == base && r.Size == size && r.Handler == h {
			b.regions = append(b.regions[:i], b.regions[i+1:]...)
			b.last = -1
			return true
		}
	}

	return false
}

// Regions returns a snapshot of the registered windows.
func (b *Bus) Regions() []Region {
	return append([]Region(nil), b.regions...)
}

func (b *Bus) find(addr uint32) *Region {
	if b.last >= 0 && b.last < len(b.regions) && b.regions[b.last].contains(addr) {
		return &b.regions[b.last]
	}

	for i := range b.regions {
		if b.regions[i].contains(addr) {
			b.last = i
			return &b.regions[i]
		}
	}

	return nil
}

// Read routes a load to the owning window. Unmapped addresses read as
// zero with a warning: guest software may legitimately probe holes in
// the address space.
func (b *Bus) Read(addr uint32, size int) uint32 {
	r := b.find(addr)
	if r == nil {
		slog.Warn("mmio: read from unmapped address",
			"addr", fmt.Sprintf("%#x", addr), "size", size)
		return 0
	}

	return r.Handler.MMIORead(addr-r.Base, size)
}

// Write routes a store to the owning window. Stores to unmapped
// addresses are dropped with a warning.
func (b *Bus) Write(addr uint32, value uint32, size int) {
	r := b.find(addr)
	if r == nil {
		slog.Warn("mmio: write to unmapped address",
			"addr", fmt.Sprintf("%#x", addr), "size", size)
		return
	}

	r.Handler.MMIOWrite(addr-r.Base, value, size)
}
