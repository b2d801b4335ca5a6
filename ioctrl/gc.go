package ioctrl

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/c35s/macio/mmio"
	"github.com/c35s/macio/pci"
)

// Router is the address-space registration contract the hub uses to
// (re)install its window when BAR0 moves.
type Router interface {
	Register(base, size uint32, h mmio.Handler)
	Unregister(base, size uint32, h mmio.Handler) bool
}

// Config wires the hub to its already-constructed peripherals. Units
// are injected, never looked up: the hub holds non-owning references. A
// nil unit leaves its slot unassigned, so accesses log a warning and
// read as zero.
type Config struct {
	SCSI     Unit
	Ethernet Unit
	Serial   Unit
	Sound    Unit
	Cuda     Unit
	NVRAM    NVRAM
	SoundDMA Unit

	// Raise signals the CPU external interrupt line.
	Raise func()

	// Router receives the hub's window registration on BAR0 changes.
	Router Router
}

// slotEntry maps a device-space subdevice index to its unit and the
// shift/mask transform turning a window offset into the unit's register
// index. The transform is configuration, not code: adding a peripheral
// role is a table change.
type slotEntry struct {
	shift uint32
	mask  uint32
	unit  Unit
}

// GrandCentral is the bus dispatch hub. It decodes every access to its
// 128 KiB window into the interrupt, DMA or device register space and
// forwards it, and it answers on the configuration-space bus with a
// relocatable BAR0 declaring the window.
type GrandCentral struct {
	pci.Header

	ic     *IntCtrl
	router Router

	slots [16]slotEntry
	dma   [16]slotEntry

	nvram   NVRAM
	nvramHi uint32

	base uint32
}

// New builds a hub around the injected peripherals. The returned hub
// has no window until firmware writes BAR0 (see NotifyBARChange).
func New(cfg Config) *GrandCentral {
	gc := &GrandCentral{
		ic:     NewIntCtrl(cfg.Raise),
		router: cfg.Router,
		nvram:  cfg.NVRAM,
	}

	gc.Header = pci.Header{
		VendorID:  vendorApple,
		DeviceID:  deviceGC,
		ClassRev:  0xFF000002,
		CacheLnSz: 8,
		BAR0Mask:  0xFFFE0000, // 128 KiB of memory-mapped I/O space
	}
	gc.Header.BARChanged = gc.NotifyBARChange

	if cfg.SCSI != nil {
		gc.slots[0] = slotEntry{shift: 4, mask: 0xF, unit: cfg.SCSI}
	}

	if cfg.Ethernet != nil {
		gc.slots[1] = slotEntry{shift: 4, mask: 0x1F, unit: cfg.Ethernet}
	}

	if cfg.Serial != nil {
		// index 2 carries the 68k-compatible addressing of the serial
		// controller, index 3 the MacRISC addressing; both reach the
		// same unit.
		gc.slots[2] = slotEntry{shift: 0, mask: 0xFFF, unit: &serialCompat{escc: cfg.Serial}}
		gc.slots[3] = slotEntry{shift: 4, mask: 0xF, unit: cfg.Serial}
	}

	if cfg.Sound != nil {
		gc.slots[4] = slotEntry{shift: 0, mask: 0xFF, unit: cfg.Sound}
	}

	if cfg.Cuda != nil {
		// the VIA-CUDA register file spans windows 6 and 7 at
		// 512-byte strides
		gc.slots[6] = slotEntry{shift: 9, mask: 0xF, unit: cfg.Cuda}
		gc.slots[7] = gc.slots[6]
	}

	gc.slots[0xA] = slotEntry{unit: boardReg1{}}

	if cfg.NVRAM != nil {
		gc.slots[0xD] = slotEntry{unit: (*nvramHiPort)(gc)}
		gc.slots[0xF] = slotEntry{shift: 4, mask: 0x1F, unit: (*nvramDataPort)(gc)}
	}

	if cfg.SoundDMA != nil {
		gc.dma[8] = slotEntry{shift: 0, mask: 0xFF, unit: cfg.SoundDMA}
	}

	return gc
}

// IntCtrl exposes the hub's interrupt aggregator for wiring peripheral
// lines.
func (gc *GrandCentral) IntCtrl() *IntCtrl {
	return gc.ic
}

// Base returns the window's current base address, 0 if unmapped.
func (gc *GrandCentral) Base() uint32 {
	return gc.base
}

// NotifyBARChange re-registers the hub's window after a configuration
// space write moved a base address register. Only BAR0 is decoded. The
// previous window, if any, is retired before the new one is installed.
func (gc *GrandCentral) NotifyBARChange(barNum int) {
	if barNum != 0 {
		return
	}

	base := gc.Header.BAR0 & 0xFFFFFFF0
	if base == gc.base {
		return
	}

	if gc.base != 0 {
		slog.Warn("gc: retiring old I/O window", "base", fmt.Sprintf("%#x", gc.base))
		if gc.router != nil {
			gc.router.Unregister(gc.base, WindowSize, gc)
		}
	}

	gc.base = base
	if gc.router != nil {
		gc.router.Register(gc.base, WindowSize, gc)
	}

	slog.Info("gc: base address set", "base", fmt.Sprintf("%#x", gc.base))
}

// MMIORead decodes a load from the hub's window.
func (gc *GrandCentral) MMIORead(offset uint32, size int) uint32 {
	switch {
	case offset&devSpaceBit != 0:
		return gc.deviceRead(offset, size)

	case offset&dmaSpaceBit != 0:
		return gc.dmaRead(offset, size)

	default:
		return gc.intRead(offset, size)
	}
}

// MMIOWrite decodes a store to the hub's window.
func (gc *GrandCentral) MMIOWrite(offset uint32, value uint32, size int) {
	switch {
	case offset&devSpaceBit != 0:
		gc.deviceWrite(offset, value, size)

	case offset&dmaSpaceBit != 0:
		gc.dmaWrite(offset, value, size)

	default:
		gc.intWrite(offset, value, size)
	}
}

func (gc *GrandCentral) deviceRead(offset uint32, size int) uint32 {
	n := (offset >> 12) & 0xF
	e := &gc.slots[n]
	if e.unit == nil {
		slog.Warn("gc: read from unimplemented subdevice registers", "subdev", n)
		return 0
	}

	return e.unit.RegRead((offset>>e.shift)&e.mask, size)
}

func (gc *GrandCentral) deviceWrite(offset uint32, value uint32, size int) {
	n := (offset >> 12) & 0xF
	e := &gc.slots[n]
	if e.unit == nil {
		slog.Warn("gc: write to unimplemented subdevice registers", "subdev", n)
		return
	}

	e.unit.RegWrite((offset>>e.shift)&e.mask, value, size)
}

func (gc *GrandCentral) dmaRead(offset uint32, size int) uint32 {
	n := (offset >> 12) & 0xF
	e := &gc.dma[n]
	if e.unit == nil {
		slog.Warn("gc: read from unimplemented DMA registers",
			"addr", fmt.Sprintf("%#x", gc.base+offset))
		return 0
	}

	return e.unit.RegRead((offset>>e.shift)&e.mask, size)
}

func (gc *GrandCentral) dmaWrite(offset uint32, value uint32, size int) {
	n := (offset >> 12) & 0xF
	e := &gc.dma[n]
	if e.unit == nil {
		slog.Warn("gc: write to unimplemented DMA registers",
			"addr", fmt.Sprintf("%#x", gc.base+offset))
		return
	}

	e.unit.RegWrite((offset>>e.shift)&e.mask, value, size)
}

func (gc *GrandCentral) intRead(offset uint32, size int) uint32 {
	switch offset {
	case RegIntMask:
		return gc.ic.Mask()

	case RegIntLevels:
		return gc.ic.Levels()

	case RegIntEvents:
		return gc.ic.Events()
	}

	slog.Warn("gc: read from unimplemented interrupt register",
		"addr", fmt.Sprintf("%#x", gc.base+offset))
	return 0
}

func (gc *GrandCentral) intWrite(offset uint32, value uint32, size int) {
	switch offset {
	case RegIntMask:
		gc.ic.WriteMask(value)

	case RegIntClear:
		gc.ic.WriteClear(value)

	default:
		slog.Warn("gc: write to unimplemented interrupt register",
			"addr", fmt.Sprintf("%#x", gc.base+offset))
	}
}

// serialCompat carries the inner compatible-vs-MacRISC addressing split
// of subdevice index 2: offsets below 16 in each 256-byte page use the
// packed 68k register spacing, the rest fall through to the MacRISC
// spacing.
type serialCompat struct {
	escc Unit
}

func (s *serialCompat) RegRead(off uint32, size int) uint32 {
	if off&0xFF < 16 {
		return s.escc.RegRead((off>>1)&0xF, size)
	}

	return s.escc.RegRead((off>>4)&0xF, size)
}

func (s *serialCompat) RegWrite(off uint32, value uint32, size int) {
	if off&0xFF < 16 {
		s.escc.RegWrite((off>>1)&0xF, value, size)
		return
	}

	s.escc.RegWrite((off>>4)&0xF, value, size)
}

// boardReg1 is the read-only board identification register behind
// subdevice index 0xA.
type boardReg1 struct{}

func (boardReg1) RegRead(reg uint32, size int) uint32 {
	return bits.ReverseBytes32(0x100)
}

func (boardReg1) RegWrite(reg uint32, value uint32, size int) {
	slog.Warn("gc: write to read-only board register", "value", fmt.Sprintf("%#x", value))
}

// nvramHiPort is the write-only high address latch behind subdevice
// index 0xD. The latch selects the 32-byte NVRAM page addressed by the
// data port.
type nvramHiPort GrandCentral

func (p *nvramHiPort) RegRead(reg uint32, size int) uint32 {
	slog.Warn("gc: read from write-only NVRAM address latch")
	return 0
}

func (p *nvramHiPort) RegWrite(reg uint32, value uint32, size int) {
	switch size {
	case 4:
		p.nvramHi = bits.ReverseBytes32(value)
	case 2:
		p.nvramHi = uint32(bits.ReverseBytes16(uint16(value)))
	default:
		p.nvramHi = value
	}
}

// nvramDataPort is the byte-wide NVRAM data window behind subdevice
// index 0xF.
type nvramDataPort GrandCentral

func (p *nvramDataPort) RegRead(reg uint32, size int) uint32 {
	return uint32(p.nvram.Load(p.nvramHi<<5 + reg))
}

func (p *nvramDataPort) RegWrite(reg uint32, value uint32, size int) {
	p.nvram.Store(p.nvramHi<<5+reg, uint8(value))
}
