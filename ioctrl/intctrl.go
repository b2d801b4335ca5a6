package ioctrl

import (
	"fmt"
	"math/bits"
)

// IntCtrl aggregates level-triggered interrupt sources into a single
// CPU interrupt line, with masking and acknowledge-by-write-mask
// semantics. Only the 68k interrupt emulation mode is modeled; a
// request arriving in native mode is an emulation gap and fatal.
//
// Register values cross the bus in big-endian byte order; internal
// state is kept native and swapped at the register interface.
type IntCtrl struct {
	mask   uint32
	levels uint32
	events uint32

	raise func()
}

// NewIntCtrl returns an aggregator that calls raise each time the
// masked pending events become non-zero. The signal is level-style: it
// may fire repeatedly, and no lowering call exists. The CPU side
// extracts edges if it needs them.
func NewIntCtrl(raise func()) *IntCtrl {
	return &IntCtrl{raise: raise}
}

// SourceBit returns the events/levels/mask bit wired to src. An
// unknown source is an emulation gap.
func SourceBit(src IntSrc) uint32 {
	switch src {
	case SrcCuda:
		return 1 << 18

	case SrcSCSI:
		return 1 << 12

	case SrcSwim3:
		return 1 << 19

	default:
		panic(fmt.Sprintf("ioctrl: unknown interrupt source %v", src))
	}
}

// DMASourceBit is the DMA counterpart of SourceBit. No DMA interrupt
// source is modeled.
func DMASourceBit(src IntSrc) uint32 {
	panic(fmt.Sprintf("ioctrl: DMA interrupt source %v not implemented", src))
}

// RequestInterrupt records a line transition for the source bit irqID
// and re-evaluates the CPU interrupt line.
func (ic *IntCtrl) RequestInterrupt(irqID uint32, asserted bool) {
	if ic.mask&intModeEmulated == 0 {
		panic("ioctrl: native interrupt mode not implemented")
	}

	ic.events |= irqID
	ic.events &= ic.mask

	if asserted {
		ic.levels |= irqID
	} else {
		ic.levels &^= irqID
	}

	if ic.events != 0 && ic.raise != nil {
		ic.raise()
	}
}

// RequestDMAInterrupt is the DMA counterpart of RequestInterrupt. It is
// declared as an extension point and fatal if invoked.
func (ic *IntCtrl) RequestDMAInterrupt(irqID uint32, asserted bool) {
	panic("ioctrl: DMA interrupt acknowledgment not implemented")
}

// Line returns a level callback for src, suitable for handing to a
// peripheral as its interrupt line.
func (ic *IntCtrl) Line(src IntSrc) func(asserted bool) {
	bit := SourceBit(src)
	return func(asserted bool) {
		ic.RequestInterrupt(bit, asserted)
	}
}

// WriteMask replaces the mask register. value is in wire byte order.
func (ic *IntCtrl) WriteMask(value uint32) {
	ic.mask = bits.ReverseBytes32(value)
}

// WriteClear acknowledges pending events. A write with the clear-all
// bit set zeroes the whole events register; otherwise the written value
// selects which pending bits survive. Callers pass the retained mask,
// not the bits to clear.
func (ic *IntCtrl) WriteClear(value uint32) {
	if value&intClearAll != 0 {
		ic.events = 0
	} else {
		ic.events &= bits.ReverseBytes32(value)
	}
}

// Events returns the pending-events register in wire byte order.
func (ic *IntCtrl) Events() uint32 {
	return bits.ReverseBytes32(ic.events)
}

// Levels returns the line-levels register in wire byte order.
func (ic *IntCtrl) Levels() uint32 {
	return bits.ReverseBytes32(ic.levels)
}

// Mask returns the mask register in wire byte order.
func (ic *IntCtrl) Mask() uint32 {
	return bits.ReverseBytes32(ic.mask)
}
