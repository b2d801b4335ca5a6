// Package ioctrl emulates the Grand Central I/O controller: the bus
// dispatch hub that multiplexes the motherboard peripherals behind a
// single relocatable 128 KiB MMIO window, and the interrupt aggregation
// logic that folds their lines into one CPU interrupt.
package ioctrl

import "fmt"

// Unit is the register contract the hub forwards device and DMA space
// accesses to. Units must tolerate any access size in {1, 2, 4}.
type Unit interface {
	RegRead(reg uint32, size int) uint32
	RegWrite(reg uint32, value uint32, size int)
}

// NVRAM is the byte-addressed store behind the hub's non-volatile
// memory ports.
type NVRAM interface {
	Load(addr uint32) uint8
	Store(addr uint32, value uint8)
}

// IntSrc identifies an interrupt source wired to the aggregator.
type IntSrc int

const (
	SrcInvalid IntSrc = iota
	SrcCuda
	SrcSCSI
	SrcSwim3
)

func (s IntSrc) String() string {
	switch s {
	case SrcCuda:
		return "cuda"

	case SrcSCSI:
		return "scsi"

	case SrcSwim3:
		return "swim3"

	default:
		return fmt.Sprintf("IntSrc(%d)", int(s))
	}
}

// WindowSize is the fixed size of the hub's MMIO window.
const WindowSize = 0x20000

// window sub-space select bits, mutually exclusive by construction
const (
	devSpaceBit = 0x10000
	dmaSpaceBit = 0x8000
)

// interrupt register offsets, relative to the window base
const (
	RegIntEvents = 0x20
	RegIntMask   = 0x24
	RegIntClear  = 0x28
	RegIntLevels = 0x2C
)

const (
	// intModeEmulated in the mask register selects 68k interrupt
	// emulation mode. Native mode is not modeled.
	intModeEmulated = 0x80000000

	// intClearAll in a clear register write (raw byte order) zeroes the
	// whole events register.
	intClearAll = 0x80
)

// config header identity
const (
	vendorApple = 0x106B
	deviceGC    = 0x0002
)
