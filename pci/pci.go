// Package pci implements the configuration-space side of the peripheral
// bus: device lookup by bus/device/function, legacy I/O-space broadcast,
// and the byte-lane conversion that satisfies partial-width register
// accesses against little-endian 32-bit config registers.
package pci

// AccessInfo describes a partial access to a 32-bit config register:
// its size in bytes and the byte offset of its first lane.
//
// Offset+Size may exceed 4: a word or dword access starting near the end
// of the register wraps around, treating the register as a circular
// 4-byte buffer. That wiring is deliberate and matches the hardware.
type AccessInfo struct {
	Size   uint8 // 1, 2 or 4
	Offset uint8 // 0..3
}

// Key folds a descriptor into a single comparable value. The size is
// encoded directly, not as log2, so the legal keys are exactly
// 0x04..0x07, 0x08..0x0B and 0x10..0x13.
func (a AccessInfo) Key() uint8 {
	return a.Size<<2 | a.Offset
}

// Invalid is the all-ones sentinel returned for accesses whose
// size/offset combination corresponds to no byte-lane wiring.
const Invalid = 0xFFFFFFFF

// Device is a single function on the configuration-space bus.
type Device interface {

	// ConfigRead returns the partial view, described by acc, of the
	// 32-bit config register containing reg.
	ConfigRead(reg uint32, acc AccessInfo) uint32

	// ConfigWrite merges a partial write into the config register
	// containing reg.
	ConfigWrite(reg uint32, value uint32, acc AccessInfo)
}

// IODevice is implemented by devices that also claim ranges of the
// legacy I/O space. I/O accesses are offered to every attached device;
// each decides whether the offset falls in one of its ranges.
type IODevice interface {

	// IORead services a read at offset. ok reports whether the device
	// claimed the access.
	IORead(offset uint32, size int) (value uint32, ok bool)

	// IOWrite services a write at offset. ok reports whether the device
	// claimed the access.
	IOWrite(offset uint32, value uint32, size int) (ok bool)
}
