package pci

import "math/bits"

// ConvRead presents the partial, big-endian view of a little-endian
// 32-bit config register. Byte reads return the selected lane in bits
// 0-7. Word and dword reads are byte-swapped; accesses starting past
// lane 2 wrap around to lane 0.
func ConvRead(value uint32, acc AccessInfo) uint32 {
	switch acc.Key() {
	// bytes
	case 0x04:
		return value & 0xFF // 0
	case 0x05:
		return (value >> 8) & 0xFF // 1
	case 0x06:
		return (value >> 16) & 0xFF // 2
	case 0x07:
		return (value >> 24) & 0xFF // 3

	// words
	case 0x08:
		return uint32(bits.ReverseBytes16(uint16(value))) // 0 1
	case 0x09:
		return uint32(bits.ReverseBytes16(uint16(value >> 8))) // 1 2
	case 0x0A:
		return uint32(bits.ReverseBytes16(uint16(value >> 16))) // 2 3
	case 0x0B:
		return ((value >> 16) & 0xFF00) | (value & 0xFF) // 3 0

	// dwords
	case 0x10:
		return bits.ReverseBytes32(value) // 0 1 2 3
	case 0x11:
		return bits.RotateLeft32(bits.ReverseBytes32(value), 8) // 1 2 3 0
	case 0x12:
		return bits.RotateLeft32(bits.ReverseBytes32(value), 16) // 2 3 0 1
	case 0x13:
		return bits.RotateLeft32(bits.ReverseBytes32(value), -8) // 3 0 1 2

	default:
		return Invalid
	}
}

// ConvWrite merges the partial big-endian write val into the register
// value old, preserving the lanes acc does not touch and applying the
// same swap and wrap-around wiring as ConvRead to the incoming bytes.
// ConvRead of the result with the same descriptor returns the bytes
// written.
func ConvWrite(old, val uint32, acc AccessInfo) uint32 {
	switch acc.Key() {
	// bytes
	case 0x04:
		return (old &^ 0xFF) | (val & 0xFF) //  3  2  1 d0
	case 0x05:
		return (old &^ 0xFF00) | (val&0xFF)<<8 //  3  2 d0  0
	case 0x06:
		return (old &^ 0xFF0000) | (val&0xFF)<<16 //  3 d0  1  0
	case 0x07:
		return (old & 0x00FFFFFF) | (val&0xFF)<<24 // d0  2  1  0

	// words
	case 0x08:
		return (old &^ 0xFFFF) | uint32(bits.ReverseBytes16(uint16(val))) //  3  2 d1 d0
	case 0x09:
		return (old &^ 0xFFFF00) | uint32(bits.ReverseBytes16(uint16(val)))<<8 //  3 d1 d0  0
	case 0x0A:
		return (old & 0x0000FFFF) | uint32(bits.ReverseBytes16(uint16(val)))<<16 // d1 d0  1  0
	case 0x0B:
		return (old & 0x00FFFF00) | (val&0xFF00)<<16 | val&0xFF // d0  2  1 d1

	// dwords
	case 0x10:
		return bits.ReverseBytes32(val) // d3 d2 d1 d0
	case 0x11:
		return bits.RotateLeft32(bits.ReverseBytes32(val), 8) // d2 d1 d0 d3
	case 0x12:
		return bits.RotateLeft32(bits.ReverseBytes32(val), 16) // d1 d0 d3 d2
	case 0x13:
		return bits.RotateLeft32(bits.ReverseBytes32(val), -8) // d0 d3 d2 d1

	default:
		return Invalid
	}
}
