// Package dma emulates the register surface of a descriptor-based DMA
// channel. Channel state round-trips through the control and status
// registers and the run bit drives start/end callbacks, but the engine
// itself (descriptor walking and memory transfers) is not modeled.
package dma

import (
	"fmt"
	"log/slog"
	"math/bits"
)

// channel register offsets
const (
	RegControl  = 0x00
	RegStatus   = 0x04
	RegCmdPtrHi = 0x08
	RegCmdPtrLo = 0x0C
)

// channel status bits
const (
	StatRun    = 0x8000
	StatPause  = 0x4000
	StatFlush  = 0x2000
	StatWake   = 0x1000
	StatDead   = 0x0800
	StatActive = 0x0400
)

// Channel is one DMA channel's register file. Start is invoked when
// software sets the run bit, End when it clears it. Either callback may
// be nil.
type Channel struct {
	status uint32
	cmdPtr uint32

	start func()
	end   func()
}

// NewChannel returns an idle channel.
func NewChannel(start, end func()) *Channel {
	return &Channel{start: start, end: end}
}

// Status returns the channel status bits in native byte order.
func (c *Channel) Status() uint32 {
	return c.status
}

// CmdPtr returns the descriptor list address in native byte order.
func (c *Channel) CmdPtr() uint32 {
	return c.cmdPtr
}

// RegRead reads a channel register. Values cross the bus big-endian.
func (c *Channel) RegRead(reg uint32, size int) uint32 {
	switch reg {
	case RegStatus:
		return toWire(c.status, size)

	case RegCmdPtrLo:
		return toWire(c.cmdPtr, size)

	case RegControl, RegCmdPtrHi:
		return 0

	default:
		slog.Warn("dma: read from unimplemented channel register",
			"reg", fmt.Sprintf("%#x", reg))

		return 0
	}
}

// RegWrite writes a channel register. Values cross the bus big-endian.
func (c *Channel) RegWrite(reg uint32, value uint32, size int) {
	switch reg {
	case RegControl:
		c.writeControl(fromWire(value, size))

	case RegCmdPtrLo:
		c.cmdPtr = fromWire(value, size)

	case RegStatus, RegCmdPtrHi:
		// status is updated through control; the high pointer word is
		// always zero on a 32-bit bus

	default:
		slog.Warn("dma: write to unimplemented channel register",
			"reg", fmt.Sprintf("%#x", reg), "value", fmt.Sprintf("%#x", value))
	}
}

// writeControl merges the written value into the status register. The
// high half of the word selects which status bits the low half updates.
func (c *Channel) writeControl(v uint32) {
	mask := v >> 16
	next := (c.status &^ mask) | (v & mask & 0xFFFF)

	// flush and wake are request bits, not state
	next &^= StatFlush | StatWake

	wasRunning := c.status&StatRun != 0
	running := next&StatRun != 0

	switch {
	case running && !wasRunning:
		next |= StatActive
		next &^= StatDead

		if c.start != nil {
			c.start()
		}

	case !running && wasRunning:
		next &^= StatActive | StatDead

		if c.end != nil {
			c.end()
		}
	}

	c.status = next
}

func toWire(v uint32, size int) uint32 {
	switch size {
	case 4:
		return bits.ReverseBytes32(v)
	case 2:
		return uint32(bits.ReverseBytes16(uint16(v)))
	default:
		return v
	}
}

func fromWire(v uint32, size int) uint32 {
	return toWire(v, size)
}
