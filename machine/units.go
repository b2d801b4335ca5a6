package machine

import (
	"io"
	"log/slog"
)

// regFile is a plain byte-wide register array standing in for a
// peripheral whose internals are not modeled. Values round-trip so
// firmware probing the registers sees consistent state.
type regFile struct {
	name string
	regs [32]uint8
}

func (u *regFile) RegRead(reg uint32, size int) uint32 {
	return uint32(u.regs[reg%uint32(len(u.regs))])
}

func (u *regFile) RegWrite(reg uint32, value uint32, size int) {
	u.regs[reg%uint32(len(u.regs))] = uint8(value)
}

// serial channel A register indices
const (
	serialCmdA  = 2
	serialDataA = 3
)

// serialUnit is a minimal serial controller: channel A transmit lands
// on the configured writer, everything else is a plain register file.
type serialUnit struct {
	out  io.Writer
	regs [16]uint8
}

func (u *serialUnit) RegRead(reg uint32, size int) uint32 {
	if reg&0xF == serialCmdA {
		// transmit buffer always empty
		return 0x04
	}

	return uint32(u.regs[reg&0xF])
}

func (u *serialUnit) RegWrite(reg uint32, value uint32, size int) {
	if reg&0xF == serialDataA && u.out != nil {
		if _, err := u.out.Write([]byte{uint8(value)}); err != nil {
			slog.Error("machine: serial write failed", "err", err)
		}

		return
	}

	u.regs[reg&0xF] = uint8(value)
}
