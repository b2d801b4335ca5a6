// Package cuda emulates the VIA-CUDA combo device: a 6522 VIA register
// file fronting the Cuda system-management microcontroller. The host
// talks to the Cuda over a byte-wide channel made of the VIA shift
// register and three handshake lines in register B.
package cuda

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/c35s/macio/dev/nvram"
)

// VIA register offsets.
const (
	RegB    = 0x00 // input/output register B
	RegA    = 0x01 // input/output register A
	RegDIRB = 0x02 // direction B
	RegDIRA = 0x03 // direction A
	RegT1CL = 0x04 // low-order timer 1 counter
	RegT1CH = 0x05 // high-order timer 1 counter
	RegT1LL = 0x06 // low-order timer 1 latches
	RegT1LH = 0x07 // high-order timer 1 latches
	RegT2CL = 0x08 // low-order timer 2 latches
	RegT2CH = 0x09 // high-order timer 2 counter
	RegSR   = 0x0A // shift register
	RegACR  = 0x0B // auxiliary control register
	RegPCR  = 0x0C // peripheral control register
	RegIFR  = 0x0D // interrupt flag register
	RegIER  = 0x0E // interrupt enable register
	RegANH  = 0x0F // register A, no handshake
)

// interrupt flag bits
const (
	ifrSR = 0x04

	ierSet = 0x80
)

// handshake bits in register B. TIP and BYTEACK are driven by the
// host, TREQ by the Cuda. TIP and TREQ are active-low.
const (
	LineTIP     = 0x20
	LineByteAck = 0x10
	LineTREQ    = 0x08
)

// packet types
const (
	PktADB    = 0
	PktPseudo = 1
	PktError  = 2
	PktTick   = 3
	PktPower  = 4
)

// pseudo commands
const (
	cmdWarmStart       = 0x00
	cmdAutopoll        = 0x01
	cmdGetRealTime     = 0x03
	cmdReadPRAM        = 0x07
	cmdSetRealTime     = 0x09
	cmdWritePRAM       = 0x0C
	cmdFileServerFlag  = 0x13
	cmdSetAutopollRate = 0x14
	cmdGetAutopollRate = 0x16
	cmdSetDeviceList   = 0x19
	cmdGetDeviceList   = 0x1A
)

// error codes
const (
	ErrBadPkt = 1
	ErrBadCmd = 2
)

// PRAMSize is the parameter RAM capacity in bytes.
const PRAMSize = 0x100

// seconds between the Mac epoch (1904-01-01) and the Unix epoch
const macEpochDelta = 2082844800

const bufSize = 16

// txState tracks the channel between host and Cuda. A transaction
// starts when the host asserts TIP, moves one byte per handshake edge,
// and ends when the host negates TIP. If the packet produced a
// response the Cuda asserts TREQ and the same handshake drains the
// out buffer.
type txState int

const (
	stateIdle txState = iota
	stateReceiving
	stateResponding
)

func (s txState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateReceiving:
		return "receiving"
	case stateResponding:
		return "responding"
	default:
		return fmt.Sprintf("txState(%d)", int(s))
	}
}

// Config wires a Device to the machine.
type Config struct {
	// PRAM backs the parameter RAM. It must hold at least PRAMSize
	// bytes. If nil, a fresh in-memory buffer is used.
	PRAM nvram.Storage

	// IRQ drives the device's interrupt line. May be nil.
	IRQ func(asserted bool)

	// Now is the clock behind the real-time commands. Defaults to
	// time.Now.
	Now func() time.Time
}

// Device is the VIA-CUDA register file and protocol engine.
type Device struct {
	regs [16]uint8

	state   txState
	tip     bool
	byteAck bool

	inBuf  []uint8
	outBuf []uint8
	outPos int

	pollRate   uint8
	autopoll   bool
	fileServer bool
	deviceMask uint16
	timeDelta  int64

	pram   nvram.Storage
	pramWr io.WriterAt

	irq func(asserted bool)
	now func() time.Time
}

// New returns a device in the idle state with TREQ negated.
func New(cfg Config) *Device {
	d := &Device{
		inBuf:    make([]uint8, 0, bufSize),
		pollRate: 11,
		pram:     cfg.PRAM,
		irq:      cfg.IRQ,
		now:      cfg.Now,
	}

	if d.pram == nil {
		d.pram = &nvram.MemStorage{Bytes: make([]byte, PRAMSize)}
	}

	d.pramWr, _ = d.pram.(io.WriterAt)

	if d.now == nil {
		d.now = time.Now
	}

	// lines idle: TIP and BYTEACK negated by the host, TREQ negated
	// by the Cuda
	d.regs[RegB] = LineTIP | LineByteAck | LineTREQ
	d.tip = false
	d.byteAck = false

	return d
}

// State reports the transaction state, for tests and debugging.
func (d *Device) State() txState {
	return d.state
}

// RegRead reads a VIA register. Only the low byte carries data.
func (d *Device) RegRead(reg uint32, size int) uint32 {
	switch reg & 0xF {
	case RegSR:
		// reading the shift register acknowledges the SR interrupt
		v := d.regs[RegSR]
		d.clearSRInt()
		return uint32(v)

	case RegIER:
		// bit 7 always reads as set
		return uint32(d.regs[RegIER] | ierSet)

	default:
		return uint32(d.regs[reg&0xF])
	}
}

// RegWrite writes a VIA register. Only the low byte carries data.
func (d *Device) RegWrite(reg uint32, value uint32, size int) {
	b := uint8(value)

	switch reg & 0xF {
	case RegB:
		// TREQ is driven by the Cuda; the host can't write it
		old := d.regs[RegB]
		d.regs[RegB] = (b &^ LineTREQ) | (old & LineTREQ)
		d.handshake(b&LineTIP == 0, b&LineByteAck != 0)

	case RegSR:
		d.regs[RegSR] = b
		d.clearSRInt()

	case RegIER:
		if b&ierSet != 0 {
			d.regs[RegIER] |= b &^ ierSet
		} else {
			d.regs[RegIER] &^= b &^ ierSet
		}
		d.updateIRQ()

	case RegIFR:
		// writing ones clears flags
		d.regs[RegIFR] &^= b &^ 0x80
		d.updateIRQ()

	default:
		d.regs[reg&0xF] = b
	}
}

// handshake runs the transaction state machine on a register B write.
// tip is true when the host asserts transaction-in-progress (the line
// is active-low).
func (d *Device) handshake(tip, byteAck bool) {
	if tip == d.tip && byteAck == d.byteAck {
		return
	}

	d.tip = tip
	d.byteAck = byteAck

	if !tip {
		d.endTransaction()
		return
	}

	// one byte moves on every edge while TIP is asserted
	switch d.state {
	case stateIdle:
		d.state = stateReceiving
		fallthrough

	case stateReceiving:
		if len(d.inBuf) == cap(d.inBuf) {
			slog.Warn("cuda: input buffer exhausted, byte dropped")
			break
		}

		d.inBuf = append(d.inBuf, d.regs[RegSR])
		d.assertSRInt()

	case stateResponding:
		if d.outPos == len(d.outBuf) {
			slog.Warn("cuda: response exhausted, handshake edge dropped")
			break
		}

		d.regs[RegSR] = d.outBuf[d.outPos]
		d.outPos++

		if d.outPos == len(d.outBuf) {
			// last byte delivered
			d.negateTREQ()
		}

		d.assertSRInt()
	}
}

// endTransaction handles the host negating TIP.
func (d *Device) endTransaction() {
	switch d.state {
	case stateReceiving:
		d.processPacket()
		d.inBuf = d.inBuf[:0]

		if len(d.outBuf) > 0 {
			// tell the host a response is waiting
			d.outPos = 0
			d.state = stateResponding
			d.assertTREQ()
			return
		}

		d.state = stateIdle

	case stateResponding:
		d.outBuf = nil
		d.outPos = 0
		d.state = stateIdle
		d.negateTREQ()
	}
}

func (d *Device) assertTREQ() {
	d.regs[RegB] &^= LineTREQ
}

func (d *Device) negateTREQ() {
	d.regs[RegB] |= LineTREQ
}

func (d *Device) assertSRInt() {
	d.regs[RegIFR] |= ifrSR
	d.updateIRQ()
}

func (d *Device) clearSRInt() {
	d.regs[RegIFR] &^= ifrSR
	d.updateIRQ()
}

// updateIRQ recomputes the summary flag and drives the interrupt line.
func (d *Device) updateIRQ() {
	active := d.regs[RegIFR]&d.regs[RegIER]&0x7F != 0

	if active {
		d.regs[RegIFR] |= 0x80
	} else {
		d.regs[RegIFR] &^= 0x80
	}

	if d.irq != nil {
		d.irq(active)
	}
}

// processPacket dispatches a fully received packet. The first byte is
// the packet type.
func (d *Device) processPacket() {
	if len(d.inBuf) == 0 {
		return
	}

	switch d.inBuf[0] {
	case PktADB:
		// no desktop bus devices are attached; acknowledge the command
		d.respond(PktADB, 0)

	case PktPseudo:
		if len(d.inBuf) < 2 {
			d.respondError(ErrBadPkt)
			return
		}

		d.pseudoCommand(d.inBuf[1])

	default:
		slog.Warn("cuda: bad packet type", "type", d.inBuf[0])
		d.respondError(ErrBadPkt)
	}
}

// respond starts a response packet: type, flag, and an echo of the
// command byte. Callers append any payload.
func (d *Device) respond(pktType, pktFlag uint8, payload ...uint8) {
	var cmd uint8
	if len(d.inBuf) > 1 {
		cmd = d.inBuf[1]
	}

	d.outBuf = append([]uint8{pktType, pktFlag, cmd}, payload...)
}

// respondError builds an error packet echoing the offending bytes.
func (d *Device) respondError(code uint8) {
	var t, cmd uint8
	if len(d.inBuf) > 0 {
		t = d.inBuf[0]
	}
	if len(d.inBuf) > 1 {
		cmd = d.inBuf[1]
	}

	d.outBuf = []uint8{PktError, code, t, cmd}
}

// arg returns packet payload byte i, counted after the type and
// command bytes.
func (d *Device) arg(i int) uint8 {
	if 2+i < len(d.inBuf) {
		return d.inBuf[2+i]
	}

	return 0
}

func (d *Device) pseudoCommand(cmd uint8) {
	switch cmd {
	case cmdWarmStart:
		d.respond(PktPseudo, 0)

	case cmdAutopoll:
		d.autopoll = d.arg(0) != 0
		d.respond(PktPseudo, 0)

	case cmdGetRealTime:
		t := uint32(d.now().Unix() + macEpochDelta + d.timeDelta)
		d.respond(PktPseudo, 0,
			uint8(t>>24), uint8(t>>16), uint8(t>>8), uint8(t))

	case cmdSetRealTime:
		t := uint32(d.arg(0))<<24 | uint32(d.arg(1))<<16 |
			uint32(d.arg(2))<<8 | uint32(d.arg(3))
		d.timeDelta = int64(t) - (d.now().Unix() + macEpochDelta)
		d.respond(PktPseudo, 0)

	case cmdReadPRAM:
		d.respond(PktPseudo, 0, d.pramRead(d.arg(0)))

	case cmdWritePRAM:
		addr := d.arg(0)
		for i := 1; 2+i < len(d.inBuf); i++ {
			d.pramWrite(addr, d.arg(i))
			addr++
		}
		d.respond(PktPseudo, 0)

	case cmdFileServerFlag:
		d.fileServer = d.arg(0) != 0
		d.respond(PktPseudo, 0)

	case cmdSetAutopollRate:
		d.pollRate = d.arg(0)
		d.respond(PktPseudo, 0)

	case cmdGetAutopollRate:
		d.respond(PktPseudo, 0, d.pollRate)

	case cmdSetDeviceList:
		d.deviceMask = uint16(d.arg(0))<<8 | uint16(d.arg(1))
		d.respond(PktPseudo, 0)

	case cmdGetDeviceList:
		d.respond(PktPseudo, 0,
			uint8(d.deviceMask>>8), uint8(d.deviceMask))

	default:
		slog.Warn("cuda: bad pseudo command", "cmd", fmt.Sprintf("%#x", cmd))
		d.respondError(ErrBadCmd)
	}
}

func (d *Device) pramRead(addr uint8) uint8 {
	var b [1]byte
	if _, err := d.pram.ReadAt(b[:], int64(addr)); err != nil {
		slog.Error("cuda: pram read failed", "addr", addr, "err", err)
		return 0
	}

	return b[0]
}

func (d *Device) pramWrite(addr, value uint8) {
	if d.pramWr == nil {
		slog.Warn("cuda: pram write to read-only storage", "addr", addr)
		return
	}

	if _, err := d.pramWr.WriteAt([]byte{value}, int64(addr)); err != nil {
		slog.Error("cuda: pram write failed", "addr", addr, "err", err)
	}
}
