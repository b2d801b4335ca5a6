// Package machid emulates the read-only machine identification
// registers the firmware probes to tell board revisions apart. Two
// register styles exist: the four-byte Nubus-era ID and the 16-bit
// Gossamer ID.
package machid

import (
	"fmt"
	"log/slog"
)

// Nubus is the Nubus-style machine ID: a fixed signature followed by
// the machine type and model bytes, read one byte at a time.
type Nubus struct {
	id [4]uint8
}

// NewNubus returns the ID register for the given machine type and
// model.
func NewNubus(machineType, model uint8) *Nubus {
	return &Nubus{id: [4]uint8{0xA5, 0x5A, machineType, model}}
}

func (n *Nubus) MMIORead(offset uint32, size int) uint32 {
	if offset < uint32(len(n.id)) {
		return uint32(n.id[offset])
	}

	return 0
}

func (n *Nubus) MMIOWrite(offset uint32, value uint32, size int) {
	slog.Warn("machid: write to read-only machine ID register",
		"offset", fmt.Sprintf("%#x", offset))
}

// Gossamer is the Gossamer-style machine ID: a single 16-bit register
// answering only an aligned halfword read.
type Gossamer struct {
	id uint16
}

// NewGossamer returns the ID register holding id.
func NewGossamer(id uint16) *Gossamer {
	return &Gossamer{id: id}
}

func (g *Gossamer) MMIORead(offset uint32, size int) uint32 {
	if offset == 0 && size == 2 {
		return uint32(g.id)
	}

	return 0
}

func (g *Gossamer) MMIOWrite(offset uint32, value uint32, size int) {
	slog.Warn("machid: write to read-only machine ID register",
		"offset", fmt.Sprintf("%#x", offset))
}
