package ioctrl

import (
	"math/bits"
	"testing"
)

// wire converts a native-order register value to bus byte order.
func wire(v uint32) uint32 {
	return bits.ReverseBytes32(v)
}

func TestIntCtrlRequest(t *testing.T) {
	var raised int
	ic := NewIntCtrl(func() { raised++ })

	cuda := SourceBit(SrcCuda)
	ic.WriteMask(wire(intModeEmulated | cuda))

	ic.RequestInterrupt(cuda, true)

	if raised != 1 {
		t.Errorf("raised %d times, want 1", raised)
	}

	if ev := ic.Events(); ev != wire(cuda) {
		t.Errorf("events = %#x, want %#x", ev, wire(cuda))
	}

	if lv := ic.Levels(); lv != wire(cuda) {
		t.Errorf("levels = %#x, want %#x", lv, wire(cuda))
	}

	// deassert drops the level but the event stays latched, so the
	// line is re-raised
	ic.RequestInterrupt(cuda, false)

	if raised != 2 {
		t.Errorf("raised %d times after deassert, want 2", raised)
	}

	if lv := ic.Levels(); lv != 0 {
		t.Errorf("levels = %#x after deassert, want 0", lv)
	}

	if ev := ic.Events(); ev != wire(cuda) {
		t.Errorf("events = %#x after deassert, want %#x", ev, wire(cuda))
	}
}

func TestIntCtrlMasked(t *testing.T) {
	var raised int
	ic := NewIntCtrl(func() { raised++ })

	// emulation mode on, all sources masked off
	ic.WriteMask(wire(intModeEmulated))

	scsi := SourceBit(SrcSCSI)
	ic.RequestInterrupt(scsi, true)

	if raised != 0 {
		t.Errorf("raised %d times for masked source, want 0", raised)
	}

	if ev := ic.Events(); ev != 0 {
		t.Errorf("events = %#x for masked source, want 0", ev)
	}

	// the line level is visible even when masked
	if lv := ic.Levels(); lv != wire(scsi) {
		t.Errorf("levels = %#x, want %#x", lv, wire(scsi))
	}
}

func TestIntCtrlClear(t *testing.T) {
	ic := NewIntCtrl(nil)

	cuda := SourceBit(SrcCuda)
	scsi := SourceBit(SrcSCSI)
	ic.WriteMask(wire(intModeEmulated | cuda | scsi))

	ic.RequestInterrupt(cuda, true)
	ic.RequestInterrupt(scsi, true)

	if ev := ic.Events(); ev != wire(cuda|scsi) {
		t.Fatalf("events = %#x, want %#x", ev, wire(cuda|scsi))
	}

	// a clear write names the bits to retain
	ic.WriteClear(wire(scsi))

	if ev := ic.Events(); ev != wire(scsi) {
		t.Errorf("events = %#x after selective clear, want %#x", ev, wire(scsi))
	}

	ic.WriteClear(intClearAll)

	if ev := ic.Events(); ev != 0 {
		t.Errorf("events = %#x after clear-all, want 0", ev)
	}
}

func TestIntCtrlLine(t *testing.T) {
	var raised int
	ic := NewIntCtrl(func() { raised++ })
	ic.WriteMask(wire(intModeEmulated | SourceBit(SrcSwim3)))

	line := ic.Line(SrcSwim3)
	line(true)

	if raised != 1 {
		t.Errorf("raised %d times, want 1", raised)
	}

	if ev := ic.Events(); ev != wire(SourceBit(SrcSwim3)) {
		t.Errorf("events = %#x, want %#x", ev, wire(SourceBit(SrcSwim3)))
	}
}

func TestIntCtrlNativeModePanics(t *testing.T) {
	ic := NewIntCtrl(nil)

	defer func() {
		if recover() == nil {
			t.Error("no panic for request in native interrupt mode")
		}
	}()

	ic.RequestInterrupt(SourceBit(SrcCuda), true)
}

func TestIntCtrlDMAPanics(t *testing.T) {
	t.Run("source bit", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("no panic from DMASourceBit")
			}
		}()

		DMASourceBit(SrcSCSI)
	})

	t.Run("request", func(t *testing.T) {
		ic := NewIntCtrl(nil)
		ic.WriteMask(wire(intModeEmulated))

		defer func() {
			if recover() == nil {
				t.Error("no panic from RequestDMAInterrupt")
			}
		}()

		ic.RequestDMAInterrupt(1, true)
	})
}

func TestSourceBit(t *testing.T) {
	cases := map[IntSrc]uint32{
		SrcCuda:  1 << 18,
		SrcSCSI:  1 << 12,
		SrcSwim3: 1 << 19,
	}

	for src, want := range cases {
		if bit := SourceBit(src); bit != want {
			t.Errorf("SourceBit(%v) = %#x, want %#x", src, bit, want)
		}
	}

	defer func() {
		if recover() == nil {
			t.Error("no panic for unknown source")
		}
	}()

	SourceBit(SrcInvalid)
}
