package ioctrl

import (
	"math/bits"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/c35s/macio/mmio"
	"github.com/c35s/macio/pci"
)

type regAccess struct {
	Reg   uint32
	Value uint32
	Size  int
}

// fakeUnit records register accesses and answers reads with a value
// encoding the decoded register index and access size.
type fakeUnit struct {
	reads  []regAccess
	writes []regAccess
}

func (u *fakeUnit) RegRead(reg uint32, size int) uint32 {
	u.reads = append(u.reads, regAccess{Reg: reg, Size: size})
	return reg | uint32(size)<<24
}

func (u *fakeUnit) RegWrite(reg uint32, value uint32, size int) {
	u.writes = append(u.writes, regAccess{Reg: reg, Value: value, Size: size})
}

type mapNVRAM map[uint32]uint8

func (m mapNVRAM) Load(addr uint32) uint8 {
	return m[addr]
}

func (m mapNVRAM) Store(addr uint32, value uint8) {
	m[addr] = value
}

func TestGrandCentralDeviceDecode(t *testing.T) {
	cases := []struct {
		name   string
		unit   func(cfg *Config) *fakeUnit
		offset uint32
		reg    uint32
	}{
		{
			name:   "scsi",
			unit:   func(cfg *Config) *fakeUnit { return cfg.SCSI.(*fakeUnit) },
			offset: 0x0050,
			reg:    5,
		},
		{
			name:   "ethernet",
			unit:   func(cfg *Config) *fakeUnit { return cfg.Ethernet.(*fakeUnit) },
			offset: 0x11F0,
			reg:    0x1F,
		},
		{
			name:   "serial compatible spacing",
			unit:   func(cfg *Config) *fakeUnit { return cfg.Serial.(*fakeUnit) },
			offset: 0x2006,
			reg:    3,
		},
		{
			name: "serial compatible page falls through",
			unit: func(cfg *Config) *fakeUnit { return cfg.Serial.(*fakeUnit) },

			// offset 0x30 within the page is past the packed registers
			offset: 0x2130,
			reg:    3,
		},
		{
			name:   "serial",
			unit:   func(cfg *Config) *fakeUnit { return cfg.Serial.(*fakeUnit) },
			offset: 0x3020,
			reg:    2,
		},
		{
			name:   "sound",
			unit:   func(cfg *Config) *fakeUnit { return cfg.Sound.(*fakeUnit) },
			offset: 0x41AB,
			reg:    0xAB,
		},
		{
			name:   "cuda low window",
			unit:   func(cfg *Config) *fakeUnit { return cfg.Cuda.(*fakeUnit) },
			offset: 0x6200,
			reg:    1,
		},
		{
			// windows 6 and 7 span one register file at 512-byte
			// strides: 0x7200 is register 9, not a repeat of 1
			name:   "cuda high window",
			unit:   func(cfg *Config) *fakeUnit { return cfg.Cuda.(*fakeUnit) },
			offset: 0x7200,
			reg:    9,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{
				SCSI:     &fakeUnit{},
				Ethernet: &fakeUnit{},
				Serial:   &fakeUnit{},
				Sound:    &fakeUnit{},
				Cuda:     &fakeUnit{},
			}

			gc := New(cfg)
			u := tc.unit(&cfg)

			if v := gc.MMIORead(devSpaceBit|tc.offset, 1); v != tc.reg|1<<24 {
				t.Errorf("read = %#x, want %#x", v, tc.reg|1<<24)
			}

			gc.MMIOWrite(devSpaceBit|tc.offset, 0xEE, 1)

			wantReads := []regAccess{{Reg: tc.reg, Size: 1}}
			if diff := cmp.Diff(wantReads, u.reads); diff != "" {
				t.Errorf("reads mismatch (-want +got):\n%s", diff)
			}

			wantWrites := []regAccess{{Reg: tc.reg, Value: 0xEE, Size: 1}}
			if diff := cmp.Diff(wantWrites, u.writes); diff != "" {
				t.Errorf("writes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGrandCentralUnassignedSubdevice(t *testing.T) {
	gc := New(Config{})

	if v := gc.MMIORead(devSpaceBit|0x5000, 4); v != 0 {
		t.Errorf("unassigned subdevice reads %#x, want 0", v)
	}

	// dropped
	gc.MMIOWrite(devSpaceBit|0x5000, 0xDEAD, 4)
}

func TestGrandCentralBoardRegister(t *testing.T) {
	gc := New(Config{})

	want := bits.ReverseBytes32(0x100)
	if v := gc.MMIORead(devSpaceBit|0xA000, 4); v != want {
		t.Errorf("board register reads %#x, want %#x", v, want)
	}

	// ignored
	gc.MMIOWrite(devSpaceBit|0xA000, 0xFFFFFFFF, 4)

	if v := gc.MMIORead(devSpaceBit|0xA000, 4); v != want {
		t.Errorf("board register reads %#x after write, want %#x", v, want)
	}
}

func TestGrandCentralNVRAM(t *testing.T) {
	nv := mapNVRAM{}
	gc := New(Config{NVRAM: nv})

	const (
		latch = devSpaceBit | 0xD000
		data  = devSpaceBit | 0xF000
	)

	// select page 2 with a 32-bit big-endian latch write
	gc.MMIOWrite(latch, bits.ReverseBytes32(2), 4)

	// offset 0x30 decodes to byte 3 of the page
	gc.MMIOWrite(data|0x30, 0xA7, 1)

	if got := nv[2<<5+3]; got != 0xA7 {
		t.Errorf("nvram byte = %#x, want 0xa7", got)
	}

	if v := gc.MMIORead(data|0x30, 1); v != 0xA7 {
		t.Errorf("data port reads %#x, want 0xa7", v)
	}

	// 16-bit latch writes are swapped too
	gc.MMIOWrite(latch, uint32(bits.ReverseBytes16(3)), 2)
	nv[3<<5] = 0x5C

	if v := gc.MMIORead(data, 1); v != 0x5C {
		t.Errorf("data port reads %#x after 16-bit latch, want 0x5c", v)
	}

	// byte-wide latch writes are taken as-is
	gc.MMIOWrite(latch, 2, 1)

	if v := gc.MMIORead(data|0x30, 1); v != 0xA7 {
		t.Errorf("data port reads %#x after byte latch, want 0xa7", v)
	}

	// the latch is write-only
	if v := gc.MMIORead(latch, 4); v != 0 {
		t.Errorf("latch reads %#x, want 0", v)
	}
}

func TestGrandCentralDMADecode(t *testing.T) {
	sndDMA := &fakeUnit{}
	gc := New(Config{SoundDMA: sndDMA})

	if v := gc.MMIORead(0x8042, 4); v != 0x42|4<<24 {
		t.Errorf("read = %#x, want %#x", v, 0x42|4<<24)
	}

	gc.MMIOWrite(0x8042, 0x1234, 4)

	want := []regAccess{{Reg: 0x42, Value: 0x1234, Size: 4}}
	if diff := cmp.Diff(want, sndDMA.writes); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}

	// channel 9 is unassigned
	if v := gc.MMIORead(0x9000, 4); v != 0 {
		t.Errorf("unassigned channel reads %#x, want 0", v)
	}
}

func TestGrandCentralInterruptRegisters(t *testing.T) {
	var raised int
	gc := New(Config{Raise: func() { raised++ }})

	cuda := SourceBit(SrcCuda)
	gc.MMIOWrite(RegIntMask, wire(intModeEmulated|cuda), 4)

	if v := gc.MMIORead(RegIntMask, 4); v != wire(intModeEmulated|cuda) {
		t.Errorf("mask reads %#x, want %#x", v, wire(intModeEmulated|cuda))
	}

	gc.IntCtrl().Line(SrcCuda)(true)

	if raised != 1 {
		t.Fatalf("raised %d times, want 1", raised)
	}

	if v := gc.MMIORead(RegIntEvents, 4); v != wire(cuda) {
		t.Errorf("events read %#x, want %#x", v, wire(cuda))
	}

	if v := gc.MMIORead(RegIntLevels, 4); v != wire(cuda) {
		t.Errorf("levels read %#x, want %#x", v, wire(cuda))
	}

	gc.MMIOWrite(RegIntClear, intClearAll, 4)

	if v := gc.MMIORead(RegIntEvents, 4); v != 0 {
		t.Errorf("events read %#x after clear, want 0", v)
	}

	// unknown interrupt register
	if v := gc.MMIORead(0x40, 4); v != 0 {
		t.Errorf("unknown register reads %#x, want 0", v)
	}
}

// TestGrandCentralRelocation drives the base address register through
// configuration space and checks the window follows it on a live bus.
func TestGrandCentralRelocation(t *testing.T) {
	bus := mmio.NewBus()
	gc := New(Config{Router: bus})

	acc := pci.AccessInfo{Size: 4, Offset: 0}

	// size probe: all ones reads back the decode mask
	gc.ConfigWrite(pci.CfgBAR0, 0xFFFFFFFF, acc)

	if v := gc.ConfigRead(pci.CfgBAR0, acc); v != bits.ReverseBytes32(0xFFFE0000) {
		t.Errorf("size probe reads %#x, want %#x", v, bits.ReverseBytes32(0xFFFE0000))
	}

	const base1 = 0xF3000000
	gc.ConfigWrite(pci.CfgBAR0, bits.ReverseBytes32(base1), acc)

	if gc.Base() != base1 {
		t.Fatalf("base = %#x, want %#x", gc.Base(), base1)
	}

	want := bits.ReverseBytes32(0x100)
	if v := bus.Read(base1+devSpaceBit+0xA000, 4); v != want {
		t.Errorf("board register via bus reads %#x, want %#x", v, want)
	}

	// move the window: the old address stops decoding
	const base2 = 0xF3020000
	gc.ConfigWrite(pci.CfgBAR0, bits.ReverseBytes32(base2), acc)

	if v := bus.Read(base1+devSpaceBit+0xA000, 4); v != 0 {
		t.Errorf("old window reads %#x after move, want 0", v)
	}

	if v := bus.Read(base2+devSpaceBit+0xA000, 4); v != want {
		t.Errorf("new window reads %#x, want %#x", v, want)
	}
}
