// Package machine assembles the emulated motherboard: the physical
// address-space router, the configuration-space bus, the I/O
// controller and its peripherals, wired together the way the board
// schematic does it.
package machine

import (
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/c35s/macio/dev/cuda"
	"github.com/c35s/macio/dev/machid"
	"github.com/c35s/macio/dev/nvram"
	"github.com/c35s/macio/dma"
	"github.com/c35s/macio/ioctrl"
	"github.com/c35s/macio/mmio"
	"github.com/c35s/macio/pci"
)

// Config describes a new machine.
type Config struct {

	// NVRAMPath names the file backing non-volatile memory. The file
	// is created and sized if needed. If NVRAMPath is empty, NVRAM
	// lives in memory and is lost on close.
	NVRAMPath string `yaml:"nvram_path"`

	// IOBase is the physical base address of the I/O controller's
	// register window. It must be aligned to the window size. If
	// IOBase is 0, the window sits at IOBaseDefault.
	IOBase uint32 `yaml:"io_base"`

	// MachineID is the value of the machine identification register.
	MachineID uint16 `yaml:"machine_id"`

	// MachineIDBase is the physical address of the machine
	// identification register.
	MachineIDBase uint32 `yaml:"machine_id_base"`

	// SerialOut receives bytes the guest writes to the serial data
	// register. May be nil.
	SerialOut io.Writer `yaml:"-"`
}

const (
	IOBaseDefault        = 0xF3000000
	MachineIDDefault     = 0x3D8C
	MachineIDBaseDefault = 0xFF000004
)

var (
	ErrConfig    = errors.New("machine: invalid config")
	ErrOpenNVRAM = errors.New("machine: NVRAM storage setup failed")
)

// Machine is an assembled motherboard.
type Machine struct {
	mu sync.Mutex

	bus  *mmio.Bus
	host *pci.Host
	gc   *ioctrl.GrandCentral
	cuda *cuda.Device

	pending bool
	nvFile  *os.File
}

// LoadConfig decodes a yaml config. Unknown fields are rejected.
func LoadConfig(r io.Reader) (Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	return cfg, nil
}

// New assembles a machine.
func New(cfg Config) (*Machine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	m := &Machine{
		bus:  mmio.NewBus(),
		host: pci.NewHost(),
	}

	storage, file, err := openNVRAMStorage(cfg.NVRAMPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenNVRAM, err)
	}

	m.nvFile = file

	nv, err := nvram.New(storage)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("%w: %w", ErrOpenNVRAM, err)
	}

	// the interrupt line is wired after the hub exists
	var cudaLine func(asserted bool)

	m.cuda = cuda.New(cuda.Config{
		IRQ: func(asserted bool) {
			if cudaLine != nil {
				cudaLine(asserted)
			}
		},
	})

	m.gc = ioctrl.New(ioctrl.Config{
		SCSI:     &regFile{name: "scsi"},
		Ethernet: &regFile{name: "ethernet"},
		Serial:   &serialUnit{out: cfg.SerialOut},
		Sound:    &regFile{name: "sound"},
		Cuda:     m.cuda,
		NVRAM:    nv,
		SoundDMA: dma.NewChannel(func() {
			panic("machine: sound DMA transfer not implemented")
		}, nil),
		Raise:  func() { m.pending = true },
		Router: m.bus,
	})

	cudaLine = m.gc.IntCtrl().Line(ioctrl.SrcCuda)

	m.bus.Register(cfg.MachineIDBase, 2, machid.NewGossamer(cfg.MachineID))
	m.host.Register(pci.DevFun(16, 0), m.gc)

	// the base address write the firmware would perform
	m.gc.ConfigWrite(pci.CfgBAR0, bits.ReverseBytes32(cfg.IOBase),
		pci.AccessInfo{Size: 4, Offset: 0})

	return m, nil
}

// Read routes a CPU-style load through the address-space router.
func (m *Machine) Read(addr uint32, size int) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.bus.Read(addr, size)
}

// Write routes a CPU-style store through the address-space router.
func (m *Machine) Write(addr uint32, value uint32, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bus.Write(addr, value, size)
}

// TakeInterrupt reports whether the interrupt line was raised since
// the last call, and lowers the flag.
func (m *Machine) TakeInterrupt() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.pending
	m.pending = false

	return p
}

// Host returns the configuration-space bus.
func (m *Machine) Host() *pci.Host {
	return m.host
}

// IOCtrl returns the I/O controller.
func (m *Machine) IOCtrl() *ioctrl.GrandCentral {
	return m.gc
}

// Close releases the NVRAM backing file, if any.
func (m *Machine) Close() error {
	if m.nvFile == nil {
		return nil
	}

	err := m.nvFile.Close()
	m.nvFile = nil

	return err
}

func (cfg Config) validate() error {
	if cfg.IOBase%ioctrl.WindowSize != 0 {
		return fmt.Errorf("I/O base %#x is not aligned to the %#x window",
			cfg.IOBase, ioctrl.WindowSize)
	}

	if cfg.MachineIDBase == 0 {
		return errors.New("machine ID base is unset")
	}

	return nil
}

func (cfg Config) withDefaults() Config {
	if cfg.IOBase == 0 {
		cfg.IOBase = IOBaseDefault
	}

	if cfg.MachineID == 0 {
		cfg.MachineID = MachineIDDefault
	}

	if cfg.MachineIDBase == 0 {
		cfg.MachineIDBase = MachineIDBaseDefault
	}

	return cfg
}

func openNVRAMStorage(path string) (nvram.Storage, *os.File, error) {
	if path == "" {
		return nil, nil, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	if info.Size() < nvram.Size {
		if err := f.Truncate(nvram.Size); err != nil {
			f.Close()
			return nil, nil, err
		}
	}

	return &nvram.FileStorage{File: f}, f, nil
}
