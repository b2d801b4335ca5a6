// Command macio-probe assembles an emulated motherboard and pokes at
// it from the command line: it prints the identification registers,
// optionally dumps NVRAM, and then loops bytes typed on stdin through
// the emulated serial port.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/bits"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/c35s/macio/ioctrl"
	"github.com/c35s/macio/machine"
)

// device space of the I/O window
const devSpace = 0x10000

func main() {

	var (
		configPath = flag.String("config", "", "load machine config from a yaml file")
		nvramPath  = flag.String("nvram", "", "back NVRAM with a file")
		dumpNVRAM  = flag.Bool("dump-nvram", false, "hex-dump the first NVRAM page and exit")
		echo       = flag.Bool("echo", true, "loop stdin through the emulated serial port")
	)

	flag.Parse()

	cfg := machine.Config{}

	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			panic(err)
		}

		cfg, err = machine.LoadConfig(f)
		f.Close()

		if err != nil {
			panic(err)
		}
	}

	if *nvramPath != "" {
		cfg.NVRAMPath = *nvramPath
	}

	cfg.SerialOut = os.Stdout

	m, err := machine.New(cfg)
	if err != nil {
		panic(err)
	}

	defer m.Close()

	base := m.IOCtrl().Base()

	fmt.Printf("i/o window at %#x\n", base)
	fmt.Printf("board register: %#x\n",
		bits.ReverseBytes32(m.Read(base+devSpace+0xA000, 4)))

	idBase := cfg.MachineIDBase
	if idBase == 0 {
		idBase = machine.MachineIDBaseDefault
	}

	fmt.Printf("machine id: %#x\n", m.Read(idBase, 2))

	if *dumpNVRAM {
		dumpNVRAMPage(m, base, 0)
		return
	}

	if !*echo {
		return
	}

	// unmask the Cuda source so device activity is visible
	m.Write(base+ioctrl.RegIntMask,
		bits.ReverseBytes32(0x80000000|ioctrl.SourceBit(ioctrl.SrcCuda)), 4)

	if term.IsTerminal(int(os.Stdin.Fd())) {
		old, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			panic(err)
		}

		defer term.Restore(int(os.Stdin.Fd()), old)
	}

	fmt.Print("type into the serial port, ^C to exit\r\n")

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return pumpSerial(m, base)
	})

	g.Go(func() error {
		t := time.NewTicker(100 * time.Millisecond)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil

			case <-t.C:
				if m.TakeInterrupt() {
					ev := bits.ReverseBytes32(m.Read(base+ioctrl.RegIntEvents, 4))
					fmt.Printf("interrupt: events %#x\r\n", ev)
					m.Write(base+ioctrl.RegIntClear, 0x80, 4)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		panic(err)
	}
}

// pumpSerial copies stdin into the serial data register a byte at a
// time. The machine's serial output writer echoes it back out.
func pumpSerial(m *machine.Machine, base uint32) error {
	var b [1]byte

	for {
		if _, err := os.Stdin.Read(b[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		if b[0] == 0x03 { // ^C
			return nil
		}

		// serial channel A data register, MacRISC spacing
		m.Write(base+devSpace+0x3030, uint32(b[0]), 1)
	}
}

func dumpNVRAMPage(m *machine.Machine, base, page uint32) {
	m.Write(base+devSpace+0xD000, bits.ReverseBytes32(page), 4)

	for off := uint32(0); off < 0x20; off++ {
		if off%8 == 0 {
			fmt.Printf("\n%04x:", page<<5+off)
		}

		fmt.Printf(" %02x", m.Read(base+devSpace+0xF000+off<<4, 1))
	}

	fmt.Println()
}
