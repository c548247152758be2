// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"iter"
	"slices"
	"sync"

	"github.com/ezrec/simduino/internal"
)

// Data space locations common to all megaAVR variants.
const (
	IO_BASE  = 0x20 // Data address of I/O register 0.
	REG_SPL  = 0x5d
	REG_SPH  = 0x5e
	REG_SREG = 0x5f

	PORT_PINS = 8 // Pins per port.
)

// Port is the data space layout of one I/O port.
type Port struct {
	Name byte   // Port letter, 'A' through 'L'.
	Pin  uint16 // Data address of PINx.
	Ddr  uint16 // Data address of DDRx.
	Port uint16 // Data address of PORTx.
}

// Variant describes one AVR model.
type Variant struct {
	Names      []string // Names the variant is known by; Names[0] is canonical.
	FlashEnd   uint32   // Last flash byte address.
	RamStart   uint16   // First SRAM data address.
	RamEnd     uint16   // Last SRAM data address.
	VectorSize int      // Bytes per interrupt vector.
	Ports      []Port
}

// Name returns the canonical variant name.
func (v *Variant) Name() string {
	return v.Names[0]
}

// PcBytes returns the number of bytes a return address occupies on the stack.
func (v *Variant) PcBytes() int {
	if v.FlashEnd > 0x1ffff {
		return 3
	}
	return 2
}

// Port returns the port named by letter.
func (v *Variant) Port(name byte) (port *Port, ok bool) {
	for n := range v.Ports {
		if v.Ports[n].Name == name {
			return &v.Ports[n], true
		}
	}
	return
}

var (
	registryLock sync.RWMutex
	registry     []*Variant
)

// Register adds a variant under all of its names. A later registration of
// the same name replaces the earlier one.
func Register(v *Variant) {
	registryLock.Lock()
	defer registryLock.Unlock()

	registry = slices.DeleteFunc(registry, func(old *Variant) bool {
		for _, name := range v.Names {
			if slices.Contains(old.Names, name) {
				return true
			}
		}
		return false
	})
	registry = append(registry, v)
}

// Lookup finds a variant by any of its names.
func Lookup(name string) (v *Variant, err error) {
	registryLock.RLock()
	defer registryLock.RUnlock()

	for _, known := range registry {
		if slices.Contains(known.Names, name) {
			v = known
			return
		}
	}

	err = ErrVariant(name)
	return
}

// Names returns an iterator over every registered variant name.
func Names() iter.Seq[string] {
	registryLock.RLock()
	defer registryLock.RUnlock()

	var seqs []iter.Seq[string]
	for _, v := range registry {
		seqs = append(seqs, slices.Values(slices.Clone(v.Names)))
	}

	return internal.IterSeqConcat(seqs...)
}

// makePorts lays out consecutive PINx/DDRx/PORTx triples starting at addr.
func makePorts(names string, addr uint16) (ports []Port) {
	for _, name := range []byte(names) {
		ports = append(ports, Port{
			Name: name,
			Pin:  addr,
			Ddr:  addr + 1,
			Port: addr + 2,
		})
		addr += 3
	}
	return
}

func init() {
	Register(&Variant{
		Names:      []string{"atmega328p", "atmega328"},
		FlashEnd:   0x7fff,
		RamStart:   0x100,
		RamEnd:     0x8ff,
		VectorSize: 4,
		Ports:      makePorts("BCD", IO_BASE+0x03),
	})

	Register(&Variant{
		Names:      []string{"atmega2560"},
		FlashEnd:   0x3ffff,
		RamStart:   0x200,
		RamEnd:     0x21ff,
		VectorSize: 4,
		Ports:      append(makePorts("ABCDEFG", IO_BASE+0x00), makePorts("HJKL", 0x100)...),
	})
}
