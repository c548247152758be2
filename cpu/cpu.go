// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ezrec/simduino/internal"
)

//go:generate go tool stringer -type=State -trimprefix=State

// State is the execution state of a core.
type State int

const (
	StateLimbo    State = iota // Allocated, not yet initialized.
	StateStopped               // Halted, waiting for a debugger.
	StateRunning               // Executing instructions.
	StateSleeping              // Sleeping until an interrupt.
	StateDone                  // Finished normally.
	StateCrashed               // Stopped on a fault.
)

// Status register bits.
const (
	SREG_C = 0
	SREG_Z = 1
	SREG_N = 2
	SREG_V = 3
	SREG_S = 4
	SREG_H = 5
	SREG_T = 6
	SREG_I = 7
)

// Memory is the flash of a core, as seen by persistence.
type Memory interface {
	Flash() []byte    // Flash contents, FlashEnd()+1 bytes.
	FlashEnd() uint32 // Last flash byte address.
}

// Persistence backs a core's flash across sessions.
type Persistence interface {
	// Attach loads flash from the backing store during Init.
	Attach(mem Memory) error
	// Detach saves flash to the backing store during Terminate.
	Detach(mem Memory) error
}

// Engine is the control surface the host drives.
type Engine interface {
	Memory

	Init(persist Persistence) error
	Run() State
	Terminate() error

	SetFrequency(hz uint32)
	SetPC(addr uint32)
	SetCodeEnd(addr uint32)

	PC() uint32
	Cycles() uint64
	Elapsed() time.Duration
	Fault() error

	PinIRQ(port byte, pin uint8) (*IRQ, error)
	Variant() *Variant
}

// Cpu is the simulation context of one AVR core.
type Cpu struct {
	Verbose bool // Set to enable verbose logging.

	Frequency uint32 // Clock frequency in Hz.
	Pc        uint32 // Program counter, as a flash byte address.
	CodeEnd   uint32 // Last executable flash byte address.
	State     State  // Current execution state.
	Cycle     uint64 // Cycles executed since Init.
	Data      []byte // Registers, I/O space and SRAM.

	variant    *Variant
	flash      []byte
	persist    Persistence
	terminated bool
	fault      error

	irq map[uint16]*[PORT_PINS]*IRQ // PORTx data address to pin IRQs.
}

var _ Engine = (*Cpu)(nil)

// New allocates a core for the named variant.
func New(name string) (engine Engine, err error) {
	cpu, err := NewCpu(name)
	if err != nil {
		return
	}

	engine = cpu
	return
}

// NewCpu allocates a core for the named variant.
func NewCpu(name string) (cpu *Cpu, err error) {
	v, err := Lookup(name)
	if err != nil {
		return
	}

	cpu = &Cpu{
		variant: v,
		flash:   make([]byte, int(v.FlashEnd)+1),
		Data:    make([]byte, int(v.RamEnd)+1),
		CodeEnd: v.FlashEnd,
		irq:     make(map[uint16]*[PORT_PINS]*IRQ),
	}

	for _, port := range v.Ports {
		pins := &[PORT_PINS]*IRQ{}
		for n := range pins {
			pins[n] = NewIRQ(fmt.Sprintf("P%c%d", port.Name, n))
		}
		cpu.irq[port.Port] = pins
	}

	return
}

// Variant returns the variant of the core.
func (cpu *Cpu) Variant() *Variant {
	return cpu.variant
}

// Flash returns the flash memory of the core.
func (cpu *Cpu) Flash() []byte {
	return cpu.flash
}

// FlashEnd returns the last flash byte address.
func (cpu *Cpu) FlashEnd() uint32 {
	return cpu.variant.FlashEnd
}

// SetFrequency sets the clock frequency.
func (cpu *Cpu) SetFrequency(hz uint32) {
	cpu.Frequency = hz
}

// SetPC sets the program counter.
func (cpu *Cpu) SetPC(addr uint32) {
	cpu.Pc = addr
}

// SetCodeEnd sets the last executable flash address.
func (cpu *Cpu) SetCodeEnd(addr uint32) {
	cpu.CodeEnd = min(addr, cpu.variant.FlashEnd)
}

// PC returns the program counter.
func (cpu *Cpu) PC() uint32 {
	return cpu.Pc
}

// Cycles returns the cycles executed since Init.
func (cpu *Cpu) Cycles() uint64 {
	return cpu.Cycle
}

// Elapsed converts the executed cycles to simulated time.
func (cpu *Cpu) Elapsed() time.Duration {
	if cpu.Frequency == 0 {
		return 0
	}
	secs := cpu.Cycle / uint64(cpu.Frequency)
	rem := cpu.Cycle % uint64(cpu.Frequency)
	return time.Duration(secs)*time.Second + time.Duration(rem*uint64(time.Second)/uint64(cpu.Frequency))
}

// Fault returns the reason for a crash, or nil.
func (cpu *Cpu) Fault() error {
	return cpu.fault
}

// Init resets the core and attaches persistence, which loads flash.
// On an attach failure the core stays in limbo and Terminate will not
// detach.
func (cpu *Cpu) Init(persist Persistence) (err error) {
	cpu.reset()

	if persist != nil {
		err = persist.Attach(cpu)
		if err != nil {
			return
		}
		cpu.persist = persist
	}

	cpu.State = StateRunning
	if cpu.Verbose {
		internal.Logger().Debug("cpu: init",
			zap.String("variant", cpu.variant.Name()),
			zap.Uint32("flashend", cpu.variant.FlashEnd))
	}

	return
}

func (cpu *Cpu) reset() {
	clear(cpu.Data)
	cpu.Pc = 0
	cpu.Cycle = 0
	cpu.fault = nil
	cpu.terminated = false
	cpu.State = StateLimbo
	cpu.setSp(cpu.variant.RamEnd)

	for _, pins := range cpu.irq {
		for _, irq := range pins {
			irq.Value = 0
		}
	}
}

// Terminate stops the core and detaches persistence. Only the first call
// has any effect.
func (cpu *Cpu) Terminate() (err error) {
	if cpu.terminated {
		return
	}
	cpu.terminated = true

	if cpu.State != StateCrashed {
		cpu.State = StateDone
	}

	if cpu.persist != nil {
		err = cpu.persist.Detach(cpu)
		cpu.persist = nil
	}

	return
}

// Run advances the core by one instruction.
func (cpu *Cpu) Run() State {
	switch cpu.State {
	case StateLimbo:
		cpu.crash(ErrNotInitialized)
	case StateRunning:
		cpu.step()
	case StateSleeping:
		// No interrupt sources; idle one cycle.
		cpu.Cycle++
	}

	return cpu.State
}

// crash stops the core on a fault.
func (cpu *Cpu) crash(err error) {
	cpu.fault = &ErrFault{Pc: cpu.Pc, Cycle: cpu.Cycle, Err: err}
	cpu.State = StateCrashed

	internal.Logger().Debug("cpu: crash",
		zap.Error(cpu.fault),
		zap.String("state", cpu.String()))
}

// PinIRQ returns the IRQ raised when pin of port changes.
func (cpu *Cpu) PinIRQ(port byte, pin uint8) (irq *IRQ, err error) {
	p, ok := cpu.variant.Port(port)
	if !ok {
		err = ErrPortInvalid
		return
	}

	if pin >= PORT_PINS {
		err = ErrPinInvalid
		return
	}

	irq = cpu.irq[p.Port][pin]
	return
}

// String returns the current CPU state as a string.
func (cpu *Cpu) String() (text string) {
	text = fmt.Sprintf("pc: %05x sp: %04x sreg: %08b cycle: %v\n", cpu.Pc, cpu.sp(), cpu.Data[REG_SREG], cpu.Cycle)
	for n := range 32 {
		text += fmt.Sprintf("r%-2d=%02x", n, cpu.Data[n])
		if n%8 == 7 {
			text += "\n"
		} else {
			text += " "
		}
	}
	return
}
