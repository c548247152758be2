// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPersistence struct {
	attached int
	detached int
	err      error
}

func (cp *countingPersistence) Attach(mem Memory) error {
	cp.attached++
	return cp.err
}

func (cp *countingPersistence) Detach(mem Memory) error {
	cp.detached++
	return nil
}

// load places little-endian opcode words at the start of flash.
func load(cpu *Cpu, words ...uint16) {
	for n, word := range words {
		cpu.Flash()[2*n] = byte(word)
		cpu.Flash()[2*n+1] = byte(word >> 8)
	}
}

func runUntil(cpu *Cpu, limit int) (state State, steps int) {
	for steps = 0; steps < limit; steps++ {
		state = cpu.Run()
		if state == StateDone || state == StateCrashed {
			steps++
			return
		}
	}
	return
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	engine, err := New("atmega328p")
	assert.NoError(err)
	assert.Equal(uint32(0x7fff), engine.FlashEnd())
	assert.Len(engine.Flash(), 0x8000)
	assert.Equal("atmega328p", engine.Variant().Name())

	engine, err = New("atmega328")
	assert.NoError(err)
	assert.Equal("atmega328p", engine.Variant().Name())

	_, err = New("z80")
	assert.ErrorIs(err, ErrVariantUnknown)
	assert.Equal(ErrVariant("z80"), err)
}

func TestInitTerminate(t *testing.T) {
	assert := assert.New(t)

	cpu, err := NewCpu("atmega328p")
	assert.NoError(err)
	assert.Equal(StateLimbo, cpu.State)

	persist := &countingPersistence{}
	assert.NoError(cpu.Init(persist))
	assert.Equal(StateRunning, cpu.State)
	assert.Equal(1, persist.attached)
	assert.Equal(uint16(0x8ff), cpu.sp())

	assert.NoError(cpu.Terminate())
	assert.NoError(cpu.Terminate())
	assert.Equal(1, persist.detached)
	assert.Equal(StateDone, cpu.State)
}

func TestInitAttachFailure(t *testing.T) {
	assert := assert.New(t)

	cpu, err := NewCpu("atmega328p")
	assert.NoError(err)

	broken := errors.New("broken")
	persist := &countingPersistence{err: broken}
	assert.ErrorIs(cpu.Init(persist), broken)
	assert.Equal(StateLimbo, cpu.State)

	assert.Equal(StateCrashed, cpu.Run())
	assert.ErrorIs(cpu.Fault(), ErrNotInitialized)

	assert.NoError(cpu.Terminate())
	assert.Equal(0, persist.detached)
	assert.Equal(StateCrashed, cpu.State)
}

func TestBlink(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	cpu, err := NewCpu("atmega328p")
	require.NoError(err)
	require.NoError(cpu.Init(nil))

	load(cpu,
		0xe200, // ldi r16, 0x20
		0xb904, // out DDRB, r16
		0xb905, // out PORTB, r16
		0xb903, // out PINB, r16
		0x94f8, // cli
		0x9588, // sleep
	)

	irq, err := cpu.PinIRQ('B', 5)
	require.NoError(err)

	var values []uint32
	irq.RegisterNotify(func(irq *IRQ, value uint32, param any) {
		assert.Equal("PB5", irq.Name)
		assert.Equal("param", param)
		values = append(values, value)
	}, "param")

	other, err := cpu.PinIRQ('B', 4)
	require.NoError(err)
	other.RegisterNotify(func(irq *IRQ, value uint32, param any) {
		t.Errorf("PB4 should not change")
	}, nil)

	state, steps := runUntil(cpu, 100)
	assert.Equal(StateDone, state)
	assert.Equal(6, steps)
	assert.Equal([]uint32{1, 0}, values)
	assert.Equal(byte(0x20), cpu.Data[IO_BASE+0x04])
	assert.Equal(byte(0x00), cpu.Data[IO_BASE+0x05])
}

func TestLoop(t *testing.T) {
	assert := assert.New(t)

	cpu, err := NewCpu("atmega328p")
	assert.NoError(err)
	assert.NoError(cpu.Init(nil))
	cpu.SetFrequency(1_000_000)

	load(cpu,
		0xe003, // ldi r16, 3
		0x950a, // dec r16
		0xf7f1, // brne .-4
		0x9588, // sleep
	)

	state, steps := runUntil(cpu, 100)
	assert.Equal(StateDone, state)
	assert.Equal(8, steps)
	assert.Equal(byte(0), cpu.Data[16])
	assert.Equal(uint64(10), cpu.Cycles())
	assert.Equal(10*time.Microsecond, cpu.Elapsed())
}

func TestCallRet(t *testing.T) {
	assert := assert.New(t)

	cpu, err := NewCpu("atmega328p")
	assert.NoError(err)
	assert.NoError(cpu.Init(nil))

	load(cpu,
		0x940e, 0x0004, // call 0x0008
		0x9588, // sleep
		0x0000, // nop
		0xe412, // ldi r17, 0x42
		0x9508, // ret
	)

	state, _ := runUntil(cpu, 100)
	assert.Equal(StateDone, state)
	assert.Equal(byte(0x42), cpu.Data[17])
	assert.Equal(uint32(0x06), cpu.PC())
	assert.Equal(uint16(0x8ff), cpu.sp())
}

func TestSleepWithInterrupts(t *testing.T) {
	assert := assert.New(t)

	cpu, err := NewCpu("atmega328p")
	assert.NoError(err)
	assert.NoError(cpu.Init(nil))

	load(cpu,
		0x9478, // sei
		0x9588, // sleep
	)

	state, steps := runUntil(cpu, 10)
	assert.Equal(StateSleeping, state)
	assert.Equal(10, steps)
}

func TestJmpLoop(t *testing.T) {
	assert := assert.New(t)

	cpu, err := NewCpu("atmega328p")
	assert.NoError(err)
	assert.NoError(cpu.Init(nil))

	load(cpu, 0x940c, 0x0000) // jmp 0

	state, steps := runUntil(cpu, 50)
	assert.Equal(StateRunning, state)
	assert.Equal(50, steps)
	assert.Equal(uint32(0), cpu.PC())
	assert.Equal(uint64(150), cpu.Cycles())
}

func TestCrash(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		name    string
		program []uint16
		codeend uint32
		err     error
	}){
		{"opcode", []uint16{0x0000, 0xffff}, 0x7fff, ErrOpcode(0xffff)},
		{"codeend", []uint16{0x0000, 0x0000}, 1, ErrPcRange},
		{"ret", []uint16{0x9508}, 0x7fff, ErrStackEmpty},
		{"sts", []uint16{0x9300, 0xffff}, 0x7fff, ErrDataRange},
	}

	for _, entry := range table {
		cpu, err := NewCpu("atmega328p")
		assert.NoError(err, entry.name)
		assert.NoError(cpu.Init(nil), entry.name)
		cpu.SetCodeEnd(entry.codeend)
		load(cpu, entry.program...)

		state, _ := runUntil(cpu, 10)
		assert.Equal(StateCrashed, state, entry.name)
		assert.ErrorIs(cpu.Fault(), entry.err, entry.name)

		var fault *ErrFault
		assert.True(errors.As(cpu.Fault(), &fault), entry.name)

		assert.NoError(cpu.Terminate(), entry.name)
		assert.Equal(StateCrashed, cpu.State, entry.name)
	}
}

func TestPinIRQ(t *testing.T) {
	assert := assert.New(t)

	cpu, err := NewCpu("atmega328p")
	assert.NoError(err)

	_, err = cpu.PinIRQ('A', 0)
	assert.ErrorIs(err, ErrPortInvalid)

	_, err = cpu.PinIRQ('D', 8)
	assert.ErrorIs(err, ErrPinInvalid)

	irq, err := cpu.PinIRQ('D', 7)
	assert.NoError(err)
	assert.Equal("PD7", irq.Name)

	mega, err := NewCpu("atmega2560")
	assert.NoError(err)
	irq, err = mega.PinIRQ('L', 0)
	assert.NoError(err)
	assert.Equal("PL0", irq.Name)
	assert.Equal(3, mega.Variant().PcBytes())
}

func TestStateString(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("Running", StateRunning.String())
	assert.Equal("Crashed", StateCrashed.String())
	assert.Equal("State(42)", State(42).String())
}
