// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package emulator drives a single simulated AVR session to completion.
//
// A Session allocates its engine, wires flash persistence into the engine's
// init and teardown, loads the firmware image and then steps the engine
// until it finishes, crashes or is asked to stop. Teardown, and with it the
// final flash save, happens exactly once on every exit path.
package emulator

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ezrec/simduino/cpu"
	"github.com/ezrec/simduino/flash"
	"github.com/ezrec/simduino/ihex"
	"github.com/ezrec/simduino/internal"
	"github.com/ezrec/simduino/pins"
)

const (
	DEFAULT_VARIANT   = ihex.DEFAULT_VARIANT
	DEFAULT_FREQUENCY = 16_000_000 // Hz
	DEFAULT_GDB_PORT  = 1234

	CONTEXT_POLL_STEPS = 1024 // Steps between context cancellation checks.
)

// Outcome is how a session ended.
type Outcome int

const (
	OutcomeNone    Outcome = iota // Not run yet.
	OutcomeDone                   // Firmware finished.
	OutcomeCrashed                // Firmware crashed.
	OutcomeStopped                // Stop requested.
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeCrashed:
		return "crashed"
	case OutcomeStopped:
		return "stopped"
	}
	return "none"
}

// Factory allocates an engine by variant name.
type Factory func(variant string) (cpu.Engine, error)

// StopFlag is polled between steps.
type StopFlag interface {
	Stopped() bool
}

// Session is one configured, runnable simulation.
type Session struct {
	Verbose     bool   // If set, enables verbose engine logging.
	Debug       bool   // If set, a debug stub was requested.
	GDBPort     int    // Port for the debug stub.
	Variant     string // Variant name passed to Factory.
	Frequency   uint32 // Clock frequency in Hz.
	FlashPrefix string // Backing file prefix, see flash.Path.
	Entry       uint32 // Initial program counter; the image base unless EntrySet.
	EntrySet    bool   // If set, Entry overrides the image base.
	CodeEnd     uint32 // Last executable flash address, set by Configure.

	Factory     Factory         // Engine allocator, cpu.New if nil.
	Persistence cpu.Persistence // Flash backing, a flash.Backing if nil.
	StopFlag    StopFlag        // Optional external stop request.

	engine  cpu.Engine
	bridge  *pins.Bridge
	stop    atomic.Bool
	outcome Outcome
	fault   *ErrCrashed
}

// NewSession creates a session with the default variant and clock.
func NewSession() *Session {
	return &Session{
		Variant:     DEFAULT_VARIANT,
		Frequency:   DEFAULT_FREQUENCY,
		FlashPrefix: flash.DEFAULT_PREFIX,
		GDBPort:     DEFAULT_GDB_PORT,
	}
}

// Engine returns the session's engine, or nil before Configure.
func (s *Session) Engine() cpu.Engine {
	return s.engine
}

// Pins returns the pin event bridge, or nil before Configure.
func (s *Session) Pins() *pins.Bridge {
	return s.bridge
}

// Outcome returns how the session ended.
func (s *Session) Outcome() Outcome {
	return s.outcome
}

// Fault returns the crash details of a crashed session, or nil.
func (s *Session) Fault() error {
	if s.fault == nil {
		return nil
	}
	return s.fault
}

// Configure allocates the engine, attaches flash persistence and loads image
// at its base address. A nil image leaves the persisted flash as is and
// starts at Entry. Configure may only be called once.
func (s *Session) Configure(image *ihex.FlashImage) (err error) {
	if s.engine != nil {
		err = ErrConfigured
		return
	}

	if len(s.Variant) == 0 {
		s.Variant = DEFAULT_VARIANT
	}
	if s.Frequency == 0 {
		s.Frequency = DEFAULT_FREQUENCY
	}
	if s.Factory == nil {
		s.Factory = cpu.New
	}

	log := internal.Logger().With(zap.String("variant", s.Variant))

	engine, err := s.Factory(s.Variant)
	if err != nil {
		err = &ErrAllocation{Variant: s.Variant, Err: err}
		return
	}

	flashend := engine.FlashEnd()
	if image != nil && uint64(image.End()) > uint64(flashend)+1 {
		err = &ErrRange{Base: image.Base, End: image.End(), FlashEnd: flashend}
		return
	}

	if s.Persistence == nil {
		s.Persistence = flash.New(flash.Path(s.FlashPrefix, s.Variant))
	}

	if core, ok := engine.(*cpu.Cpu); ok {
		core.Verbose = s.Verbose
	}

	err = engine.Init(s.Persistence)
	if err != nil {
		return
	}

	engine.SetFrequency(s.Frequency)

	pc := s.Entry
	if image != nil {
		copy(engine.Flash()[image.Base:], image.Data)
		if !s.EntrySet {
			pc = image.Base
		}
		log.Info(f("%v bootloader 0x%05x: %d bytes", s.Variant, image.Base, image.Len()))
	}
	s.Entry = pc
	engine.SetPC(pc)

	// The image is code, and so is the rest of flash.
	s.CodeEnd = flashend
	engine.SetCodeEnd(s.CodeEnd)

	if s.Debug {
		log.Warn("emulator: debug stub not available", zap.Int("port", s.GDBPort))
	}

	s.engine = engine
	s.bridge = pins.New(engine)

	log.Debug("emulator: configured",
		zap.Uint32("frequency", s.Frequency),
		zap.Uint32("pc", pc),
		zap.Uint32("codeend", s.CodeEnd))

	return
}

// Stop asks a running session to stop after the current step.
func (s *Session) Stop() {
	s.stop.Store(true)
}

func (s *Session) stopped() bool {
	if s.stop.Load() {
		return true
	}
	return s.StopFlag != nil && s.StopFlag.Stopped()
}

// Run steps the engine until it is done, crashes, or a stop is requested
// through Stop, the StopFlag or ctx. The engine is torn down exactly once
// before Run returns; a teardown error is returned but does not change the
// outcome. Crashes are an outcome, not an error; see Fault.
func (s *Session) Run(ctx context.Context) (outcome Outcome, err error) {
	if s.engine == nil {
		err = ErrNotConfigured
		return
	}
	if s.outcome != OutcomeNone {
		err = ErrFinished
		return
	}

	log := internal.Logger().With(zap.String("variant", s.Variant))

	defer func() {
		s.outcome = outcome
		s.bridge.Close()

		terr := s.engine.Terminate()
		if terr != nil {
			log.Error("emulator: teardown", zap.Error(terr))
			err = errors.Join(err, terr)
		}

		log.Info("emulator: finished",
			zap.Stringer("outcome", outcome),
			zap.Uint64("cycles", s.engine.Cycles()),
			zap.Duration("elapsed", s.engine.Elapsed()))
	}()

	done := ctx.Done()
	for steps := 0; ; steps++ {
		if s.stopped() {
			outcome = OutcomeStopped
			return
		}
		if done != nil && steps%CONTEXT_POLL_STEPS == 0 && ctx.Err() != nil {
			outcome = OutcomeStopped
			return
		}

		switch s.engine.Run() {
		case cpu.StateDone:
			outcome = OutcomeDone
			return
		case cpu.StateCrashed:
			outcome = OutcomeCrashed
			s.fault = &ErrCrashed{
				Pc:    s.engine.PC(),
				Cycle: s.engine.Cycles(),
				Err:   s.engine.Fault(),
			}
			log.Warn("emulator: crashed", zap.Error(s.fault))
			return
		}
	}
}
