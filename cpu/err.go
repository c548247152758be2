// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"errors"

	"github.com/ezrec/simduino/translate"
)

var f = translate.From

var (
	// Allocation errors
	ErrVariantUnknown = errors.New(f("variant unknown"))

	// Pin errors
	ErrPortInvalid = errors.New(f("port invalid"))
	ErrPinInvalid  = errors.New(f("pin invalid"))

	// Execution faults, reported as the reason for a crash.
	ErrPcRange        = errors.New(f("pc beyond code end"))
	ErrDataRange      = errors.New(f("data address out of range"))
	ErrStackEmpty     = errors.New(f("stack empty"))
	ErrStackFull      = errors.New(f("stack full"))
	ErrNotInitialized = errors.New(f("core not initialized"))
)

// ErrVariant names the variant that could not be allocated.
type ErrVariant string

func (ev ErrVariant) Error() string {
	return f("%v: %v", string(ev), ErrVariantUnknown)
}

func (ev ErrVariant) Is(err error) bool {
	return err == ErrVariantUnknown
}

// ErrOpcode is an opcode the core cannot decode.
type ErrOpcode uint16

func (eo ErrOpcode) Error() string {
	return f("bad opcode 0x%04x", uint16(eo))
}

func (eo ErrOpcode) Is(err error) (ok bool) {
	_, ok = err.(ErrOpcode)
	return
}

// ErrFault records where the core crashed.
type ErrFault struct {
	Pc    uint32
	Cycle uint64
	Err   error
}

func (err *ErrFault) Error() string {
	return f("pc 0x%05x cycle %v %v", err.Pc, err.Cycle, err.Err)
}

func (err *ErrFault) Unwrap() error {
	return err.Err
}
