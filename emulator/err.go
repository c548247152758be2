// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package emulator

import (
	"errors"

	"github.com/ezrec/simduino/translate"
)

var f = translate.From

var (
	// Session errors
	ErrEngineAllocation = errors.New(f("engine allocation failed"))
	ErrImageRange       = errors.New(f("image outside flash"))
	ErrConfigured       = errors.New(f("session already configured"))
	ErrNotConfigured    = errors.New(f("session not configured"))
	ErrFinished         = errors.New(f("session already ran"))
	ErrEngineCrashed    = errors.New(f("engine crashed"))
)

// ErrAllocation names the variant an engine could not be allocated for.
type ErrAllocation struct {
	Variant string
	Err     error
}

func (err *ErrAllocation) Error() string {
	return f("%v: %v: %v", err.Variant, ErrEngineAllocation, err.Err)
}

func (err *ErrAllocation) Unwrap() error {
	return err.Err
}

func (err *ErrAllocation) Is(target error) bool {
	return target == ErrEngineAllocation
}

// ErrRange is an image that does not fit in flash.
type ErrRange struct {
	Base     uint32
	End      uint32
	FlashEnd uint32
}

func (err *ErrRange) Error() string {
	return f("image 0x%05x-0x%05x beyond flash end 0x%05x", err.Base, err.End, err.FlashEnd)
}

func (err *ErrRange) Is(target error) bool {
	return target == ErrImageRange
}

// ErrCrashed indicates where the simulated firmware crashed.
type ErrCrashed struct {
	Pc    uint32
	Cycle uint64
	Err   error
}

func (err *ErrCrashed) Error() string {
	if err.Err == nil {
		return f("crashed at pc 0x%05x", err.Pc)
	}
	return f("crashed at pc 0x%05x: %v", err.Pc, err.Err)
}

func (err *ErrCrashed) Unwrap() error {
	return err.Err
}

func (err *ErrCrashed) Is(target error) bool {
	return target == ErrEngineCrashed
}
