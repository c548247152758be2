// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package pins

import (
	"errors"

	"github.com/ezrec/simduino/cpu"
	"github.com/ezrec/simduino/translate"
)

var f = translate.From

var (
	ErrPortInvalid  = cpu.ErrPortInvalid
	ErrPinInvalid   = cpu.ErrPinInvalid
	ErrCallbackNil  = errors.New(f("callback missing"))
	ErrPinSyntax    = errors.New(f("pin syntax"))
	ErrBridgeClosed = errors.New(f("bridge closed"))
)

// ErrPin names the pin a subscription failed for.
type ErrPin struct {
	Port byte
	Pin  uint8
	Err  error
}

func (err *ErrPin) Error() string {
	return f("P%c%d %v", err.Port, err.Pin, err.Err)
}

func (err *ErrPin) Unwrap() error {
	return err.Err
}

// ErrPinName is a pin name that does not parse.
type ErrPinName string

func (en ErrPinName) Error() string {
	return f("'%v' is not a pin name", string(en))
}

func (en ErrPinName) Is(err error) bool {
	return err == ErrPinSyntax
}
