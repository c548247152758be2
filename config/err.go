// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package config

import (
	"errors"

	"github.com/ezrec/simduino/translate"
)

var f = translate.From

var (
	ErrConfigType   = errors.New(f("config value has wrong type"))
	ErrConfigScript = errors.New(f("config script failed"))
)

// ErrType is a config global holding a value of the wrong type.
type ErrType struct {
	Key  string
	Want string
	Got  string
	Err  error // Optional detail.
}

func (err *ErrType) Error() string {
	if err.Err != nil {
		return f("%v: want %v, got %v: %v", err.Key, err.Want, err.Got, err.Err)
	}
	return f("%v: want %v, got %v", err.Key, err.Want, err.Got)
}

func (err *ErrType) Unwrap() error {
	return err.Err
}

func (err *ErrType) Is(target error) bool {
	return target == ErrConfigType
}

// ErrScript is a config script that could not be read or executed.
type ErrScript struct {
	Path string
	Err  error
}

func (err *ErrScript) Error() string {
	return f("%v: %v", err.Path, err.Err)
}

func (err *ErrScript) Unwrap() error {
	return err.Err
}

func (err *ErrScript) Is(target error) bool {
	return target == ErrConfigScript
}
