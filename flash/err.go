// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package flash

import (
	"errors"

	"github.com/ezrec/simduino/translate"
)

var f = translate.From

var (
	// ErrPersistenceIO matches every *ErrPersistence.
	ErrPersistenceIO = errors.New(f("flash persistence"))

	ErrShortRead   = errors.New(f("short read"))
	ErrShortWrite  = errors.New(f("short write"))
	ErrAttached    = errors.New(f("already attached"))
	ErrNotAttached = errors.New(f("not attached"))
)

// ErrPersistence is a failure to load or save the backing file.
type ErrPersistence struct {
	Op    string // "attach" or "detach"
	Path  string
	Count int // Bytes transferred, for short transfers.
	Want  int // Bytes expected, for short transfers.
	Err   error
}

func (err *ErrPersistence) Error() string {
	if err.Want != 0 {
		return f("%v %v: %v (%d of %d bytes)", err.Op, err.Path, err.Err, err.Count, err.Want)
	}
	return f("%v %v: %v", err.Op, err.Path, err.Err)
}

func (err *ErrPersistence) Unwrap() error {
	return err.Err
}

func (err *ErrPersistence) Is(target error) bool {
	return target == ErrPersistenceIO
}
