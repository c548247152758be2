// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package ihex

import (
	"errors"

	"github.com/ezrec/simduino/translate"
)

var f = translate.From

var (
	// Loader errors
	ErrImageNotFound  = errors.New(f("image not found"))
	ErrImageMalformed = errors.New(f("image malformed"))

	// Record errors, all of which are also ErrImageMalformed.
	ErrRecordStart    = errors.New(f("missing ':' record mark"))
	ErrRecordHex      = errors.New(f("invalid hex digits"))
	ErrRecordLength   = errors.New(f("record length mismatch"))
	ErrRecordChecksum = errors.New(f("checksum mismatch"))
	ErrRecordType     = errors.New(f("unknown record type"))
	ErrRecordEmpty    = errors.New(f("no data records"))
	ErrRecordAddress  = errors.New(f("data record beyond 32-bit address space"))
	ErrRecordSpan     = errors.New(f("image spans more than the largest flash"))
)

// ErrRecord locates a malformed record in an image.
type ErrRecord struct {
	LineNo int
	Err    error
}

func (err *ErrRecord) Error() string {
	return f("line %d %v", err.LineNo, err.Err)
}

func (err *ErrRecord) Unwrap() error {
	return err.Err
}

func (err *ErrRecord) Is(target error) bool {
	return target == ErrImageMalformed
}

// ErrOpen wraps a failure to open or read an image file.
type ErrOpen struct {
	Path string
	Err  error
}

func (err *ErrOpen) Error() string {
	if len(err.Path) == 0 {
		return err.Err.Error()
	}
	return f("%v: %v", err.Path, err.Err)
}

func (err *ErrOpen) Unwrap() error {
	return err.Err
}

func (err *ErrOpen) Is(target error) bool {
	return target == ErrImageNotFound
}
