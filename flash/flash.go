// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package flash persists simulated flash memory in a backing file.
//
// The backing file is a raw image exactly FlashEnd()+1 bytes long. It is
// read in full when a core attaches and rewritten in full when it detaches,
// so a core can treat flash as ordinary memory while its contents survive
// across sessions.
//
// Two sessions must never share a backing file at the same time; this is
// not enforced.
package flash

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/ezrec/simduino/cpu"
	"github.com/ezrec/simduino/internal"
)

const (
	DEFAULT_PREFIX = "simduino"
	FILE_MODE      = 0644
)

// Path returns the backing file path for a variant.
func Path(prefix, variant string) string {
	if len(prefix) == 0 {
		prefix = DEFAULT_PREFIX
	}
	return fmt.Sprintf("%v_%v_flash.bin", prefix, variant)
}

// Backing is a flash backing file.
type Backing struct {
	Path string

	file   *os.File
	writes int
}

var _ cpu.Persistence = (*Backing)(nil)

// New creates a backing for the file at path.
func New(path string) *Backing {
	return &Backing{Path: path}
}

// Attached reports whether the backing file is open.
func (b *Backing) Attached() bool {
	return b.file != nil
}

// Writes returns the number of completed saves.
func (b *Backing) Writes() int {
	return b.writes
}

// Attach opens the backing file and loads it into flash.
//
// A missing or empty file is created zero-filled, and a longer file is
// truncated. A non-empty file shorter than flash is a damaged store and
// fails with ErrShortRead.
func (b *Backing) Attach(mem cpu.Memory) (err error) {
	if b.file != nil {
		err = &ErrPersistence{Op: "attach", Path: b.Path, Err: ErrAttached}
		return
	}

	size := int(mem.FlashEnd()) + 1
	log := internal.Logger().With(zap.String("path", b.Path))

	file, err := os.OpenFile(b.Path, os.O_RDWR|os.O_CREATE, FILE_MODE)
	if err != nil {
		err = &ErrPersistence{Op: "attach", Path: b.Path, Err: err}
		return
	}
	defer func() {
		if err != nil {
			file.Close()
		}
	}()

	info, err := file.Stat()
	if err != nil {
		err = &ErrPersistence{Op: "attach", Path: b.Path, Err: err}
		return
	}

	switch have := info.Size(); {
	case have == 0:
		log.Debug("flash: create", zap.Int("size", size))
		err = file.Truncate(int64(size))
	case have > int64(size):
		log.Warn("flash: truncate", zap.Int64("from", have), zap.Int("size", size))
		err = file.Truncate(int64(size))
	case have < int64(size):
		err = &ErrPersistence{Op: "attach", Path: b.Path, Count: int(have), Want: size, Err: ErrShortRead}
		return
	}
	if err != nil {
		err = &ErrPersistence{Op: "attach", Path: b.Path, Err: err}
		return
	}

	n, err := io.ReadFull(file, mem.Flash()[:size])
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			err = ErrShortRead
		}
		err = &ErrPersistence{Op: "attach", Path: b.Path, Count: n, Want: size, Err: err}
		return
	}

	b.file = file
	log.Debug("flash: attach", zap.Int("size", size))

	return
}

// Detach writes flash back to the backing file and closes it. The file is
// closed exactly once, even when the write fails.
func (b *Backing) Detach(mem cpu.Memory) (err error) {
	file := b.file
	if file == nil {
		err = &ErrPersistence{Op: "detach", Path: b.Path, Err: ErrNotAttached}
		return
	}
	b.file = nil

	defer func() {
		cerr := file.Close()
		if err == nil && cerr != nil {
			err = &ErrPersistence{Op: "detach", Path: b.Path, Err: cerr}
		}
	}()

	size := int(mem.FlashEnd()) + 1

	_, err = file.Seek(0, io.SeekStart)
	if err != nil {
		err = &ErrPersistence{Op: "detach", Path: b.Path, Err: err}
		return
	}

	n, err := file.Write(mem.Flash()[:size])
	if n != size {
		if err == nil || errors.Is(err, io.ErrShortWrite) {
			err = ErrShortWrite
		}
		err = &ErrPersistence{Op: "detach", Path: b.Path, Count: n, Want: size, Err: err}
		return
	}
	err = nil

	b.writes++
	internal.Logger().Debug("flash: detach", zap.String("path", b.Path), zap.Int("size", size))

	return
}
