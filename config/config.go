// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package config reads session settings from a Starlark script.
//
// A script is plain top-level assignments:
//
//	mcu = "atmega2560"
//	frequency = 16 * MHZ
//	image = "blink.hex"
//	watch = ["B5", ("D", 3)]
//
// Globals the script defines that are not settings are ignored, so a script
// is free to compute its settings with helpers.
package config

import (
	"math"
	"os"
	"slices"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/ezrec/simduino/internal"
	"github.com/ezrec/simduino/pins"
)

const (
	KEY_MCU       = "mcu"
	KEY_FREQUENCY = "frequency"
	KEY_IMAGE     = "image"
	KEY_PREFIX    = "prefix"
	KEY_THRESHOLD = "threshold"
	KEY_WATCH     = "watch"
	KEY_VERBOSE   = "verbose"
	KEY_DEBUG     = "debug"
)

// Config is the settings found in a script.
type Config struct {
	Mcu       string
	Frequency uint32
	Image     string
	Prefix    string
	Threshold uint32
	Watch     []pins.Key
	Verbose   int
	Debug     bool

	set []string
}

// Has reports whether the script assigned key.
func (cfg *Config) Has(key string) bool {
	return slices.Contains(cfg.set, key)
}

func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"KHZ": starlark.MakeInt(1_000),
		"MHZ": starlark.MakeInt(1_000_000),
	}
}

// Load executes the script at path.
func Load(path string) (cfg *Config, err error) {
	src, err := os.ReadFile(path)
	if err != nil {
		err = &ErrScript{Path: path, Err: err}
		return
	}

	cfg, err = Parse(path, src)
	return
}

// Parse executes the script src, named filename in error messages.
func Parse(filename string, src []byte) (cfg *Config, err error) {
	thread := starlark.Thread{
		Name: filename,
		Print: func(_ *starlark.Thread, msg string) {
			internal.Logger().Info(msg, zap.String("config", filename))
		},
	}
	opts := syntax.FileOptions{}

	globals, err := starlark.ExecFileOptions(&opts, &thread, filename, src, predeclared())
	if err != nil {
		err = &ErrScript{Path: filename, Err: err}
		return
	}

	cfg = &Config{}
	for _, key := range []string{KEY_MCU, KEY_IMAGE, KEY_PREFIX} {
		value, ok := globals[key]
		if !ok {
			continue
		}
		var str string
		str, err = asString(key, value)
		if err != nil {
			cfg = nil
			return
		}
		switch key {
		case KEY_MCU:
			cfg.Mcu = str
		case KEY_IMAGE:
			cfg.Image = str
		case KEY_PREFIX:
			cfg.Prefix = str
		}
		cfg.set = append(cfg.set, key)
	}

	for _, key := range []string{KEY_FREQUENCY, KEY_THRESHOLD} {
		value, ok := globals[key]
		if !ok {
			continue
		}
		var num uint32
		num, err = asUint32(key, value)
		if err != nil {
			cfg = nil
			return
		}
		switch key {
		case KEY_FREQUENCY:
			cfg.Frequency = num
		case KEY_THRESHOLD:
			cfg.Threshold = num
		}
		cfg.set = append(cfg.set, key)
	}

	if value, ok := globals[KEY_VERBOSE]; ok {
		switch st := value.(type) {
		case starlark.Bool:
			if st {
				cfg.Verbose = 1
			}
		case starlark.Int:
			level, ok := st.Int64()
			if !ok || level < 0 || level > math.MaxInt32 {
				err = &ErrType{Key: KEY_VERBOSE, Want: "level", Got: st.String()}
				cfg = nil
				return
			}
			cfg.Verbose = int(level)
		default:
			err = &ErrType{Key: KEY_VERBOSE, Want: "bool or int", Got: value.Type()}
			cfg = nil
			return
		}
		cfg.set = append(cfg.set, KEY_VERBOSE)
	}

	if value, ok := globals[KEY_DEBUG]; ok {
		st, ok := value.(starlark.Bool)
		if !ok {
			err = &ErrType{Key: KEY_DEBUG, Want: "bool", Got: value.Type()}
			cfg = nil
			return
		}
		cfg.Debug = bool(st)
		cfg.set = append(cfg.set, KEY_DEBUG)
	}

	if value, ok := globals[KEY_WATCH]; ok {
		cfg.Watch, err = asWatch(value)
		if err != nil {
			cfg = nil
			return
		}
		cfg.set = append(cfg.set, KEY_WATCH)
	}

	return
}

func asString(key string, value starlark.Value) (str string, err error) {
	st, ok := value.(starlark.String)
	if !ok {
		err = &ErrType{Key: key, Want: "string", Got: value.Type()}
		return
	}
	str = string(st)
	return
}

func asUint32(key string, value starlark.Value) (num uint32, err error) {
	switch st := value.(type) {
	case starlark.Int:
		u64, ok := st.Uint64()
		if !ok || u64 > math.MaxUint32 {
			err = &ErrType{Key: key, Want: "uint32", Got: st.String()}
			return
		}
		num = uint32(u64)
	case starlark.Float:
		if st < 0 || st > math.MaxUint32 {
			err = &ErrType{Key: key, Want: "uint32", Got: st.String()}
			return
		}
		num = uint32(st)
	default:
		err = &ErrType{Key: key, Want: "int", Got: value.Type()}
	}
	return
}

// asWatch converts a list or tuple of "B5" strings and ("B", 5) pairs.
func asWatch(value starlark.Value) (keys []pins.Key, err error) {
	seq, ok := value.(starlark.Indexable)
	if _, str := value.(starlark.String); !ok || str {
		err = &ErrType{Key: KEY_WATCH, Want: "list", Got: value.Type()}
		return
	}

	for n := range seq.Len() {
		var key pins.Key
		key, err = asPin(seq.Index(n))
		if err != nil {
			keys = nil
			return
		}
		keys = append(keys, key)
	}

	return
}

func asPin(value starlark.Value) (key pins.Key, err error) {
	var name string

	switch st := value.(type) {
	case starlark.String:
		name = string(st)
	case starlark.Tuple:
		if len(st) != 2 {
			err = &ErrType{Key: KEY_WATCH, Want: "(port, pin)", Got: st.String()}
			return
		}
		port, ok := st[0].(starlark.String)
		pin, ok_pin := st[1].(starlark.Int)
		if !ok || !ok_pin {
			err = &ErrType{Key: KEY_WATCH, Want: "(port, pin)", Got: st.String()}
			return
		}
		name = string(port) + pin.String()
	default:
		err = &ErrType{Key: KEY_WATCH, Want: "pin", Got: value.Type()}
		return
	}

	port, pin, err := pins.ParsePin(name)
	if err != nil {
		err = &ErrType{Key: KEY_WATCH, Want: "pin", Got: name, Err: err}
		return
	}

	key = pins.Key{Port: port, Pin: pin}
	return
}
