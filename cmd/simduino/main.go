// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/ezrec/simduino/config"
	"github.com/ezrec/simduino/emulator"
	"github.com/ezrec/simduino/flash"
	"github.com/ezrec/simduino/ihex"
	"github.com/ezrec/simduino/internal"
	"github.com/ezrec/simduino/pins"
	"github.com/ezrec/simduino/shutdown"
	"github.com/ezrec/simduino/translate"
)

const DEFAULT_IMAGE = "./ATmegaBOOT_168_atmega328.ihex"

var f = translate.From

var ErrFlagRange = errors.New(f("flag value out of range"))

// counter is a boolean flag that counts its repetitions.
type counter int

func (c *counter) String() string {
	return strconv.Itoa(int(*c))
}

func (c *counter) Set(value string) (err error) {
	on, err := strconv.ParseBool(value)
	if err != nil {
		return
	}
	if on {
		*c++
	}
	return
}

func (c *counter) IsBoolFlag() bool {
	return true
}

// options is the merged command line and config script.
type options struct {
	debug     bool
	verbose   counter
	mcu       string
	freq      uint
	prefix    string
	script    string
	watch     string
	threshold uint
	image     string
	lang      string

	keys []pins.Key
}

func newLogger(level zap.AtomicLevel) (*zap.Logger, error) {
	var cfg zap.Config
	if term.IsTerminal(int(os.Stderr.Fd())) {
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
		cfg.DisableStacktrace = true
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = level
	return cfg.Build()
}

// toUint32 range checks a numeric flag.
func toUint32(name string, value uint) (num uint32, err error) {
	if uint64(value) > math.MaxUint32 {
		err = fmt.Errorf("%w: -%v=%v", ErrFlagRange, name, value)
		return
	}
	num = uint32(value)
	return
}

func parseWatch(list string) (keys []pins.Key, err error) {
	for name := range strings.SplitSeq(list, ",") {
		name = strings.TrimSpace(name)
		if len(name) == 0 {
			continue
		}
		var port byte
		var pin uint8
		port, pin, err = pins.ParsePin(name)
		if err != nil {
			return
		}
		keys = append(keys, pins.Key{Port: port, Pin: pin})
	}
	return
}

// merge applies the config script to every option not given on the
// command line.
func (opt *options) merge(cfg *config.Config, given map[string]bool) {
	if cfg.Has(config.KEY_MCU) && !given["mcu"] {
		opt.mcu = cfg.Mcu
	}
	if cfg.Has(config.KEY_FREQUENCY) && !given["freq"] {
		opt.freq = uint(cfg.Frequency)
	}
	if cfg.Has(config.KEY_PREFIX) && !given["prefix"] {
		opt.prefix = cfg.Prefix
	}
	if cfg.Has(config.KEY_THRESHOLD) && !given["threshold"] {
		opt.threshold = uint(cfg.Threshold)
	}
	if cfg.Has(config.KEY_WATCH) && !given["watch"] {
		opt.keys = cfg.Watch
	}
	if cfg.Has(config.KEY_VERBOSE) && !given["v"] {
		opt.verbose = counter(cfg.Verbose)
	}
	if cfg.Has(config.KEY_DEBUG) && !given["d"] {
		opt.debug = cfg.Debug
	}
	if cfg.Has(config.KEY_IMAGE) && !given["image"] {
		opt.image = cfg.Image
	}
}

func main() {
	os.Exit(run())
}

func run() (code int) {
	opt := &options{}

	flag.BoolVar(&opt.debug, "d", false, "Request a debug stub")
	flag.Var(&opt.verbose, "v", "Verbose mode (repeat for more)")
	flag.StringVar(&opt.mcu, "mcu", "", "MCU variant (default: inferred from the image)")
	flag.UintVar(&opt.freq, "freq", emulator.DEFAULT_FREQUENCY, "Clock frequency in Hz")
	flag.StringVar(&opt.prefix, "prefix", flash.DEFAULT_PREFIX, "Flash backing file prefix")
	flag.StringVar(&opt.script, "config", "", ".star config script to use")
	flag.StringVar(&opt.watch, "watch", "B5", "Comma separated pins to watch")
	flag.UintVar(&opt.threshold, "threshold", ihex.DEFAULT_THRESHOLD, "Image base at or above which the large MCU is used")
	flag.StringVar(&opt.lang, "lang", "", "Message language (default: system locale)")

	flag.Parse()

	if len(opt.lang) != 0 {
		translate.Use(opt.lang)
	}

	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	log, err := newLogger(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v: %v\n", os.Args[0], err)
		code = 1
		return
	}
	defer log.Sync()
	internal.SetLogger(log)

	opt.image = DEFAULT_IMAGE
	given := map[string]bool{}
	flag.Visit(func(fl *flag.Flag) {
		given[fl.Name] = true
	})

	for _, arg := range flag.Args() {
		if !strings.HasSuffix(arg, ".hex") && !strings.HasSuffix(arg, ".ihex") {
			log.Error(f("%v: invalid argument %v", os.Args[0], arg))
			code = 1
			return
		}
		opt.image = arg
		given["image"] = true
	}

	opt.keys, err = parseWatch(opt.watch)
	if err != nil {
		log.Error(f("%v: %v", os.Args[0], err))
		code = 1
		return
	}

	if len(opt.script) != 0 {
		var cfg *config.Config
		cfg, err = config.Load(opt.script)
		if err != nil {
			log.Error(f("%v: %v", os.Args[0], err))
			code = 1
			return
		}
		opt.merge(cfg, given)
	}

	if opt.verbose > 0 {
		level.SetLevel(zap.DebugLevel)
	}

	policy := ihex.DefaultPolicy
	freq, err := toUint32("freq", opt.freq)
	if err == nil {
		policy.Threshold, err = toUint32("threshold", opt.threshold)
	}
	if err != nil {
		log.Error(f("%v: %v", os.Args[0], err))
		code = 1
		return
	}

	img, err := ihex.Load(opt.image)
	if err != nil {
		log.Error(f("%v: Unable to load %v", os.Args[0], opt.image), zap.Error(err))
		code = 1
		return
	}

	if len(opt.mcu) == 0 {
		opt.mcu = policy.Infer(img)
	}

	ctl := shutdown.New()
	ctl.Install()
	defer ctl.Close()

	s := emulator.NewSession()
	s.Verbose = opt.verbose > 1
	s.Debug = opt.debug
	s.Variant = opt.mcu
	s.Frequency = freq
	s.FlashPrefix = opt.prefix
	s.StopFlag = ctl

	err = s.Configure(img)
	if err != nil {
		log.Error(f("%v: Error creating the AVR core", os.Args[0]), zap.Error(err))
		code = 1
		return
	}

	for _, key := range opt.keys {
		_, err = s.Pins().Subscribe(key.Port, key.Pin, func(port byte, pin uint8, value uint8) {
			log.Info(f("Pin state changed: %d", value), zap.Stringer("pin", pins.Key{Port: port, Pin: pin}))
		}, nil)
		if err != nil {
			log.Warn(f("%v: not watching %v", os.Args[0], key), zap.Error(err))
		}
	}

	outcome, err := s.Run(context.Background())
	if err != nil {
		log.Error(f("%v: %v", os.Args[0], err))
	}
	if outcome == emulator.OutcomeCrashed {
		log.Warn(f("%v: %v", os.Args[0], s.Fault()))
	}

	return
}
