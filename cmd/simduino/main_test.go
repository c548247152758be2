// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"flag"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezrec/simduino/config"
	"github.com/ezrec/simduino/pins"
)

func TestCounter(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var verbose counter
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&verbose, "v", "verbose")

	require.NoError(fs.Parse([]string{"-v", "-v", "-v=false", "-v", "image.hex"}))
	assert.Equal(counter(3), verbose)
	assert.Equal("3", verbose.String())
	assert.Equal([]string{"image.hex"}, fs.Args())
}

func TestParseWatch(t *testing.T) {
	assert := assert.New(t)

	keys, err := parseWatch("B5, D3,PC0")
	assert.NoError(err)
	assert.Equal([]pins.Key{{Port: 'B', Pin: 5}, {Port: 'D', Pin: 3}, {Port: 'C', Pin: 0}}, keys)

	keys, err = parseWatch("")
	assert.NoError(err)
	assert.Empty(keys)

	_, err = parseWatch("B5,Z")
	assert.ErrorIs(err, pins.ErrPinSyntax)

	_, err = parseWatch("B8")
	assert.ErrorIs(err, pins.ErrPinInvalid)
}

func TestMerge(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	cfg, err := config.Parse("board.star", []byte(`
mcu = "atmega2560"
frequency = 8 * MHZ
prefix = "board"
watch = ["D3"]
verbose = 2
image = "board.hex"
`))
	require.NoError(err)

	opt := &options{
		mcu:   "atmega328p",
		freq:  16_000_000,
		image: DEFAULT_IMAGE,
		keys:  []pins.Key{{Port: 'B', Pin: 5}},
	}
	opt.merge(cfg, map[string]bool{"mcu": true, "image": true})

	assert.Equal("atmega328p", opt.mcu)
	assert.Equal(DEFAULT_IMAGE, opt.image)
	assert.Equal(uint(8_000_000), opt.freq)
	assert.Equal("board", opt.prefix)
	assert.Equal([]pins.Key{{Port: 'D', Pin: 3}}, opt.keys)
	assert.Equal(counter(2), opt.verbose)
	assert.False(opt.debug)
}

func TestToUint32(t *testing.T) {
	assert := assert.New(t)

	num, err := toUint32("freq", 16_000_000)
	assert.NoError(err)
	assert.Equal(uint32(16_000_000), num)

	num, err = toUint32("freq", math.MaxUint32)
	assert.NoError(err)
	assert.Equal(uint32(math.MaxUint32), num)

	big := uint64(math.MaxUint32) + 1
	if uint64(uint(big)) != big {
		t.Skip("uint is 32 bits")
	}
	_, err = toUint32("threshold", uint(big))
	assert.ErrorIs(err, ErrFlagRange)
	assert.ErrorContains(err, "-threshold=4294967296")
}
