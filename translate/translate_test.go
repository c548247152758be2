// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrom(t *testing.T) {
	assert := assert.New(t)

	Use("en-US")

	assert.Equal("atmega328p bootloader 0x07800: 2 bytes",
		From("%v bootloader 0x%05x: %d bytes", "atmega328p", 0x7800, 2))
	assert.Equal("plain", From("plain"))
}

func TestUseUnknown(t *testing.T) {
	assert := assert.New(t)

	Use("not a language tag!")
	assert.Equal("line 3", From("line %d", 3))
}
