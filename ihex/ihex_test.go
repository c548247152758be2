// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package ihex

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		name  string
		lines []string
		base  uint32
		data  []byte
		start uint32
	}){
		{"jmp", []string{
			":020000000C945E",
			":00000001FF",
		}, 0x0000, []byte{0x0c, 0x94}, 0},
		{"gap", []string{
			":0200000001FFFE",
			":020004000203F5",
			":00000001FF",
		}, 0x0000, []byte{0x01, 0xff, 0xff, 0xff, 0x02, 0x03}, 0},
		{"linear", []string{
			":020000040001F9",
			":020010000A0BD9",
			":00000001FF",
		}, 0x10010, []byte{0x0a, 0x0b}, 0},
		{"segment", []string{
			":020000021000EC",
			":0100000055AA",
			":00000001FF",
		}, 0x10000, []byte{0x55}, 0},
		{"no-eof", []string{
			":020000000C945E",
		}, 0x0000, []byte{0x0c, 0x94}, 0},
		{"blank-lines", []string{
			"",
			":020000000C945E",
			"   ",
			":00000001FF",
		}, 0x0000, []byte{0x0c, 0x94}, 0},
		{"overlap", []string{
			":020000000C945E",
			":01000100AA54",
			":00000001FF",
		}, 0x0000, []byte{0x0c, 0xaa}, 0},
	}

	for _, entry := range table {
		img, err := Parse(strings.NewReader(strings.Join(entry.lines, "\n")))
		if !assert.NoError(err, entry.name) {
			continue
		}
		assert.Equal(entry.base, img.Base, entry.name)
		assert.Equal(entry.data, img.Data, entry.name)
		assert.Equal(len(entry.data), img.Len(), entry.name)
		assert.False(img.HasStart, entry.name)
	}
}

func TestParseStart(t *testing.T) {
	assert := assert.New(t)

	img, err := Parse(strings.NewReader(strings.Join([]string{
		":020000000C945E",
		":04000005000078007F",
		":00000001FF",
	}, "\n")))
	assert.NoError(err)
	assert.True(img.HasStart)
	assert.Equal(uint32(0x7800), img.Start)
	assert.Equal(uint32(2), img.End())
}

func TestParseMalformed(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		name   string
		lines  []string
		lineno int
		err    error
	}){
		{"mark", []string{"020000000C94FE"}, 1, ErrRecordStart},
		{"hex", []string{":02000000ZZ94FE"}, 1, ErrRecordHex},
		{"odd", []string{":020000000C94F"}, 1, ErrRecordHex},
		{"short", []string{":0200"}, 1, ErrRecordLength},
		{"count", []string{":030000000C94FE"}, 1, ErrRecordLength},
		{"checksum", []string{":020000000C945F"}, 1, ErrRecordChecksum},
		{"type", []string{":00000009F7"}, 1, ErrRecordType},
		{"second", []string{":020000000C945E", ":020000000C945F"}, 2, ErrRecordChecksum},
		{"empty", []string{":00000001FF"}, 1, ErrRecordEmpty},
		{"wrap", []string{":02000004FFFFFC", ":04FFF000000000000D", ":08FFF800000000000000000001", ":00000001FF"}, 3, ErrRecordAddress},
		{"top", []string{":02000004FFFFFC", ":04FFFC000000000001"}, 2, ErrRecordAddress},
		{"sparse", []string{":01000000AA55", ":02000004FFF00B", ":01000000AA55", ":00000001FF"}, 4, ErrRecordSpan},
		{"span", []string{":01000000AA55", ":020000040004F6", ":01000000AA55"}, 3, ErrRecordSpan},
		{"long", []string{":01000000AA55", ":" + strings.Repeat("00", 40000)}, 2, ErrRecordLength},
	}

	for _, entry := range table {
		_, err := Parse(strings.NewReader(strings.Join(entry.lines, "\n")))
		assert.ErrorIs(err, ErrImageMalformed, entry.name)
		assert.ErrorIs(err, entry.err, entry.name)
		assert.NotErrorIs(err, ErrImageNotFound, entry.name)

		var rec *ErrRecord
		if assert.True(errors.As(err, &rec), entry.name) {
			assert.Equal(entry.lineno, rec.LineNo, entry.name)
		}
	}
}

func TestParseSpan(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	img, err := Parse(strings.NewReader(strings.Join([]string{
		":01000000AA55",
		":020000040003F7",
		":01FFFF00BB46",
		":00000001FF",
	}, "\n")))
	require.NoError(err)
	assert.Equal(uint32(0), img.Base)
	assert.Equal(MAX_IMAGE_SPAN, img.Len())
	assert.Equal(byte(0xaa), img.Data[0])
	assert.Equal(byte(ERASED), img.Data[1])
	assert.Equal(byte(0xbb), img.Data[MAX_IMAGE_SPAN-1])

	img, err = Parse(strings.NewReader(strings.Join([]string{
		":02000004FFFFFC",
		":04FFF000000000000D",
	}, "\n")))
	require.NoError(err)
	assert.Equal(uint32(0xfffffff0), img.Base)
	assert.Equal(uint32(0xfffffff4), img.End())
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.hex"))
	assert.ErrorIs(err, ErrImageNotFound)
	assert.ErrorIs(err, os.ErrNotExist)
	assert.NotErrorIs(err, ErrImageMalformed)

	good := filepath.Join(dir, "good.hex")
	require.NoError(os.WriteFile(good, []byte(":020000000C945E\r\n:00000001FF\r\n"), 0644))
	img, err := Load(good)
	require.NoError(err)
	assert.Equal([]byte{0x0c, 0x94}, img.Data)

	bad := filepath.Join(dir, "bad.hex")
	require.NoError(os.WriteFile(bad, []byte("garbage\n"), 0644))
	_, err = Load(bad)
	assert.ErrorIs(err, ErrImageMalformed)

	long := filepath.Join(dir, "long.hex")
	require.NoError(os.WriteFile(long, []byte(":"+strings.Repeat("0", 70000)+"\n"), 0644))
	_, err = Load(long)
	assert.ErrorIs(err, ErrImageMalformed)
	assert.ErrorIs(err, ErrRecordLength)
	assert.NotErrorIs(err, ErrImageNotFound)
}

func TestPolicy(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		base    uint32
		variant string
	}){
		{0x0000, DEFAULT_VARIANT},
		{0x7800, DEFAULT_VARIANT},
		{DEFAULT_THRESHOLD - 1, DEFAULT_VARIANT},
		{DEFAULT_THRESHOLD, LARGE_VARIANT},
		{0x3e000, LARGE_VARIANT},
	}

	for _, entry := range table {
		assert.Equal(entry.variant, DefaultPolicy.Variant(entry.base), "base 0x%x", entry.base)
	}

	custom := Policy{Threshold: 0x100, Default: "small", Large: "big"}
	assert.Equal("small", custom.Infer(&FlashImage{Base: 0xff}))
	assert.Equal("big", custom.Infer(&FlashImage{Base: 0x100}))

	nolarge := Policy{Threshold: 0x100, Default: "small"}
	assert.Equal("small", nolarge.Variant(0x200))
}
