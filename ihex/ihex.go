// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package ihex loads Intel HEX firmware images into flat flash images.
//
// All data records of a file are merged into one contiguous image spanning
// the lowest to the highest written address. Gaps between records are filled
// with 0xFF, the value of erased flash.
package ihex

import (
	"bufio"
	"encoding/hex"
	"errors"
	"io"
	"math"
	"os"
	"slices"
	"strings"
)

// Record types.
const (
	RECORD_DATA           = 0x00
	RECORD_EOF            = 0x01
	RECORD_SEGMENT        = 0x02
	RECORD_START_SEGMENT  = 0x03
	RECORD_LINEAR         = 0x04
	RECORD_START_LINEAR   = 0x05
	RECORD_OVERHEAD_BYTES = 5 // count, address (2), type, checksum

	ERASED = 0xFF // Fill value for gaps between records.

	MAX_IMAGE_SPAN = 0x40000 // Largest flash of any supported variant.
)

// FlashImage is a parsed firmware image.
type FlashImage struct {
	Data     []byte // Image contents, starting at Base.
	Base     uint32 // Load address of Data[0].
	Start    uint32 // Start address from a start record, if HasStart.
	HasStart bool   // Set if the image carried a start record.
}

// Len returns the image length in bytes.
func (img *FlashImage) Len() int {
	return len(img.Data)
}

// End returns the address one past the last byte of the image.
func (img *FlashImage) End() uint32 {
	return img.Base + uint32(len(img.Data))
}

type chunk struct {
	addr uint32
	data []byte
}

// Load reads the Intel HEX file at path.
func Load(path string) (img *FlashImage, err error) {
	inf, err := os.Open(path)
	if err != nil {
		err = &ErrOpen{Path: path, Err: err}
		return
	}
	defer inf.Close()

	img, err = Parse(inf)
	if open, ok := err.(*ErrOpen); ok {
		open.Path = path
	}

	return
}

// Parse reads an Intel HEX stream.
func Parse(input io.Reader) (img *FlashImage, err error) {
	scanner := bufio.NewScanner(input)

	var lineno int
	var chunks []chunk
	var upper uint32
	var start uint32
	var has_start bool

	defer func() {
		if err != nil {
			if _, ok := err.(*ErrOpen); !ok {
				err = &ErrRecord{LineNo: lineno, Err: err}
			}
		}
	}()

	for scanner.Scan() {
		lineno++

		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 {
			continue
		}

		var rtype byte
		var addr uint16
		var payload []byte
		rtype, addr, payload, err = decodeRecord(line)
		if err != nil {
			return
		}

		switch rtype {
		case RECORD_DATA:
			if uint64(upper)+uint64(addr)+uint64(len(payload)) > math.MaxUint32 {
				err = ErrRecordAddress
				return
			}
			chunks = append(chunks, chunk{
				addr: upper + uint32(addr),
				data: payload,
			})
		case RECORD_EOF:
			img, err = merge(chunks)
			if err == nil {
				img.Start, img.HasStart = start, has_start
			}
			return
		case RECORD_SEGMENT:
			if len(payload) != 2 {
				err = ErrRecordLength
				return
			}
			upper = (uint32(payload[0])<<8 | uint32(payload[1])) << 4
		case RECORD_LINEAR:
			if len(payload) != 2 {
				err = ErrRecordLength
				return
			}
			upper = (uint32(payload[0])<<8 | uint32(payload[1])) << 16
		case RECORD_START_SEGMENT, RECORD_START_LINEAR:
			if len(payload) != 4 {
				err = ErrRecordLength
				return
			}
			start = uint32(payload[0])<<24 | uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3])
			if rtype == RECORD_START_SEGMENT {
				start = (start>>16)<<4 + (start & 0xffff)
			}
			has_start = true
		default:
			err = ErrRecordType
			return
		}
	}

	err = scanner.Err()
	if errors.Is(err, bufio.ErrTooLong) {
		lineno++
		err = ErrRecordLength
		return
	}
	if err != nil {
		err = &ErrOpen{Err: err}
		return
	}

	// Tolerate a missing EOF record, as many tools do.
	img, err = merge(chunks)
	if err == nil {
		img.Start, img.HasStart = start, has_start
	}
	return
}

// decodeRecord validates a single ':'-prefixed record.
func decodeRecord(line string) (rtype byte, addr uint16, payload []byte, err error) {
	if line[0] != ':' {
		err = ErrRecordStart
		return
	}

	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		err = ErrRecordHex
		return
	}

	if len(raw) < RECORD_OVERHEAD_BYTES || int(raw[0])+RECORD_OVERHEAD_BYTES != len(raw) {
		err = ErrRecordLength
		return
	}

	var sum byte
	for _, b := range raw {
		sum += b
	}
	if sum != 0 {
		err = ErrRecordChecksum
		return
	}

	addr = uint16(raw[1])<<8 | uint16(raw[2])
	rtype = raw[3]
	payload = raw[4 : len(raw)-1]
	return
}

// merge flattens data chunks into a single image. Later chunks overwrite
// earlier ones where they overlap.
func merge(chunks []chunk) (img *FlashImage, err error) {
	chunks = slices.DeleteFunc(chunks, func(c chunk) bool { return len(c.data) == 0 })
	if len(chunks) == 0 {
		err = ErrRecordEmpty
		return
	}

	lo, hi := uint64(chunks[0].addr), uint64(chunks[0].addr)
	for _, c := range chunks {
		lo = min(lo, uint64(c.addr))
		hi = max(hi, uint64(c.addr)+uint64(len(c.data)))
	}

	if hi-lo > MAX_IMAGE_SPAN {
		err = ErrRecordSpan
		return
	}

	data := make([]byte, hi-lo)
	for n := range data {
		data[n] = ERASED
	}
	for _, c := range chunks {
		copy(data[uint64(c.addr)-lo:], c.data)
	}

	img = &FlashImage{
		Data: data,
		Base: uint32(lo),
	}
	return
}
