// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package ihex

const (
	DEFAULT_THRESHOLD = 0x8000 // First address beyond the atmega328p flash.
	DEFAULT_VARIANT   = "atmega328p"
	LARGE_VARIANT     = "atmega2560"
)

// Policy infers the target variant of an image from its load address.
type Policy struct {
	Threshold uint32 // Images based at or above this address use Large.
	Default   string // Variant for images based below Threshold.
	Large     string // Variant for images based at or above Threshold.
}

// DefaultPolicy sends any image that cannot fit an atmega328p to an atmega2560.
var DefaultPolicy = Policy{
	Threshold: DEFAULT_THRESHOLD,
	Default:   DEFAULT_VARIANT,
	Large:     LARGE_VARIANT,
}

// Variant returns the variant name for an image based at base.
func (p Policy) Variant(base uint32) string {
	if base >= p.Threshold && len(p.Large) != 0 {
		return p.Large
	}
	return p.Default
}

// Infer returns the variant name for img.
func (p Policy) Infer(img *FlashImage) string {
	return p.Variant(img.Base)
}
