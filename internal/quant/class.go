package quant

import (
	"fmt"
	"strings"
)

// Class is the fixed target color set a conversion quantizes toward.
type Class int

const (
	BW    Class = iota // black/white, 1 bit, 1 plane
	BWR                // black/white/red, 2 bits, 2 planes
	BWY                // black/white/yellow, 2 bits, 2 planes
	BWYR               // black/white/yellow/red, 2 bits packed, 1 plane
	Gray4              // 4-level grayscale, 2 bits, 2 planes
)

// Code values share a layout across classes: 0 is black and 1 is white.
// BWR/BWY use 2 for the accent color, BWYR uses 2 for yellow and 3 for
// red, Gray4 counts levels 0 (black) through 3 (white).

var classNames = map[Class]string{
	BW:    "bw",
	BWR:   "bwr",
	BWY:   "bwy",
	BWYR:  "bwyr",
	Gray4: "4gray",
}

func (c Class) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// ParseClass maps a user-supplied name to a Class, case-insensitively.
func ParseClass(s string) (Class, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for c, n := range classNames {
		if name == n {
			return c, nil
		}
	}
	return 0, fmt.Errorf("quant: unknown palette class %q (want bw, bwr, bwy, bwyr or 4gray)", s)
}

// CodeBits returns the width of one quantized pixel code.
func (c Class) CodeBits() int {
	if c == BW {
		return 1
	}
	return 2
}

// Planes returns how many memory planes the class emits. Three-color
// and gray classes split their 2-bit codes across two 1-bit planes;
// BWYR keeps both bits packed in a single plane.
func (c Class) Planes() int {
	switch c {
	case BW, BWYR:
		return 1
	default:
		return 2
	}
}

// Colors returns the number of palette entries.
func (c Class) Colors() int {
	switch c {
	case BW:
		return 2
	case BWR, BWY:
		return 3
	default:
		return 4
	}
}

// RGB is a representative display color for one palette code.
type RGB struct {
	R, G, B uint8
}

var (
	repBW    = []RGB{{0, 0, 0}, {255, 255, 255}}
	repBWR   = []RGB{{0, 0, 0}, {255, 255, 255}, {255, 0, 0}}
	repBWY   = []RGB{{0, 0, 0}, {255, 255, 255}, {255, 255, 0}}
	repBWYR  = []RGB{{0, 0, 0}, {255, 255, 255}, {255, 255, 0}, {255, 0, 0}}
	repGray4 = []RGB{{0, 0, 0}, {0x55, 0x55, 0x55}, {0xAA, 0xAA, 0xAA}, {255, 255, 255}}
)

// Representatives returns the display RGB value of each code, indexed
// by code.
func (c Class) Representatives() []RGB {
	switch c {
	case BW:
		return repBW
	case BWR:
		return repBWR
	case BWY:
		return repBWY
	case BWYR:
		return repBWYR
	default:
		return repGray4
	}
}
