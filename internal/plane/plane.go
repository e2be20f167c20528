// Package plane packs quantized pixel codes into the memory planes an
// e-paper controller consumes.
package plane

import (
	"github.com/rmitchellscott/epdkit/internal/quant"
)

// Set holds the packed plane bytes of one converted image.
//
// All planes of a Set share one pitch. Two-plane classes extract bit n
// of each pixel code into plane n, eight pixels per byte; BWYR keeps
// whole 2-bit codes together, four pixels per byte. Bytes fill
// MSB-first and a ragged final byte is left-shifted with zeros in the
// unused low bits.
type Set struct {
	Width  int
	Height int
	Class  quant.Class
	Pitch  int // bytes per row within one plane
	Planes [][]byte
}

// Pack reads every pixel code through code and packs the planes of the
// class. code must be pure: two-plane classes walk the image once per
// plane, the way the controller formats are generated one array at a
// time.
func Pack(width, height int, class quant.Class, code func(x, y int) uint8) *Set {
	s := &Set{
		Width:  width,
		Height: height,
		Class:  class,
		Planes: make([][]byte, class.Planes()),
	}
	if class == quant.BWYR {
		s.Pitch = (width + 3) / 4
		s.Planes[0] = packPairs(width, height, s.Pitch, code)
		return s
	}
	s.Pitch = (width + 7) / 8
	for n := range s.Planes {
		shift := uint(n)
		s.Planes[n] = packBits(width, height, s.Pitch, func(x, y int) uint8 {
			return (code(x, y) >> shift) & 1
		})
	}
	return s
}

// packBits serializes one bit per pixel, eight per byte.
func packBits(width, height, pitch int, bit func(x, y int) uint8) []byte {
	out := make([]byte, pitch*height)
	for y := 0; y < height; y++ {
		row := out[y*pitch:]
		var uc byte
		di := 0
		for x := 0; x < width; x++ {
			uc <<= 1
			uc |= bit(x, y) & 1
			if x&7 == 7 {
				row[di] = uc
				di++
				uc = 0
			}
		}
		if k := width & 7; k != 0 {
			row[di] = uc << uint(8-k)
		}
	}
	return out
}

// packPairs serializes one 2-bit code per pixel, four per byte, the
// first pixel in the top two bits.
func packPairs(width, height, pitch int, code func(x, y int) uint8) []byte {
	out := make([]byte, pitch*height)
	for y := 0; y < height; y++ {
		row := out[y*pitch:]
		var uc byte
		di := 0
		for x := 0; x < width; x++ {
			uc <<= 2
			uc |= code(x, y) & 3
			if x&3 == 3 {
				row[di] = uc
				di++
				uc = 0
			}
		}
		if k := width & 3; k != 0 {
			row[di] = uc << uint(2*(4-k))
		}
	}
	return out
}

// PlaneSize returns the byte length of one plane.
func (s *Set) PlaneSize() int {
	return s.Pitch * s.Height
}

// Code reads back the packed code of pixel (x,y), recombining plane
// bits for two-plane classes. Previews and panel writes use this to
// walk a Set without keeping the source image around.
func (s *Set) Code(x, y int) uint8 {
	if s.Class == quant.BWYR {
		b := s.Planes[0][y*s.Pitch+(x>>2)]
		return (b >> uint(2*(3-(x&3)))) & 3
	}
	var c uint8
	for n := len(s.Planes) - 1; n >= 0; n-- {
		b := s.Planes[n][y*s.Pitch+(x>>3)]
		c <<= 1
		c |= (b >> uint(7-(x&7))) & 1
	}
	return c
}

// Bytes returns a copy of all planes concatenated in plane order, the
// layout raw exports and panel transfers use.
func (s *Set) Bytes() []byte {
	out := make([]byte, 0, len(s.Planes)*s.PlaneSize())
	for _, p := range s.Planes {
		out = append(out, p...)
	}
	return out
}
