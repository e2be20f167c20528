package quant

import (
	"github.com/rmitchellscott/epdkit/internal/raster"
)

// Error diffusion state lives in two places: a forward carry that rides
// along the current row, and a column-indexed buffer of error banked
// for the next row. The buffer keeps one guard column on each side so
// edge pixels can deposit their shares without bounds checks; guard
// contents are never read back into a live pixel.
//
// The residual of each quantized pixel splits 7:1:5:3 sixteenths using
// halving shifts only, so repeated passes cannot drift: the forward
// share and the next-row shares each sum to exactly half the residual
// (less the dropped low bit).
func split(v int32) (e1, e2, e3, e4 int32) {
	h := v >> 1
	e1 = (7 * h) >> 3 // 7/16 forward
	e2 = h - e1       // 1/16 next row, one column ahead
	e3 = (5 * h) >> 3 // 5/16 next row, same column
	e4 = h - e3       // 3/16 next row, one column behind
	return
}

// DiffuseMono renders any-depth source into a freshly allocated 1bpp
// buffer using Floyd-Steinberg diffusion of the green-weighted gray
// value. Source gray is scaled by 2/3 before diffusion and the scaled
// value thresholds at 0x80; rows pack MSB-first, and the unused low
// bits of a ragged final byte are set to ones.
func DiffuseMono(src *raster.Buffer) (*raster.Buffer, error) {
	dst, err := raster.NewBuffer(src.Width, src.Height, raster.Depth1, nil)
	if err != nil {
		return nil, err
	}
	sample := src.Sampler()
	acc := make([]int32, src.Width+2)

	for y := 0; y < src.Height; y++ {
		row := dst.Pix[y*dst.Pitch:]
		var carry int32
		var out byte
		di := 0
		for x := 0; x < src.Width; x++ {
			r, g, b := sample(x, y)
			v := int32(Gray(r, g, b)) * 2 / 3
			v += carry
			if v > 255 {
				v = 255
			}
			out <<= 1
			out |= byte(v>>7) & 1
			if x&7 == 7 {
				row[di] = out
				di++
				out = 0
			}
			e1, e2, e3, e4 := split(v - (v & 0x80))
			carry = e1 + acc[x+2]
			acc[x+2] = e2
			acc[x+1] += e3
			acc[x] += e4
		}
		if k := src.Width & 7; k != 0 {
			out <<= uint(8 - k)
			row[di] = out | byte(1<<uint(8-k)-1)
		}
	}
	return dst, nil
}

// DiffuseColor dithers a true-color buffer in place toward the class
// palette. Each pixel's channels are error-adjusted, clamped, matched
// to the nearest palette color, and overwritten with that color's
// representative RGB, so a following non-dithered classification pass
// is lossless. Sources below 24bpp cannot feed the three-channel
// residuals and are rejected with a DepthError before any pixel is
// touched.
func DiffuseColor(src *raster.Buffer, class Class) error {
	if src.Depth != raster.Depth24 && src.Depth != raster.Depth32 {
		return &DepthError{Class: class, Depth: src.Depth}
	}
	step := 3
	if src.Depth == raster.Depth32 {
		step = 4
	}
	// Interleaved R,G,B error columns with one guard column per side.
	acc := make([]int32, 3*(src.Width+2))

	for y := 0; y < src.Height; y++ {
		row := src.Pix[y*src.Pitch:]
		var carryR, carryG, carryB int32
		p := 3
		off := 0
		for x := 0; x < src.Width; x++ {
			r1 := clamp8(int32(row[off+2]) + carryR)
			g1 := clamp8(int32(row[off+1]) + carryG)
			b1 := clamp8(int32(row[off]) + carryB)
			qr, qg, qb := class.Nearest(r1, g1, b1)

			e1, e2, e3, e4 := split(int32(r1) - int32(qr))
			carryR = e1 + acc[p+3]
			acc[p+3] = e2
			acc[p] += e3
			acc[p-3] += e4

			e1, e2, e3, e4 = split(int32(g1) - int32(qg))
			carryG = e1 + acc[p+4]
			acc[p+4] = e2
			acc[p+1] += e3
			acc[p-2] += e4

			e1, e2, e3, e4 = split(int32(b1) - int32(qb))
			carryB = e1 + acc[p+5]
			acc[p+5] = e2
			acc[p+2] += e3
			acc[p-1] += e4

			row[off] = qb
			row[off+1] = qg
			row[off+2] = qr
			p += 3
			off += step
		}
	}
	return nil
}

func clamp8(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
