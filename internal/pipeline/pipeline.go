// Package pipeline drives a conversion from encoded image bytes to
// packed controller planes: decode, transform, quantize, pack.
package pipeline

import (
	"github.com/rmitchellscott/epdkit/internal/decode"
	"github.com/rmitchellscott/epdkit/internal/plane"
	"github.com/rmitchellscott/epdkit/internal/quant"
	"github.com/rmitchellscott/epdkit/internal/raster"
)

// Options selects the conversion applied to one source image.
// Transforms run in a fixed order ahead of quantization: invert, then
// vertical flip, then mirror, then rotation.
type Options struct {
	Class  quant.Class
	Dither bool
	Invert bool
	Flip   bool // reverse row order
	Mirror bool // reflect horizontally
	Rotate int  // clockwise degrees, multiple of 90
}

// Result carries the packed planes of a finished conversion along with
// what was learned about the source on the way.
type Result struct {
	Set          *plane.Set
	SourceFormat string
	SourceDepth  raster.Depth
}

// Run converts one encoded image according to opts.
//
// Dithered mono renders through error diffusion into a 1bpp buffer
// whose bits are the final codes. Dithered color rewrites the buffer
// to palette representatives first, so the classification that feeds
// the packer is exact. Without dithering the classifier reads the
// transformed source directly.
func Run(data []byte, opts Options) (*Result, error) {
	buf, format, err := decode.Decode(data)
	if err != nil {
		return nil, err
	}
	res := &Result{SourceFormat: format, SourceDepth: buf.Depth}

	if opts.Invert {
		buf.Invert()
	}
	if opts.Flip {
		buf.FlipVertical()
	}
	if opts.Mirror {
		buf.Mirror()
	}
	if opts.Rotate != 0 {
		if err := buf.Rotate(opts.Rotate); err != nil {
			return nil, err
		}
	}

	switch {
	case opts.Dither && opts.Class == quant.BW:
		mono, err := quant.DiffuseMono(buf)
		if err != nil {
			return nil, err
		}
		res.Set = plane.Pack(mono.Width, mono.Height, quant.BW, mono.Bit)
	case opts.Dither:
		if err := quant.DiffuseColor(buf, opts.Class); err != nil {
			return nil, err
		}
		res.Set = packClassified(buf, opts.Class)
	default:
		res.Set = packClassified(buf, opts.Class)
	}
	return res, nil
}

func packClassified(buf *raster.Buffer, class quant.Class) *plane.Set {
	sample := buf.Sampler()
	return plane.Pack(buf.Width, buf.Height, class, func(x, y int) uint8 {
		r, g, b := sample(x, y)
		return class.Classify(r, g, b)
	})
}
