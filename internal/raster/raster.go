package raster

import "fmt"

// Depth enumerates the pixel depths a decoded source may carry.
type Depth int

const (
	Depth1  Depth = 1
	Depth4  Depth = 4
	Depth8  Depth = 8
	Depth24 Depth = 24
	Depth32 Depth = 32
)

// Valid reports whether d is one of the supported source depths.
func (d Depth) Valid() bool {
	switch d {
	case Depth1, Depth4, Depth8, Depth24, Depth32:
		return true
	}
	return false
}

// Indexed reports whether pixels of this depth are palette indices.
func (d Depth) Indexed() bool {
	return d == Depth4 || d == Depth8
}

func (d Depth) String() string {
	return fmt.Sprintf("%dbpp", int(d))
}

// Palette holds the color table for indexed (4/8bpp) sources.
// Entries beyond the source's declared color count stay zero.
type Palette struct {
	R [256]uint8
	G [256]uint8
	B [256]uint8
}

// Identity returns a palette mapping every index to the gray of the
// same value, as synthesized for grayscale sources without a real table.
func Identity() *Palette {
	p := &Palette{}
	for i := 0; i < 256; i++ {
		p.R[i] = uint8(i)
		p.G[i] = uint8(i)
		p.B[i] = uint8(i)
	}
	return p
}

// PitchFor returns the row stride in bytes for width pixels at depth d,
// rounded up to a 4-byte boundary.
func PitchFor(width int, d Depth) int {
	return ((width*int(d) + 7) / 8 + 3) &^ 3
}

// Buffer is an owned raster image: packed pixel bytes plus the geometry
// needed to address them. Row 0 is always the visual top row; decoders
// resolve bottom-up storage before handing a Buffer to the pipeline.
// 24/32bpp pixel bytes are stored B,G,R(,X).
type Buffer struct {
	Width  int
	Height int
	Depth  Depth
	Pitch  int
	Pix    []byte
	Pal    *Palette // nil unless Depth is indexed or synthesized gray
}

// NewBuffer allocates a zeroed Buffer with the canonical pitch for its
// width and depth. Indexed depths require a palette.
func NewBuffer(width, height int, depth Depth, pal *Palette) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("raster: invalid dimensions %dx%d", width, height)
	}
	if !depth.Valid() {
		return nil, fmt.Errorf("raster: unsupported depth %d", int(depth))
	}
	if depth.Indexed() && pal == nil {
		return nil, fmt.Errorf("raster: %v source requires a palette", depth)
	}
	pitch := PitchFor(width, depth)
	return &Buffer{
		Width:  width,
		Height: height,
		Depth:  depth,
		Pitch:  pitch,
		Pix:    make([]byte, pitch*height),
		Pal:    pal,
	}, nil
}

// check panics with a BoundsError when (x,y) is outside the image.
// Callers iterate within bounds; an out-of-range index is a bug, not
// a recoverable condition.
func (b *Buffer) check(x, y int) {
	if uint(x) >= uint(b.Width) || uint(y) >= uint(b.Height) {
		panic(&BoundsError{X: x, Y: y, Width: b.Width, Height: b.Height})
	}
}

func (b *Buffer) row(y int) []byte {
	off := y * b.Pitch
	return b.Pix[off : off+b.Pitch]
}

// Bit returns the raw bit at (x,y) of a 1bpp buffer, MSB-first within
// each byte.
func (b *Buffer) Bit(x, y int) uint8 {
	b.check(x, y)
	return (b.row(y)[x>>3] >> (7 - uint(x&7))) & 1
}

// nibble returns the raw 4-bit index at (x,y); even x occupies the high
// nibble.
func (b *Buffer) nibble(x, y int) uint8 {
	v := b.row(y)[x>>1]
	if x&1 == 0 {
		return v >> 4
	}
	return v & 0x0F
}

// Sampler returns the pixel read function for the buffer's depth,
// resolved once so per-pixel work is a single indirect call with no
// depth branching. The returned function yields 8-bit R,G,B; a 1bpp
// set bit reads as white, clear as black.
func (b *Buffer) Sampler() func(x, y int) (r, g, bl uint8) {
	switch b.Depth {
	case Depth1:
		return func(x, y int) (uint8, uint8, uint8) {
			b.check(x, y)
			if b.Bit(x, y) != 0 {
				return 255, 255, 255
			}
			return 0, 0, 0
		}
	case Depth4:
		return func(x, y int) (uint8, uint8, uint8) {
			b.check(x, y)
			i := b.nibble(x, y)
			return b.Pal.R[i], b.Pal.G[i], b.Pal.B[i]
		}
	case Depth8:
		return func(x, y int) (uint8, uint8, uint8) {
			b.check(x, y)
			i := b.row(y)[x]
			return b.Pal.R[i], b.Pal.G[i], b.Pal.B[i]
		}
	case Depth24:
		return func(x, y int) (uint8, uint8, uint8) {
			b.check(x, y)
			p := b.row(y)[x*3:]
			return p[2], p[1], p[0]
		}
	default: // Depth32, ignoring the fourth byte
		return func(x, y int) (uint8, uint8, uint8) {
			b.check(x, y)
			p := b.row(y)[x*4:]
			return p[2], p[1], p[0]
		}
	}
}

// Invert complements every pixel byte in place. Applied before
// classification it swaps dark and light for direct-color sources and
// reverses index order for palettized ones.
func (b *Buffer) Invert() {
	for i := range b.Pix {
		b.Pix[i] = ^b.Pix[i]
	}
}

// Clone returns a deep copy sharing nothing with b.
func (b *Buffer) Clone() *Buffer {
	dup := *b
	dup.Pix = make([]byte, len(b.Pix))
	copy(dup.Pix, b.Pix)
	if b.Pal != nil {
		pal := *b.Pal
		dup.Pal = &pal
	}
	return &dup
}
