package plane

import (
	"bytes"
	"testing"

	"github.com/rmitchellscott/epdkit/internal/quant"
)

func codeGrid(grid [][]uint8) func(x, y int) uint8 {
	return func(x, y int) uint8 {
		return grid[y][x]
	}
}

func TestPackTwoPlane(t *testing.T) {
	// 2x2 red/black over white/white: plane 0 carries the white bits,
	// plane 1 the red bit.
	s := Pack(2, 2, quant.BWR, codeGrid([][]uint8{
		{2, 0},
		{1, 1},
	}))

	if s.Pitch != 1 {
		t.Fatalf("Pitch = %d, want 1", s.Pitch)
	}
	if len(s.Planes) != 2 {
		t.Fatalf("plane count = %d, want 2", len(s.Planes))
	}
	if want := []byte{0x00, 0xC0}; !bytes.Equal(s.Planes[0], want) {
		t.Errorf("plane 0 = %#v, want %#v", s.Planes[0], want)
	}
	if want := []byte{0x80, 0x00}; !bytes.Equal(s.Planes[1], want) {
		t.Errorf("plane 1 = %#v, want %#v", s.Planes[1], want)
	}
}

func TestPackSinglePlaneRagged(t *testing.T) {
	white := Pack(10, 2, quant.BW, func(x, y int) uint8 { return 1 })
	black := Pack(10, 2, quant.BW, func(x, y int) uint8 { return 0 })

	if white.Pitch != 2 {
		t.Fatalf("Pitch = %d, want 2", white.Pitch)
	}
	// The partial byte keeps its two pixels in the top bits and zeros
	// below, whatever the pixel values are.
	if want := []byte{0xFF, 0xC0, 0xFF, 0xC0}; !bytes.Equal(white.Planes[0], want) {
		t.Errorf("white plane = %#v, want %#v", white.Planes[0], want)
	}
	if want := []byte{0x00, 0x00, 0x00, 0x00}; !bytes.Equal(black.Planes[0], want) {
		t.Errorf("black plane = %#v, want %#v", black.Planes[0], want)
	}
}

func TestPackPackedPairs(t *testing.T) {
	s := Pack(5, 1, quant.BWYR, codeGrid([][]uint8{
		{0, 1, 2, 3, 2},
	}))

	if s.Pitch != 2 {
		t.Fatalf("Pitch = %d, want 2", s.Pitch)
	}
	if len(s.Planes) != 1 {
		t.Fatalf("plane count = %d, want 1", len(s.Planes))
	}
	if want := []byte{0x1B, 0x80}; !bytes.Equal(s.Planes[0], want) {
		t.Errorf("plane = %#v, want %#v", s.Planes[0], want)
	}
}

func TestPackCodeRoundTrip(t *testing.T) {
	for _, class := range []quant.Class{quant.BW, quant.BWR, quant.BWY, quant.BWYR, quant.Gray4} {
		t.Run(class.String(), func(t *testing.T) {
			w, h := 13, 5
			colors := uint8(class.Colors())
			code := func(x, y int) uint8 {
				return uint8(x*7+y*3) % colors
			}
			s := Pack(w, h, class, code)
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					if got, want := s.Code(x, y), code(x, y); got != want {
						t.Fatalf("Code(%d,%d) = %d, want %d", x, y, got, want)
					}
				}
			}
		})
	}
}

func TestPlaneSizeAndBytes(t *testing.T) {
	s := Pack(10, 3, quant.BWR, func(x, y int) uint8 { return uint8(x) % 3 })

	if got := s.PlaneSize(); got != 6 {
		t.Fatalf("PlaneSize = %d, want 6", got)
	}
	raw := s.Bytes()
	if len(raw) != 12 {
		t.Fatalf("len(Bytes) = %d, want 12", len(raw))
	}
	if !bytes.Equal(raw[:6], s.Planes[0]) || !bytes.Equal(raw[6:], s.Planes[1]) {
		t.Error("Bytes does not concatenate planes in order")
	}
	raw[0] ^= 0xFF
	if s.Planes[0][0] == raw[0] {
		t.Error("Bytes shares storage with the planes")
	}
}
