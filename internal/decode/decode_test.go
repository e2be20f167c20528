package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"golang.org/x/image/bmp"

	"github.com/rmitchellscott/epdkit/internal/raster"
)

// buildBMP assembles an uncompressed BMP in memory. Palette entries are
// B,G,R triples; rows are given in file order and padded to the dword
// pitch, so bottom-up versus top-down is the caller's choice via the
// sign of height.
func buildBMP(t *testing.T, width, height int32, bpp uint16, pal [][3]byte, rows [][]byte) []byte {
	t.Helper()
	absH := int(height)
	if absH < 0 {
		absH = -absH
	}
	if len(rows) != absH {
		t.Fatalf("buildBMP: %d rows for height %d", len(rows), height)
	}
	pitch := ((int(width)*int(bpp)+7)/8 + 3) &^ 3
	offBits := 14 + 40 + 4*len(pal)
	b := make([]byte, offBits+pitch*absH)
	b[0], b[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(b[2:6], uint32(len(b)))
	binary.LittleEndian.PutUint32(b[10:14], uint32(offBits))
	binary.LittleEndian.PutUint32(b[14:18], 40)
	binary.LittleEndian.PutUint32(b[18:22], uint32(width))
	binary.LittleEndian.PutUint32(b[22:26], uint32(height))
	binary.LittleEndian.PutUint16(b[26:28], 1)
	binary.LittleEndian.PutUint16(b[28:30], bpp)
	binary.LittleEndian.PutUint32(b[46:50], uint32(len(pal)))
	off := 54
	for _, p := range pal {
		b[off], b[off+1], b[off+2] = p[0], p[1], p[2]
		off += 4
	}
	for i, row := range rows {
		if len(row) > pitch {
			t.Fatalf("buildBMP: row %d wider than pitch %d", i, pitch)
		}
		copy(b[offBits+i*pitch:], row)
	}
	return b
}

func samplePixel(t *testing.T, buf *raster.Buffer, x, y int) (uint8, uint8, uint8) {
	t.Helper()
	return buf.Sampler()(x, y)
}

func wantPixel(t *testing.T, buf *raster.Buffer, x, y int, r, g, b uint8) {
	t.Helper()
	gr, gg, gb := samplePixel(t, buf, x, y)
	if gr != r || gg != g || gb != b {
		t.Errorf("pixel (%d,%d) = (%d,%d,%d), want (%d,%d,%d)", x, y, gr, gg, gb, r, g, b)
	}
}

func TestDecodeBMPTrueColorBottomUp(t *testing.T) {
	// File rows run bottom to top: row 0 of the file is the visual
	// bottom row (blue, white), row 1 the visual top (red, green).
	data := buildBMP(t, 2, 2, 24, nil, [][]byte{
		{255, 0, 0, 255, 255, 255},
		{0, 0, 255, 0, 255, 0},
	})

	buf, format, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format != "bmp" {
		t.Errorf("format = %q, want bmp", format)
	}
	if buf.Depth != raster.Depth24 {
		t.Errorf("depth = %v, want 24bpp", buf.Depth)
	}
	wantPixel(t, buf, 0, 0, 255, 0, 0)
	wantPixel(t, buf, 1, 0, 0, 255, 0)
	wantPixel(t, buf, 0, 1, 0, 0, 255)
	wantPixel(t, buf, 1, 1, 255, 255, 255)
}

func TestDecodeBMPTopDown(t *testing.T) {
	data := buildBMP(t, 2, -2, 24, nil, [][]byte{
		{0, 0, 255, 0, 255, 0},
		{255, 0, 0, 255, 255, 255},
	})

	buf, _, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantPixel(t, buf, 0, 0, 255, 0, 0)
	wantPixel(t, buf, 1, 0, 0, 255, 0)
	wantPixel(t, buf, 0, 1, 0, 0, 255)
	wantPixel(t, buf, 1, 1, 255, 255, 255)
}

func TestDecodeBMPIndexed8(t *testing.T) {
	pal := [][3]byte{
		{0, 0, 0},       // 0: black
		{0, 0, 255},     // 1: red
		{0, 255, 0},     // 2: green
		{255, 255, 255}, // 3: white
	}
	data := buildBMP(t, 2, 2, 8, pal, [][]byte{
		{0, 3},
		{1, 2},
	})

	buf, _, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.Depth != raster.Depth8 || buf.Pal == nil {
		t.Fatalf("depth = %v pal = %v, want indexed 8bpp", buf.Depth, buf.Pal != nil)
	}
	wantPixel(t, buf, 0, 0, 255, 0, 0)
	wantPixel(t, buf, 1, 0, 0, 255, 0)
	wantPixel(t, buf, 0, 1, 0, 0, 0)
	wantPixel(t, buf, 1, 1, 255, 255, 255)
}

func TestDecodeBMPIndexed4Ragged(t *testing.T) {
	pal := [][3]byte{
		{10, 20, 30},
		{40, 50, 60},
		{70, 80, 90},
	}
	// Width 3 at 4bpp: indices 1,2,0 pack as 0x12, 0x00.
	data := buildBMP(t, 3, 1, 4, pal, [][]byte{
		{0x12, 0x00},
	})

	buf, _, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantPixel(t, buf, 0, 0, 60, 50, 40)
	wantPixel(t, buf, 1, 0, 90, 80, 70)
	wantPixel(t, buf, 2, 0, 30, 20, 10)
}

func TestDecodeBMP1bpp(t *testing.T) {
	// Pixels 0 and 9 set, everything else clear, MSB first.
	data := buildBMP(t, 10, 1, 1, nil, [][]byte{
		{0x80, 0x40},
	})

	buf, _, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantPixel(t, buf, 0, 0, 255, 255, 255)
	wantPixel(t, buf, 1, 0, 0, 0, 0)
	wantPixel(t, buf, 8, 0, 0, 0, 0)
	wantPixel(t, buf, 9, 0, 255, 255, 255)
}

func TestDecodeBMPErrors(t *testing.T) {
	valid := buildBMP(t, 2, 2, 24, nil, [][]byte{
		{255, 0, 0, 255, 255, 255},
		{0, 0, 255, 0, 255, 0},
	})

	compressed := append([]byte(nil), valid...)
	compressed[30] = 1

	wrongDepth := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint16(wrongDepth[28:30], 16)

	zeroWidth := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(zeroWidth[18:22], 0)

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{name: "compressed", data: compressed, want: "compression"},
		{name: "unsupported depth", data: wrongDepth, want: "depth"},
		{name: "zero width", data: zeroWidth, want: "dimensions"},
		{name: "truncated pixels", data: valid[:len(valid)-5], want: "truncated"},
		{name: "short header", data: valid[:20], want: "header truncated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.data)
			if err == nil {
				t.Fatal("Decode succeeded on bad input")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestDecodeStdlibEncodedBMP(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{G: 255, A: 255})
	img.SetNRGBA(0, 1, color.NRGBA{B: 255, A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	var out bytes.Buffer
	if err := bmp.Encode(&out, img); err != nil {
		t.Fatalf("bmp.Encode: %v", err)
	}

	buf, format, err := Decode(out.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format != "bmp" {
		t.Errorf("format = %q, want bmp", format)
	}
	wantPixel(t, buf, 0, 0, 255, 0, 0)
	wantPixel(t, buf, 1, 0, 0, 255, 0)
	wantPixel(t, buf, 0, 1, 0, 0, 255)
	wantPixel(t, buf, 1, 1, 255, 255, 255)
}

func TestDecodePNGColor(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(40 * x), G: uint8(80 * y), B: 200, A: 255})
		}
	}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}

	buf, format, err := Decode(out.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format != "png" {
		t.Errorf("format = %q, want png", format)
	}
	if buf.Depth != raster.Depth24 {
		t.Errorf("depth = %v, want 24bpp", buf.Depth)
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			wantPixel(t, buf, x, y, uint8(40*x), uint8(80*y), 200)
		}
	}
}

func TestDecodePNGGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 1))
	for x, v := range []uint8{0, 85, 170, 255} {
		img.SetGray(x, 0, color.Gray{Y: v})
	}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}

	buf, _, err := Decode(out.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.Depth != raster.Depth8 {
		t.Fatalf("depth = %v, want 8bpp gray", buf.Depth)
	}
	for x, v := range []uint8{0, 85, 170, 255} {
		wantPixel(t, buf, x, 0, v, v, v)
	}
}

func TestDecodeJPEG(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}

	buf, format, err := Decode(out.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("format = %q, want jpeg", format)
	}
	if buf.Width != 16 || buf.Height != 16 {
		t.Fatalf("dimensions = %dx%d, want 16x16", buf.Width, buf.Height)
	}
	r, _, _ := samplePixel(t, buf, 8, 8)
	if r < 195 || r > 205 {
		t.Errorf("uniform gray decoded to %d, want near 200", r)
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	_, _, err := Decode([]byte("this is not an image at all"))
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("error = %v, want ErrFormat", err)
	}
}
