// Package decode turns BMP, PNG and JPEG files into raster buffers.
//
// BMP files are parsed natively so indexed sources keep their bit depth
// and palette instead of being widened to true color. PNG and JPEG go
// through the standard image decoders: grayscale images land in an
// 8bpp buffer with an identity palette, everything else in 24bpp.
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"

	_ "image/jpeg"
	_ "image/png"

	"github.com/rmitchellscott/epdkit/internal/raster"
)

// ErrFormat reports input that matches none of the supported image
// containers.
var ErrFormat = errors.New("decode: unrecognized image format")

// Decode sniffs the container from its leading bytes and decodes it
// into a buffer. The returned string names the detected format ("bmp",
// "png" or "jpeg").
func Decode(data []byte) (*raster.Buffer, string, error) {
	if len(data) >= 2 && data[0] == 'B' && data[1] == 'M' {
		buf, err := decodeBMP(data)
		return buf, "bmp", err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", ErrFormat
		}
		return nil, format, fmt.Errorf("decode: %w", err)
	}
	buf, err := fromImage(img)
	return buf, format, err
}

// ReadAll decodes everything r yields. Convenience for file and upload
// handlers that already hold a stream.
func ReadAll(r io.Reader) (*raster.Buffer, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode: %w", err)
	}
	return Decode(data)
}

const (
	fileHeaderSize = 14
	infoHeaderSize = 40
)

// decodeBMP parses an uncompressed Windows BMP. Rows are stored
// bottom-up unless the height field is negative; either way the
// returned buffer has row 0 at the visual top.
func decodeBMP(data []byte) (*raster.Buffer, error) {
	if len(data) < fileHeaderSize+infoHeaderSize {
		return nil, fmt.Errorf("decode: BMP header truncated at %d bytes", len(data))
	}
	offBits := int(binary.LittleEndian.Uint32(data[10:14]))
	width := int(int32(binary.LittleEndian.Uint32(data[18:22])))
	rawHeight := int(int32(binary.LittleEndian.Uint32(data[22:26])))
	bpp := int(binary.LittleEndian.Uint16(data[28:30]))
	compression := binary.LittleEndian.Uint32(data[30:34])

	if compression != 0 {
		return nil, fmt.Errorf("decode: unsupported BMP compression %d", compression)
	}
	depth := raster.Depth(bpp)
	if !depth.Valid() {
		return nil, fmt.Errorf("decode: unsupported BMP depth %dbpp", bpp)
	}
	topDown := false
	height := rawHeight
	if height < 0 {
		topDown = true
		height = -height
	}
	if width <= 0 || height == 0 {
		return nil, fmt.Errorf("decode: invalid BMP dimensions %dx%d", width, rawHeight)
	}

	var pal *raster.Palette
	if depth.Indexed() {
		colors := int(binary.LittleEndian.Uint32(data[46:50]))
		if colors == 0 || colors > 1<<uint(bpp) {
			colors = 1 << uint(bpp)
		}
		// The color table sits immediately before the pixel data as
		// B,G,R,reserved quads.
		off := offBits - 4*colors
		if off < fileHeaderSize+infoHeaderSize || offBits > len(data) {
			return nil, errors.New("decode: BMP palette out of range")
		}
		pal = &raster.Palette{}
		for i := 0; i < colors; i++ {
			pal.B[i] = data[off]
			pal.G[i] = data[off+1]
			pal.R[i] = data[off+2]
			off += 4
		}
	}

	buf, err := raster.NewBuffer(width, height, depth, pal)
	if err != nil {
		return nil, err
	}
	if need := offBits + buf.Pitch*height; need > len(data) {
		return nil, fmt.Errorf("decode: BMP pixel data truncated: need %d bytes, have %d", need, len(data))
	}
	src := data[offBits:]
	for y := 0; y < height; y++ {
		sy := y
		if !topDown {
			sy = height - 1 - y
		}
		copy(buf.Pix[y*buf.Pitch:(y+1)*buf.Pitch], src[sy*buf.Pitch:(sy+1)*buf.Pitch])
	}
	return buf, nil
}

// fromImage converts a decoded standard-library image into a buffer.
func fromImage(img image.Image) (*raster.Buffer, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if g, ok := img.(*image.Gray); ok {
		buf, err := raster.NewBuffer(w, h, raster.Depth8, raster.Identity())
		if err != nil {
			return nil, err
		}
		for y := 0; y < h; y++ {
			copy(buf.Pix[y*buf.Pitch:y*buf.Pitch+w], g.Pix[y*g.Stride:y*g.Stride+w])
		}
		return buf, nil
	}

	buf, err := raster.NewBuffer(w, h, raster.Depth24, nil)
	if err != nil {
		return nil, err
	}
	for y := 0; y < h; y++ {
		row := buf.Pix[y*buf.Pitch:]
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			row[x*3] = uint8(b >> 8)
			row[x*3+1] = uint8(g >> 8)
			row[x*3+2] = uint8(r >> 8)
		}
	}
	return buf, nil
}
