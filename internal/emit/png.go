package emit

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"

	"github.com/rmitchellscott/epdkit/internal/plane"
	"github.com/rmitchellscott/epdkit/internal/quant"
)

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// PreviewPNG renders packed planes back into a viewable PNG. Mono and
// grayscale classes emit grayscale PNGs at their native bit depth, so
// the file holds exactly the levels the panel will show; color classes
// emit a paletted PNG over the representative colors.
func PreviewPNG(s *plane.Set) ([]byte, error) {
	switch s.Class {
	case quant.BW:
		return grayPNG(s, 1), nil
	case quant.Gray4:
		return grayPNG(s, 2), nil
	default:
		return palettedPNG(s)
	}
}

// grayPNG writes a color type 0 PNG by hand. The standard encoder
// always widens to 8-bit grayscale; packing the rows ourselves keeps
// sub-byte depths, and the pixel codes already are the gray levels of
// the target depth.
func grayPNG(s *plane.Set, bitDepth int) []byte {
	perByte := 8 / bitDepth
	rowBytes := (s.Width + perByte - 1) / perByte

	// One filter type byte in front of every packed row.
	raw := make([]byte, s.Height*(rowBytes+1))
	for y := 0; y < s.Height; y++ {
		row := raw[y*(rowBytes+1):]
		row[0] = 0
		for x := 0; x < s.Width; x++ {
			shift := uint((perByte - 1 - x%perByte) * bitDepth)
			row[1+x/perByte] |= s.Code(x, y) << shift
		}
	}

	var out bytes.Buffer
	out.Write(pngSignature)
	writeChunk(&out, "IHDR", func(b *bytes.Buffer) {
		binary.Write(b, binary.BigEndian, uint32(s.Width))
		binary.Write(b, binary.BigEndian, uint32(s.Height))
		b.WriteByte(byte(bitDepth))
		b.WriteByte(0) // color type: grayscale
		b.WriteByte(0) // compression
		b.WriteByte(0) // filter
		b.WriteByte(0) // interlace
	})
	writeChunk(&out, "IDAT", func(b *bytes.Buffer) {
		zw, _ := zlib.NewWriterLevel(b, zlib.BestCompression)
		zw.Write(raw)
		zw.Close()
	})
	writeChunk(&out, "IEND", nil)
	return out.Bytes()
}

func palettedPNG(s *plane.Set) ([]byte, error) {
	reps := s.Class.Representatives()
	pal := make(color.Palette, len(reps))
	for i, c := range reps {
		pal[i] = color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}
	}
	img := image.NewPaletted(image.Rect(0, 0, s.Width, s.Height), pal)
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			img.SetColorIndex(x, y, s.Code(x, y))
		}
	}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("emit: encode preview: %w", err)
	}
	return out.Bytes(), nil
}

// writeChunk writes one PNG chunk: length, type, payload, CRC over
// type plus payload.
func writeChunk(buf *bytes.Buffer, chunkType string, payload func(*bytes.Buffer)) {
	var chunkData bytes.Buffer
	if payload != nil {
		payload(&chunkData)
	}
	data := chunkData.Bytes()

	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.WriteString(chunkType)
	buf.Write(data)

	crc := crc32.NewIEEE()
	crc.Write([]byte(chunkType))
	crc.Write(data)
	binary.Write(buf, binary.BigEndian, crc.Sum32())
}
