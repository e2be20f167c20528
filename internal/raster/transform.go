package raster

// bitReverse maps a byte to its bit-reversed value, used to mirror 1bpp
// rows a whole byte at a time.
var bitReverse = func() (t [256]byte) {
	for i := range t {
		v := byte(i)
		v = v>>4 | v<<4
		v = v>>2&0x33 | v<<2&0xCC
		v = v>>1&0x55 | v<<1&0xAA
		t[i] = v
	}
	return
}()

func rowBit(row []byte, x int) uint8 {
	return (row[x>>3] >> (7 - uint(x&7))) & 1
}

func setRowBit(row []byte, x int, v uint8) {
	mask := byte(0x80) >> uint(x&7)
	if v != 0 {
		row[x>>3] |= mask
	} else {
		row[x>>3] &^= mask
	}
}

func rowNibble(row []byte, x int) uint8 {
	v := row[x>>1]
	if x&1 == 0 {
		return v >> 4
	}
	return v & 0x0F
}

func setRowNibble(row []byte, x int, v uint8) {
	if x&1 == 0 {
		row[x>>1] = row[x>>1]&0x0F | v<<4
	} else {
		row[x>>1] = row[x>>1]&0xF0 | v&0x0F
	}
}

// Mirror reflects the image horizontally in place. Pitch and padding
// bytes are untouched.
func (b *Buffer) Mirror() {
	switch b.Depth {
	case Depth1:
		b.mirror1()
	case Depth4:
		b.mirror4()
	case Depth8:
		b.mirrorGroups(1)
	case Depth24:
		b.mirrorGroups(3)
	case Depth32:
		b.mirrorGroups(4)
	}
}

func (b *Buffer) mirror1() {
	if b.Width&7 == 0 {
		// Whole-byte rows reverse byte order and bit order together.
		n := b.Width / 8
		for y := 0; y < b.Height; y++ {
			row := b.row(y)
			for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
				row[i], row[j] = bitReverse[row[j]], bitReverse[row[i]]
			}
			if n&1 == 1 {
				m := n / 2
				row[m] = bitReverse[row[m]]
			}
		}
		return
	}
	for y := 0; y < b.Height; y++ {
		row := b.row(y)
		for x, xr := 0, b.Width-1; x < xr; x, xr = x+1, xr-1 {
			l, r := rowBit(row, x), rowBit(row, xr)
			setRowBit(row, x, r)
			setRowBit(row, xr, l)
		}
	}
}

func (b *Buffer) mirror4() {
	for y := 0; y < b.Height; y++ {
		row := b.row(y)
		for x, xr := 0, b.Width-1; x < xr; x, xr = x+1, xr-1 {
			l, r := rowNibble(row, x), rowNibble(row, xr)
			setRowNibble(row, x, r)
			setRowNibble(row, xr, l)
		}
	}
}

func (b *Buffer) mirrorGroups(size int) {
	var tmp [4]byte
	for y := 0; y < b.Height; y++ {
		row := b.row(y)
		for i, j := 0, (b.Width-1)*size; i < j; i, j = i+size, j-size {
			copy(tmp[:size], row[i:])
			copy(row[i:i+size], row[j:])
			copy(row[j:j+size], tmp[:size])
		}
	}
}

// FlipVertical reverses the row order in place.
func (b *Buffer) FlipVertical() {
	scratch := make([]byte, b.Pitch)
	for y, yr := 0, b.Height-1; y < yr; y, yr = y+1, yr-1 {
		top, bot := b.row(y), b.row(yr)
		copy(scratch, top)
		copy(top, bot)
		copy(bot, scratch)
	}
}

// Rotate turns the image by the given angle in place. 180 degrees is
// flip-then-mirror and works at every depth; 90/270 transpose the pixel
// grid and are defined only for 4bpp sources, other depths get a
// TransformDepthError. Angles that are not a multiple of 90 are a
// RotationError.
func (b *Buffer) Rotate(degrees int) error {
	d := degrees % 360
	if d < 0 {
		d += 360
	}
	switch d {
	case 0:
		return nil
	case 180:
		b.FlipVertical()
		b.Mirror()
		return nil
	case 90, 270:
		if b.Depth != Depth4 {
			return &TransformDepthError{Depth: b.Depth, Degrees: d}
		}
		b.rotate90()
		if d == 270 {
			b.FlipVertical()
			b.Mirror()
		}
		return nil
	default:
		return &RotationError{Degrees: degrees}
	}
}

// rotate90 transposes a 4bpp buffer clockwise, swapping width and
// height and repacking nibbles at the new pitch.
func (b *Buffer) rotate90() {
	w, h := b.Width, b.Height
	pitch := PitchFor(h, Depth4)
	dst := make([]byte, pitch*w)
	for yd := 0; yd < w; yd++ {
		row := dst[yd*pitch : (yd+1)*pitch]
		for xd := 0; xd < h; xd++ {
			setRowNibble(row, xd, b.nibble(yd, h-1-xd))
		}
	}
	b.Width, b.Height = h, w
	b.Pitch = pitch
	b.Pix = dst
}
