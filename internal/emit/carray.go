// Package emit serializes packed plane sets into their delivery forms:
// embeddable C source arrays, raw plane blobs and PNG previews.
package emit

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rmitchellscott/epdkit/internal/plane"
	"github.com/rmitchellscott/epdkit/internal/quant"
)

// Hex bytes written per line of C source.
const bytesPerLine = 16

// CName derives the C identifier for an image file: directory and
// extension stripped, every byte outside [A-Za-z0-9] converted to an
// underscore, with one more prepended when the name starts with a
// digit.
func CName(path string) string {
	leaf := filepath.Base(path)
	leaf = strings.TrimSuffix(leaf, filepath.Ext(leaf))
	if leaf == "" || leaf == "." || leaf == string(filepath.Separator) {
		return "image"
	}
	var b strings.Builder
	if leaf[0] >= '0' && leaf[0] <= '9' {
		b.WriteByte('_')
	}
	for i := 0; i < len(leaf); i++ {
		c := leaf[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// CArray renders the planes of s as C source: a size comment block
// followed by one const array per plane. Two-plane classes emit
// name_0 and name_1, the packed BWYR plane emits a bare name.
func CArray(s *plane.Set, name string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "// Image size: width %d, height %d\n", s.Width, s.Height)
	fmt.Fprintf(&b, "// %d bytes per line\n", s.Pitch)
	if s.Class == quant.BWYR {
		fmt.Fprintf(&b, "// %d bytes total\n", s.PlaneSize())
	} else {
		fmt.Fprintf(&b, "// %d bytes per plane\n", s.PlaneSize())
	}
	multi := len(s.Planes) > 1
	for n, p := range s.Planes {
		if multi {
			fmt.Fprintf(&b, "// Plane %d data\n", n)
		}
		fmt.Fprintf(&b, "const uint8_t %s[] PROGMEM = {\n", arrayName(s.Class, name, n))
		writeHex(&b, p)
		b.WriteString("};\n")
	}
	return b.Bytes()
}

func arrayName(class quant.Class, name string, n int) string {
	if class == quant.BWYR {
		return name
	}
	return fmt.Sprintf("%s_%d", name, n)
}

func writeHex(b *bytes.Buffer, data []byte) {
	for i, v := range data {
		fmt.Fprintf(b, "0x%02x", v)
		if i != len(data)-1 {
			b.WriteByte(',')
		}
		if (i+1)%bytesPerLine == 0 || i == len(data)-1 {
			b.WriteByte('\n')
		}
	}
}
