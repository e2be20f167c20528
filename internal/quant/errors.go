package quant

import (
	"fmt"

	"github.com/rmitchellscott/epdkit/internal/raster"
)

// DepthError reports a dithered multi-color conversion requested from
// a source too shallow to carry the color information it needs.
type DepthError struct {
	Class Class
	Depth raster.Depth
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("quant: dithering to %v requires a 24 or 32bpp source, got %v", e.Class, e.Depth)
}
