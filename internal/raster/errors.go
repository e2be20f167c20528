package raster

import "fmt"

// BoundsError is the panic value raised when a sampler or transform is
// handed coordinates outside the image. It indicates a caller bug, so
// it is deliberately not a plain error return.
type BoundsError struct {
	X, Y          int
	Width, Height int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("raster: pixel (%d,%d) outside %dx%d buffer", e.X, e.Y, e.Width, e.Height)
}

// RotationError reports a rotation angle that is not a multiple of 90
// degrees.
type RotationError struct {
	Degrees int
}

func (e *RotationError) Error() string {
	return fmt.Sprintf("raster: rotation %d not a multiple of 90 degrees", e.Degrees)
}

// TransformDepthError reports a 90/270 degree rotation requested for a
// depth without a defined transpose rule. Only 4bpp buffers rotate to
// those angles.
type TransformDepthError struct {
	Depth   Depth
	Degrees int
}

func (e *TransformDepthError) Error() string {
	return fmt.Sprintf("raster: %d degree rotation not supported for %v sources", e.Degrees, e.Depth)
}
