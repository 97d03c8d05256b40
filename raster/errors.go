package raster

import "errors"

var (
	// ErrEmptyImage is returned when Render is asked to produce a
	// zero-sized image.
	ErrEmptyImage = errors.New("raster: image width/height must be positive")
	// ErrAuxMismatch is returned when Backward is given a loss gradient
	// image whose dimensions don't match the Aux it was paired with.
	ErrAuxMismatch = errors.New("raster: gradient image size does not match aux")
)
