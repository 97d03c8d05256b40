package colmap

import "errors"

var (
	// ErrUnsupportedModel is returned for a COLMAP camera model this loader
	// does not implement.
	ErrUnsupportedModel = errors.New("colmap: unsupported camera model")

	// ErrMalformed is returned when a text-variant record does not parse.
	ErrMalformed = errors.New("colmap: malformed record")
)
