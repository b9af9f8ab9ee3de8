package features

import "errors"

// Sentinel kinds for feature errors.
var (
	ErrInvalidRecord  = errors.New("invalid patient record")
	ErrInvalidField   = errors.New("invalid patient field")
	ErrUnknownFeature = errors.New("unknown feature")
)
