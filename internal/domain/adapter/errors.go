package adapter

import "errors"

// Sentinel kinds for adapter errors.
var (
	ErrInvalidModel    = errors.New("invalid model definition")
	ErrFeatureMismatch = errors.New("feature vector does not match schema")
	ErrUnsupported     = errors.New("capability not supported by adapter")
	ErrUnknownAdapter  = errors.New("unknown adapter")
	ErrDuplicate       = errors.New("duplicate adapter")
)
