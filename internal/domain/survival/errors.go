package survival

import "errors"

// Sentinel kinds for survival value errors.
var (
	ErrInvalidGrid = errors.New("invalid time grid")
)
