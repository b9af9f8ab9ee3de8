package kaplanmeier

import "errors"

// Sentinel kinds for estimator errors.
var (
	ErrNotFitted         = errors.New("estimator not fitted")
	ErrAlreadyFitted     = errors.New("estimator already fitted")
	ErrInvalidInput      = errors.New("invalid survival input")
	ErrInvalidConfidence = errors.New("confidence level must be in (0,1)")
)
