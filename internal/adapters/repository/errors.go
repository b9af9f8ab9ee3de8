package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidLimit      = errors.New("invalid worklist limit")
	ErrInvalidAssessment = errors.New("invalid assessment")
	ErrInvalidJob        = errors.New("invalid job")
	ErrDuplicateJob      = errors.New("job already exists")
	ErrInvalidTransition = errors.New("invalid job state transition")
)
