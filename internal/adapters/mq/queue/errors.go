package queue

import "errors"

// Sentinel kinds for enqueue errors.
var (
	ErrFull   = errors.New("job queue is full")
	ErrClosed = errors.New("job queue is closed")
)
