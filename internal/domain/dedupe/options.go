// Package dedupe maps upload fingerprints to the job that first carried them.
package dedupe

// Option applies a configuration option to the in-memory index.
type Option func(*inMemoryIndex)

// WithMaxSize sets the maximum number of fingerprints kept in memory.
// If maxSize > 0 the oldest entry is evicted first.
// If maxSize <= 0 the index is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryIndex) {
		d.maxSize = maxSize
	}
}
