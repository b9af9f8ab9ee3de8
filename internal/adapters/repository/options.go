package repository

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithSeed fixes the treap priority seed, for reproducible shapes in tests.
func WithSeed(seed uint64) Option {
	return func(s *TreapStore) {
		s.seed = seed
	}
}

// JobOption applies a configuration option to the JobStore.
type JobOption func(*JobStore)

// WithMaxJobs bounds the number of retained job records. The oldest
// finished jobs are evicted first.
func WithMaxJobs(n int) JobOption {
	return func(s *JobStore) {
		if n > 0 {
			s.maxJobs = n
		}
	}
}
