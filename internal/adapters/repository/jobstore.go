package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/survcast/internal/batch"
	"github.com/okian/survcast/internal/domain/model"
)

// DefaultMaxJobs bounds retained job records when no option is given.
const DefaultMaxJobs = 1000

// JobStore is an in-memory Jobs implementation. Records are kept in
// submission order; once the store is full the oldest terminal record is
// dropped to make room.
type JobStore struct {
	mu      sync.RWMutex
	byID    map[string]*JobRecord
	order   []string
	maxJobs int
	now     func() time.Time
}

var _ Jobs = (*JobStore)(nil)

// NewJobStore constructs an empty store.
func NewJobStore(opts ...JobOption) *JobStore {
	s := &JobStore{
		byID:    make(map[string]*JobRecord),
		maxJobs: DefaultMaxJobs,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers j as queued.
func (s *JobStore) Create(ctx context.Context, j model.Job) (JobRecord, error) {
	if j.ID == "" {
		return JobRecord{}, fmt.Errorf("%w: empty id", ErrInvalidJob)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[j.ID]; ok {
		return JobRecord{}, fmt.Errorf("%w: %s", ErrDuplicateJob, j.ID)
	}
	s.evictLocked()

	rec := &JobRecord{
		ID:          j.ID,
		FileName:    j.FileName,
		State:       model.JobQueued,
		SubmittedAt: j.SubmittedAt,
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = s.now()
	}
	s.byID[j.ID] = rec
	s.order = append(s.order, j.ID)
	return *rec, nil
}

func (s *JobStore) evictLocked() {
	if len(s.order) < s.maxJobs {
		return
	}
	for i, id := range s.order {
		if s.byID[id].State.Terminal() {
			delete(s.byID, id)
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// Start moves a queued job to running.
func (s *JobStore) Start(ctx context.Context, id string) error {
	return s.transition(id, model.JobQueued, func(r *JobRecord, now time.Time) {
		r.State = model.JobRunning
		r.StartedAt = &now
	})
}

// Complete moves a running job to succeeded with its result.
func (s *JobStore) Complete(ctx context.Context, id string, res *batch.Result) error {
	return s.transition(id, model.JobRunning, func(r *JobRecord, now time.Time) {
		r.State = model.JobSucceeded
		r.FinishedAt = &now
		r.Result = res
	})
}

// Fail marks a queued or running job failed.
func (s *JobStore) Fail(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	if r.State.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, r.State)
	}
	now := s.now()
	r.State = model.JobFailed
	r.FinishedAt = &now
	r.Error = reason
	return nil
}

func (s *JobStore) transition(id string, from model.JobState, apply func(*JobRecord, time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	if r.State != from {
		return fmt.Errorf("%w: %s is %s, want %s", ErrInvalidTransition, id, r.State, from)
	}
	apply(r, s.now())
	return nil
}

// Get returns a snapshot of the job record.
func (s *JobStore) Get(ctx context.Context, id string) (JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byID[id]
	if !ok {
		return JobRecord{}, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return *r, nil
}
