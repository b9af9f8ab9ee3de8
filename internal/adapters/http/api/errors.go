package api

import (
	"errors"
	"net/http"

	"github.com/okian/survcast/internal/adapters/mq/queue"
	"github.com/okian/survcast/internal/adapters/repository"
	"github.com/okian/survcast/internal/adapters/tabular"
	service "github.com/okian/survcast/internal/app"
	"github.com/okian/survcast/internal/batch"
	"github.com/okian/survcast/internal/domain/features"
	"github.com/okian/survcast/internal/domain/kaplanmeier"
	"github.com/okian/survcast/internal/domain/stats"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
	ErrNotFound     = errors.New("not found")
	ErrTooLarge     = errors.New("request body too large")
	ErrRateLimited  = errors.New("rate limited")
)

// Error is an API failure tagged with the operation and a sentinel kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Kind != nil:
		return e.Op + ": " + e.Kind.Error()
	default:
		return e.Op
	}
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of kind for op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind tags err with op and kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap tags err with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// classify maps an error to a status code and a machine-readable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, ErrBackpressure), errors.Is(err, queue.ErrFull), errors.Is(err, queue.ErrClosed):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrNotFound), errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrNoCohort):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, features.ErrInvalidRecord),
		errors.Is(err, features.ErrInvalidField),
		errors.Is(err, batch.ErrMissingColumn),
		errors.Is(err, tabular.ErrUnsupportedFormat),
		errors.Is(err, tabular.ErrEmptyFile),
		errors.Is(err, kaplanmeier.ErrInvalidInput),
		errors.Is(err, stats.ErrInvalidInput),
		errors.Is(err, service.ErrUnknownTier),
		errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
