package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/survcast/internal/adapters/repository"
	service "github.com/okian/survcast/internal/app"
)

// JobsDependencies defines the interface for asynchronous batch jobs.
type JobsDependencies interface {
	SubmitJob(ctx context.Context, fileName string, data []byte) (*service.Submission, error)
	Job(ctx context.Context, id string) (repository.JobRecord, error)
}

// JobsHandler handles job requests.
type JobsHandler struct {
	deps     JobsDependencies
	maxBytes int64
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps JobsDependencies, maxBytes int64) *JobsHandler {
	return &JobsHandler{deps: deps, maxBytes: maxBytes}
}

// HandleSubmit handles POST /api/jobs requests. A new job answers 202; an
// upload already accepted answers 200 with the existing job.
func (h *JobsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_job"
	name, data, err := readUpload(w, r, h.maxBytes)
	if err != nil {
		fail(r.Context(), w, WrapKind(op, kindOf(err), err))
		return
	}
	sub, err := h.deps.SubmitJob(r.Context(), name, data)
	if err != nil {
		fail(r.Context(), w, Wrap(op, err))
		return
	}
	status := http.StatusAccepted
	if sub.Duplicate {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/api/jobs/"+sub.Job.ID)
	writeJSON(w, status, sub)
}

// HandleGet handles GET /api/jobs/{id} requests.
func (h *JobsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_job"
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		fail(r.Context(), w, NewKind(op, ErrBadRequest))
		return
	}
	rec, err := h.deps.Job(r.Context(), id)
	if err != nil {
		fail(r.Context(), w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
