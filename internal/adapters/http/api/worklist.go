package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/survcast/internal/adapters/repository"
)

// defaultWorklistLimit applies when the request has no limit.
const defaultWorklistLimit = 10

// WorklistDependencies defines the interface for worklist reads.
type WorklistDependencies interface {
	Worklist(ctx context.Context, n int) ([]repository.Entry, error)
	WorklistRank(ctx context.Context, patientID string) (repository.Entry, error)
}

// WorklistHandler handles worklist requests.
type WorklistHandler struct {
	deps     WorklistDependencies
	maxLimit int
}

// NewWorklistHandler creates a new worklist handler.
func NewWorklistHandler(deps WorklistDependencies, maxLimit int) *WorklistHandler {
	return &WorklistHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleTopN handles GET /api/worklist?limit=N requests.
func (h *WorklistHandler) HandleTopN(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_worklist"
	n := defaultWorklistLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		n = v
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
		return
	}
	entries, err := h.deps.Worklist(r.Context(), n)
	if err != nil {
		fail(r.Context(), w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleRank handles GET /api/worklist/{id} requests.
func (h *WorklistHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_worklist_rank"
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	entry, err := h.deps.WorklistRank(r.Context(), id)
	if err != nil {
		fail(r.Context(), w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
