package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	service "github.com/okian/survcast/internal/app"
	"github.com/okian/survcast/internal/domain/kaplanmeier"
	"github.com/okian/survcast/internal/domain/risk"
)

// maxCompareBytes caps ad-hoc group payloads.
const maxCompareBytes = 4 << 20

// CompareDependencies defines the interface for cohort comparison.
type CompareDependencies interface {
	CompareGroups(ctx context.Context, a, b kaplanmeier.Group) (*service.GroupComparison, error)
	CompareTiers(ctx context.Context, a, b risk.Tier) (*service.GroupComparison, error)
}

// CompareHandler handles cohort comparison requests.
type CompareHandler struct {
	deps CompareDependencies
}

// NewCompareHandler creates a new compare handler.
func NewCompareHandler(deps CompareDependencies) *CompareHandler {
	return &CompareHandler{deps: deps}
}

// compareRequest is the body of POST /api/compare.
type compareRequest struct {
	A *kaplanmeier.Group `json:"a"`
	B *kaplanmeier.Group `json:"b"`
}

func (c compareRequest) validate() error {
	if c.A == nil || c.B == nil {
		return fmt.Errorf("both groups a and b are required")
	}
	return nil
}

// HandleCompareGroups handles POST /api/compare requests.
func (h *CompareHandler) HandleCompareGroups(w http.ResponseWriter, r *http.Request) {
	const op = "api.compare_groups"
	var req compareRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCompareBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		fail(r.Context(), w, WrapKind(op, kindOf(err), err))
		return
	}
	if err := req.validate(); err != nil {
		fail(r.Context(), w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.A.Label == "" {
		req.A.Label = "A"
	}
	if req.B.Label == "" {
		req.B.Label = "B"
	}
	cmp, err := h.deps.CompareGroups(r.Context(), *req.A, *req.B)
	if err != nil {
		fail(r.Context(), w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// HandleCompareTiers handles GET /api/cohorts/compare?a=low&b=high requests.
func (h *CompareHandler) HandleCompareTiers(w http.ResponseWriter, r *http.Request) {
	const op = "api.compare_tiers"
	cmp, err := h.compareTiers(r)
	if err != nil {
		fail(r.Context(), w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// compareTiers reads the a and b tiers, defaulting to low against high.
func (h *CompareHandler) compareTiers(r *http.Request) (*service.GroupComparison, error) {
	q := r.URL.Query()
	a, b := risk.Low, risk.High
	if s := strings.TrimSpace(q.Get("a")); s != "" {
		a = risk.Tier(strings.ToLower(s))
	}
	if s := strings.TrimSpace(q.Get("b")); s != "" {
		b = risk.Tier(strings.ToLower(s))
	}
	return h.deps.CompareTiers(r.Context(), a, b)
}
