// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/survcast/internal/adapters/repository"
	service "github.com/okian/survcast/internal/app"
	"github.com/okian/survcast/internal/batch"
	"github.com/okian/survcast/internal/domain/kaplanmeier"
	"github.com/okian/survcast/internal/domain/risk"
	"github.com/okian/survcast/pkg/logger"
)

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	Predict(ctx context.Context, record map[string]interface{}) (*service.Prediction, error)
	BatchScore(ctx context.Context, fileName string, data []byte) (*batch.Result, error)

	CompareGroups(ctx context.Context, a, b kaplanmeier.Group) (*service.GroupComparison, error)
	CompareTiers(ctx context.Context, a, b risk.Tier) (*service.GroupComparison, error)

	SubmitJob(ctx context.Context, fileName string, data []byte) (*service.Submission, error)
	Job(ctx context.Context, id string) (repository.JobRecord, error)

	Worklist(ctx context.Context, n int) ([]repository.Entry, error)
	WorklistRank(ctx context.Context, patientID string) (repository.Entry, error)

	Models() []service.ModelInfo
	GetStats(ctx context.Context) service.Stats
}

var _ Dependencies = (*service.Service)(nil)

// Limits bounds request sizes.
type Limits struct {
	MaxUploadBytes   int64
	MaxWorklistLimit int
}

// DefaultLimits mirrors the config defaults.
var DefaultLimits = Limits{MaxUploadBytes: 10 << 20, MaxWorklistLimit: 100}

// Server wires HTTP routes for the business API.
type Server struct {
	health   *HealthHandler
	stats    *StatsHandler
	predict  *PredictHandler
	upload   *UploadHandler
	jobs     *JobsHandler
	compare  *CompareHandler
	worklist *WorklistHandler
	models   *ModelsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, limits Limits) *Server {
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = DefaultLimits.MaxUploadBytes
	}
	if limits.MaxWorklistLimit <= 0 {
		limits.MaxWorklistLimit = DefaultLimits.MaxWorklistLimit
	}
	return &Server{
		health:   NewHealthHandler(),
		stats:    NewStatsHandler(deps),
		predict:  NewPredictHandler(deps),
		upload:   NewUploadHandler(deps, limits.MaxUploadBytes),
		jobs:     NewJobsHandler(deps, limits.MaxUploadBytes),
		compare:  NewCompareHandler(deps),
		worklist: NewWorklistHandler(deps, limits.MaxWorklistLimit),
		models:   NewModelsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.health.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", MetricsMiddleware(s.health.HandleHealth, "metrics"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.stats.HandleStats, "stats"))

	mux.HandleFunc("POST /api/predict", MetricsMiddleware(s.predict.HandlePredict, "predict"))
	mux.HandleFunc("POST /api/upload", MetricsMiddleware(s.upload.HandleUpload, "upload"))
	mux.HandleFunc("POST /api/jobs", MetricsMiddleware(s.jobs.HandleSubmit, "jobs"))
	mux.HandleFunc("GET /api/jobs/{id}", MetricsMiddleware(s.jobs.HandleGet, "job"))

	mux.HandleFunc("POST /api/compare", MetricsMiddleware(s.compare.HandleCompareGroups, "compare"))
	mux.HandleFunc("GET /api/cohorts/compare", MetricsMiddleware(s.compare.HandleCompareTiers, "cohorts_compare"))
	mux.HandleFunc("GET /api/cohorts/compare/chart", MetricsMiddleware(s.compare.HandleChart, "cohorts_chart"))

	mux.HandleFunc("GET /api/worklist", MetricsMiddleware(s.worklist.HandleTopN, "worklist"))
	mux.HandleFunc("GET /api/worklist/{id}", MetricsMiddleware(s.worklist.HandleRank, "worklist_rank"))
	mux.HandleFunc("GET /api/models", MetricsMiddleware(s.models.HandleModels, "models"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail classifies err and writes it. Server errors are logged.
func fail(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Get().Named("api").Error(ctx, "request failed", logger.Error(err))
	}
	writeError(w, status, code, err)
}
