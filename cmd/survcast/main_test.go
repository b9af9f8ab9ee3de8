package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/survcast/internal/adapters/mq/queue"
	"github.com/okian/survcast/internal/adapters/repository"
	service "github.com/okian/survcast/internal/app"
	"github.com/okian/survcast/internal/batch"
	"github.com/okian/survcast/internal/config"
	"github.com/okian/survcast/internal/domain/adapter/adaptertest"
	"github.com/okian/survcast/internal/domain/dedupe"
	"github.com/okian/survcast/internal/domain/risk"
)

func newTestService(t *testing.T) *service.Service {
	reg, err := adaptertest.Registry()
	convey.So(err, convey.ShouldBeNil)
	svc := service.New(reg,
		batch.NewScorer(reg, batch.WithConcurrency(2)),
		nil,
		repository.NewTreapStore(repository.WithSeed(1)),
		repository.NewJobStore(),
		queue.NewInMemoryQueue(queue.WithCapacity(4)),
		dedupe.NewInMemoryIndex(),
		service.WithWorkerCount(1),
	)
	convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Stop(ctx)
	})
	return svc
}

func TestHandler(t *testing.T) {
	convey.Convey("Given the server handler chain", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.CORSAllowedOrigins = []string{"https://ui.example"}
		h := newHandler(ctx, cfg, newTestService(t))
		do := func(req *http.Request) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			return w
		}

		convey.Convey("When a patient is predicted", func() {
			body := `{"patientId":"E2E-1","age":60,"tumorStage":"II"}`
			w := do(httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body)))

			convey.Convey("Then it is scored and enters the worklist", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var p service.Prediction
				convey.So(json.Unmarshal(w.Body.Bytes(), &p), convey.ShouldBeNil)
				convey.So(p.RiskTier, convey.ShouldEqual, risk.Low)

				w = do(httptest.NewRequest(http.MethodGet, "/api/worklist/E2E-1", http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var e repository.Entry
				convey.So(json.Unmarshal(w.Body.Bytes(), &e), convey.ShouldBeNil)
				convey.So(e.Rank, convey.ShouldEqual, 1)
				convey.So(e.RiskScore, convey.ShouldAlmostEqual, p.RiskScore, 1e-9)
			})
		})

		convey.Convey("When an allowed origin calls the API", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/models", http.NoBody)
			req.Header.Set("Origin", "https://ui.example")
			w := do(req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Header().Get("Access-Control-Allow-Origin"), convey.ShouldEqual, "https://ui.example")
		})

		convey.Convey("When another origin calls the API", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/models", http.NoBody)
			req.Header.Set("Origin", "https://evil.example")
			convey.So(do(req).Header().Get("Access-Control-Allow-Origin"), convey.ShouldBeEmpty)
		})

		convey.Convey("When the docs are requested", func() {
			convey.So(do(httptest.NewRequest(http.MethodGet, "/api-docs", http.NoBody)).Code, convey.ShouldEqual, http.StatusOK)
			convey.So(do(httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody)).Code, convey.ShouldEqual, http.StatusOK)

			landing := do(httptest.NewRequest(http.MethodGet, "/", http.NoBody))
			convey.So(landing.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(landing.Body.String(), convey.ShouldContainSubstring, "deepsurv")
		})

		convey.Convey("When no cohort store is configured", func() {
			w := do(httptest.NewRequest(http.MethodGet, "/api/cohorts/compare", http.NoBody))
			convey.So(w.Code, convey.ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestHandlerRateLimit(t *testing.T) {
	convey.Convey("Given a rate limit of one request", t, func() {
		cfg := config.New()
		cfg.RateLimitRPS = 0.001
		cfg.RateLimitBurst = 1
		h := newHandler(context.Background(), cfg, newTestService(t))

		convey.Convey("Then the second request is shed", func() {
			first := httptest.NewRecorder()
			h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/stats", http.NoBody))
			second := httptest.NewRecorder()
			h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/stats", http.NoBody))

			convey.So(first.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(second.Code, convey.ShouldEqual, http.StatusTooManyRequests)
			convey.So(second.Header().Get("Retry-After"), convey.ShouldEqual, "1")
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a config whose manifest is missing", t, func() {
		cfg := config.New()
		cfg.ArtifactPath = filepath.Join(t.TempDir(), "missing.yaml")
		cfg.CohortDriver = "none"

		convey.Convey("Then run fails before serving", func() {
			convey.So(run(context.Background(), cfg), convey.ShouldNotBeNil)
		})
	})
}
