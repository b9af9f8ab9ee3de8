package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/survcast/internal/adapters/http/api"
	"github.com/okian/survcast/internal/adapters/mq/queue"
	"github.com/okian/survcast/internal/adapters/repository"
	service "github.com/okian/survcast/internal/app"
	"github.com/okian/survcast/internal/batch"
	"github.com/okian/survcast/internal/domain/features"
	"github.com/okian/survcast/internal/domain/kaplanmeier"
	"github.com/okian/survcast/internal/domain/model"
	"github.com/okian/survcast/internal/domain/risk"
	"github.com/okian/survcast/internal/domain/stats"
	"github.com/okian/survcast/internal/domain/survival"
)

type mockDependencies struct {
	predicted  map[string]interface{}
	predictErr error

	uploaded  string
	batchErr  error
	submitErr error
	duplicate bool
	jobs      map[string]repository.JobRecord

	tiers      [2]risk.Tier
	groups     [2]kaplanmeier.Group
	compareErr error

	worklist []repository.Entry
	rankErr  error
}

func (m *mockDependencies) Predict(_ context.Context, record map[string]interface{}) (*service.Prediction, error) {
	m.predicted = record
	if m.predictErr != nil {
		return nil, m.predictErr
	}
	id, _ := record["patientId"].(string)
	return &service.Prediction{PatientID: id, RiskScore: 0.42, RiskTier: risk.Medium}, nil
}

func (m *mockDependencies) BatchScore(_ context.Context, fileName string, _ []byte) (*batch.Result, error) {
	m.uploaded = fileName
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	return &batch.Result{FileName: fileName, TotalPatients: 2}, nil
}

func (m *mockDependencies) CompareGroups(_ context.Context, a, b kaplanmeier.Group) (*service.GroupComparison, error) {
	m.groups = [2]kaplanmeier.Group{a, b}
	if m.compareErr != nil {
		return nil, m.compareErr
	}
	return comparison(a.Label, b.Label), nil
}

func (m *mockDependencies) CompareTiers(_ context.Context, a, b risk.Tier) (*service.GroupComparison, error) {
	m.tiers = [2]risk.Tier{a, b}
	if m.compareErr != nil {
		return nil, m.compareErr
	}
	return comparison(string(a), string(b)), nil
}

func (m *mockDependencies) SubmitJob(_ context.Context, fileName string, _ []byte) (*service.Submission, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	rec := repository.JobRecord{ID: "job-1", FileName: fileName, State: model.JobQueued, SubmittedAt: time.Now()}
	return &service.Submission{Job: rec, Duplicate: m.duplicate}, nil
}

func (m *mockDependencies) Job(_ context.Context, id string) (repository.JobRecord, error) {
	rec, ok := m.jobs[id]
	if !ok {
		return repository.JobRecord{}, fmt.Errorf("%w: job %s", repository.ErrNotFound, id)
	}
	return rec, nil
}

func (m *mockDependencies) Worklist(_ context.Context, n int) ([]repository.Entry, error) {
	if n > len(m.worklist) {
		return m.worklist, nil
	}
	return m.worklist[:n], nil
}

func (m *mockDependencies) WorklistRank(_ context.Context, id string) (repository.Entry, error) {
	if m.rankErr != nil {
		return repository.Entry{}, m.rankErr
	}
	for _, e := range m.worklist {
		if e.PatientID == id {
			return e, nil
		}
	}
	return repository.Entry{}, fmt.Errorf("%w: patient %s", repository.ErrNotFound, id)
}

func (m *mockDependencies) Models() []service.ModelInfo {
	return []service.ModelInfo{{ID: "rsf", CIndex: 0.71, Reference: true}, {ID: "deepsurv", CIndex: 0.75}}
}

func (m *mockDependencies) GetStats(context.Context) service.Stats {
	return service.Stats{Started: true, Models: 2, Worklist: len(m.worklist)}
}

func comparison(a, b string) *service.GroupComparison {
	curve := func(label string, s ...float64) kaplanmeier.GroupCurve {
		return kaplanmeier.GroupCurve{
			Label:    label,
			Subjects: 10,
			Events:   5,
			Median:   survival.Median{Months: 24, Reached: true},
			Curve: survival.Curve{
				Times:    []float64{0, 12, 24},
				Survival: s,
				Lower:    []float64{1, 0.6, 0.3},
				Upper:    []float64{1, 0.9, 0.7},
			},
		}
	}
	return &service.GroupComparison{
		Comparison: kaplanmeier.Comparison{A: curve(a, 1, 0.8, 0.6), B: curve(b, 1, 0.6, 0.3)},
		LogRank:    stats.LogRankResult{Statistic: 4.2, PValue: 0.04},
	}
}

func newMux(deps *mockDependencies, limits api.Limits) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, limits).Register(context.Background(), mux)
	return mux
}

func serve(mux http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func multipartRequest(target, name string, content []byte) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		panic(err)
	}
	_, _ = fw.Write(content)
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var out map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, api.Limits{})

		Convey("Then health and metrics answer", func() {
			So(serve(mux, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)).Code, ShouldEqual, http.StatusOK)
			So(serve(mux, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)).Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats are served as JSON", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/stats", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			var st service.Stats
			So(json.Unmarshal(w.Body.Bytes(), &st), ShouldBeNil)
			So(st.Models, ShouldEqual, 2)
		})

		Convey("Then models are listed", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/api/models", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			var models []service.ModelInfo
			So(json.Unmarshal(w.Body.Bytes(), &models), ShouldBeNil)
			So(models, ShouldHaveLength, 2)
		})

		Convey("Then unknown routes are not found", func() {
			So(serve(mux, httptest.NewRequest(http.MethodGet, "/unknown", http.NoBody)).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then a wrong method is rejected", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/api/predict", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestPredictHandler(t *testing.T) {
	Convey("Given the predict endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, api.Limits{})
		post := func(body string) *httptest.ResponseRecorder {
			return serve(mux, httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body)))
		}

		Convey("When the record is valid", func() {
			w := post(`{"patientId":"P-1","age":61,"tumorStage":"II","tumorSize":"2.5"}`)

			Convey("Then the prediction is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var p service.Prediction
				So(json.Unmarshal(w.Body.Bytes(), &p), ShouldBeNil)
				So(p.PatientID, ShouldEqual, "P-1")
				So(p.RiskTier, ShouldEqual, risk.Medium)
				So(deps.predicted["tumorSize"], ShouldEqual, "2.5")
			})
		})

		Convey("When the body is not JSON", func() {
			w := post(`{"age":`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w)["code"], ShouldEqual, "bad_request")
			So(deps.predicted, ShouldBeNil)
		})

		Convey("When the body is a JSON array", func() {
			So(post(`[1,2]`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the body is an empty object", func() {
			So(post(`{}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a field has the wrong JSON type", func() {
			w := post(`{"age":[61]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.predicted, ShouldBeNil)
		})

		Convey("When the service rejects a field", func() {
			deps.predictErr = fmt.Errorf("%w: age 300 outside 0..120", features.ErrInvalidField)
			w := post(`{"age":300}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w)["message"], ShouldContainSubstring, "age 300")
		})

		Convey("When the service fails unexpectedly", func() {
			deps.predictErr = errors.New("boom")
			So(post(`{"age":50}`).Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("When the body is too large", func() {
			big := `{"note":"` + strings.Repeat("x", 70<<10) + `"}`
			w := post(big)
			So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
		})
	})
}

func TestUploadHandler(t *testing.T) {
	Convey("Given the upload endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, api.Limits{MaxUploadBytes: 128})

		Convey("When a CSV file is uploaded", func() {
			w := serve(mux, multipartRequest("/api/upload", "cohort.csv", []byte("patient_id,age\nP1,50\n")))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.uploaded, ShouldEqual, "cohort.csv")
		})

		Convey("When the file field is missing", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("x"))
			req.Header.Set("Content-Type", "text/plain")
			So(serve(mux, req).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the file exceeds the limit", func() {
			w := serve(mux, multipartRequest("/api/upload", "big.csv", bytes.Repeat([]byte("a"), 512)))
			So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
			So(deps.uploaded, ShouldBeEmpty)
		})

		Convey("When the upload lacks the id column", func() {
			deps.batchErr = fmt.Errorf("%w: patient_id", batch.ErrMissingColumn)
			w := serve(mux, multipartRequest("/api/upload", "cohort.csv", []byte("age\n50\n")))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestJobsHandler(t *testing.T) {
	Convey("Given the jobs endpoints", t, func() {
		deps := &mockDependencies{jobs: map[string]repository.JobRecord{
			"job-9": {ID: "job-9", State: model.JobSucceeded, Result: &batch.Result{TotalPatients: 3}},
		}}
		mux := newMux(deps, api.Limits{})
		submit := func() *httptest.ResponseRecorder {
			return serve(mux, multipartRequest("/api/jobs", "cohort.csv", []byte("patient_id\nP1\n")))
		}

		Convey("When a new file is submitted", func() {
			w := submit()
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(w.Header().Get("Location"), ShouldEqual, "/api/jobs/job-1")
		})

		Convey("When the same file was already accepted", func() {
			deps.duplicate = true
			w := submit()
			So(w.Code, ShouldEqual, http.StatusOK)
			var sub service.Submission
			So(json.Unmarshal(w.Body.Bytes(), &sub), ShouldBeNil)
			So(sub.Duplicate, ShouldBeTrue)
		})

		Convey("When the queue is full", func() {
			deps.submitErr = queue.ErrFull
			w := submit()
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(decodeError(w)["code"], ShouldEqual, "backpressure")
		})

		Convey("When a job is fetched", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/api/jobs/job-9", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			var rec repository.JobRecord
			So(json.Unmarshal(w.Body.Bytes(), &rec), ShouldBeNil)
			So(rec.State, ShouldEqual, model.JobSucceeded)
			So(rec.Result.TotalPatients, ShouldEqual, 3)
		})

		Convey("When an unknown job is fetched", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/api/jobs/nope", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestCompareHandler(t *testing.T) {
	Convey("Given the comparison endpoints", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, api.Limits{})

		Convey("When two ad-hoc groups are posted", func() {
			body := `{"a":{"durations":[1,2,3],"events":[1,0,1]},"b":{"label":"control","durations":[4,5],"events":[1,1]}}`
			w := serve(mux, httptest.NewRequest(http.MethodPost, "/api/compare", strings.NewReader(body)))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.groups[0].Label, ShouldEqual, "A")
			So(deps.groups[1].Label, ShouldEqual, "control")
			So(deps.groups[0].Durations, ShouldResemble, []float64{1, 2, 3})
		})

		Convey("When a group is missing", func() {
			body := `{"a":{"durations":[1],"events":[1]}}`
			w := serve(mux, httptest.NewRequest(http.MethodPost, "/api/compare", strings.NewReader(body)))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the body has unknown fields", func() {
			body := `{"a":{},"b":{},"c":{}}`
			So(serve(mux, httptest.NewRequest(http.MethodPost, "/api/compare", strings.NewReader(body))).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the groups are invalid", func() {
			deps.compareErr = fmt.Errorf("%w: negative duration", kaplanmeier.ErrInvalidInput)
			body := `{"a":{"durations":[-1],"events":[1]},"b":{"durations":[1],"events":[1]}}`
			So(serve(mux, httptest.NewRequest(http.MethodPost, "/api/compare", strings.NewReader(body))).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When tiers are compared with defaults", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/api/cohorts/compare", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.tiers, ShouldResemble, [2]risk.Tier{risk.Low, risk.High})
			var cmp service.GroupComparison
			So(json.Unmarshal(w.Body.Bytes(), &cmp), ShouldBeNil)
			So(cmp.LogRank.PValue, ShouldAlmostEqual, 0.04)
		})

		Convey("When tiers are named explicitly", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/api/cohorts/compare?a=Medium&b=high", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.tiers, ShouldResemble, [2]risk.Tier{risk.Medium, risk.High})
		})

		Convey("When a tier has no stored cohort", func() {
			deps.compareErr = fmt.Errorf("%w: medium", service.ErrNoCohort)
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/api/cohorts/compare?a=medium", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When a tier is unknown", func() {
			deps.compareErr = fmt.Errorf("%w: %q", service.ErrUnknownTier, "severe")
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/api/cohorts/compare?a=severe", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the chart is requested", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/api/cohorts/compare/chart", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "text/html; charset=utf-8")
			body := w.Body.String()
			So(body, ShouldContainSubstring, "echarts")
			So(body, ShouldContainSubstring, "low lower")
		})
	})
}

func TestWorklistHandler(t *testing.T) {
	Convey("Given a worklist with three patients", t, func() {
		deps := &mockDependencies{worklist: []repository.Entry{
			{Rank: 1, PatientID: "P3", RiskScore: 0.9, Tier: risk.High},
			{Rank: 2, PatientID: "P1", RiskScore: 0.5, Tier: risk.Medium},
			{Rank: 3, PatientID: "P2", RiskScore: 0.1, Tier: risk.Low},
		}}
		mux := newMux(deps, api.Limits{MaxWorklistLimit: 50})
		get := func(target string) *httptest.ResponseRecorder {
			return serve(mux, httptest.NewRequest(http.MethodGet, target, http.NoBody))
		}

		Convey("When the top two are requested", func() {
			w := get("/api/worklist?limit=2")
			So(w.Code, ShouldEqual, http.StatusOK)
			var entries []repository.Entry
			So(json.Unmarshal(w.Body.Bytes(), &entries), ShouldBeNil)
			So(entries, ShouldHaveLength, 2)
			So(entries[0].PatientID, ShouldEqual, "P3")
		})

		Convey("When no limit is given", func() {
			So(get("/api/worklist").Code, ShouldEqual, http.StatusOK)
		})

		Convey("When the limit is invalid", func() {
			So(get("/api/worklist?limit=0").Code, ShouldEqual, http.StatusBadRequest)
			So(get("/api/worklist?limit=abc").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the limit exceeds the maximum", func() {
			w := get("/api/worklist?limit=51")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w)["code"], ShouldEqual, "limit_exceeded")
		})

		Convey("When a patient's rank is requested", func() {
			w := get("/api/worklist/P1")
			So(w.Code, ShouldEqual, http.StatusOK)
			var e repository.Entry
			So(json.Unmarshal(w.Body.Bytes(), &e), ShouldBeNil)
			So(e.Rank, ShouldEqual, 2)
		})

		Convey("When the patient is unknown", func() {
			So(get("/api/worklist/P9").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	Convey("Given a handler limited to a burst of two", t, func() {
		ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
		h := api.RateLimitMiddleware(ok, 0.001, 2)

		Convey("Then the third request in a row is shed", func() {
			codes := make([]int, 3)
			for i := range codes {
				codes[i] = serve(h, httptest.NewRequest(http.MethodGet, "/", http.NoBody)).Code
			}
			So(codes, ShouldResemble, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests})
		})

		Convey("Then a zero rate disables limiting", func() {
			unlimited := api.RateLimitMiddleware(ok, 0, 1)
			for i := 0; i < 5; i++ {
				So(serve(unlimited, httptest.NewRequest(http.MethodGet, "/", http.NoBody)).Code, ShouldEqual, http.StatusNoContent)
			}
		})
	})
}
