package loadgen_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/survcast/internal/adapters/http/api"
	"github.com/okian/survcast/internal/adapters/repository"
	service "github.com/okian/survcast/internal/app"
	"github.com/okian/survcast/internal/domain/model"
	"github.com/okian/survcast/internal/domain/risk"
	"github.com/okian/survcast/internal/loadgen"
)

// fakeDeps scores patients by age and keeps a real worklist.
type fakeDeps struct {
	api.Dependencies
	worklist *repository.TreapStore
	calls    atomic.Int64
	failAll  bool
}

func (f *fakeDeps) Predict(ctx context.Context, record map[string]interface{}) (*service.Prediction, error) {
	f.calls.Add(1)
	if f.failAll {
		return nil, context.DeadlineExceeded
	}
	id, _ := record["patientId"].(string)
	age, _ := record["age"].(float64)
	score := age / 100
	tier := risk.TierOf(score)
	if err := f.worklist.Record(ctx, model.Assessment{PatientID: id, RiskScore: score, Tier: tier, ScoredAt: time.Now()}); err != nil {
		return nil, err
	}
	return &service.Prediction{PatientID: id, RiskScore: score, RiskTier: tier}, nil
}

func (f *fakeDeps) Worklist(ctx context.Context, n int) ([]repository.Entry, error) {
	return f.worklist.TopN(ctx, n)
}

func (f *fakeDeps) WorklistRank(ctx context.Context, id string) (repository.Entry, error) {
	return f.worklist.Rank(ctx, id)
}

func newServer(deps *fakeDeps) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(deps, api.Limits{}).Register(context.Background(), mux)
	return httptest.NewServer(mux)
}

func TestGenerate(t *testing.T) {
	Convey("Given a seed", t, func() {
		a := loadgen.Generate(50, 7)
		b := loadgen.Generate(50, 7)

		Convey("Then clinical values repeat for the same seed", func() {
			So(a, ShouldHaveLength, 50)
			for i := range a {
				So(a[i]["age"], ShouldEqual, b[i]["age"])
				So(a[i]["tumorStage"], ShouldEqual, b[i]["tumorStage"])
			}
		})

		Convey("Then ids are unique and prefixed", func() {
			seen := make(map[string]bool)
			for _, p := range a {
				So(p.ID(), ShouldStartWith, "LOAD-")
				So(seen[p.ID()], ShouldBeFalse)
				seen[p.ID()] = true
			}
		})

		Convey("Then values stay in model ranges", func() {
			for _, p := range a {
				age := p["age"].(float64)
				So(age, ShouldBeBetweenOrEqual, 35, 85)
				So([]string{"I", "II", "III", "IV"}, ShouldContain, p["tumorStage"])
			}
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running server", t, func() {
		deps := &fakeDeps{worklist: repository.NewTreapStore(repository.WithSeed(1))}
		srv := newServer(deps)
		defer srv.Close()
		ctx := context.Background()

		Convey("When a load run completes", func() {
			cfg := &loadgen.Config{BaseURL: srv.URL, Patients: 40, Workers: 4, TopN: 10, Seed: 3}
			stats, err := loadgen.Run(ctx, cfg)

			Convey("Then every patient was scored and the worklist verified", func() {
				So(err, ShouldBeNil)
				So(stats.Submitted, ShouldEqual, 40)
				So(stats.Successful, ShouldEqual, 40)
				So(stats.Failed, ShouldEqual, 0)
				So(deps.calls.Load(), ShouldEqual, 40)
				So(stats.WorklistEntries, ShouldEqual, 10)
				So(stats.RanksChecked, ShouldEqual, 10)
				total := 0
				for _, n := range stats.TierCounts {
					total += n
				}
				So(total, ShouldEqual, 40)
			})
		})

		Convey("When every prediction fails", func() {
			deps.failAll = true
			_, err := loadgen.Run(ctx, &loadgen.Config{BaseURL: srv.URL, Patients: 5, Workers: 2, Seed: 1})
			So(err, ShouldEqual, loadgen.ErrAllFailed)
		})

		Convey("When the server is unreachable", func() {
			_, err := loadgen.Run(ctx, &loadgen.Config{BaseURL: "http://127.0.0.1:1", Patients: 1, Timeout: time.Second})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "health check")
		})
	})
}
