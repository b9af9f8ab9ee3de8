package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/survcast/internal/adapters/cohort"
	service "github.com/okian/survcast/internal/app"
	"github.com/okian/survcast/internal/config"
	"github.com/okian/survcast/internal/domain/model"
	"github.com/okian/survcast/internal/domain/risk"
)

func integrationConfig(t *testing.T) *config.Config {
	cfg := config.New()
	cfg.ArtifactPath = filepath.Join("..", "..", "configs", "models.yaml")
	cfg.CohortDSN = filepath.Join(t.TempDir(), "survcast.db")
	cfg.JobWorkerCount = 2
	return cfg
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service built from the shipped manifest", t, func() {
		cfg := integrationConfig(t)

		store, err := cohort.Open(context.Background(), cfg.CohortDriver, cfg.CohortDSN)
		So(err, ShouldBeNil)
		So(store.Migrate(context.Background()), ShouldBeNil)
		records := make([]cohort.Record, 0, 20)
		for i := 0; i < 10; i++ {
			records = append(records,
				cohort.Record{PatientID: "L" + string(rune('A'+i)), Tier: risk.Low, DurationMonths: float64(20 + 4*i), Event: i%3 == 0},
				cohort.Record{PatientID: "H" + string(rune('A'+i)), Tier: risk.High, DurationMonths: float64(2 + 2*i), Event: i%4 != 0},
			)
		}
		_, err = store.Import(context.Background(), records)
		So(err, ShouldBeNil)
		So(store.Close(), ShouldBeNil)

		svc, err := service.Initialize(context.Background(), cfg)
		So(err, ShouldBeNil)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer stop(svc)

		Convey("Every manifest model takes part in a prediction", func() {
			p, err := svc.Predict(context.Background(), map[string]interface{}{
				"patientId":        "INT-1",
				"age":              55,
				"gender":           "female",
				"tumorStage":       "II",
				"tumorSize":        2.5,
				"lymphNodes":       1,
				"erStatus":         "positive",
				"treatmentHistory": "surgery",
			})
			So(err, ShouldBeNil)
			So(len(p.Ensemble.Comparison), ShouldEqual, 3)
			So(p.RiskScore, ShouldBeBetweenOrEqual, 0, 1)
			So(p.RiskTier.Valid(), ShouldBeTrue)
			So(len(p.TopFeatures), ShouldBeBetweenOrEqual, 1, cfg.ExplainTopN)
		})

		Convey("Stored tiers were fitted at startup", func() {
			cmp, err := svc.CompareTiers(context.Background(), risk.Low, risk.High)
			So(err, ShouldBeNil)
			So(cmp.A.Subjects, ShouldEqual, 10)
			So(cmp.B.Subjects, ShouldEqual, 10)
			So(cmp.LogRank.PValue, ShouldBeLessThan, 0.05)
		})

		Convey("An uploaded file runs as a job", func() {
			sub, err := svc.SubmitJob(context.Background(), "upload.csv", []byte(upload))
			So(err, ShouldBeNil)
			rec := waitForJob(svc, sub.Job.ID)
			So(rec.State, ShouldEqual, model.JobSucceeded)
			So(rec.Result.FailedPatients, ShouldEqual, 1)

			top, err := svc.Worklist(context.Background(), 5)
			So(err, ShouldBeNil)
			So(len(top), ShouldEqual, 2)
		})
	})

	Convey("Given a manifest that does not exist", t, func() {
		cfg := integrationConfig(t)
		cfg.ArtifactPath = "missing.yaml"

		_, err := service.Initialize(context.Background(), cfg)

		Convey("Then initialization fails", func() {
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given an unknown cohort driver", t, func() {
		cfg := integrationConfig(t)
		cfg.CohortDriver = "oracle"

		_, err := service.Initialize(context.Background(), cfg)

		Convey("Then initialization fails", func() {
			So(errors.Is(err, cohort.ErrUnknownDriver), ShouldBeTrue)
		})
	})

	Convey("Given cohorts are disabled", t, func() {
		cfg := integrationConfig(t)
		cfg.CohortDriver = cohort.DriverNone

		svc, err := service.Initialize(context.Background(), cfg)
		So(err, ShouldBeNil)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer stop(svc)

		Convey("Then tier comparison reports the missing cohort", func() {
			_, err := svc.CompareTiers(context.Background(), risk.Low, risk.High)
			So(errors.Is(err, service.ErrNoCohort), ShouldBeTrue)
			So(svc.GetStats(context.Background()).CohortTiers, ShouldBeEmpty)
		})
	})
}

func TestServiceStopIsIdempotent(t *testing.T) {
	Convey("Stopping a service twice is harmless", t, func() {
		f := newService(nil, 10)
		So(f.svc.Start(context.Background()), ShouldBeNil)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		So(f.svc.Stop(ctx), ShouldBeNil)
		So(f.svc.Stop(ctx), ShouldBeNil)
	})
}
