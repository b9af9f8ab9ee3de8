package batch_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/survcast/internal/adapters/tabular"
	"github.com/okian/survcast/internal/batch"
	"github.com/okian/survcast/internal/domain/adapter"
	"github.com/okian/survcast/internal/domain/adapter/adaptertest"
	"github.com/okian/survcast/internal/domain/explain"
	"github.com/okian/survcast/internal/domain/risk"
	"github.com/okian/survcast/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const upload = `patient_id,age,tumor_stage,gender
P1,60,II,female
P2,70,IV,male
,200,I,female
P4,abc,II,male
P1,58,I,female
`

func readTable(csv string) tabular.Table {
	t, err := tabular.ReadCSV(strings.NewReader(csv))
	So(err, ShouldBeNil)
	return t
}

func TestScore(t *testing.T) {
	Convey("Given a scorer over the fixture models", t, func() {
		reg, err := adaptertest.Registry()
		So(err, ShouldBeNil)
		clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s := batch.NewScorer(reg, batch.WithConcurrency(2), batch.WithClock(func() time.Time { return clock }))

		Convey("When a mixed upload is scored", func() {
			res, err := s.Score(context.Background(), "cohort.csv", readTable(upload))
			So(err, ShouldBeNil)

			Convey("Rows keep input order and failures stay per row", func() {
				So(res.TotalPatients, ShouldEqual, 5)
				So(res.FailedPatients, ShouldEqual, 2)
				ids := make([]string, len(res.Patients))
				for i, r := range res.Patients {
					ids[i] = r.PatientID
				}
				So(ids, ShouldResemble, []string{"P1", "P2", "PATIENT-3", "P4", "P1"})
				So(res.Patients[2].OK(), ShouldBeFalse)
				So(res.Patients[3].OK(), ShouldBeFalse)
				So(res.Patients[2].RiskScore, ShouldEqual, 0)
			})

			Convey("The risk score is one minus the reference landmark", func() {
				low := res.Patients[0]
				So(low.RiskScore, ShouldAlmostEqual, 1-math.Exp(-0.125), 1e-9)
				So(low.SurvivalProbability, ShouldAlmostEqual, math.Exp(-0.125), 1e-9)
				So(low.RiskTier, ShouldEqual, risk.Low)
				So(low.PredictedSurvivalMonths, ShouldEqual, 60)
				So(low.MedianReached, ShouldBeFalse)

				high := res.Patients[1]
				So(high.RiskScore, ShouldAlmostEqual, 1-math.Exp(-0.6), 1e-9)
				So(high.RiskTier, ShouldEqual, risk.Medium)
				So(high.PredictedSurvivalMonths, ShouldEqual, 36)
				So(high.MedianReached, ShouldBeTrue)
			})

			Convey("The summary covers scored rows only", func() {
				So(res.Summary, ShouldResemble, risk.Summary{Low: 2, Medium: 1, MeanPredictedSurvival: (60 + 36 + 60) / 3.0})
			})

			Convey("Metadata is attached", func() {
				So(res.FileName, ShouldEqual, "cohort.csv")
				So(res.ProcessedAt, ShouldEqual, clock)
				So(res.DuplicatePatients, ShouldResemble, []string{"P1"})
				So(res.ModelPerformance[adapter.DeepSurv].CIndex, ShouldEqual, 0.75)
				So(res.TopFeatureSource, ShouldEqual, explain.SourceBuiltin)
				So(res.TopFeatures[0].Feature, ShouldEqual, "Tumor Stage")
			})
		})

		Convey("When the id column is missing", func() {
			_, err := s.Score(context.Background(), "x.csv", readTable("age,tumor_stage\n60,II\n"))
			So(errors.Is(err, batch.ErrMissingColumn), ShouldBeTrue)
		})

		Convey("When the upload has only a header", func() {
			res, err := s.Score(context.Background(), "empty.csv", readTable("patient_id,age\n"))
			So(err, ShouldBeNil)
			So(res.TotalPatients, ShouldEqual, 0)
			So(res.Summary, ShouldResemble, risk.Summary{})
		})

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			res, err := s.Score(ctx, "cohort.csv", readTable(upload))
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(res, ShouldBeNil)
		})

		Convey("When every explainer is removed", func() {
			s := batch.NewScorer(reg, batch.WithExplainers())
			res, err := s.Score(context.Background(), "cohort.csv", readTable(upload))
			So(err, ShouldBeNil)
			So(res.TopFeatureSource, ShouldEqual, explain.SourceFallback)
			So(res.TopFeatures, ShouldResemble, explain.Fallback())
		})
	})
}

func TestScoreRecord(t *testing.T) {
	Convey("ScoreRecord names blank ids by position", t, func() {
		reg, err := adaptertest.Registry()
		So(err, ShouldBeNil)
		row := batch.ScoreRecord(reg.Reference(), 9, map[string]string{"patient_id": "", "age": "61"})
		So(row.PatientID, ShouldEqual, "PATIENT-10")
		So(row.OK(), ShouldBeTrue)
	})

	Convey("Non-finite numeric cells are imputed", t, func() {
		reg, err := adaptertest.Registry()
		So(err, ShouldBeNil)
		for _, cell := range []string{"NaN", "nan", "Inf", "-Infinity"} {
			row := batch.ScoreRecord(reg.Reference(), 0, map[string]string{"patient_id": "N1", "age": cell, "tumor_stage": "II"})
			So(row.OK(), ShouldBeTrue)
			So(row.RiskScore, ShouldAlmostEqual, 1-math.Exp(-0.125), 1e-9)
			So(row.RiskTier, ShouldEqual, risk.Low)
			So(row.PredictedSurvivalMonths, ShouldEqual, 60)
		}
	})
}
