package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/survcast/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.GridEnd, convey.ShouldEqual, 60)
			convey.So(cfg.GridStep, convey.ShouldEqual, 3)
			convey.So(cfg.LandmarkMonth, convey.ShouldEqual, 24)
			convey.So(cfg.ConfidenceLevel, convey.ShouldEqual, 0.95)
			convey.So(cfg.JobWorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.ShutdownTimeout, convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.CohortDriver, convey.ShouldEqual, "sqlite")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid configurations", t, func() {
		mutations := map[string]func(*config.Config){
			"empty addr":       func(c *config.Config) { c.Addr = "" },
			"zero grid step":   func(c *config.Config) { c.GridStep = 0 },
			"inverted grid":    func(c *config.Config) { c.GridEnd = -1 },
			"landmark outside": func(c *config.Config) { c.LandmarkMonth = 90 },
			"confidence of 1":  func(c *config.Config) { c.ConfidenceLevel = 1 },
			"no workers":       func(c *config.Config) { c.JobWorkerCount = 0 },
			"zero upload cap":  func(c *config.Config) { c.MaxUploadBytes = 0 },
			"negative rate":    func(c *config.Config) { c.RateLimitRPS = -1 },
			"unknown driver":   func(c *config.Config) { c.CohortDriver = "mongo" },
		}
		for name, mutate := range mutations {
			cfg := config.New()
			mutate(cfg)
			convey.Convey("Then "+name+" is rejected", func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
