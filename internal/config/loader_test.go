package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/survcast/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "survcast.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			t.Setenv(config.EnvConfig, "")
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.ArtifactPath, convey.ShouldEqual, "configs/models.yaml")
				convey.So(cfg.CORSAllowedOrigins, convey.ShouldResemble, []string{"*"})
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("SURVCAST_ADDR", ":8080")
			t.Setenv("SURVCAST_JOB_QUEUE_SIZE", "50")
			t.Setenv("SURVCAST_LANDMARK_MONTH", "36")
			t.Setenv("SURVCAST_SHUTDOWN_TIMEOUT", "3s")
			t.Setenv("SURVCAST_CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.JobQueueSize, convey.ShouldEqual, 50)
				convey.So(cfg.LandmarkMonth, convey.ShouldEqual, 36)
				convey.So(cfg.ShutdownTimeout, convey.ShouldEqual, 3*time.Second)
				convey.So(cfg.CORSAllowedOrigins, convey.ShouldResemble, []string{"https://a.example", "https://b.example"})
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := writeConfig(t, `
addr: ":9090"
cohort_driver: postgres
cohort_dsn: postgres://survcast@localhost/survcast
job_worker_count: 3
`)
			t.Setenv(config.EnvConfig, path)
			t.Setenv("SURVCAST_JOB_WORKER_COUNT", "7")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.CohortDriver, convey.ShouldEqual, "postgres")
				convey.So(cfg.JobWorkerCount, convey.ShouldEqual, 7)
				convey.So(cfg.GridStep, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			t.Setenv(config.EnvConfig, writeConfig(t, `invalid: yaml: content: [`))
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			t.Setenv(config.EnvConfig, "/non/existent/file.yaml")
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the file empties addr", func() {
			t.Setenv(config.EnvConfig, writeConfig(t, `addr: ""`))
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			t.Setenv("SURVCAST_JOB_QUEUE_SIZE", "invalid")
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}
