package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/warp/paycompare/config"
)

var configEnvVars = []string{
	"PAYCOMPARE_CONFIG",
	"PAYCOMPARE_ADDR",
	"PAYCOMPARE_DB_PATH",
	"PAYCOMPARE_DEFAULT_RATE_PATHS",
	"PAYCOMPARE_ALTERNATE_RATE_PATHS",
	"PAYCOMPARE_LOG_LEVEL",
	"PAYCOMPARE_MAX_UPLOAD_MB",
	"PAYCOMPARE_ENRICH_WORKERS",
	"PAYCOMPARE_HISTORY_LIMIT",
	"PAYCOMPARE_ALLOWED_ORIGINS",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "paycompare.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DBPath, convey.ShouldEqual, "timesheets.db")
				convey.So(cfg.DefaultRatePaths, convey.ShouldResemble, []string{"pay details.xlsx"})
				convey.So(cfg.AlternateRatePaths, convey.ShouldResemble, []string{"pay details ot.xlsx"})
				convey.So(cfg.MaxUploadMB, convey.ShouldEqual, 64)
				convey.So(cfg.MaxUploadBytes(), convey.ShouldEqual, int64(64<<20))
				convey.So(cfg.EnrichWorkers, convey.ShouldEqual, 4)
				convey.So(cfg.HistoryLimit, convey.ShouldEqual, 1000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("PAYCOMPARE_ADDR", ":9000")
			_ = os.Setenv("PAYCOMPARE_DB_PATH", "/data/history.db")
			_ = os.Setenv("PAYCOMPARE_ENRICH_WORKERS", "16")
			_ = os.Setenv("PAYCOMPARE_DEFAULT_RATE_PATHS", "rates/a.xlsx, rates/b.xlsx")
			_ = os.Setenv("PAYCOMPARE_ALLOWED_ORIGINS", "http://localhost:5173")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9000")
				convey.So(cfg.DBPath, convey.ShouldEqual, "/data/history.db")
				convey.So(cfg.EnrichWorkers, convey.ShouldEqual, 16)
				convey.So(cfg.DefaultRatePaths, convey.ShouldResemble, []string{"rates/a.xlsx", "rates/b.xlsx"})
				convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"http://localhost:5173"})
				convey.So(cfg.AlternateRatePaths, convey.ShouldResemble, []string{"pay details ot.xlsx"})
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			path := writeConfigFile(t, `
addr: ":7070"
history_limit: 50
log_level: debug
alternate_rate_paths:
  - "ot/one.xlsx"
`)
			_ = os.Setenv("PAYCOMPARE_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.HistoryLimit, convey.ShouldEqual, 50)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.AlternateRatePaths, convey.ShouldResemble, []string{"ot/one.xlsx"})
			})

			convey.Convey("And env vars take precedence over the file", func() {
				_ = os.Setenv("PAYCOMPARE_ADDR", ":6060")

				cfg, err := config.Load(ctx)

				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
				convey.So(cfg.HistoryLimit, convey.ShouldEqual, 50)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("PAYCOMPARE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

			_, err := config.Load(ctx)

			convey.Convey("Then it should fail to load", func() {
				convey.So(err, convey.ShouldWrap, config.ErrLoadConfig)
			})
		})

		convey.Convey("When a setting is invalid", func() {
			_ = os.Setenv("PAYCOMPARE_ENRICH_WORKERS", "0")

			_, err := config.Load(ctx)

			convey.Convey("Then it should be rejected", func() {
				convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
			})
		})
	})
}
