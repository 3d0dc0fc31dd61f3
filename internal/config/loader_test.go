package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/listenproof/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.DLPID, convey.ShouldEqual, 17)
				convey.So(cfg.LedgerDriver, convey.ShouldEqual, config.LedgerSQLite)
				convey.So(cfg.RetryMaxAttempts, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("PROOF_FILE_ID", "4242")
			_ = os.Setenv("PROOF_JOB_ID", "job-7")
			_ = os.Setenv("PROOF_CONFIRM_THRESHOLD", "0.75")
			_ = os.Setenv("PROOF_LEDGER_DRIVER", "memory")
			_ = os.Setenv("PROOF_ARTIFACT_ENABLED", "false")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.FileID, convey.ShouldEqual, 4242)
				convey.So(cfg.JobID, convey.ShouldEqual, "job-7")
				convey.So(cfg.ConfirmThreshold, convey.ShouldEqual, 0.75)
				convey.So(cfg.LedgerDriver, convey.ShouldEqual, config.LedgerMemory)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
# ledger on a shared database
ledger_driver: postgres
ledger_dsn: "postgres://proof@db/ledger"
max_points: 500
clock_skew_s: 60
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("PROOF_CONFIG", tmpFile)
			_ = os.Setenv("PROOF_MAX_POINTS", "800") // overrides the file
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LedgerDriver, convey.ShouldEqual, config.LedgerPostgres)
				convey.So(cfg.LedgerDSN, convey.ShouldEqual, "postgres://proof@db/ledger")
				convey.So(cfg.MaxPoints, convey.ShouldEqual, 800)
				convey.So(cfg.ClockSkewS, convey.ShouldEqual, 60)
				convey.So(cfg.RunTimeoutS, convey.ShouldEqual, 120) // from defaults
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("PROOF_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("PROOF_CONFIG", "/non/existent/proof.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("PROOF_MAX_POINTS", "lots")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the loaded values fail validation", func() {
			_ = os.Setenv("PROOF_OWNER_ADDRESS", "0xnothex")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"PROOF_CONFIG",
		"PROOF_FILE_ID",
		"PROOF_JOB_ID",
		"PROOF_CONFIRM_THRESHOLD",
		"PROOF_LEDGER_DRIVER",
		"PROOF_ARTIFACT_ENABLED",
		"PROOF_MAX_POINTS",
		"PROOF_OWNER_ADDRESS",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "proof-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
