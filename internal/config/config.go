// Package config defines the proof job configuration and its loading hooks.
//
// Conventions:
// - Flat koanf keys so PROOF_FOO_BAR maps to foo_bar without nesting.
// - Durations are plain integers with a unit suffix in the key (_ms, _s).
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger drivers.
const (
	LedgerMemory   = "memory"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
)

// Score bases.
const (
	ScoreBasisTotal        = "total"
	ScoreBasisDifferential = "differential"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Run metadata carried into the proof document.
	DLPID        int64  `koanf:"dlp_id"`
	FileID       int64  `koanf:"file_id"`
	FileURL      string `koanf:"file_url"`
	JobID        string `koanf:"job_id"`
	OwnerAddress string `koanf:"owner_address"`
	Version      string `koanf:"version"`

	// InputDir holds the contribution file; OutputDir receives results.json.
	InputDir  string `koanf:"input_dir"`
	OutputDir string `koanf:"output_dir"`

	// RewardFactor is reported in metadata; MaxPoints normalizes scores.
	RewardFactor int    `koanf:"reward_factor"`
	MaxPoints    int    `koanf:"max_points"`
	ScoreBasis   string `koanf:"score_basis"`

	// Provider (Spotify Web API) settings.
	ProviderBaseURL      string  `koanf:"provider_base_url"`
	ProviderTokenURL     string  `koanf:"provider_token_url"`
	ProviderClientID     string  `koanf:"provider_client_id"`
	ProviderClientSecret string  `koanf:"provider_client_secret"`
	ProviderRateLimitRPS float64 `koanf:"provider_rate_limit_rps"`
	ProviderMaxPages     int     `koanf:"provider_max_pages"`

	// Credential supplied with the contribution when not inside the file.
	AccessToken  string `koanf:"access_token"`
	RefreshToken string `koanf:"refresh_token"`

	// Authenticity reconciliation.
	ConfirmThreshold float64 `koanf:"confirm_threshold"`
	ClockSkewS       int     `koanf:"clock_skew_s"`

	// Retry policy for provider calls.
	RetryMaxAttempts int `koanf:"retry_max_attempts"`
	RetryBaseDelayMS int `koanf:"retry_base_delay_ms"`
	RetryMaxDelayMS  int `koanf:"retry_max_delay_ms"`

	// RunTimeoutS bounds one pipeline run.
	RunTimeoutS int `koanf:"run_timeout_s"`

	// Ledger store.
	LedgerDriver         string `koanf:"ledger_driver"`
	LedgerDSN            string `koanf:"ledger_dsn"`
	LedgerCommitAttempts int    `koanf:"ledger_commit_attempts"`

	// Sealed export of the contribution.
	ArtifactEnabled       bool   `koanf:"artifact_enabled"`
	ArtifactEncryptionKey string `koanf:"artifact_encryption_key"`
	ArtifactS3Region      string `koanf:"artifact_s3_region"`

	// PushgatewayURL receives metrics at the end of a prove run.
	PushgatewayURL string `koanf:"pushgateway_url"`
	// Addr is the listen address of serve mode.
	Addr string `koanf:"addr"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		DLPID:                17,
		Version:              "1.0.0",
		InputDir:             "/input",
		OutputDir:            "/output",
		RewardFactor:         1000,
		MaxPoints:            1000,
		ScoreBasis:           ScoreBasisTotal,
		ProviderBaseURL:      "https://api.spotify.com/v1",
		ProviderTokenURL:     "https://accounts.spotify.com/api/token",
		ProviderRateLimitRPS: 5,
		ProviderMaxPages:     20,
		ConfirmThreshold:     0.9,
		ClockSkewS:           120,
		RetryMaxAttempts:     5,
		RetryBaseDelayMS:     500,
		RetryMaxDelayMS:      8000,
		RunTimeoutS:          120,
		LedgerDriver:         LedgerSQLite,
		LedgerDSN:            "/output/ledger.db",
		LedgerCommitAttempts: 3,
		ArtifactS3Region:     "us-east-1",
		Addr:                 ":9080",
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.MaxPoints < 0 {
		problems = append(problems, "max_points must not be negative")
	}
	if c.ConfirmThreshold < 0 || c.ConfirmThreshold > 1 {
		problems = append(problems, "confirm_threshold must be within [0,1]")
	}
	if c.ClockSkewS < 0 {
		problems = append(problems, "clock_skew_s must not be negative")
	}
	if c.RetryMaxAttempts < 1 {
		problems = append(problems, "retry_max_attempts must be at least 1")
	}
	if c.RetryBaseDelayMS < 0 || c.RetryMaxDelayMS < c.RetryBaseDelayMS {
		problems = append(problems, "retry delays must satisfy 0 <= base <= max")
	}
	if c.RunTimeoutS <= 0 {
		problems = append(problems, "run_timeout_s must be positive")
	}
	if c.LedgerCommitAttempts < 1 {
		problems = append(problems, "ledger_commit_attempts must be at least 1")
	}
	switch c.LedgerDriver {
	case LedgerMemory:
	case LedgerSQLite, LedgerPostgres:
		if c.LedgerDSN == "" {
			problems = append(problems, "ledger_dsn is required for "+c.LedgerDriver)
		}
	default:
		problems = append(problems, "unknown ledger_driver "+c.LedgerDriver)
	}
	switch c.ScoreBasis {
	case ScoreBasisTotal, ScoreBasisDifferential:
	default:
		problems = append(problems, "unknown score_basis "+c.ScoreBasis)
	}
	if c.OwnerAddress != "" && !common.IsHexAddress(c.OwnerAddress) {
		problems = append(problems, "owner_address is not a hex address")
	}
	if c.ProviderBaseURL == "" {
		problems = append(problems, "provider_base_url must not be empty")
	}
	if c.ArtifactEnabled && c.ArtifactEncryptionKey == "" {
		problems = append(problems, "artifact_encryption_key is required when artifact_enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ClockSkew returns the reconciliation tolerance.
func (c *Config) ClockSkew() time.Duration { return time.Duration(c.ClockSkewS) * time.Second }

// RunTimeout returns the per-run deadline.
func (c *Config) RunTimeout() time.Duration { return time.Duration(c.RunTimeoutS) * time.Second }

// RetryBaseDelay returns the first backoff delay.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the backoff cap.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMS) * time.Millisecond
}

const redacted = "[redacted]"

// Redacted returns a copy safe to log: tokens, secrets and DSN credentials are masked.
func (c *Config) Redacted() Config {
	out := *c
	for _, s := range []*string{&out.ProviderClientSecret, &out.AccessToken, &out.RefreshToken, &out.ArtifactEncryptionKey} {
		if *s != "" {
			*s = redacted
		}
	}
	out.LedgerDSN = redactDSN(out.LedgerDSN)
	return out
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
