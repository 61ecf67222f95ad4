// Package settings provides harness configuration loading. Configuration
// lives at .ada/config.json with operator overrides in .ada/config.local.json
// (not committed); a .env file at the project root is loaded for credentials.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Agent transport names.
const (
	AgentClaude = "claude" // subprocess CLI transport
	AgentAPI    = "api"    // direct streaming API transport
)

// Defaults applied when the config file omits a field.
const (
	DefaultModel            = "claude-sonnet-4-5"
	DefaultAgent            = AgentClaude
	DefaultMaxRetries       = 3
	DefaultSessionTimeout   = 30 * time.Minute
	DefaultStallTimeout     = 5 * time.Minute
	DefaultContextThreshold = 0.7
	DefaultContextWindow    = 200_000
	DefaultAPIAddr          = "127.0.0.1:8765"
	DefaultAlertDedupe      = 60 * time.Second
)

// VerificationConfig holds the gate commands. Empty commands disable the
// corresponding gate.
type VerificationConfig struct {
	LintCommand      string `json:"lint_command,omitempty"`
	TypeCheckCommand string `json:"type_check_command,omitempty"`
	UnitTestCommand  string `json:"unit_test_command,omitempty"`

	// E2ECommand may contain {pattern}, replaced with the feature's
	// test-name filter before execution.
	E2ECommand string `json:"e2e_command,omitempty"`

	CoverageCommand    string  `json:"coverage_command,omitempty"`
	CoverageReportPath string  `json:"coverage_report_path,omitempty"`
	MinCoveragePct     float64 `json:"min_coverage_pct,omitempty"`

	// RequireApproval forces manual approval before any feature completes.
	RequireApproval bool `json:"require_approval,omitempty"`
	// ApprovalFeatures lists feature IDs that individually require approval.
	ApprovalFeatures []string `json:"approval_features,omitempty"`
}

// Config is the .ada/config.json schema.
type Config struct {
	// Agent selects the session transport: "claude" or "api".
	Agent string `json:"agent"`

	// Model is the default model; features may override per entry.
	Model string `json:"model"`

	// AgentBinary is the CLI executable for the subprocess transport.
	AgentBinary string `json:"agent_binary,omitempty"`

	MaxRetries int `json:"max_retries,omitempty"`

	// SessionTimeoutSec is the hard wall-clock limit per session.
	SessionTimeoutSec int `json:"session_timeout_sec,omitempty"`
	// StallTimeoutSec kills a session with no transport activity.
	StallTimeoutSec int `json:"stall_timeout_sec,omitempty"`

	// ContextThreshold is the context-window fraction that triggers handoff.
	ContextThreshold float64 `json:"context_threshold,omitempty"`
	// ContextWindow is the model context window in tokens.
	ContextWindow int `json:"context_window,omitempty"`

	// APIAddr is the listen address for the telemetry server.
	APIAddr string `json:"api_addr,omitempty"`

	// AlertDedupeSec is the alert duplicate-suppression window.
	AlertDedupeSec int `json:"alert_dedupe_sec,omitempty"`

	// AutoCommit commits verified features automatically. Defaults to true.
	AutoCommit *bool `json:"auto_commit,omitempty"`

	// AllowDirty accepts a dirty worktree at preflight.
	AllowDirty bool `json:"allow_dirty,omitempty"`

	// LogLevel sets harness log verbosity (debug, info, warn, error).
	// Overridable by the ADA_LOG_LEVEL environment variable.
	LogLevel string `json:"log_level,omitempty"`

	Verification VerificationConfig `json:"verification,omitempty"`
}

// Load reads config.json from the .ada dir under projectRoot, applies
// config.local.json overrides, loads .env, then applies environment
// overrides and defaults. Missing files yield defaults, not errors.
func Load(projectRoot string) (*Config, error) {
	// Credentials and local overrides; absence is fine.
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))

	cfg := &Config{}
	base := filepath.Join(projectRoot, ".ada", "config.json")
	if err := loadInto(base, cfg); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	local := filepath.Join(projectRoot, ".ada", "config.local.json")
	if err := loadInto(local, cfg); err != nil {
		return nil, fmt.Errorf("reading local config file: %w", err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// loadInto unmarshals a config file over cfg. Fields absent from the file
// keep their current values; a missing file is a no-op.
func loadInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is workspace-derived
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ADA_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("ADA_AGENT"); v != "" {
		cfg.Agent = v
	}
	if v := os.Getenv("ADA_API_ADDR"); v != "" {
		cfg.APIAddr = v
	}
	if v := os.Getenv("ADA_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxRetries = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Agent == "" {
		cfg.Agent = DefaultAgent
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.AgentBinary == "" {
		cfg.AgentBinary = "claude"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.SessionTimeoutSec == 0 {
		cfg.SessionTimeoutSec = int(DefaultSessionTimeout.Seconds())
	}
	if cfg.StallTimeoutSec == 0 {
		cfg.StallTimeoutSec = int(DefaultStallTimeout.Seconds())
	}
	if cfg.ContextThreshold == 0 {
		cfg.ContextThreshold = DefaultContextThreshold
	}
	if cfg.ContextWindow == 0 {
		cfg.ContextWindow = DefaultContextWindow
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = DefaultAPIAddr
	}
	if cfg.AlertDedupeSec == 0 {
		cfg.AlertDedupeSec = int(DefaultAlertDedupe.Seconds())
	}
}

// SessionTimeout returns the hard session limit as a duration.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSec) * time.Second
}

// StallTimeout returns the stall limit as a duration.
func (c *Config) StallTimeout() time.Duration {
	return time.Duration(c.StallTimeoutSec) * time.Second
}

// AlertDedupe returns the alert duplicate-suppression window.
func (c *Config) AlertDedupe() time.Duration {
	return time.Duration(c.AlertDedupeSec) * time.Second
}

// AutoCommitEnabled reports whether verified features are committed
// automatically. Defaults to true when unset.
func (c *Config) AutoCommitEnabled() bool {
	return c.AutoCommit == nil || *c.AutoCommit
}

// RequiresApproval reports whether the given feature needs manual approval
// before completion.
func (c *Config) RequiresApproval(featureID string) bool {
	if c.Verification.RequireApproval {
		return true
	}
	for _, id := range c.Verification.ApprovalFeatures {
		if id == featureID {
			return true
		}
	}
	return false
}
