// Package config provides runtime configuration for hubwatch.
// It uses Viper to load settings from files and environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for hubwatch.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────────────
	ServerHost string `mapstructure:"server_host"`
	ServerPort int    `mapstructure:"server_port"`
	DBPath     string `mapstructure:"db_path"`

	// ── Ingestion sources ────────────────────────────────────────────────────
	// SnapshotPath: JSON document with workflow/agent arrays, written by the
	// agent runner. Absence is tolerated (previous data stays authoritative).
	SnapshotPath string `mapstructure:"snapshot_path"`
	// BacklogPath: markdown backlog used by seed fallback when enabled.
	BacklogPath string `mapstructure:"backlog_path"`
	// SessionsDir: directory of append-only *.jsonl session logs.
	SessionsDir string `mapstructure:"sessions_dir"`
	// DeployURL: Coolify-style deployment status endpoint. Empty disables
	// the deploy poller.
	DeployURL            string `mapstructure:"deploy_url"`
	DeployTimeoutSeconds int    `mapstructure:"deploy_timeout_seconds"`

	// ── Scheduling ───────────────────────────────────────────────────────────
	SnapshotPollSeconds int `mapstructure:"snapshot_poll_seconds"`
	DeployPollSeconds   int `mapstructure:"deploy_poll_seconds"`
	ReseedSeconds       int `mapstructure:"reseed_seconds"`
	SessionScanSeconds  int `mapstructure:"session_scan_seconds"`
	HostStatsSeconds    int `mapstructure:"host_stats_seconds"`

	// ── Staleness & seeding ──────────────────────────────────────────────────
	SnapshotMaxAgeSeconds int `mapstructure:"snapshot_max_age_seconds"`
	// MinSeedItems: when > 0 and the backlog yields nothing, seed at least
	// this many default workflows so the dashboard never renders empty.
	MinSeedItems int  `mapstructure:"min_seed_items"`
	BacklogSeed  bool `mapstructure:"backlog_seed"`
	// SeedWorkflowsJSON: operator-supplied default workflows as a JSON array
	// of {id,title,lane,status,notes}; overrides the built-in defaults.
	SeedWorkflowsJSON string `mapstructure:"seed_workflows_json"`

	// ── Alerting ─────────────────────────────────────────────────────────────
	// ProviderDailyLimitsJSON: {"provider": dailyTokenLimit, ...}.
	// A provider without an entry has no limit rule (rule inapplicable).
	ProviderDailyLimitsJSON string  `mapstructure:"provider_daily_limits"`
	ErrorRateThreshold      float64 `mapstructure:"error_rate_threshold"`
	AlertsEnabled           bool    `mapstructure:"alerts_enabled"`
}

// Load reads config from file (./config.yaml or ~/.hubwatch/config.yaml)
// and falls back to defaults. Environment variables with prefix HUB_
// override file values.
func Load() (*Config, error) {
	v := viper.New()

	// --- Defaults ---
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 7720)
	v.SetDefault("db_path", "hubwatch.db")

	v.SetDefault("snapshot_path", "data/mission-snapshot.json")
	v.SetDefault("backlog_path", "data/BACKLOG.md")
	v.SetDefault("sessions_dir", "data/sessions")
	v.SetDefault("deploy_url", "")
	v.SetDefault("deploy_timeout_seconds", 8)

	v.SetDefault("snapshot_poll_seconds", 15)
	v.SetDefault("deploy_poll_seconds", 60)
	v.SetDefault("reseed_seconds", 300)
	v.SetDefault("session_scan_seconds", 60)
	v.SetDefault("host_stats_seconds", 30)

	v.SetDefault("snapshot_max_age_seconds", 120)
	v.SetDefault("min_seed_items", 3)
	v.SetDefault("backlog_seed", true)
	v.SetDefault("seed_workflows_json", "")

	v.SetDefault("provider_daily_limits", "{}")
	v.SetDefault("error_rate_threshold", 0.1)
	v.SetDefault("alerts_enabled", true)

	// --- Config file ---
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.hubwatch")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// --- Environment Variables ---
	v.SetEnvPrefix("HUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// ProviderDailyLimits decodes the per-provider daily token limits.
// Malformed or empty JSON yields no limits (every rule inapplicable)
// rather than an error.
func (c *Config) ProviderDailyLimits() map[string]int64 {
	limits := make(map[string]int64)
	if c.ProviderDailyLimitsJSON == "" {
		return limits
	}
	if err := json.Unmarshal([]byte(c.ProviderDailyLimitsJSON), &limits); err != nil {
		return map[string]int64{}
	}
	return limits
}

// SnapshotMaxAge returns the staleness threshold as a duration.
func (c *Config) SnapshotMaxAge() time.Duration {
	return time.Duration(c.SnapshotMaxAgeSeconds) * time.Second
}

// DeployTimeout returns the bounded timeout for deploy-status fetches.
func (c *Config) DeployTimeout() time.Duration {
	if c.DeployTimeoutSeconds <= 0 {
		return 8 * time.Second
	}
	return time.Duration(c.DeployTimeoutSeconds) * time.Second
}
