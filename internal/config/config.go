// Package config loads the proxy core's own settings: the fallback eligibility
// table, signature-cache tuning, and onboarding/project defaults. It does not
// own HTTP server settings or CLI flags (those belong to the embedding binary).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the proxy core's configuration, loaded from a YAML file.
type Config struct {
	// GoogleCloudProject pins the Code Assist project id, skipping onboarding
	// when non-empty. Mirrors the GOOGLE_CLOUD_PROJECT environment variable
	// and the --google-cloud-project flag (both owned by the CLI collaborator).
	GoogleCloudProject string `yaml:"google-cloud-project" json:"google-cloud-project"`

	// LogLevel selects the logrus level: error, warn, info, debug.
	LogLevel string `yaml:"log-level" json:"log-level"`

	// LoggingToFile switches the log sink from stdout to a rotating file.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// AuthDir is the directory holding OAuth credentials and, by default,
	// the signature cache's durable store.
	AuthDir string `yaml:"auth-dir" json:"auth-dir"`

	// DisableAutoModelSwitch turns off the fallback coordinator entirely,
	// per the --disable-auto-model-switch CLI flag.
	DisableAutoModelSwitch bool `yaml:"disable-auto-model-switch" json:"disable-auto-model-switch"`

	// Fallback configures the rate-limit fallback policy table.
	Fallback FallbackConfig `yaml:"fallback" json:"fallback"`

	// SignatureCache configures the thought-signature continuity cache.
	SignatureCache SignatureCacheConfig `yaml:"signature-cache" json:"signature-cache"`
}

// FallbackConfig is the rate-limit fallback policy table, keyed by the
// requested model name. A model missing from the map is ineligible.
type FallbackConfig struct {
	// Chains maps a thinking model to its single designated fallback.
	// A model already at the bottom of its chain has no entry here.
	Chains map[string]string `yaml:"chains" json:"chains"`

	// RateLimitStatuses lists HTTP status codes treated as rate-limit
	// conditions for fallback purposes, beyond the universal 429.
	RateLimitStatuses []int `yaml:"rate-limit-statuses" json:"rate-limit-statuses"`
}

// SignatureCacheConfig tunes the two-tier thought-signature cache.
type SignatureCacheConfig struct {
	// Backend selects the durable L2 store: "file" (default) or "postgres".
	Backend string `yaml:"backend" json:"backend"`

	// Dir is the directory used by the file backend. Defaults to
	// "<auth-dir>/signature-cache" when empty.
	Dir string `yaml:"dir" json:"dir"`

	// DSN is the Postgres connection string used by the postgres backend.
	DSN string `yaml:"dsn" json:"dsn"`

	// L1Capacity overrides the in-memory front size (default 1000).
	L1Capacity int `yaml:"l1-capacity" json:"l1-capacity"`

	// L2Capacity overrides the durable store size (default 10000).
	L2Capacity int `yaml:"l2-capacity" json:"l2-capacity"`
}

// DefaultConfig returns the zero-value configuration with the same defaults
// the rest of the package applies when a field is left unset.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Fallback: FallbackConfig{
			Chains:            map[string]string{},
			RateLimitStatuses: []int{429},
		},
		SignatureCache: SignatureCacheConfig{
			Backend:    "file",
			L1Capacity: 1000,
			L2Capacity: 10000,
		},
	}
}

// LoadConfig reads and parses a YAML configuration file, filling in defaults
// for any field the file omits.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.SignatureCache.L1Capacity <= 0 {
		cfg.SignatureCache.L1Capacity = 1000
	}
	if cfg.SignatureCache.L2Capacity <= 0 {
		cfg.SignatureCache.L2Capacity = 10000
	}
	if cfg.SignatureCache.Backend == "" {
		cfg.SignatureCache.Backend = "file"
	}
	if cfg.Fallback.Chains == nil {
		cfg.Fallback.Chains = map[string]string{}
	}
	if len(cfg.Fallback.RateLimitStatuses) == 0 {
		cfg.Fallback.RateLimitStatuses = []int{429}
	}
	return cfg, nil
}
