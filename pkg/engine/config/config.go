// Package config loads the materialized Config value the rest of the
// engine consumes: a YAML file on disk overlaid by environment variables
// (§2.1, §6). Grounded on the teacher's cmd/engine_factory.go env-reading
// idiom, generalized from ad-hoc os.Getenv calls scattered across a
// factory function into one typed, yaml.v3-backed loader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"AgentCore/pkg/engine/api"
)

// Config is the fully materialized runtime configuration: model selection,
// execution preset, transport credentials, and the actionlint gate.
type Config struct {
	Model            string `yaml:"model"`
	ReasoningEffort  string `yaml:"reasoning_effort"`
	SummaryVerbosity string `yaml:"summary_verbosity"`
	Instructions     string `yaml:"instructions"`

	Preset api.ExecutionPreset `yaml:"preset"`

	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"-"` // never persisted to disk; env-only
	AccountID string `yaml:"account_id"`

	MockMode  bool `yaml:"mock_mode"`
	DebugLogs bool `yaml:"debug_logs"`

	GitHub struct {
		ActionlintOnPatch bool   `yaml:"actionlint_on_patch"`
		ActionlintPath    string `yaml:"actionlint_path"`
	} `yaml:"github"`

	WorkspaceRoot string `yaml:"-"`
}

// Default returns the configuration a fresh workspace starts with absent
// any config file or environment override.
func Default() Config {
	return Config{
		Model:            "gpt-5-codex",
		ReasoningEffort:  "medium",
		SummaryVerbosity: "medium",
		Preset:           api.PresetAuto,
		BaseURL:          "https://api.openai.com/v1",
	}
}

// Load resolves the config file path (explicit path, then $APP_CONFIG,
// then ~/.config/<app>/config.yaml), unmarshals it over Default() if
// present, then overlays the four environment variables named in §6.
// A missing config file is not an error; missing env vars are left at
// whatever the file (or the default) already set.
func Load(explicitPath string) (Config, error) {
	cfg := Default()

	path, err := resolvePath(explicitPath)
	if err != nil {
		return cfg, err
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverlay(&cfg)
	return cfg, nil
}

func resolvePath(explicitPath string) (string, error) {
	if explicitPath != "" {
		return explicitPath, nil
	}
	if envPath := os.Getenv("APP_CONFIG"); envPath != "" {
		return envPath, nil
	}
	home, err := os.UserConfigDir()
	if err != nil {
		return "", nil // no config dir available; fall through to defaults
	}
	return filepath.Join(home, "agentcore", "config.yaml"), nil
}

// applyEnvOverlay applies the environment variables named in §6. Unknown
// variables are ignored (the overlay only ever reads these four names).
func applyEnvOverlay(cfg *Config) {
	if v := os.Getenv("APP_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("APP_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("APP_MOCK_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MockMode = b
		}
	}
	if v := os.Getenv("APP_DEBUG_LOGS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DebugLogs = b
		}
	}
}

// Validate reports configuration problems a `validate` CLI command should
// surface before attempting to start a session.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("config: model is required")
	}
	if !c.MockMode && c.APIKey == "" {
		return fmt.Errorf("config: APP_API_KEY is required unless mock_mode is set")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("config: base_url is required")
	}
	switch c.Preset {
	case api.PresetReadOnly, api.PresetUntrusted, api.PresetAuto, api.PresetFullYolo:
	default:
		return fmt.Errorf("config: unknown preset %q", c.Preset)
	}
	return nil
}
