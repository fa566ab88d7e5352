package config

import (
	"os"
	"path/filepath"
	"testing"

	"AgentCore/pkg/engine/api"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Model != "gpt-5-codex" {
		t.Errorf("Model = %q, want %q", cfg.Model, "gpt-5-codex")
	}
	if cfg.Preset != api.PresetAuto {
		t.Errorf("Preset = %q, want %q", cfg.Preset, api.PresetAuto)
	}
	if cfg.BaseURL == "" {
		t.Error("BaseURL must not be empty")
	}
}

func TestLoad_MissingFileFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load returned error for a missing file: %v", err)
	}
	if cfg.Model != Default().Model {
		t.Errorf("Model = %q, want default %q", cfg.Model, Default().Model)
	}
}

func TestLoad_UnmarshalsOverDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "model: my-model\npreset: read-only\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "my-model" {
		t.Errorf("Model = %q, want %q", cfg.Model, "my-model")
	}
	if cfg.Preset != api.PresetReadOnly {
		t.Errorf("Preset = %q, want %q", cfg.Preset, api.PresetReadOnly)
	}
	if cfg.ReasoningEffort != Default().ReasoningEffort {
		t.Errorf("ReasoningEffort should still be the default when not set in file, got %q", cfg.ReasoningEffort)
	}
}

func TestLoad_EnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("model: m\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("APP_API_KEY", "sk-test")
	t.Setenv("APP_BASE_URL", "https://example.test/v1")
	t.Setenv("APP_MOCK_MODE", "true")
	t.Setenv("APP_DEBUG_LOGS", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want env override", cfg.APIKey)
	}
	if cfg.BaseURL != "https://example.test/v1" {
		t.Errorf("BaseURL = %q, want env override", cfg.BaseURL)
	}
	if !cfg.MockMode {
		t.Error("MockMode should be true from APP_MOCK_MODE")
	}
	if !cfg.DebugLogs {
		t.Error("DebugLogs should be true from APP_DEBUG_LOGS")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	noKey := Default()
	if err := noKey.Validate(); err == nil {
		t.Error("expected error when APIKey is empty and mock_mode is false")
	}

	mockOK := Default()
	mockOK.MockMode = true
	if err := mockOK.Validate(); err != nil {
		t.Errorf("Validate() with mock_mode = %v, want nil", err)
	}

	badPreset := Default()
	badPreset.APIKey = "sk-test"
	badPreset.Preset = "bogus"
	if err := badPreset.Validate(); err == nil {
		t.Error("expected error for unknown preset")
	}
}
