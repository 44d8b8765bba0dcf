package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GENLUX_PROFILE_DIR", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Provider != ProviderGemini || cfg.Model != "veo-3.1-fast-generate-preview" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.PollInterval != 10*time.Second || cfg.MaxWait != 20*time.Minute {
		t.Fatalf("unexpected durations: %s %s", cfg.PollInterval, cfg.MaxWait)
	}
	if cfg.APIKey != "env-key" {
		t.Fatalf("api key = %q, want GEMINI_API_KEY fallback", cfg.APIKey)
	}
}

func TestLoadProfileFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	content := "model = \"veo-test\"\npoll_interval = \"2s\"\napi_key = \"file-key\"\nprovider = \"gemini\"\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GENLUX_PROFILE_DIR", dir)
	t.Setenv("GENLUX_PROVIDER", "synthetic")

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Model != "veo-test" || cfg.PollInterval != 2*time.Second || cfg.APIKey != "file-key" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Provider != ProviderSynthetic {
		t.Fatalf("env should override file, got provider %q", cfg.Provider)
	}
	if cfg.LockPath() != filepath.Join(dir, "generate.lock") {
		t.Fatalf("lock path = %q", cfg.LockPath())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown provider", env: map[string]string{"GENLUX_PROVIDER": "sora"}},
		{name: "zero poll interval", env: map[string]string{"GENLUX_POLL_INTERVAL": "0s"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("GENLUX_PROFILE_DIR", t.TempDir())
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(viper.New(), ""); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadExplicitFileMustExist(t *testing.T) {
	t.Setenv("GENLUX_PROFILE_DIR", t.TempDir())
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
