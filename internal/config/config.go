// Package config loads the genlux CLI profile: defaults, an optional
// config.toml in the profile directory, GENLUX_* environment variables and
// command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "GENLUX"

	ProviderGemini    = "gemini"
	ProviderSynthetic = "synthetic"
)

// Config is the resolved CLI profile.
type Config struct {
	ProfileDir   string        `mapstructure:"profile_dir"`
	OutputDir    string        `mapstructure:"output_dir"`
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Provider     string        `mapstructure:"provider"`
	Locale       string        `mapstructure:"locale"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
	MaxPolls     int           `mapstructure:"max_polls"`
	LogLevel     string        `mapstructure:"log_level"`
}

// DefaultProfileDir is <user config dir>/genlux, or ./.genlux when the user
// config dir is unknown.
func DefaultProfileDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".genlux"
	}
	return filepath.Join(dir, "genlux")
}

// SetDefaults registers every key so environment variables bind to them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("profile_dir", DefaultProfileDir())
	v.SetDefault("output_dir", ".")
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("model", "veo-3.1-fast-generate-preview")
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("locale", "en")
	v.SetDefault("poll_interval", "10s")
	v.SetDefault("max_wait", "20m")
	v.SetDefault("max_polls", 0)
	v.SetDefault("log_level", "warn")
}

// Load resolves the profile. path, when set, names a config file that must
// exist; otherwise config.toml in the profile directory is read if present.
func Load(v *viper.Viper, path string) (*Config, error) {
	// Baca file env (jika ada). Tidak error kalau file tidak ada.
	_ = godotenv.Load(".env", ".env.local")

	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(v.GetString("profile_dir"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("load config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the CLI cannot run with.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderSynthetic:
	default:
		return fmt.Errorf("provider must be %s or %s, got %q", ProviderGemini, ProviderSynthetic, c.Provider)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxWait < 0 || c.MaxPolls < 0 {
		return errors.New("max_wait and max_polls must not be negative")
	}
	if strings.TrimSpace(c.ProfileDir) == "" {
		return errors.New("profile_dir is required")
	}
	return nil
}

// LockPath is the file guarding one active generation per profile.
func (c *Config) LockPath() string {
	return filepath.Join(c.ProfileDir, "generate.lock")
}
