package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	JWTSecret        string
	StoragePath      string
	StorageBaseURL   string
	GeoIPDBPath      string
	GoogleClientID   string
	GoogleIssuer     string
	GeminiAPIKey     string
	GeminiBaseURL    string
	VeoModel         string
	VideoProvider    string
	PollInterval     time.Duration
	PollMaxWait      time.Duration
	PollMaxAttempts  int
	WorkerCount      int
	WorkerIdleDelay  time.Duration
	FreeUses         int
	RedisURL         string
	CORSOrigins      []string
	OTelEnabled      bool
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	ShutdownTimeout  time.Duration
	RateLimitPerMin  int
	DBMaxConns       int32
	DBMinConns       int32
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             port,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:   getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		GoogleClientID:   os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleIssuer:     getEnv("GOOGLE_ISSUER", "https://accounts.google.com"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		VeoModel:         getEnv("VEO_MODEL", "veo-3.1-fast-generate-preview"),
		VideoProvider:    strings.ToLower(getEnv("VIDEO_PROVIDER", "gemini")),
		PollInterval:     getEnvSeconds("POLL_INTERVAL_SECONDS", 10),
		PollMaxWait:      getEnvSeconds("POLL_MAX_WAIT_SECONDS", 1200),
		PollMaxAttempts:  getEnvInt("POLL_MAX_ATTEMPTS", 0),
		WorkerCount:      getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerIdleDelay:  getEnvSeconds("WORKER_IDLE_SECONDS", 2),
		FreeUses:         getEnvInt("FREE_USES", 3),
		RedisURL:         os.Getenv("REDIS_URL"),
		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		OTelEnabled:      getEnvBool("OTEL_ENABLED", false),
		HTTPReadTimeout:  getEnvSeconds("HTTP_READ_TIMEOUT_SECONDS", 15),
		HTTPWriteTimeout: getEnvSeconds("HTTP_WRITE_TIMEOUT_SECONDS", 0),
		HTTPIdleTimeout:  getEnvSeconds("HTTP_IDLE_TIMEOUT_SECONDS", 60),
		ShutdownTimeout:  getEnvSeconds("SHUTDOWN_TIMEOUT_SECONDS", 20),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		DBMaxConns:       int32(getEnvInt("DB_MAX_CONNS", 10)),
		DBMinConns:       int32(getEnvInt("DB_MIN_CONNS", 1)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.VideoProvider {
	case "gemini", "synthetic":
	default:
		return nil, fmt.Errorf("VIDEO_PROVIDER must be gemini or synthetic, got %q", cfg.VideoProvider)
	}

	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("DB_MAX_CONNS must be positive, got %d", cfg.DBMaxConns)
	}
	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		return nil, fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS, got %d", cfg.DBMinConns)
	}

	return cfg, nil
}

// RequireJWTSecret is checked by the API process only; workers and admin
// commands never sign tokens.
func (c *Config) RequireJWTSecret() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

// IsDevelopment reports whether APP_ENV is development.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Second * time.Duration(getEnvInt(key, fallback))
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
