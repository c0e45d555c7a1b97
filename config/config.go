package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Provider ProviderConfig
	Session  SessionConfig
	Limits   LimitsConfig
	Worker   WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to validate tokens issued by the auth provider.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// ProviderConfig holds the live-video provider API settings.
type ProviderConfig struct {
	BaseURL     string
	TokenID     string
	TokenSecret string
	TimeoutSec  int
}

// SessionConfig holds room session coordinator settings.
type SessionConfig struct {
	PollIntervalSec int
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	ReconcileIntervalSec int
	InProcess            bool // run the reconciler inside the API server instead of cmd/worker
}

// Limit is a sliding-window admission policy: Max admissions per Window.
type Limit struct {
	Max    int
	Window time.Duration
}

// LimitsConfig holds rate limiter policies. Backend is "memory" or "redis".
type LimitsConfig struct {
	Backend   string
	Chat      Limit
	Heartbeat Limit
	StreamOps Limit
	Status    Limit
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// PollInterval returns the status poll interval as a duration.
func (c SessionConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// ReconcileInterval returns the live-room reconcile interval as a duration.
func (c WorkerConfig) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSec) * time.Second
}

// Timeout returns the provider request timeout as a duration.
func (c ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	chat, err := getEnvLimit("LIMIT_CHAT", Limit{Max: 5, Window: 10 * time.Second})
	if err != nil {
		return nil, err
	}
	heartbeat, err := getEnvLimit("LIMIT_HEARTBEAT", Limit{Max: 2, Window: 10 * time.Second})
	if err != nil {
		return nil, err
	}
	streamOps, err := getEnvLimit("LIMIT_STREAM_OPS", Limit{Max: 3, Window: time.Minute})
	if err != nil {
		return nil, err
	}
	status, err := getEnvLimit("LIMIT_STATUS", Limit{Max: 20, Window: time.Minute})
	if err != nil {
		return nil, err
	}

	backend := strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory"))
	if backend != "memory" && backend != "redis" {
		return nil, fmt.Errorf("RATE_LIMIT_BACKEND: unknown backend %q", backend)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "rooms"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Provider: ProviderConfig{
			BaseURL:     getEnv("PROVIDER_BASE_URL", "http://localhost:9090/v1"),
			TokenID:     getEnv("PROVIDER_TOKEN_ID", ""),
			TokenSecret: getEnv("PROVIDER_TOKEN_SECRET", ""),
			TimeoutSec:  getEnvInt("PROVIDER_TIMEOUT_SEC", 10),
		},
		Session: SessionConfig{
			PollIntervalSec: getEnvInt("SESSION_POLL_INTERVAL_SEC", 5),
		},
		Limits: LimitsConfig{
			Backend:   backend,
			Chat:      chat,
			Heartbeat: heartbeat,
			StreamOps: streamOps,
			Status:    status,
		},
		Worker: WorkerConfig{
			ReconcileIntervalSec: getEnvInt("WORKER_RECONCILE_INTERVAL_SEC", 60),
			InProcess:            strings.EqualFold(getEnv("WORKER_IN_PROCESS", "true"), "true"),
		},
	}
	return cfg, nil
}

// getEnvLimit parses "<max>/<seconds>" (e.g. "5/10").
func getEnvLimit(key string, fallback Limit) (Limit, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return ParseLimit(v)
}

// ParseLimit parses a "<max>/<seconds>" limit value. Both parts must be positive.
func ParseLimit(s string) (Limit, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "/", 2)
	if len(parts) != 2 {
		return Limit{}, fmt.Errorf("limit %q: want <max>/<seconds>", s)
	}
	max, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || max <= 0 {
		return Limit{}, fmt.Errorf("limit %q: invalid max", s)
	}
	sec, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || sec <= 0 {
		return Limit{}, fmt.Errorf("limit %q: invalid window", s)
	}
	return Limit{Max: max, Window: time.Duration(sec) * time.Second}, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
