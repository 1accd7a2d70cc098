package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingJWTSecret = errors.New("JWT_SECRET is not set")

type Config struct {
	Env   string
	Port  int
	DBURL string

	// memory | postgres
	StoreBackend string

	JWTSecret string

	AdminEmail    string
	AdminPassword string
	AdminUsername string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OTLPEndpoint string

	CORSOrigins        []string
	RequestTimeout     time.Duration
	MaxBodyBytes       int64
	AuthRateLimit      int
	AuthRateWindow     time.Duration
	CascadeConcurrency int

	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerHealthPort   int
}

// Load reads the process environment (and a .env file when present) once at
// startup. A missing signing secret is returned as an error so the caller can
// refuse to boot.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:                getEnv("APP_ENV", "dev"),
		Port:               getEnvInt("PORT", 8080),
		DBURL:              buildDBURL(),
		StoreBackend:       getEnv("STORE_BACKEND", "postgres"),
		JWTSecret:          strings.TrimSpace(os.Getenv("JWT_SECRET")),
		AdminEmail:         getEnv("ADMIN_EMAIL", ""),
		AdminPassword:      getEnv("ADMIN_PASSWORD", ""),
		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "")),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 5*time.Second),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
		AuthRateLimit:      getEnvInt("AUTH_RATE_LIMIT", 10),
		AuthRateWindow:     getEnvDuration("AUTH_RATE_WINDOW", time.Minute),
		CascadeConcurrency: getEnvInt("CASCADE_CONCURRENCY", 8),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
		WorkerHealthPort:   getEnvInt("WORKER_HEALTH_PORT", 8081),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}

	switch c.StoreBackend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}

	return nil
}

func buildDBURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "placehunt")
	pass := getEnv("DB_PASSWORD", "placehunt")
	name := getEnv("DB_NAME", "placehunt")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)
		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fallback
		}
		return d
	}
	return fallback
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
