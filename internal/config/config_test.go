package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_MissingSecretIsFatal(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	if !errors.Is(err, ErrMissingJWTSecret) {
		t.Fatalf("expected ErrMissingJWTSecret, got %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Fatalf("expected 5s request timeout, got %s", cfg.RequestTimeout)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected cors origins: %#v", cfg.CORSOrigins)
	}
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := Config{JWTSecret: "x", StoreBackend: "mongo", RequestTimeout: time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
