package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected default addr :8080, got %q", cfg.HTTPAddr)
	}
	if cfg.MongoDB != "campusmarket" {
		t.Errorf("expected default database, got %q", cfg.MongoDB)
	}
	if cfg.EmailDomain != "ku.edu" {
		t.Errorf("expected default email domain, got %q", cfg.EmailDomain)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("expected default session ttl, got %v", cfg.SessionTTL)
	}
	if len(cfg.RetryBackoff) != 3 {
		t.Errorf("expected 3 default backoff steps, got %d", len(cfg.RetryBackoff))
	}
	// Without an explicit public endpoint the internal one is reused.
	if cfg.S3PublicEndpoint != cfg.S3Endpoint {
		t.Errorf("expected public endpoint fallback, got %q", cfg.S3PublicEndpoint)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("RETRY_BACKOFF", "100ms, 1s")
	t.Setenv("S3_USE_SSL", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("expected :9999, got %q", cfg.HTTPAddr)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Errorf("expected 2h session ttl, got %v", cfg.SessionTTL)
	}
	if len(cfg.RetryBackoff) != 2 || cfg.RetryBackoff[0] != 100*time.Millisecond {
		t.Errorf("unexpected backoff: %v", cfg.RetryBackoff)
	}
	if !cfg.S3UseSSL {
		t.Error("expected SSL enabled")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SESSION_TTL", "soon")
	if _, err := Load(); err == nil {
		t.Error("expected an error for an invalid duration")
	}
}
