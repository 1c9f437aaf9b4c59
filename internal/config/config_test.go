package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("CUSTOMER_SEARCH_DEBOUNCE", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.CustomerSearchDebounce != 300*time.Millisecond {
		t.Fatalf("expected 300ms debounce, got %s", cfg.CustomerSearchDebounce)
	}
	if cfg.WizardIdleTTL != 2*time.Hour {
		t.Fatalf("expected 2h idle ttl, got %s", cfg.WizardIdleTTL)
	}
	if cfg.EmailProvider != "stub" {
		t.Fatalf("expected stub email provider, got %s", cfg.EmailProvider)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("BACKEND_BASE_URL", "https://api.example.com")
	t.Setenv("BACKEND_TIMEOUT", "5s")
	t.Setenv("CUSTOMER_SEARCH_DEBOUNCE", "150ms")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "4")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("EMAIL_PROVIDER", " SendGrid ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	cfg := Load()
	if cfg.Port != "9090" || cfg.Env != "production" {
		t.Fatalf("unexpected port/env: %s/%s", cfg.Port, cfg.Env)
	}
	if cfg.BackendBaseURL != "https://api.example.com" {
		t.Fatalf("expected backend override, got %s", cfg.BackendBaseURL)
	}
	if cfg.BackendTimeout != 5*time.Second {
		t.Fatalf("expected backend timeout override, got %s", cfg.BackendTimeout)
	}
	if cfg.CustomerSearchDebounce != 150*time.Millisecond {
		t.Fatalf("expected debounce override, got %s", cfg.CustomerSearchDebounce)
	}
	if cfg.RateLimitRPS != 2.5 || cfg.RateLimitBurst != 4 {
		t.Fatalf("unexpected rate limit %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if cfg.EmailProvider != "sendgrid" {
		t.Fatalf("expected normalized provider, got %q", cfg.EmailProvider)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("BACKEND_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_BURST", "many")
	cfg := Load()
	if cfg.BackendTimeout != 15*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.BackendTimeout)
	}
	if cfg.RateLimitBurst != 20 {
		t.Fatalf("expected default burst, got %d", cfg.RateLimitBurst)
	}
}
