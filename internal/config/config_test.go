package config

import (
	"testing"
	"time"
)

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("UTSHOB_TOKEN_SECRET", "")
	t.Setenv("UTSHOB_SESSION_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without secrets")
	}

	t.Setenv("UTSHOB_TOKEN_SECRET", "tok")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without session secret")
	}

	t.Setenv("UTSHOB_SESSION_SECRET", "sess")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("default addr = %s", cfg.Addr)
	}
	if cfg.TokenTTL != time.Hour {
		t.Errorf("default token ttl = %v", cfg.TokenTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("UTSHOB_TOKEN_SECRET", "tok")
	t.Setenv("UTSHOB_SESSION_SECRET", "sess")
	t.Setenv("UTSHOB_ADDR", ":9000")
	t.Setenv("UTSHOB_TOKEN_TTL", "30m")
	t.Setenv("UTSHOB_SMTP_PORT", "2525")
	t.Setenv("UTSHOB_COOKIE_SECURE", "true")
	t.Setenv("UTSHOB_CORS_ORIGINS", "https://utshob.org, https://admin.utshob.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.TokenTTL != 30*time.Minute || cfg.SMTPPort != 2525 || !cfg.CookieSecure {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://admin.utshob.org" {
		t.Errorf("cors origins = %v", cfg.CORSOrigins)
	}
}

func TestGetenvFallbacks(t *testing.T) {
	t.Setenv("UTSHOB_SMTP_PORT", "not-a-number")
	if got := getenvInt("UTSHOB_SMTP_PORT", 587); got != 587 {
		t.Errorf("bad int should fall back, got %d", got)
	}
	t.Setenv("UTSHOB_TOKEN_TTL", "-5m")
	if got := getenvDuration("UTSHOB_TOKEN_TTL", time.Hour); got != time.Hour {
		t.Errorf("non-positive duration should fall back, got %v", got)
	}
}
