// Package config loads runtime settings from the environment, optionally
// seeded from a .env file in development.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the binaries need. Values come from the
// environment; the .env file never overrides variables already set.
type Config struct {
	Addr string

	// Postgres DSN. Empty disables persistence (health probes report it).
	PostgresDSN string

	// Redis URL for session state. Empty falls back to the in-memory store,
	// which is fine for a single instance.
	RedisURL string

	// TokenSecret signs staff session tokens.
	TokenSecret string
	// SessionSecret signs the session id cookie.
	SessionSecret string
	TokenTTL      time.Duration
	SessionTTL    time.Duration
	CookieSecure  bool

	// IdentityAPIKey authenticates calls to the external identity provider.
	// Empty disables the participant login path.
	IdentityAPIKey string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailSender   string

	CORSOrigins []string

	RateLimitPerMinute int

	// Bootstrap admin credentials for first-run seeding.
	AdminEmail    string
	AdminPassword string
}

// Load reads the environment (after merging a .env file when present) and
// validates the secrets the server cannot run without.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:               getenv("UTSHOB_ADDR", ":8080"),
		PostgresDSN:        getenv("UTSHOB_PG_DSN", ""),
		RedisURL:           getenv("UTSHOB_REDIS_URL", ""),
		TokenSecret:        getenv("UTSHOB_TOKEN_SECRET", ""),
		SessionSecret:      getenv("UTSHOB_SESSION_SECRET", ""),
		TokenTTL:           getenvDuration("UTSHOB_TOKEN_TTL", time.Hour),
		SessionTTL:         getenvDuration("UTSHOB_SESSION_TTL", 24*time.Hour),
		CookieSecure:       getenvBool("UTSHOB_COOKIE_SECURE", false),
		IdentityAPIKey:     getenv("UTSHOB_IDENTITY_API_KEY", ""),
		SMTPHost:           getenv("UTSHOB_SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:           getenvInt("UTSHOB_SMTP_PORT", 587),
		SMTPUsername:       getenv("UTSHOB_SMTP_USERNAME", ""),
		SMTPPassword:       getenv("UTSHOB_SMTP_PASSWORD", ""),
		MailSender:         getenv("UTSHOB_MAIL_SENDER", ""),
		CORSOrigins:        getenvList("UTSHOB_CORS_ORIGINS"),
		RateLimitPerMinute: getenvInt("UTSHOB_RATE_LIMIT_PER_MINUTE", 300),
		AdminEmail:         getenv("UTSHOB_ADMIN_EMAIL", ""),
		AdminPassword:      getenv("UTSHOB_ADMIN_PASSWORD", ""),
	}

	if cfg.TokenSecret == "" {
		return Config{}, errors.New("config: UTSHOB_TOKEN_SECRET is required")
	}
	if cfg.SessionSecret == "" {
		return Config{}, errors.New("config: UTSHOB_SESSION_SECRET is required")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getenvList(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
