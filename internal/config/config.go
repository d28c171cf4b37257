// Package config builds the service configuration from environment
// variables so main stays lean. Every knob has a working default; only the
// signing secret must be provided outside development.
package config

import (
	"os"
	"strconv"
	"time"

	"huntops.org/internal/ratelimit"
)

// Config carries every runtime knob for the auth service.
type Config struct {
	Addr string

	// Token signing and lifetimes.
	SigningSecret     string
	Issuer            string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	RevocationTimeout time.Duration

	// Lockout policy.
	LockoutThreshold int
	LockoutDuration  time.Duration

	// Password policy bounds.
	PasswordMinLength int
	PasswordMaxLength int

	// Rate limiting per route class.
	LoginRatePolicy ratelimit.Policy
	APIRatePolicy   ratelimit.Policy

	// Backends. Empty values select the in-memory implementations.
	RedisURL string
	PGDSN    string
}

// FromEnv reads HUNTOPS_* environment variables, falling back to defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:              getEnv("HUNTOPS_ADDR", ":8080"),
		SigningSecret:     getEnv("HUNTOPS_JWT_SECRET", "dev-secret-key-change-in-production"),
		Issuer:            getEnv("HUNTOPS_JWT_ISSUER", "hunting-platform"),
		AccessTTL:         getDuration("HUNTOPS_ACCESS_TTL", time.Hour),
		RefreshTTL:        getDuration("HUNTOPS_REFRESH_TTL", 7*24*time.Hour),
		RevocationTimeout: getDuration("HUNTOPS_REVOCATION_TIMEOUT", 2*time.Second),
		LockoutThreshold:  getInt("HUNTOPS_LOCKOUT_THRESHOLD", 5),
		LockoutDuration:   getDuration("HUNTOPS_LOCKOUT_DURATION", 30*time.Minute),
		PasswordMinLength: getInt("HUNTOPS_PASSWORD_MIN_LENGTH", 12),
		PasswordMaxLength: getInt("HUNTOPS_PASSWORD_MAX_LENGTH", 128),
		LoginRatePolicy: ratelimit.Policy{
			Capacity: getInt64("HUNTOPS_LOGIN_RATE_CAPACITY", ratelimit.DefaultLoginPolicy.Capacity),
			Window:   getDuration("HUNTOPS_LOGIN_RATE_WINDOW", ratelimit.DefaultLoginPolicy.Window),
		},
		APIRatePolicy: ratelimit.Policy{
			Capacity: getInt64("HUNTOPS_API_RATE_CAPACITY", ratelimit.DefaultAPIPolicy.Capacity),
			Window:   getDuration("HUNTOPS_API_RATE_WINDOW", ratelimit.DefaultAPIPolicy.Window),
		},
		RedisURL: os.Getenv("HUNTOPS_REDIS_URL"),
		PGDSN:    os.Getenv("HUNTOPS_PG_DSN"),
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
