// Package config loads runtime settings from the environment. Every
// value has a default; only malformed values are errors, absent ones
// never are.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	// ListenAddr serves the tool-call HTTP API.
	ListenAddr string
	// EventsAddr serves the websocket event stream. Empty disables it.
	EventsAddr string

	RedisURL    string
	DatabaseURL string

	SessionTTL        time.Duration
	DefaultDifficulty string

	// CleanupInterval drives the expired-session sweep. Zero disables it.
	CleanupInterval time.Duration
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:        ":8080",
		EventsAddr:        ":8081",
		SessionTTL:        time.Hour,
		DefaultDifficulty: "normal",
		CleanupInterval:   5 * time.Minute,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("EVENTS_ADDR"); ok {
		cfg.EventsAddr = strings.TrimSpace(v)
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("SESSION_TTL")); v != "" {
		ttl, err := parseTTL(v)
		if err != nil {
			return nil, fmt.Errorf("SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = ttl
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_DIFFICULTY")); v != "" {
		cfg.DefaultDifficulty = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("CLEANUP_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("CLEANUP_INTERVAL: invalid duration %q", v)
		}
		cfg.CleanupInterval = d
	}

	return cfg, nil
}

// parseTTL accepts either seconds ("3600") or a Go duration ("1h").
func parseTTL(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("must be positive, got %d", n)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}
