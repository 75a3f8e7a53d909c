// Package config loads the server configuration from the environment.
//
// Values come from real environment variables; a .env file in the working
// directory (if present) fills in the ones that aren't set. Every variable
// has a default except the secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything cmd/server needs to build the server.
type Config struct {
	Port   int    // PORT, default 8080
	DBPath string // DB_PATH, default data/lists.db

	JWTSecret string // JWT_SECRET, at least 16 characters

	LogLevel  string // LOG_LEVEL: debug | info | warn | error
	LogFormat string // LOG_FORMAT: text | json

	GitHubClientID     string // GITHUB_CLIENT_ID
	GitHubClientSecret string // GITHUB_CLIENT_SECRET
	GitHubCallbackURL  string // GITHUB_CALLBACK_URL, default http://localhost:<port>/auth/github/callback

	// ADMIN_LOGINS, comma separated: these users become admins on sign-in.
	AdminLogins []string

	RedisAddr     string // REDIS_ADDR; empty disables the event bridge
	RedisPassword string // REDIS_PASSWORD
	RedisDB       int    // REDIS_DB, default 0
	EventsChannel string // EVENTS_CHANNEL, default lists.events
}

// GitHubEnabled reports whether GitHub OAuth credentials are configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// Load reads the configuration. A malformed number is an error rather than
// a silent fallback to the default.
func Load() (*Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:             getenv("DB_PATH", "data/lists.db"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogFormat:          getenv("LOG_FORMAT", "text"),
		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubCallbackURL:  os.Getenv("GITHUB_CALLBACK_URL"),
		AdminLogins:        splitList(os.Getenv("ADMIN_LOGINS")),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		EventsChannel:      getenv("EVENTS_CHANNEL", "lists.events"),
	}

	var err error
	if cfg.Port, err = getInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: PORT %d out of range", cfg.Port)
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
