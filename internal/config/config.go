// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Notification transports.
const (
	TransportTelegram = "telegram"
	TransportPushover = "pushover"
)

// Store backends for checkpoints and dedup records.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	AllowedUsers     []int64

	NotifyTransport string
	PushoverToken   string
	PushoverUser    string
	AlertSound      string
	NotifyChatID    int64
	NotifyTimeout   time.Duration
	NotifyRate      float64

	WindowSize         int
	MaxParallelSources int

	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads configuration from environment variables. Values from a .env
// file in the working directory are used for variables not already set.
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with explicit env files. Missing files are ignored.
func LoadFrom(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	allowedUsers, err := parseIDList(os.Getenv("ALLOWED_USERS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ALLOWED_USERS: %w", err)
	}

	cfg := &Config{
		TelegramBotToken: token,
		DatabasePath:     envOr("DATABASE_PATH", "./data/feedalert.db"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		AllowedUsers:     allowedUsers,
		NotifyTransport:  strings.ToLower(envOr("NOTIFY_TRANSPORT", TransportTelegram)),
		PushoverToken:    os.Getenv("PUSHOVER_TOKEN"),
		PushoverUser:     os.Getenv("PUSHOVER_USER"),
		AlertSound:       envOr("ALERT_SOUND", "pushover"),
		StoreBackend:     strings.ToLower(envOr("STORE_BACKEND", BackendSQLite)),
		RedisAddr:        envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
	}

	var errs []error
	cfg.NotifyChatID, err = envInt64("NOTIFY_CHAT_ID", 0)
	errs = append(errs, err)
	cfg.WindowSize, err = envPositiveInt("WINDOW_SIZE", 10)
	errs = append(errs, err)
	cfg.MaxParallelSources, err = envPositiveInt("MAX_PARALLEL_SOURCES", 4)
	errs = append(errs, err)
	cfg.RedisDB, err = envInt("REDIS_DB", 0)
	errs = append(errs, err)
	cfg.NotifyTimeout, err = envDuration("NOTIFY_TIMEOUT", 5*time.Second)
	errs = append(errs, err)
	cfg.NotifyRate, err = envFloat("NOTIFY_RATE", 1)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.NotifyTransport {
	case TransportTelegram:
	case TransportPushover:
		if c.PushoverToken == "" || c.PushoverUser == "" {
			return fmt.Errorf("PUSHOVER_TOKEN and PUSHOVER_USER are required for the pushover transport")
		}
	default:
		return fmt.Errorf("invalid NOTIFY_TRANSPORT %q, use: %s, %s", c.NotifyTransport, TransportTelegram, TransportPushover)
	}

	switch c.StoreBackend {
	case BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q, use: %s, %s", c.StoreBackend, BackendSQLite, BackendRedis)
	}
	return nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.AllowedUsers, userID)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envPositiveInt(key string, def int) (int, error) {
	v, err := envInt(key, def)
	if err != nil {
		return 0, err
	}
	if v < 1 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, v)
	}
	return v, nil
}

func envInt64(key string, def int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envFloat(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
