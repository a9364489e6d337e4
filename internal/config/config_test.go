package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var envKeys = []string{
	"TELEGRAM_BOT_TOKEN", "DATABASE_PATH", "LOG_LEVEL", "ALLOWED_USERS",
	"NOTIFY_TRANSPORT", "PUSHOVER_TOKEN", "PUSHOVER_USER", "ALERT_SOUND",
	"NOTIFY_CHAT_ID", "NOTIFY_TIMEOUT", "NOTIFY_RATE", "WINDOW_SIZE",
	"MAX_PARALLEL_SOURCES", "STORE_BACKEND", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func defaults(token string) *Config {
	return &Config{
		TelegramBotToken:   token,
		DatabasePath:       "./data/feedalert.db",
		LogLevel:           "info",
		NotifyTransport:    TransportTelegram,
		AlertSound:         "pushover",
		NotifyTimeout:      5 * time.Second,
		NotifyRate:         1,
		WindowSize:         10,
		MaxParallelSources: 4,
		StoreBackend:       BackendSQLite,
		RedisAddr:          "localhost:6379",
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    func() *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name: "token only, defaults applied",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "test-token"},
			want: func() *Config { return defaults("test-token") },
		},
		{
			name: "all values set",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":   "tok",
				"DATABASE_PATH":        "/tmp/feedalert.db",
				"LOG_LEVEL":            "debug",
				"ALLOWED_USERS":        "111,222,333",
				"NOTIFY_TRANSPORT":     "Pushover",
				"PUSHOVER_TOKEN":       "app",
				"PUSHOVER_USER":        "user",
				"ALERT_SOUND":          "siren",
				"NOTIFY_CHAT_ID":       "-100123",
				"NOTIFY_TIMEOUT":       "3s",
				"NOTIFY_RATE":          "0.5",
				"WINDOW_SIZE":          "20",
				"MAX_PARALLEL_SOURCES": "8",
				"STORE_BACKEND":        "redis",
				"REDIS_ADDR":           "redis:6379",
				"REDIS_PASSWORD":       "secret",
				"REDIS_DB":             "2",
			},
			want: func() *Config {
				return &Config{
					TelegramBotToken:   "tok",
					DatabasePath:       "/tmp/feedalert.db",
					LogLevel:           "debug",
					AllowedUsers:       []int64{111, 222, 333},
					NotifyTransport:    TransportPushover,
					PushoverToken:      "app",
					PushoverUser:       "user",
					AlertSound:         "siren",
					NotifyChatID:       -100123,
					NotifyTimeout:      3 * time.Second,
					NotifyRate:         0.5,
					WindowSize:         20,
					MaxParallelSources: 8,
					StoreBackend:       BackendRedis,
					RedisAddr:          "redis:6379",
					RedisPassword:      "secret",
					RedisDB:            2,
				}
			},
		},
		{
			name: "allowed users with spaces",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      " 10 , 20 , ",
			},
			want: func() *Config {
				c := defaults("tok")
				c.AllowedUsers = []int64{10, 20}
				return c
			},
		},
		{
			name: "invalid user id",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      "123,abc",
			},
			wantErr: true,
		},
		{
			name: "pushover without credentials",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"NOTIFY_TRANSPORT":   "pushover",
			},
			wantErr: true,
		},
		{
			name: "unknown transport",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"NOTIFY_TRANSPORT":   "smoke-signal",
			},
			wantErr: true,
		},
		{
			name: "unknown store backend",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"STORE_BACKEND":      "postgres",
			},
			wantErr: true,
		},
		{
			name: "zero window size",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"WINDOW_SIZE":        "0",
			},
			wantErr: true,
		},
		{
			name: "invalid timeout",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"NOTIFY_TIMEOUT":     "5",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := LoadFrom()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want(), got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), ".env")
	content := "TELEGRAM_BOT_TOKEN=from-file\nLOG_LEVEL=debug\nWINDOW_SIZE=5\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// godotenv sets variables in the process environment.
	t.Cleanup(func() {
		_ = os.Unsetenv("TELEGRAM_BOT_TOKEN")
		_ = os.Unsetenv("WINDOW_SIZE")
	})

	got, err := LoadFrom(path, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := defaults("from-file")
	want.LogLevel = "warn" // already set variables win over the file
	want.WindowSize = 5
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadFrom() mismatch (-want +got):\n%s", diff)
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{
			name:         "empty list allows everyone",
			allowedUsers: nil,
			userID:       42,
			want:         true,
		},
		{
			name:         "user in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       20,
			want:         true,
		},
		{
			name:         "user not in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       99,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			got := cfg.IsUserAllowed(tt.userID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
