package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"feedalert/internal/bot"
	"feedalert/internal/config"
	"feedalert/internal/fetcher"
	"feedalert/internal/notify"
	"feedalert/internal/pipeline"
	"feedalert/internal/scheduler"
	"feedalert/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	b, err := bot.New(cfg.TelegramBotToken, store, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	var transport notify.Transport = b
	if cfg.NotifyTransport == config.TransportPushover {
		transport = notify.NewPushover(cfg.PushoverToken, cfg.PushoverUser)
	}

	proc := pipeline.New(pipeline.Deps{
		Adapter:    fetcher.New(http.DefaultClient),
		Store:      store,
		Rules:      store,
		Composer:   notify.NewComposer(cfg.AlertSound),
		Dispatcher: notify.NewDispatcher(transport, cfg.NotifyTimeout, cfg.NotifyRate, log),
		WindowSize: cfg.WindowSize,
	}, log)

	sched := scheduler.New(store, proc, log)
	sched.SetMaxParallel(cfg.MaxParallelSources)
	b.SetChecker(sched)

	log.Info("starting notifier",
		"transport", cfg.NotifyTransport,
		"store", cfg.StoreBackend,
		"window", cfg.WindowSize,
		"parallel", cfg.MaxParallelSources,
	)

	go sched.Run(ctx)

	b.Run(ctx)

	log.Info("notifier stopped")
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Storage, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}

	db, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if cfg.StoreBackend != config.BackendRedis {
		return db, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	state, err := storage.NewRedis(pingCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("checkpoints and dedup records stored in redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return storage.NewSplit(db, state), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
