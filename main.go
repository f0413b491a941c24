// Command livecastbot is the main entrypoint for the Telegram live-streaming bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Builds the session store (optionally encrypted at rest), the per-chat
//     session registry, and the per-account broadcast slot table.
//   - Starts the Telegram long-poll loop driving the conversation engine.
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tventura/livecastbot/bot"
	"github.com/tventura/livecastbot/config"
	"github.com/tventura/livecastbot/conversation"
	"github.com/tventura/livecastbot/crypto"
	"github.com/tventura/livecastbot/live"
	"github.com/tventura/livecastbot/server"
	"github.com/tventura/livecastbot/session"
	"github.com/tventura/livecastbot/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateBotReady(); err != nil {
		slog.Error("bot not configured", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("livecastbot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Session store, optionally encrypted at rest.
	store := &session.FileStore{Dir: cfg.SessionDir}
	if cfg.SessionEncryptionKey != "" {
		enc, err := crypto.NewAESEncryptor(cfg.SessionEncryptionKey)
		if err != nil {
			slog.Error("invalid SESSION_ENCRYPTION_KEY", slog.Any("err", err))
			os.Exit(1)
		}
		store.Encryptor = enc
		slog.Info("session files encrypted at rest")
	}

	sessions := session.NewRegistry()
	slots := live.NewSlots()
	engine := conversation.NewEngine(cfg.APIBase, store, sessions, slots)

	tg, err := bot.New(cfg.TelegramToken, engine, time.Duration(cfg.BotPollTimeout)*time.Second, cfg.APITimeout)
	if err != nil {
		slog.Error("telegram bot init failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server (health/status/metrics)
	go func() {
		if err := server.Start(ctx, server.NewHandlers(sessions, slots), cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block on the update loop until shutdown signal
	if err := tg.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("bot loop exited with error", slog.Any("err", err))
		os.Exit(1)
	}

	sessions.Clear()
	slog.Info("shutting down")
}
