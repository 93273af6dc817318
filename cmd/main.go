package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedreader/internal/config"
	"feedreader/internal/converter"
	"feedreader/internal/database"
	"feedreader/internal/feed"
	"feedreader/internal/notifier"
	"feedreader/internal/ratelimiter"
	"feedreader/internal/reader"
	"feedreader/internal/relay"
	"feedreader/internal/scheduler"
	"feedreader/internal/server"
	"feedreader/internal/summarizer"

	"github.com/go-telegram/bot"
	"github.com/joho/godotenv"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.DBPath, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize db",
			"error", err,
			"dbPath", cfg.DBPath)

		return
	}
	defer func() {
		if err = db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close db",
				"error", err,
				"dbPath", cfg.DBPath)
		}
	}()
	log.InfoContext(ctx, "DB is initialized",
		"dbPath", cfg.DBPath)

	relays, err := relay.ParseTemplates(cfg.Relays)
	if err != nil {
		log.ErrorContext(ctx, "Failed to parse relay templates",
			"error", err,
			"relays", cfg.Relays)

		return
	}

	transport := relay.New(relay.Config{
		Relays:    relays,
		Timeout:   cfg.RelayTimeout,
		UserAgent: cfg.UserAgent,
	}, log)

	conv := converter.New(converter.Config{
		Endpoint:   cfg.ConverterURL,
		UserAgent:  cfg.UserAgent,
		HTTPClient: &http.Client{Timeout: cfg.RelayTimeout},
	}, log)

	fetcher := feed.NewFetcher(transport, conv, feed.FetcherConfig{
		MaxDiscoveryHops: cfg.MaxDiscoveryHops,
	}, log)

	summaries := summarizer.NewService(initOpenAISummarizer(ctx, cfg.OpenAIAPIKey, log), log)

	r := reader.New(db, fetcher, summaries, reader.Config{
		Concurrency: cfg.FetchConcurrency,
	}, log)

	if cfg.SeedDefaultFeeds {
		if _, err = r.SeedDefaults(ctx); err != nil {
			log.WarnContext(ctx, "Failed to seed default feeds",
				"error", err)
		}
	}

	n, stopNotifier, err := initNotifier(ctx, cfg, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize notifier",
			"error", err)

		return
	}
	defer stopNotifier()

	sched := scheduler.New(ctx, cfg.RefreshSpec, r, n, log)

	if err = sched.Start(); err != nil {
		log.ErrorContext(ctx, "Failed to start scheduler",
			"error", err,
			"spec", sched.Spec())

		return
	}
	defer sched.Stop()
	log.InfoContext(ctx, "Scheduler is started",
		"spec", sched.Spec(),
		"timezone", scheduler.Timezone)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.New(r, log).Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.ErrorContext(ctx, "HTTP server failed",
				"error", serveErr,
				"addr", cfg.HTTPAddr)
			cancel()
		}
	}()
	log.InfoContext(ctx, "HTTP server is started",
		"addr", cfg.HTTPAddr)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	log.InfoContext(ctx, "Shutdown signal is received",
		"uptimeSeconds", time.Since(start).Seconds())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(ctx, "Failed to shut down HTTP server",
			"error", err)
	}

	cancel()

	log.InfoContext(ctx, "Exiting...",
		"uptimeSeconds", time.Since(start).Seconds())
}

func initOpenAISummarizer(ctx context.Context, apiKey string, log *slog.Logger) summarizer.Summarizer {
	if apiKey == "" {
		log.WarnContext(ctx, "OPENAI_API_KEY is missing so fallback will be used",
			"envVar", "OPENAI_API_KEY")

		return nil
	}

	s, err := summarizer.NewOpenAISummarizer(apiKey)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create OpenAI summarizer so fallback will be used",
			"error", err,
			"envVar", "OPENAI_API_KEY")

		return nil
	}

	log.InfoContext(ctx, "OpenAI summarizer is initialized",
		"provider", "openai")

	return s
}

func initNotifier(
	ctx context.Context,
	cfg config.Config,
	log *slog.Logger,
) (notifier.Notifier, func(), error) {
	if cfg.TelegramToken == "" {
		log.InfoContext(ctx, "TELEGRAM_TOKEN is missing so new articles are only logged",
			"envVar", "TELEGRAM_TOKEN")

		return notifier.NewLog(log), func() {}, nil
	}

	b, err := bot.New(cfg.TelegramToken)
	if err != nil {
		return nil, nil, err
	}

	rl := ratelimiter.New(b, log)

	log.InfoContext(ctx, "Telegram notifier is initialized",
		"chatID", cfg.TelegramChatID)

	return notifier.NewTelegram(rl, cfg.TelegramChatID, log), rl.Stop, nil
}
