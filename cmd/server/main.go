package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"cycle-tracker/internal/api"
	"cycle-tracker/internal/config"
	"cycle-tracker/internal/dailylog"
	"cycle-tracker/internal/database"
	"cycle-tracker/internal/insight"
	"cycle-tracker/internal/llm"
	"cycle-tracker/internal/logging"
	"cycle-tracker/internal/metrics"
	"cycle-tracker/internal/scheduler"
	"cycle-tracker/internal/share"
	"cycle-tracker/internal/telegram"
	"cycle-tracker/internal/tracker"
)

func main() {
	// Load .env from the current directory when present.
	_ = godotenv.Load()

	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Initialize Infrastructure
	db, err := database.NewDB(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	runs := metrics.NewStore(db.SQL)
	exporter := metrics.NewExporter()
	svc := tracker.NewService(dailylog.NewRepository(db.SQL), runs, exporter, logger, cfg.Location)
	shares := share.NewIssuer(cfg.ShareTokenSecret, cfg.ShareTokenTTL, db.SQL)

	// 3. Narratives use Gemini when configured
	var textGen llm.TextGenerator
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to create Gemini client", zap.Error(err))
		}
		defer gemini.Close()
		textGen = gemini
	} else {
		logger.Info("GEMINI_API_KEY not set, narratives use plain summaries")
	}
	narrator := insight.NewNarrator(textGen, logger)

	// 4. Telegram Bot (optional)
	apiCfg := &api.Config{Port: cfg.Port, PublicURL: cfg.PublicURL}
	if cfg.TelegramEnabled() {
		bot, err := telegram.NewBot(cfg, svc, shares, narrator, runs, logger)
		if err != nil {
			logger.Fatal("failed to initialize Telegram bot", zap.Error(err))
		}
		apiCfg.Webhook = bot.WebhookHandler()
	} else {
		logger.Info("telegram bot disabled")
	}

	// 5. HTTP API
	server, err := api.NewServer(svc, shares, narrator, exporter, logger, apiCfg)
	if err != nil {
		logger.Fatal("failed to create http server", zap.Error(err))
	}

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	// 6. Maintenance
	maintenance := scheduler.NewMaintenance(runs, shares, cfg.MetricsRetentionDays, logger)
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := maintenance.Start(ctx, scheduler.DefaultInterval); err != nil {
			logger.Error("maintenance scheduler failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	<-schedulerDone

	logger.Info("server exiting")
}
