package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nse_alert_bot/internal/app"
	"nse_alert_bot/internal/infra/config"
	idb "nse_alert_bot/internal/infra/database"
	"nse_alert_bot/internal/infra/httpapi"
	"nse_alert_bot/internal/infra/logger"
	"nse_alert_bot/internal/infra/nse"
	"nse_alert_bot/internal/infra/scheduler"
	"nse_alert_bot/internal/infra/telegram"

	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Log.WithField("component", "main")
	mainLogger.Infof("Configuration loaded. Environment: %s, ChatID: %d", cfg.Environment, cfg.TelegramChatID)

	// Database
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.Fatalf("FATAL: Could not connect to database: %v", err)
	}
	defer db.Close()
	mainLogger.Info("Database connection established successfully.")

	ctx := context.Background()
	if err := idb.EnsureSchema(ctx, db); err != nil {
		mainLogger.Fatalf("FATAL: Could not ensure database schema: %v", err)
	}
	repo := idb.NewPostgresAnnouncementRepository(db)
	mainLogger.Info("Announcement repository initialized.")

	// Source client and normalizer
	sourceClient := nse.NewClient(cfg.SourceURL, cfg.FetchTimeout)
	allowlist, err := app.LoadSymbolAllowlist(cfg.SymbolAllowlistFile)
	if err != nil {
		mainLogger.Fatalf("FATAL: Could not load symbol allowlist: %v", err)
	}
	normalizer := app.NewNormalizer(app.TitleField(cfg.SourceTitleField), allowlist)

	// Telegram bot
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		Client: &http.Client{Timeout: cfg.NotifyTimeout},
		OnError: func(err error, c telebot.Context) {
			entry := logger.Log.WithField("component", "telebot").WithError(err)
			if c != nil && c.Sender() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID)
			}
			entry.Error("Telegram handler error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.Fatalf("FATAL: Could not create Telegram bot: %v", err)
	}
	notifier := telegram.NewAnnouncementNotifier(
		telegram.NewTelebotAdapter(bot),
		cfg.TelegramChatID,
		cfg.NotifyRatePerSec,
		logger.Log.WithField("component", "notifier"),
	)

	// Ingest pipeline and scheduler
	ingest := app.NewIngestService(
		sourceClient,
		normalizer,
		repo,
		notifier,
		cfg.BulkSummaryThreshold,
		logger.Log.WithField("component", "ingest"),
	)
	sched := scheduler.NewPollScheduler(ingest, scheduler.Config{
		ActiveDayStart:     cfg.ActiveDayStart,
		ActiveDayEnd:       cfg.ActiveDayEnd,
		ActiveHourStart:    cfg.ActiveHourStart,
		ActiveHourEnd:      cfg.ActiveHourEnd,
		ShortInterval:      cfg.ShortPollInterval,
		LongInterval:       cfg.LongPollInterval,
		ErrorCooldown:      cfg.ErrorCooldown,
		PostMarketCronSpec: cfg.PostMarketCronSpec,
	}, logger.Log.WithField("component", "scheduler"))

	// Operator surfaces
	telegram.RegisterBotCommands(ctx, bot, sched, repo, cfg.TelegramChatID, logger.Log.WithField("component", "bot_commands"))
	httpServer := httpapi.NewServer(cfg.HTTPListenAddr, sched, repo, logger.Log.WithField("component", "httpapi"))

	notifier.NotifyStartup(cfg.ShortPollInterval)
	sched.Start()
	httpServer.Start()
	go bot.Start()
	mainLogger.Info("Application setup complete. Scheduler, HTTP server and bot are running.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	mainLogger.Info("Shutting down application...")
	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("HTTP server shutdown was not clean")
	}
	bot.Stop()
	notifier.NotifyShutdown(sched.Snapshot().NotificationsSent)
	mainLogger.Info("Application shut down gracefully.")
}
