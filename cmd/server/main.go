package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/igrabba/internal/api"
	"github.com/iconidentify/igrabba/internal/api/handler"
	"github.com/iconidentify/igrabba/internal/archive"
	"github.com/iconidentify/igrabba/internal/config"
	"github.com/iconidentify/igrabba/internal/delivery"
	"github.com/iconidentify/igrabba/internal/downloader"
	"github.com/iconidentify/igrabba/internal/janitor"
	"github.com/iconidentify/igrabba/internal/locator"
	"github.com/iconidentify/igrabba/internal/netx"
	"github.com/iconidentify/igrabba/internal/pipeline"
	"github.com/iconidentify/igrabba/internal/repository"
	"github.com/iconidentify/igrabba/internal/telegram"
	"github.com/iconidentify/igrabba/internal/worker"
	"github.com/iconidentify/igrabba/pkg/instagram"
	"github.com/iconidentify/igrabba/pkg/ytdlp"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("igrabba %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting igrabba",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Storage.TempPath, 0755); err != nil {
		logger.Error("failed to create temp directory", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telegram
	if err := telegram.InstallLogger(logger); err != nil {
		logger.Warn("failed to install telegram logger", "error", err)
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Error("failed to connect to telegram", "error", err)
		os.Exit(1)
	}
	botAPI.Debug = cfg.Telegram.Debug
	logger.Info("authorized on telegram", "username", botAPI.Self.UserName)
	channel := telegram.NewChannel(botAPI)

	// Network
	httpClient, err := netx.NewClient(cfg.Download)
	if err != nil {
		logger.Error("failed to create http client", "error", err)
		os.Exit(1)
	}
	if len(cfg.Download.Proxies) > 0 {
		logger.Info("using proxy rotation", "proxies", len(cfg.Download.Proxies))
	}
	igClient := instagram.NewClient(httpClient, cfg.Download.MaxPageBytes, logger)

	// Media tool
	runner := ytdlp.NewRunner(cfg.YtDLP)
	if !runner.Available() {
		logger.Warn("yt-dlp is not installed; reels, stories and fallback downloads will fail",
			"binary", cfg.YtDLP.Binary)
	}

	// Locator chain, cheapest strategy first
	chain := locator.NewChain(igClient, logger,
		locator.EmbeddedStrategy{},
		locator.PatternStrategy{},
		locator.APIStrategy{API: igClient},
		locator.YtDLPStrategy{Tool: runner, TempDir: cfg.Storage.TempPath},
	)

	fetcher := downloader.NewFetcher(httpClient, downloader.Options{
		TempDir:  cfg.Storage.TempPath,
		MaxBytes: cfg.Pipeline.MaxFileSize,
		Timeout:  cfg.Download.Timeout,
	}, logger)

	// Optional S3 archive
	var archiver delivery.Archiver
	archiveBucket := ""
	if cfg.Archive.Enabled() {
		s3Archiver, err := archive.New(ctx, cfg.Archive, logger)
		if err != nil {
			logger.Error("failed to initialize s3 archive", "error", err)
			os.Exit(1)
		}
		archiver = s3Archiver
		archiveBucket = s3Archiver.Bucket()
		logger.Info("s3 archive enabled", "bucket", archiveBucket)
	}

	dispatcher := delivery.NewDispatcher(channel, cfg.Pipeline.MaxFileSize, archiver, logger)

	// Outcome history
	history, err := openHistory(cfg.History, logger)
	if err != nil {
		logger.Error("failed to open history store", "error", err)
		os.Exit(1)
	}
	defer history.Close()

	orchestrator := pipeline.NewOrchestrator(pipeline.Config{
		FetchConcurrency: cfg.Pipeline.FetchConcurrency,
		MaxAssets:        cfg.Pipeline.MaxAssets,
	}, chain, fetcher, dispatcher, logger)
	orchestrator.SetRecorder(history)

	// Worker pool bounds concurrent requests across chats
	pool := worker.NewPool(worker.Config{
		Workers:   cfg.Worker.Count,
		QueueSize: cfg.Worker.QueueSize,
	}, logger)
	pool.Start()

	bot := telegram.NewBot(telegram.Config{
		PollTimeout:   cfg.Telegram.PollTimeout,
		PollInterval:  cfg.Telegram.PollInterval,
		ErrorBackoff:  cfg.Telegram.ErrorBackoff,
		ArchiveBucket: archiveBucket,
	}, channel, orchestrator, pool, runner, history, logger)
	orchestrator.SetObserver(bot)

	// Janitor
	jan, err := janitor.New(janitor.Config{
		Schedule:         cfg.Janitor.Schedule,
		TempDir:          cfg.Storage.TempPath,
		MaxAge:           cfg.Janitor.MaxAge,
		HistoryRetention: cfg.History.Retention(),
	}, history, logger)
	if err != nil {
		logger.Error("failed to create janitor", "error", err)
		os.Exit(1)
	}
	jan.Start()

	// HTTP surface
	var updates handler.UpdateHandler
	if cfg.Telegram.Mode == config.ModeWebhook {
		updates = bot
	}
	router := api.NewRouter(
		handler.NewHealthHandler(history, cfg.Storage.TempPath),
		handler.NewWebhookHandler(updates, logger),
		cfg.Telegram.WebhookSecret,
		logger,
	)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	if cfg.Telegram.Mode == config.ModePolling {
		go bot.Poll(ctx, botAPI)
	} else {
		logger.Info("receiving updates by webhook")
	}

	logger.Info("bot is running and ready to receive messages")

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	jan.Stop()

	// Stop workers (allow in-flight requests to complete)
	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

func openHistory(cfg config.HistoryConfig, logger *slog.Logger) (repository.HistoryRepository, error) {
	if cfg.SQLitePath == "" {
		logger.Info("history kept in memory")
		return repository.NewInMemoryHistoryRepository(), nil
	}
	repo, err := repository.NewSQLiteHistoryRepository(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	logger.Info("history stored in sqlite", "path", cfg.SQLitePath)
	return repo, nil
}
