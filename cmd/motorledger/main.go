package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/motorledger/motorledger/internal/app"
	"github.com/motorledger/motorledger/internal/backup"
	"github.com/motorledger/motorledger/internal/ledger"
	"github.com/motorledger/motorledger/internal/observability"
	"github.com/motorledger/motorledger/internal/photos"
	"github.com/motorledger/motorledger/internal/platform/cache"
	"github.com/motorledger/motorledger/internal/store/embedded"
	"github.com/motorledger/motorledger/internal/store/flatkey"
	"github.com/motorledger/motorledger/internal/store/remote"
	"github.com/motorledger/motorledger/internal/store/spreadsheet"
	"github.com/motorledger/motorledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("create data dir", slog.Any("error", err))
		os.Exit(1)
	}

	embeddedStore, err := embedded.Open(cfg.SQLitePath)
	if err != nil {
		logger.Error("open embedded store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := embeddedStore.Close(); err != nil {
			logger.Warn("embedded close", slog.Any("error", err))
		}
	}()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// The flat-key tier is last resort; the app still serves from the
		// other tiers when Redis is down.
		logger.Warn("redis unavailable", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	flatStore := flatkey.NewStore(redisClient, cfg.RedisPrefix)

	registry := remote.NewRegistry(flatStore)
	if !registry.Load(ctx) {
		registry.Configure(ctx, cfg.RemoteURL, cfg.RemotePath, cfg.RemoteEndpointList())
	}

	metrics := observability.NewMetrics()

	remoteStore := remote.NewStore(registry, logger,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.RemoteTimeout}),
		remote.WithPromotionHook(func(remote.Endpoint) { metrics.FailoverPromotion() }),
	)
	if !registry.Empty() {
		// Best effort: a fresh endpoint bootstraps its schema here, an
		// unreachable one is picked up again by the failover walk.
		if err := remoteStore.Initialize(ctx); err != nil {
			logger.Warn("remote schema bootstrap", slog.Any("error", err))
		}
	}

	sheetStore := spreadsheet.NewStore(cfg.WorkbookPath)

	photoStore, err := photos.NewStore(cfg.PhotoDir)
	if err != nil {
		logger.Error("open photo store", slog.Any("error", err))
		os.Exit(1)
	}

	coordinator := ledger.NewCoordinator(ledger.CoordinatorParams{
		Embedded: embeddedStore,
		Remote:   remoteStore,
		Sheet:    sheetStore,
		Flat:     flatStore,
		Counters: flatStore,
		Photos:   photoStore,
		Metrics:  metrics,
		Logger:   logger,
	})

	backupService := backup.NewService(coordinator, logger)

	ledgerHandler := ledger.NewHandler(logger, coordinator)
	backupHandler := backup.NewHandler(logger, backupService)
	photoHandler := photos.NewHandler(logger, photoStore)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Ledger:   ledgerHandler,
		Backup:   backupHandler,
		Photos:   photoHandler,
		Jobs:     jobHandler,
		PhotoDir: photoStore.Dir(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
