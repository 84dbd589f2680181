package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/motorledger/motorledger/internal/app"
	"github.com/motorledger/motorledger/internal/backup"
	"github.com/motorledger/motorledger/internal/ledger"
	"github.com/motorledger/motorledger/internal/platform/cache"
	"github.com/motorledger/motorledger/internal/store/embedded"
	"github.com/motorledger/motorledger/internal/store/flatkey"
	"github.com/motorledger/motorledger/internal/store/remote"
	"github.com/motorledger/motorledger/internal/store/spreadsheet"
	"github.com/motorledger/motorledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	flatStore := flatkey.NewStore(redisClient, cfg.RedisPrefix)

	registry := remote.NewRegistry(flatStore)
	if !registry.Load(ctx) {
		registry.Configure(ctx, cfg.RemoteURL, cfg.RemotePath, cfg.RemoteEndpointList())
	}
	remoteStore := remote.NewStore(registry, logger,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.RemoteTimeout}),
	)

	coordinator := ledger.NewCoordinator(ledger.CoordinatorParams{
		Embedded: embeddedStore,
		Remote:   remoteStore,
		Sheet:    spreadsheet.NewStore(cfg.WorkbookPath),
		Flat:     flatStore,
		Counters: flatStore,
		Logger:   logger,
	})
	backupService := backup.NewService(coordinator, logger)

	tasks := jobs.NewTasks(coordinator, backupService, cfg.BackupDir, logger)

	refreshTask, err := jobs.NewDueRefreshTask(jobs.DueRefreshPayload{})
	if err != nil {
		logger.Error("build due refresh task", slog.Any("error", err))
		os.Exit(1)
	}
	snapshotTask, err := jobs.NewSnapshotTask(jobs.SnapshotPayload{Format: "xlsx"})
	if err != nil {
		logger.Error("build snapshot task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  tasks.Handlers(),
		Cron: []jobs.CronRegistration{
			{Spec: "5 0 * * *", Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 * * *", Task: snapshotTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
