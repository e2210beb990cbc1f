package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/negoce-erp/negoce-erp/internal/app"
	"github.com/negoce-erp/negoce-erp/internal/billing"
	"github.com/negoce-erp/negoce-erp/internal/ledger"
	"github.com/negoce-erp/negoce-erp/internal/treasury"
	"github.com/negoce-erp/negoce-erp/jobs"
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

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	ledgerRepo := ledger.NewRepository(pool)

	calculator := billing.NewCalculator(billing.ExclusionRules{
		ClosureCode:           cfg.ClosureCode,
		ExcludedMovementCodes: cfg.ExcludedMovementCodes,
	})
	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, calculator, logger)

	treasuryRepo := treasury.NewRepository(pool)
	treasuryService := treasury.NewService(treasuryRepo, billingService, logger)

	metrics := jobs.NewMetrics(nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPaymentReminder, Handler: jobs.HandlePaymentReminder(billingService, logger, metrics)},
			{Type: jobs.TaskLedgerIntegrity, Handler: jobs.HandleLedgerIntegrity(ledgerRepo, logger, metrics)},
			{Type: jobs.TaskCashConservation, Handler: jobs.HandleCashConservation(treasuryService, logger, metrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 7 * * *", Task: jobs.NewPaymentReminderTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: jobs.NewLedgerIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 1 * * *", Task: jobs.NewCashConservationTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
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
