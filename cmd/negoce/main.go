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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/negoce-erp/negoce-erp/internal/app"
	"github.com/negoce-erp/negoce-erp/internal/billing"
	"github.com/negoce-erp/negoce-erp/internal/expenses"
	"github.com/negoce-erp/negoce-erp/internal/ledger"
	"github.com/negoce-erp/negoce-erp/internal/ledger/reports"
	"github.com/negoce-erp/negoce-erp/internal/platform/cache"
	"github.com/negoce-erp/negoce-erp/internal/treasury"
	"github.com/negoce-erp/negoce-erp/internal/vat"
	"github.com/negoce-erp/negoce-erp/jobs"
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

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	reportCache := cache.New(redisClient, "reports", cfg.CacheTTL)
	forecastCache := cache.New(redisClient, "forecast", cfg.CacheTTL)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, logger)
	if err := ledgerService.SeedChart(ctx); err != nil {
		logger.Error("seed chart of accounts", slog.Any("error", err))
		os.Exit(1)
	}
	if err := ledgerService.EnsureEssentialAccounts(ctx); err != nil {
		logger.Error("ensure essential accounts", slog.Any("error", err))
		os.Exit(1)
	}
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	reportsService := reports.NewService(ledgerRepo, reportCache, logger)
	reportsHandler := reports.NewHandler(logger, reportsService)

	calculator := billing.NewCalculator(billing.ExclusionRules{
		ClosureCode:           cfg.ClosureCode,
		ExcludedMovementCodes: cfg.ExcludedMovementCodes,
	})
	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, calculator, logger)
	billingHandler := billing.NewHandler(logger, billingService)

	treasuryRepo := treasury.NewRepository(pool)
	treasuryService := treasury.NewService(treasuryRepo, billingService, logger)

	expenseRepo := expenses.NewRepository(pool)
	expenseService := expenses.NewService(expenseRepo, logger)
	expenseHandler := expenses.NewHandler(logger, expenseService)

	forecaster := treasury.NewForecaster(treasuryService, billingService, expenseService, forecastCache, logger)
	treasuryHandler := treasury.NewHandler(logger, treasuryService, forecaster)

	vatRepo := vat.NewRepository(pool)
	vatService := vat.NewService(ledgerRepo, vatRepo, logger)
	vatHandler := vat.NewHandler(logger, vatService)

	billingService.Subscribe(&app.AccountingBridge{
		Ledger:     ledgerService,
		Treasury:   treasuryService,
		Reports:    reportsService,
		Forecaster: forecaster,
		Logger:     logger,
	})
	expenseService.Subscribe(&app.ExpenseBridge{
		Ledger:     ledgerService,
		Treasury:   treasuryService,
		Reports:    reportsService,
		Forecaster: forecaster,
		Logger:     logger,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		BillingHandler:  billingHandler,
		LedgerHandler:   ledgerHandler,
		ReportsHandler:  reportsHandler,
		TreasuryHandler: treasuryHandler,
		ExpenseHandler:  expenseHandler,
		VATHandler:      vatHandler,
		JobHandler:      jobHandler,
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
