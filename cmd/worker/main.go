package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/optica-erp/optica-erp/internal/app"
	"github.com/optica-erp/optica-erp/internal/catalog"
	"github.com/optica-erp/optica-erp/internal/discount"
	"github.com/optica-erp/optica-erp/internal/platform/db"
	"github.com/optica-erp/optica-erp/internal/quotes"
	"github.com/optica-erp/optica-erp/internal/shared"
	"github.com/optica-erp/optica-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	catalogSvc := catalog.NewService(catalog.NewRepository(pool), nil)
	discountSvc := discount.NewService(discount.NewRepository(pool), catalogSvc, logger)
	quoteSvc := quotes.NewService(quotes.NewRepository(pool), catalogSvc, discountSvc, cfg.TaxRate, logger)
	idem := shared.NewIdempotencyStore(pool)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeQuoteExpirySweep, Handler: jobs.HandleQuoteExpirySweep(quoteSvc, logger)},
			{Type: jobs.TaskTypeIdempotencyCleanup, Handler: jobs.HandleIdempotencyCleanup(idem, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.QuoteExpirySweepSpec, Task: jobs.NewQuoteExpirySweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IdempotencyCleanupSpec, Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("configure worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shut down cleanly")
}
