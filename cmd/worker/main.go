package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"jewelshot/internal/adapter/repo"
	"jewelshot/internal/batch"
	"jewelshot/internal/infra"
	"jewelshot/internal/infra/bootstrap"
	"jewelshot/internal/infra/credentials"
	"jewelshot/internal/ledger"
	"jewelshot/internal/processor"
	"jewelshot/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	objects, _, err := bootstrap.ObjectStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}
	dispatcher, closeNotify, err := bootstrap.Notifier(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure notifications")
	}
	defer closeNotify()

	creds := credentials.NewPool(credentials.NewStore(runner), cfg.ProviderRPSPerKey, logger)
	if n, err := creds.Seed(ctx, cfg.ProviderAPIKeys); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to seed credentials")
	} else if n > 0 {
		logger.Info().Int("added", n).Msg("worker: seeded credentials from environment")
	}
	if err := creds.Refresh(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to load credentials")
	}
	if len(creds.Snapshot()) == 0 {
		logger.Warn().Msg("worker: no provider credentials configured, jobs retry until their attempts run out and are then refunded")
	}

	weights, err := queue.ParseWeights(cfg.LaneWeights)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: invalid lane weights")
	}

	jobs := repo.NewJobRepository(runner)
	credits := repo.NewCreditRepository(runner)
	led := ledger.NewService(credits, dispatcher, cfg.LowCreditThreshold, logger)
	q := queue.New(jobs, queue.NewSelector(weights), cfg.QueueLease, logger)

	executor := processor.NewExecutor(bootstrap.Provider(cfg, logger), creds, objects, logger)
	router := processor.NewRouter(jobs, led, executor, cfg.Backoff(), logger)
	hostname, _ := os.Hostname()
	workers := processor.NewWorkerPool(q, router, "worker-"+hostname, cfg.WorkerConcurrency, cfg.QueuePoll, logger)

	orchestrator := batch.NewOrchestrator(repo.NewBatchRepository(runner), led, executor, objects, dispatcher,
		cfg.Backoff().WithMaxAttempts(cfg.BatchMaxAttempts), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return workers.Run(gctx) })
	g.Go(func() error {
		if err := queue.NewListener(cfg.DatabaseURL, q, logger).Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			// Polling still drains the lanes without notifications.
			logger.Warn().Err(err).Msg("worker: enqueue listener stopped")
		}
		return nil
	})
	g.Go(func() error {
		queue.NewJanitor(jobs, led, cfg.Backoff().MaxAttempts, logger).Run(gctx, cfg.ReaperInterval)
		return nil
	})
	g.Go(func() error {
		ledger.NewReaper(led, credits, cfg.ReservationTTL).Run(gctx, cfg.ReaperInterval)
		return nil
	})
	g.Go(func() error {
		batch.NewReaper(orchestrator, cfg.ReservationTTL).Run(gctx, cfg.ReaperInterval)
		return nil
	})
	g.Go(func() error {
		creds.RunRefresh(gctx, cfg.ReaperInterval)
		return nil
	})

	logger.Info().
		Int("concurrency", cfg.WorkerConcurrency).
		Str("lanes", cfg.LaneWeights).
		Str("provider", cfg.ProviderMode).
		Msg("worker: started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
