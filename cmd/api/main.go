package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"jewelshot/internal/adapter/repo"
	"jewelshot/internal/batch"
	"jewelshot/internal/http/handlers"
	httpapi "jewelshot/internal/http/httpapi"
	"jewelshot/internal/infra"
	"jewelshot/internal/infra/bootstrap"
	"jewelshot/internal/infra/credentials"
	"jewelshot/internal/infra/geoip"
	"jewelshot/internal/ledger"
	"jewelshot/internal/middleware"
	"jewelshot/internal/processor"
	"jewelshot/internal/queue"
	"jewelshot/internal/ratelimit"
	"jewelshot/internal/submission"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	if err := cfg.RequireJWT(); err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: redis connection failed")
	}
	defer redisClient.Close()

	objects, staticDir, err := bootstrap.ObjectStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}
	dispatcher, closeNotify, err := bootstrap.Notifier(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure notifications")
	}
	defer closeNotify()

	weights, err := queue.ParseWeights(cfg.LaneWeights)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: invalid lane weights")
	}

	jobs := repo.NewJobRepository(runner)
	credits := repo.NewCreditRepository(runner)
	led := ledger.NewService(credits, dispatcher, cfg.LowCreditThreshold, logger)
	q := queue.New(jobs, queue.NewSelector(weights), cfg.QueueLease, logger)

	// Batch units run inline in the API process, so it needs its own pool.
	pool := credentials.NewPool(credentials.NewStore(runner), cfg.ProviderRPSPerKey, logger)
	if err := pool.Refresh(ctx); err != nil {
		logger.Fatal().Err(err).Msg("api: failed to load credentials")
	}
	go pool.RunRefresh(ctx, cfg.ReaperInterval)

	executor := processor.NewExecutor(bootstrap.Provider(cfg, logger), pool, objects, logger)
	batchPolicy := cfg.Backoff().WithMaxAttempts(cfg.BatchMaxAttempts)
	orchestrator := batch.NewOrchestrator(repo.NewBatchRepository(runner), led, executor, objects, dispatcher, batchPolicy, logger)

	gateway := submission.NewGateway(
		ratelimit.New(ratelimit.NewRedisStore(redisClient)),
		submission.Limits{PerUser: cfg.RateLimitUser, Global: cfg.RateLimitGlobal, Window: cfg.RateLimitWindow},
		led,
		q,
		logger,
	)

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip disabled")
	}
	var lookup middleware.CountryLookup
	if resolver != nil {
		lookup = resolver.CountryCode
	}

	app := &handlers.App{
		Gateway:     gateway,
		Batches:     orchestrator,
		Ledger:      led,
		Jobs:        jobs,
		Queue:       q,
		Objects:     objects,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
		Logger:      logger,
		StreamPoll:  time.Second,
		CheckOrigin: originChecker(cfg.CORSOrigins),
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:      cfg.JWTSecret,
		DefaultLocale:  cfg.DefaultLocale,
		CORSOrigins:    cfg.CORSOrigins,
		CountryLookup:  lookup,
		AdvisoryLimit:  cfg.RateLimitAdvisory,
		AdvisoryWindow: cfg.RateLimitWindow,
		StaticDir:      staticDir,
		Logger:         logger,
	})

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Str("port", cfg.Port).Str("storage", cfg.StorageDriver).Str("provider", cfg.ProviderMode).Msg("api: listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	logger.Info().Msg("api: stopped")
}

// originChecker allows websocket upgrades from same-origin requests and the
// configured CORS origins.
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed[origin] {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
