package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/iho/tradebook/internal/adapter/http"
	"github.com/iho/tradebook/internal/adapter/http/handler"
	"github.com/iho/tradebook/internal/adapter/http/middleware"
	"github.com/iho/tradebook/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/tradebook/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/tradebook/internal/adapter/repository/redis"
	"github.com/iho/tradebook/internal/infrastructure/config"
	"github.com/iho/tradebook/internal/infrastructure/eventpublisher"
	"github.com/iho/tradebook/internal/infrastructure/idgen"
	"github.com/iho/tradebook/internal/infrastructure/logger"
	"github.com/iho/tradebook/internal/infrastructure/metrics"
	"github.com/iho/tradebook/internal/infrastructure/postgres"
	"github.com/iho/tradebook/internal/infrastructure/redis"
	"github.com/iho/tradebook/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	baseLogger := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, baseLogger, prometheus.DefaultRegisterer, prometheus.DefaultGatherer); err != nil {
		baseLogger.Error().Err(err).Msg("server failed")
		stop()
		os.Exit(1)
	}
}

// storage is the set of repositories behind the use cases.
type storage struct {
	txManager   usecase.TransactionManager
	retrier     usecase.Retrier
	entryRepo   usecase.EntryRepository
	paymentRepo usecase.PaymentRepository
	outboxRepo  usecase.OutboxRepository
	ping        handler.Check
	close       func()
}

func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (*storage, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		store := memory.NewStore()
		logger.Warn().Msg("using the in-memory store, data is lost on restart")

		return &storage{
			txManager:   memory.NewTxManager(store),
			entryRepo:   memory.NewEntryRepository(store),
			paymentRepo: memory.NewPaymentRepository(store),
			outboxRepo:  memory.NewOutboxRepository(store),
			ping:        store.Ping,
			close:       func() {},
		}, nil
	}

	if cfg.MigrationsEnabled {
		if err := postgres.RunMigrations(cfg.DatabaseURL, logger); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		MinConns:       cfg.DatabaseMinConns,
		ConnectTimeout: cfg.DatabaseTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	logger.Info().Msg("connected to postgres")

	return &storage{
		txManager:   postgresRepo.NewTxManager(pool),
		retrier:     postgresRepo.NewRetrier().WithLogger(logger).WithCounter(m.TxRetries),
		entryRepo:   postgresRepo.NewEntryRepository(pool),
		paymentRepo: postgresRepo.NewPaymentRepository(pool),
		outboxRepo:  postgresRepo.NewOutboxRepository(pool),
		ping:        pool.Ping,
		close:       pool.Close,
	}, nil
}

// coordination holds the Redis backed parts; all nil when Redis is off.
type coordination struct {
	guard       usecase.SubmissionGuard
	idempotency usecase.IdempotencyStore
	ping        handler.Check
	close       func()
}

func openCoordination(ctx context.Context, cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (*coordination, error) {
	if !cfg.RedisEnabled() {
		logger.Warn().Msg("REDIS_URL is empty, idempotency keys and the submission guard are disabled")
		return &coordination{close: func() {}}, nil
	}

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	redis.Instrument(client, m)
	logger.Info().Msg("connected to redis")

	return &coordination{
		guard:       redisRepo.NewSubmissionGuard(client, cfg.SubmissionLockTTL),
		idempotency: redisRepo.NewIdempotencyStore(client),
		ping:        func(ctx context.Context) error { return client.Ping(ctx).Err() },
		close:       func() { _ = client.Close() },
	}, nil
}

// app is the wired service: the HTTP handler plus background workers.
type app struct {
	handler     http.Handler
	publisher   *eventpublisher.EventPublisher
	rateLimiter *middleware.RateLimiter
}

func newApp(cfg *config.Config, st *storage, co *coordination, logger zerolog.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer) *app {
	uow := usecase.NewUnitOfWork(st.txManager).WithTimeout(cfg.DatabaseTimeout)
	if st.retrier != nil {
		uow = uow.WithRetrier(st.retrier)
	}

	ids := idgen.NewULIDGenerator()

	entryUC := usecase.NewEntryUseCase(uow, st.entryRepo, st.outboxRepo, ids, m)
	paymentUC := usecase.NewPaymentUseCase(uow, st.entryRepo, st.paymentRepo, st.outboxRepo, ids, m).
		WithLogger(logger)
	if co.guard != nil {
		paymentUC = paymentUC.WithGuard(co.guard)
	}
	summaryUC := usecase.NewSummaryUseCase(st.entryRepo, st.paymentRepo, m, logger)

	health := handler.NewHealthHandler().WithCheck("store", st.ping)
	if co.ping != nil {
		health = health.WithCheck("redis", co.ping)
	}

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).WithMetrics(m)

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		EntryHandler:     handler.NewEntryHandler(entryUC),
		PaymentHandler:   handler.NewPaymentHandler(paymentUC),
		SummaryHandler:   handler.NewSummaryHandler(summaryUC),
		HealthHandler:    health,
		Logger:           logger,
		IdempotencyStore: co.idempotency,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		RateLimiter:      rateLimiter,
		Metrics:          m,
		MetricsHandler:   promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	})

	publisher := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: st.outboxRepo,
		Publisher:  eventpublisher.NewLogPublisher(logger),
		Logger:     logger,
		Metrics:    m,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxPollInterval,
	})

	return &app{handler: router, publisher: publisher, rateLimiter: rateLimiter}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) error {
	m := metrics.NewWithRegisterer(reg)

	st, err := openStorage(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	defer st.close()

	co, err := openCoordination(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	defer co.close()

	a := newApp(cfg, st, co, logger, m, gatherer)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      a.handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.publisher.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("outbox publisher stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.rateLimiter.Run(gctx, 10*time.Minute, time.Hour)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("port", cfg.HTTPPort).Str("store", cfg.StoreDriver).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
