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

	"breakbread-ledger/config"
	httpHandler "breakbread-ledger/internal/adapter/http/handler"
	kafkaPublisher "breakbread-ledger/internal/adapter/messaging/kafka"
	memoryStorage "breakbread-ledger/internal/adapter/storage/memory"
	pgStorage "breakbread-ledger/internal/adapter/storage/postgres"
	redisStorage "breakbread-ledger/internal/adapter/storage/redis"
	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/internal/service"
	"breakbread-ledger/pkg/logger"
	"breakbread-ledger/pkg/metrics"
	"breakbread-ledger/pkg/money"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("BBL_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret is required (BBL_JWT_SECRET)")
	}

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("events", cfg.Events.Driver).
		Msg("Starting BreakBread ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repos    *ports.Repositories
		checkers []ports.HealthChecker
	)

	// PostgreSQL (optional): durable copy of ledger state
	if cfg.Database.Enabled {
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		if err := pgStorage.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
		repos = pgStorage.NewRepositories(pool)
		checkers = append(checkers, pgStorage.NewHealthCheck(pool))
	}

	// Redis (optional): idempotency, step-up replay guard, rate limiting
	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		rdb, err = redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
	}

	publisher, err := newPublisher(cfg, rdb, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure event publisher")
	}
	journal := service.NewJournal(repos, publisher, cfg.Journal.BufferSize, collector, logger.Component(log, "journal"))

	var (
		nonces      ports.NonceStore = memoryStorage.NewNonceStore()
		idempotency ports.IdempotencyCache
		rateLimits  ports.RateLimitStore
	)
	if rdb != nil {
		nonces = redisStorage.NewNonceStore(rdb)
		idempotency = redisStorage.NewIdempotencyCache(rdb)
		rateLimits = redisStorage.NewRateLimitStore(rdb)
	}

	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	stepUpSvc := service.NewStepUpService(cfg.StepUp.Secret, cfg.StepUp.TTL, cfg.JWT.Issuer, nonces, logger.Component(log, "stepup"))

	ledgerSvc := service.NewLedgerService(ledgerConfig(cfg), service.LedgerDeps{
		StepUp:      stepUpSvc,
		Idempotency: idempotency,
		Journal:     journal,
		Metrics:     collector,
		Log:         logger.Component(log, "ledger"),
	})
	if err := ledgerSvc.Restore(ctx, repos); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore ledger state")
	}
	if n, err := seedAccounts(ctx, ledgerSvc, cfg.Seed, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed accounts")
	} else if n > 0 {
		log.Info().Int("accounts", n).Msg("Seed accounts opened")
	}

	scheduler := service.NewAllocationScheduler(ledgerSvc.Pool(), cfg.Revenue.AllocationInterval, logger.Component(log, "revenue"))
	go scheduler.Run(ctx)

	gin.SetMode(cfg.Server.Mode)
	deps := httpHandler.RouterDeps{
		LedgerSvc:      ledgerSvc,
		TokenSvc:       tokenSvc,
		StepUpSvc:      stepUpSvc,
		RateLimitStore: rateLimits,
		RateLimit:      int64(cfg.Server.RateLimit),
		OperatorToken:  cfg.Server.OperatorToken,
		Currency:       currencyOrDefault(cfg.Ledger.Currency),
		HealthCheckers: checkers,
		Logger:         log,
	}
	if collector != nil {
		deps.Metrics = collector.Handler()
	}
	router := httpHandler.SetupRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// Drain persistence and events after the last request has finished.
	if err := journal.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Journal did not drain before shutdown")
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Closing event publisher")
		}
	}

	log.Info().Msg("Server exited")
}

// newPublisher returns nil for events.driver "none".
func newPublisher(cfg *config.Config, rdb *goredis.Client, log zerolog.Logger) (ports.EventPublisher, error) {
	switch cfg.Events.Driver {
	case "redis":
		if rdb == nil {
			return nil, errors.New("events.driver redis requires redis.enabled")
		}
		return redisStorage.NewEventPublisher(rdb, cfg.Events.Channel, logger.Component(log, "events")), nil
	case "kafka":
		return kafkaPublisher.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, logger.Component(log, "events")), nil
	default:
		return nil, nil
	}
}

func currencyOrDefault(c string) string {
	if c == "" {
		return money.DefaultCurrency
	}
	return c
}
