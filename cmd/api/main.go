package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/institutovalente/registry-bridge/internal/config"
	"github.com/institutovalente/registry-bridge/internal/delivery"
	"github.com/institutovalente/registry-bridge/internal/handler"
	"github.com/institutovalente/registry-bridge/internal/infra/postgresql"
	"github.com/institutovalente/registry-bridge/internal/infra/postgresql/migrations"
	infraredis "github.com/institutovalente/registry-bridge/internal/infra/redis"
	"github.com/institutovalente/registry-bridge/internal/observability"
	"github.com/institutovalente/registry-bridge/internal/ratelimit"
	"github.com/institutovalente/registry-bridge/internal/repository"
	"github.com/institutovalente/registry-bridge/internal/service"
	"github.com/institutovalente/registry-bridge/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("registry-bridge api exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	policy, err := ratelimit.ParsePolicyFromString(cfg.RateLimitPolicy)
	if err != nil {
		return err
	}
	redisLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitMax, cfg.RateLimitWindow)
	if err != nil {
		return err
	}
	limiter, err := ratelimit.NewPolicyLimiter(redisLimiter, policy, logger)
	if err != nil {
		return err
	}

	var client delivery.Client
	if cfg.SimulationMode {
		client = delivery.NewSimulator(delivery.SimulatorConfig{
			Enabled:       true,
			MockResponses: true,
			Delay:         cfg.SimulationDelay,
			FailureRate:   cfg.SimulationFailRate,
			LogRequests:   true,
		}, logger)
		logger.Warn("simulation mode enabled, no real partner calls will be made")
	} else {
		client = delivery.NewHTTPClient(cfg.DeliveryTimeout)
	}

	attemptRepo := repository.NewGormAttemptRepo(db)
	configRepo := repository.NewGormConfigRepo(db)

	metrics := observability.NewMetrics()

	dispatchSvc, err := service.NewIntegrationService(attemptRepo, configRepo, client, limiter, logger)
	if err != nil {
		return err
	}
	dispatchSvc.SetMetrics(metrics)

	queueMgr, err := service.NewQueueManager(attemptRepo, configRepo, client, service.QueueManagerOptions{
		Concurrency:    cfg.WorkerConcurrency,
		ScanInterval:   cfg.QueueScanInterval,
		ScanLimit:      cfg.QueueScanLimit,
		StaleThreshold: cfg.QueueStaleAfter,
	}, logger)
	if err != nil {
		return err
	}
	queueMgr.SetMetrics(metrics)

	statsSvc, err := service.NewStatsService(attemptRepo, cfg.StatsCacheTTL, logger)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:      "registry-bridge",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterIntegrationRoutes(app, dispatchSvc, queueMgr, statsSvc); err != nil {
		return err
	}

	prober := proberFor(client)
	if err := handler.RegisterConfigRoutes(app, configRepo, prober); err != nil {
		return err
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("registry-bridge api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("fiber server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return queueMgr.Start(groupCtx)
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// proberFor returns the connectivity prober backing the config test endpoint.
// Both delivery implementations expose Probe.
func proberFor(client delivery.Client) delivery.Prober {
	if p, ok := client.(delivery.Prober); ok {
		return p
	}
	return delivery.NewHTTPClient(0)
}
