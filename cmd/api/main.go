package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carebook/internal/api"
	"carebook/internal/availability"
	"carebook/internal/catalog"
	"carebook/internal/config"
	"carebook/internal/database"
	"carebook/internal/dispatcher"
	"carebook/internal/domain"
	"carebook/internal/events"
	"carebook/internal/export"
	"carebook/internal/ledger"
	"carebook/internal/logging"
	"carebook/internal/metrics"
	"carebook/internal/repository"
	"carebook/internal/service"
	"carebook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	primary, db, err := initStore(cfg, redisClient, &logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if cfg.Backup.Enabled {
			go database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup")).Start(ctx)
		}
	}

	store := repository.NewFailoverStore(primary, repository.NewMemoryStore(), cfg.Storage.RecoveryInterval, logging.Component(&logger, "store"))
	if err := prepareData(ctx, cfg, store, &logger); err != nil {
		return err
	}

	jobs := worker.NewScheduler(worker.RetryPolicyFromConfig(cfg.Effects), redisClient, cfg.Effects.DeadLetterKey, logging.Component(&logger, "jobs"))
	defer jobs.Stop()

	eventBus := events.NewEventBus().WithLogger(logging.Component(&logger, "events"))
	if cfg.Kafka.Enabled {
		forwarder := events.NewKafkaForwarder(events.NewKafkaWriter(cfg.Kafka), cfg.Kafka.BufferSize, logging.Component(&logger, "kafka"))
		forwarder.Attach(eventBus)
		go forwarder.Run(ctx)
	}

	ledgerSvc := ledger.NewService(store, eventBus, logging.Component(&logger, "ledger"))
	services := dispatcher.Services{
		Scheduling: service.NewSchedulingService(
			store, ledgerSvc, newVerifier(cfg.Scheduling, &logger), eventBus, jobs, cfg.Scheduling,
			logging.Component(&logger, "scheduling"),
		),
		Ledger:       ledgerSvc,
		Availability: availability.NewService(store, eventBus, logging.Component(&logger, "availability")),
		Users:        service.NewUserService(store, logging.Component(&logger, "users")),
		Notifier:     service.NewNotifier(store, jobs, cfg.Effects.NotificationDelay, logging.Component(&logger, "notifier")),
		Messaging: service.NewMessagingService(
			store, jobs, eventBus, cfg.Effects, cfg.Scheduling.AutoReplyText,
			logging.Component(&logger, "messaging"),
		),
	}
	services.Notifier.Attach(eventBus)

	d := dispatcher.New(cfg.Dispatcher, services, logging.Component(&logger, "dispatcher"))
	exporter := export.NewExporter(ledgerSvc, cfg.Exports.Path, logging.Component(&logger, "export"))

	ready := func(context.Context) error {
		metrics.SetStoreDegraded(store.Degraded())
		if store.Degraded() {
			return errors.New("primary store degraded, serving from memory")
		}
		return nil
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, ready, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}
	httpServer := api.NewHTTPServer(&cfg.API, d, exporter, ready, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, redisClient); err != nil {
		if cfg.Storage.Backend == "redis" {
			// The failover store takes over until redis answers again.
			logger.Warn().Err(err).Msg("redis unreachable at startup, starting degraded")
			return redisClient
		}
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initStore opens the configured primary store. db is non-nil only for sqlite.
func initStore(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) (domain.Store, *database.DB, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		db, err := database.NewDB(cfg.Storage.Path, logging.Component(logger, "database"))
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Storage.Path).Msg("init database")
			return nil, nil, err
		}
		return db, db, nil
	case "redis":
		if redisClient == nil {
			return nil, nil, errors.New("redis backend selected but redis is not configured")
		}
		return repository.NewRedisStore(redisClient, cfg.Storage.KeyPrefix), nil, nil
	default:
		logger.Warn().Msg("memory backend selected, data is lost on restart")
		return repository.NewMemoryStore(), nil, nil
	}
}

// prepareData normalizes legacy user records and seeds the catalog.
func prepareData(ctx context.Context, cfg *config.Config, store domain.Store, logger *zerolog.Logger) error {
	if _, err := repository.NormalizeUsers(ctx, store, logging.Component(logger, "migrate")); err != nil {
		return fmt.Errorf("normalize users: %w", err)
	}

	catalogPath := os.Getenv("CATALOG_PATH")
	if catalogPath == "" {
		catalogPath = cfg.Catalog
	}
	if catalogPath == "" {
		return nil
	}

	users, err := catalog.Load(catalogPath)
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("load catalog")
		return err
	}
	if _, err := service.NewUserService(store, logging.Component(logger, "seed")).SeedUsers(ctx, users); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("grpc_port", cfg.API.GRPC.Port).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
