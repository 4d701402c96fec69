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

	"tablebook/internal/api"
	"tablebook/internal/config"
	"tablebook/internal/database"
	"tablebook/internal/domain"
	"tablebook/internal/events"
	"tablebook/internal/google"
	"tablebook/internal/logging"
	"tablebook/internal/metrics"
	"tablebook/internal/repository"
	"tablebook/internal/service"
	"tablebook/internal/worker"

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

	redisClient := initRedis(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	if cfg.Storage.Driver == config.DriverRedis && redisClient == nil {
		return fmt.Errorf("storage driver redis: redis at %s is unreachable", cfg.Redis.Address)
	}

	stores, err := repository.OpenStores(ctx, cfg, redisClient, logging.Component(logger, "storage"))
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Storage.Driver).Msg("open slot store")
		return err
	}
	defer stores.Close()

	if stores.SQLite != nil {
		startBackups(ctx, cfg, stores.SQLite, logger)
	}

	eventBus := events.NewEventBus()
	eventBus.Subscribe(events.EventBookingCommitted, events.AuditLog(logging.Component(logger, "audit")))
	eventBus.Subscribe(events.EventBookingConflict, events.AuditLog(logging.Component(logger, "audit")))

	hub := api.NewHub(logging.Component(logger, "ws"))
	eventBus.Subscribe(events.EventBookingCommitted, hub.OnCommitted())

	calendarWorker, calendars := initCalendar(ctx, cfg, stores, redisClient, logger)

	var dispatcher domain.CalendarDispatcher
	if calendarWorker != nil {
		dispatcher = calendarWorker
	}
	bookingService := service.NewBookingService(stores.Slots, eventBus, dispatcher, service.RetryPolicy{
		MaxRetries:   cfg.Booking.MaxCommitRetries,
		InitialDelay: cfg.Booking.RetryBaseDelay,
		MaxDelay:     cfg.Booking.RetryMaxDelay,
	}, logging.Component(logger, "booking"))

	deps := api.Deps{
		Service:        bookingService,
		Auth:           api.NewAuthenticator(cfg.Auth.JWTSecret),
		Calendars:      calendars,
		BookingLimiter: initBookingLimiter(redisClient, logger),
		BookingLimit:   cfg.Auth.BookingRateLimit,
		BookingWindow:  time.Duration(cfg.Auth.BookingRateWindow) * time.Second,
		Hub:            hub,
	}

	startMetrics(ctx, cfg, logger)
	if calendarWorker != nil && cfg.Monitoring.PrometheusEnabled {
		if err := metrics.RegisterCalendarQueue(calendarWorker.Pending); err != nil {
			logger.Warn().Err(err).Msg("register calendar queue gauge")
		}
	}

	return startServers(ctx, cfg, deps, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initBookingLimiter prefers redis and falls back to process memory.
func initBookingLimiter(redisClient *redis.Client, logger *zerolog.Logger) domain.RateLimiter {
	memory := repository.NewMemoryRateLimiter()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverRateLimiter(
		repository.NewRedisRateLimiter(redisClient),
		memory,
		logging.Component(logger, "rate-limit"),
	)
}

func initCalendar(
	ctx context.Context,
	cfg *config.Config,
	stores *repository.Stores,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) (*worker.CalendarWorker, api.CalendarSource) {
	if !cfg.Calendar.Enabled {
		return nil, nil
	}

	opts := worker.CalendarWorkerOptions{
		QueueSize:     cfg.Calendar.QueueSize,
		Timeout:       cfg.Calendar.Timeout,
		DeadLetterKey: cfg.Calendar.DeadLetter,
		Redis:         redisClient,
	}
	if stores.SQLite != nil {
		opts.SyncLog = stores.SQLite
	}
	calendarWorker := worker.NewCalendarWorker(opts, logging.Component(logger, "calendar"))
	go calendarWorker.Start(ctx)

	factory := google.NewCalendarFactory(cfg.Calendar)
	source := func(accessToken string) (domain.Calendar, error) {
		cal, err := factory.ForToken(accessToken)
		if err != nil {
			return nil, err
		}
		return cal, nil
	}

	logger.Info().Int("queue_size", cfg.Calendar.QueueSize).Msg("calendar sync enabled")
	return calendarWorker, source
}

func startBackups(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) {
	if !cfg.Backup.Enabled {
		return
	}
	backups := database.NewBackupService(db, cfg.Storage.SQLitePath, cfg.Backup, logging.Component(logger, "backup"))
	go backups.Start(ctx)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(ctx context.Context, cfg *config.Config, deps api.Deps, logger *zerolog.Logger) error {
	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		var err error
		grpcServer, err = api.NewGRPCServer(&cfg.API, deps, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	var httpServer *api.HTTPServer
	if cfg.API.HTTP.Enabled {
		httpServer = api.NewHTTPServer(cfg.API, deps, logger)
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	logger.Info().
		Bool("grpc", grpcServer != nil).
		Int("http_port", cfg.API.HTTP.Port).
		Str("storage", cfg.Storage.Driver).
		Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

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
