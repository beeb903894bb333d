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

	"agendei/internal/api"
	"agendei/internal/config"
	"agendei/internal/database"
	"agendei/internal/docstore"
	"agendei/internal/domain"
	"agendei/internal/events"
	"agendei/internal/google"
	"agendei/internal/logging"
	"agendei/internal/metrics"
	"agendei/internal/notify"
	"agendei/internal/repository"
	"agendei/internal/service"
	"agendei/internal/store"
	"agendei/internal/tracing"
	"agendei/internal/wizard"
	"agendei/internal/worker"

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

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, cfg.App)
	if err != nil {
		logger.Warn().Err(err).Msg("Tracing init failed, continuing without traces")
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	repo, sqlDB, err := initRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := seedCatalog(ctx, cfg, repo, logger); err != nil {
		return err
	}

	if cfg.Backup.Enabled {
		if sqlDB == nil {
			logger.Warn().Str("driver", cfg.Database.Driver).Msg("Backups are only supported for sqlite")
		} else {
			backupService := database.NewBackupService(sqlDB, cfg.Backup, logging.Component(logger, "backup"))
			go backupService.Start(ctx)
		}
	}

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewEventBus()
	appointmentStore := store.New(repo, bus, logging.Component(logger, "store"))

	sessions := service.NewSessionService(initSessionRepository(cfg, redisClient, logger), logging.Component(logger, "sessions"))

	sheetsService := initGoogleSheets(ctx, cfg, logger)
	var syncWorker domain.SyncWorker
	var mirror api.SheetsMirror
	if sheetsService != nil {
		w := worker.NewSheetsWorker(sheetsService, redisClient, worker.PolicyFromConfig(cfg.Worker), cfg.Worker.QueueSize,
			logging.Component(logger, "sheets_worker"))
		go w.Start(ctx)
		syncWorker = w
		mirror = sheetsService
	}

	startKafka(ctx, cfg, bus, logger)
	startTelegram(ctx, cfg, bus, logger)

	wz := wizard.New(wizard.Flow{
		Steps:          cfg.Booking.Steps,
		AutoAdvance:    cfg.Booking.AutoAdvance,
		MaxBookingDays: cfg.Booking.MaxBookingDays,
	})

	svcLogger := logging.Component(logger, "service")
	services := api.Services{
		Booking:      service.NewBookingService(repo, appointmentStore, sessions, wz, syncWorker, svcLogger),
		Businesses:   service.NewBusinessService(repo, bus, svcLogger),
		Catalog:      service.NewCatalogService(repo, bus, svcLogger),
		Appointments: service.NewAppointmentService(repo, appointmentStore, syncWorker, svcLogger),
		Sessions:     sessions,
		Agenda:       appointmentStore,
		Mirror:       mirror,
		Pinger:       repo,
	}

	httpServer := api.NewHTTPServer(cfg, services, logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, repo, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Create grpc server")
			return err
		}
		go grpcServer.WatchHealth(ctx)
	}

	startMetrics(ctx, cfg, logger)

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
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

	return cfg, baseLogger, closer, nil
}

// initRepository opens the configured backend. The sqlite handle is also
// returned for the backup service.
func initRepository(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.Repository, *database.DB, error) {
	switch cfg.Database.Driver {
	case config.DriverMongo:
		st, err := docstore.Connect(ctx, cfg.Database.Mongo.URI, cfg.Database.Mongo.Database, logging.Component(logger, "docstore"))
		if err != nil {
			logger.Error().Err(err).Msg("Init mongo")
			return nil, nil, err
		}
		return st, nil, nil
	default:
		db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("Init database")
			return nil, nil, err
		}
		return db, db, nil
	}
}

func seedCatalog(ctx context.Context, cfg *config.Config, repo domain.Repository, logger *zerolog.Logger) error {
	if cfg.Catalog.SeedFile == "" {
		return nil
	}
	if _, err := os.Stat(cfg.Catalog.SeedFile); errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("seed_file", cfg.Catalog.SeedFile).Msg("Catalog seed file not found, skipping")
		return nil
	}

	catalog, err := service.LoadCatalog(cfg.Catalog.SeedFile)
	if err != nil {
		return err
	}
	created, err := service.SeedCatalog(ctx, repo, catalog, logging.Component(logger, "seed"))
	if err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	logger.Info().Int("businesses_created", created).Msg("Catalog seeded")
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled || cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("Redis connected")
	return redisClient
}

// initSessionRepository prefers Redis and keeps a memory copy for outages.
func initSessionRepository(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.SessionRepository {
	memory := repository.NewMemorySessionRepository(cfg.Booking.SessionTTL)
	if redisClient == nil {
		logger.Info().Msg("Using in-memory booking sessions")
		return memory
	}
	primary := repository.NewRedisSessionRepository(redisClient, cfg.Booking.SessionTTL)
	return repository.NewFailoverSessionRepository(primary, memory, logging.Component(logger, "sessions"))
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if !cfg.Google.Enabled {
		return nil
	}

	sheetsLogger := logging.Component(logger, "sheets")
	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.AppointmentsSpreadsheetID,
		cfg.Google.SheetName, sheetsLogger)
	if err != nil {
		logger.Warn().Err(err).Msg("Google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		email, _ := google.GetServiceAccountEmail(cfg.Google.CredentialsFile)
		logger.Warn().Err(err).Str("service_account", email).Msg("Google sheets unreachable, share the spreadsheet with the service account")
		return nil
	}
	if err := sheetsService.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("Sheets cache warm-up failed")
	}
	sheetsService.StartCacheRefresh(ctx, 10*time.Minute)

	logger.Info().Msg("Google sheets connected")
	return sheetsService
}

func startKafka(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	if !cfg.Kafka.Enabled {
		return
	}
	writer := events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	forwarder := events.NewKafkaForwarder(writer, cfg.Kafka.BufferSize, logging.Component(logger, "kafka"))
	forwarder.Attach(bus)
	go forwarder.Run(ctx)
	logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka forwarding enabled")
}

func startTelegram(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	if !cfg.Telegram.Enabled {
		return
	}
	bot, err := notify.NewBotAPI(cfg.Telegram)
	if err != nil {
		logger.Warn().Err(err).Msg("Telegram init failed, continuing without owner notifications")
		return
	}
	notifier := notify.NewTelegramNotifier(bot, cfg.Telegram, logging.Component(logger, "telegram"))
	notifier.Attach(bus)
	go notifier.Run(ctx)
	logger.Info().Str("bot", bot.Self.UserName).Msg("Telegram notifications enabled")
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
				logger.Error().Err(err).Msg("gRPC server stopped")
			}
		}()
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("Agendei started")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.HTTP.ShutdownTimeout)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown")
	}

	logger.Info().Msg("Agendei stopped")
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
		logger.Error().Err(err).Msg("Metrics server error")
	}
}
