package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/imagejob-service/internal/api/events"
	"github.com/cuongbtq/imagejob-service/internal/api/handler"
	"github.com/cuongbtq/imagejob-service/internal/api/processor"
	"github.com/cuongbtq/imagejob-service/internal/api/router"
	"github.com/cuongbtq/imagejob-service/internal/api/service"
	"github.com/cuongbtq/imagejob-service/internal/api/storage"
	"github.com/cuongbtq/imagejob-service/internal/api/upload"
	"github.com/cuongbtq/imagejob-service/internal/config"
	"github.com/cuongbtq/imagejob-service/internal/telemetry"
	"github.com/cuongbtq/imagejob-service/migrations"
	"github.com/cuongbtq/imagejob-service/shared/database"
	"github.com/cuongbtq/imagejob-service/shared/logger"
	"github.com/cuongbtq/imagejob-service/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initDatabase(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	if cfg.Database.AutoMigrate {
		if err := dbClient.Migrate(migrations.FS); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	appLogger.Info("Database ready",
		slog.String("driver", dbClient.Driver()),
		slog.String("pool", dbClient.Stats()),
	)

	publisher, rabbitClient, err := initEvents(&cfg.Events, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize events: %w", err)
	}
	if rabbitClient != nil {
		defer rabbitClient.Close()
	}

	store := storage.NewStorage(dbClient, appLogger.Logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		telemetry.NewJobStatusCollector(store, appLogger.Logger),
	)
	metrics := telemetry.NewMetrics(registry)

	jobService := service.NewJobService(service.Dependencies{
		Store: store,
		Uploader: upload.NewValidator(upload.Config{
			MinSize: cfg.Upload.MinSizeBytes,
			MaxSize: cfg.Upload.MaxSizeBytes,
			BaseURL: cfg.Upload.StorageBaseURL,
		}),
		Remover: processor.NewSimulatedRemover(processor.Config{
			SizeRatio: cfg.Processing.SizeRatio,
			BaseURL:   cfg.Processing.ProcessedBaseURL,
		}, time.Now),
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    appLogger.Logger,
	})

	r := initRouter(cfg, &handler.Dependencies{
		Logger:         appLogger.Logger,
		Service:        jobService,
		DB:             dbClient,
		MetricsHandler: telemetry.Handler(registry),
		ServiceName:    cfg.App.Name,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initDatabase opens the job store connection for the configured driver
func initDatabase(cfg *config.DatabaseConfig, logger *slog.Logger) (*database.Client, error) {
	return database.NewClient(&database.Config{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initEvents connects the lifecycle event publisher, or returns a no-op one when disabled
func initEvents(cfg *config.EventsConfig, logger *slog.Logger) (events.Publisher, *rabbitmq.Client, error) {
	if !cfg.Enabled {
		logger.Info("Job events disabled")
		return events.NoopPublisher{}, nil, nil
	}

	rmq := cfg.RabbitMQ
	client, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:               rmq.Host,
		Port:               rmq.Port,
		User:               rmq.User,
		Password:           rmq.Password,
		VHost:              rmq.VHost,
		ExchangeName:       rmq.Exchange.Name,
		ExchangeType:       rmq.Exchange.Type,
		ExchangeDurable:    rmq.Exchange.Durable,
		ExchangeAutoDelete: rmq.Exchange.AutoDelete,
		RetryAttempts:      rmq.Connection.RetryAttempts,
		RetryInterval:      rmq.Connection.RetryInterval,
		Heartbeat:          rmq.Connection.Heartbeat,
		ConnectionTimeout:  rmq.Connection.ConnectionTimeout,
		PublishRetries:     rmq.Publish.RetryAttempts,
		PublishRetryDelay:  rmq.Publish.RetryInterval,
		PublishBackoffMult: rmq.Publish.BackoffMultiplier,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	return events.NewBrokerPublisher(client, logger), client, nil
}

// initRouter sets the gin mode and builds the router
func initRouter(cfg *config.Config, deps *handler.Dependencies) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
