package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/slot-booking/internal/di"
	"github.com/prohmpiriya/slot-booking/internal/handler"
	"github.com/prohmpiriya/slot-booking/internal/metrics"
	"github.com/prohmpiriya/slot-booking/internal/service"
	"github.com/prohmpiriya/slot-booking/migrations"
	"github.com/prohmpiriya/slot-booking/pkg/config"
	"github.com/prohmpiriya/slot-booking/pkg/database"
	"github.com/prohmpiriya/slot-booking/pkg/logger"
	"github.com/prohmpiriya/slot-booking/pkg/middleware"
	pkgredis "github.com/prohmpiriya/slot-booking/pkg/redis"
	"github.com/prohmpiriya/slot-booking/pkg/telemetry"
)

const serviceName = "booking-api"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Booking API...")

	ctx := context.Background()

	// Initialize telemetry
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
		MetricInterval: cfg.OTel.MetricInterval,
	}); err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry disabled: %v", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()
	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to initialize booking metrics: %v", err))
	}

	// Initialize database connection
	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()
	appLog.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", cfg.Database.MinConns, cfg.Database.MaxConns))

	if cfg.IsDevelopment() {
		if err := migrations.Apply(ctx, db.Pool()); err != nil {
			appLog.Fatal(fmt.Sprintf("Failed to apply migrations: %v", err))
		}
		appLog.Info("Database migrations applied")
	}

	// Initialize Redis connection
	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
		EnableTracing: cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Redis connection failed: %v", err))
	}
	defer redisClient.Close()
	appLog.Info(fmt.Sprintf("Redis connected (pool: %d)", cfg.Redis.PoolSize))

	// Initialize Kafka payment signal publisher
	var publisher service.PaymentSignalPublisher
	kafkaPublisher, err := service.NewKafkaPaymentSignalPublisher(ctx, &service.PaymentSignalPublisherConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Finalizer.Topic,
		ServiceName: serviceName,
		ClientID:    cfg.Kafka.ClientID,
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op publisher: %v", err))
		publisher = service.NewNoOpPaymentSignalPublisher()
	} else {
		appLog.Info("Kafka payment signal publisher connected")
		publisher = kafkaPublisher
	}
	defer publisher.Close()

	loc := cfg.Booking.Location()
	references := service.NewReferenceGenerator(cfg.Booking.ReferencePrefix, cfg.Booking.ReferenceRandomLength, loc)

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		DB:               db,
		Redis:            redisClient,
		PaymentPublisher: publisher,
		References:       references,
		EngineConfig: &service.ReservationEngineConfig{
			TTL: cfg.Booking.ReservationTTL,
		},
		ServiceConfig: &service.BookingServiceConfig{
			PreventDuplicateHolds: cfg.Booking.PreventDuplicateHolds,
			Location:              loc,
		},
		FinalizerConfig: &service.FinalizationServiceConfig{
			MarkerTTL: cfg.Booking.MarkerTTL,
		},
	})

	// Pre-load Lua scripts into Redis
	if err := container.ReservationRepo.LoadScripts(ctx); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to pre-load Lua scripts: %v", err))
	} else {
		appLog.Info("Lua scripts pre-loaded into Redis")
	}

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Configure idempotency middleware for payment confirmation
	idempotencyConfig := middleware.DefaultIdempotencyConfig(redisClient.Client())
	idempotencyConfig.SkipPaths = []string{"/health", "/ready", "/metrics"}

	router := handler.NewRouter(container.RouterConfig(
		middleware.Auth(&middleware.AuthConfig{
			Secret:             cfg.JWT.Secret,
			Issuer:             cfg.JWT.Issuer,
			TrustGatewayHeader: cfg.JWT.TrustGatewayHeader,
		}),
		middleware.IdempotencyMiddleware(idempotencyConfig),
	))

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	go func() {
		appLog.Info(fmt.Sprintf("Booking API listening on %s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	appLog.Info("Server exited gracefully")
}
