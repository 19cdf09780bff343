package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prohmpiriya/slot-booking/internal/di"
	"github.com/prohmpiriya/slot-booking/internal/metrics"
	"github.com/prohmpiriya/slot-booking/internal/saga"
	"github.com/prohmpiriya/slot-booking/internal/service"
	"github.com/prohmpiriya/slot-booking/pkg/config"
	"github.com/prohmpiriya/slot-booking/pkg/database"
	"github.com/prohmpiriya/slot-booking/pkg/kafka"
	"github.com/prohmpiriya/slot-booking/pkg/logger"
	pkgredis "github.com/prohmpiriya/slot-booking/pkg/redis"
	"github.com/prohmpiriya/slot-booking/pkg/retry"
	"github.com/prohmpiriya/slot-booking/pkg/telemetry"
)

const serviceName = "payment-finalizer"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateKafka(); err != nil {
		log.Fatalf("Invalid Kafka config: %v", err)
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
	appLog.Info("Starting Payment Finalizer Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry
	if cfg.OTel.Enabled {
		_, err := telemetry.Init(ctx, &telemetry.Config{
			Enabled:        true,
			ServiceName:    serviceName,
			ServiceVersion: cfg.App.Version,
			CollectorAddr:  cfg.OTel.CollectorAddr,
			SampleRatio:    cfg.OTel.SampleRatio,
			Environment:    cfg.App.Environment,
			MetricInterval: cfg.OTel.MetricInterval,
		})
		if err != nil {
			appLog.Warn(fmt.Sprintf("Failed to initialize telemetry (continuing without it): %v", err))
		} else {
			defer telemetry.Shutdown(context.Background())
			appLog.Info("OpenTelemetry initialized")
		}
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to initialize booking metrics: %v", err))
	}

	// Initialize PostgreSQL connection for the booking ledger
	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        20,
		MinConns:        2,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		MaxRetries:      3,
		RetryInterval:   2 * time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
	}
	defer db.Close()
	appLog.Info("PostgreSQL connected")

	// Initialize Redis connection for holds and finalization markers
	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      20,
		MinIdleConns:  2,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
		EnableTracing: cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")

	loc := cfg.Booking.Location()
	container := di.NewContainer(&di.ContainerConfig{
		DB:         db,
		Redis:      redisClient,
		References: service.NewReferenceGenerator(cfg.Booking.ReferencePrefix, cfg.Booking.ReferenceRandomLength, loc),
		EngineConfig: &service.ReservationEngineConfig{
			TTL: cfg.Booking.ReservationTTL,
		},
		ServiceConfig: &service.BookingServiceConfig{
			Location: loc,
		},
		FinalizerConfig: &service.FinalizationServiceConfig{
			MarkerTTL: cfg.Booking.MarkerTTL,
		},
	})
	if err := container.ReservationRepo.LoadScripts(ctx); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to pre-load Lua scripts: %v", err))
	}

	// Initialize Kafka producer for redeliveries and dead letters
	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      serviceName + "-producer",
		MaxRetries:    3,
		RetryInterval: time.Second,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to create Kafka producer: %v", err))
	}
	defer producer.Close()
	appLog.Info("Kafka producer connected")

	dlq := retry.NewKafkaDLQPublisher(producer, &retry.DLQConfig{
		TopicSuffix: cfg.Finalizer.DLQSuffix,
		Source:      serviceName,
	})
	recordHandler := saga.NewRecordHandler(container.FinalizationService, producer, dlq, cfg.Finalizer.MaxDeliveries)

	// Initialize payment.succeeded consumer
	consumer, err := saga.NewPaymentSucceededConsumer(ctx, &saga.PaymentSucceededConsumerConfig{
		Brokers:          cfg.Kafka.Brokers,
		GroupID:          cfg.Kafka.ConsumerGroup,
		ClientID:         serviceName + "-consumer",
		Topic:            cfg.Finalizer.Topic,
		SessionTimeout:   cfg.Finalizer.SessionTimeout,
		RebalanceTimeout: cfg.Finalizer.RebalanceTimeout,
		Handler:          recordHandler,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to create payment consumer: %v", err))
	}
	defer consumer.Stop()
	appLog.Info(fmt.Sprintf("Payment consumer connected (topic: %s, dlq: %s)", cfg.Finalizer.Topic, cfg.Finalizer.DLQTopic()))

	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- consumer.Start(ctx)
	}()

	appLog.Info("Payment Finalizer Worker started successfully")

	// Wait for interrupt signal or a consumer failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		appLog.Info("Shutting down worker...")
	case err := <-consumerErr:
		if err != nil {
			// Uncommitted records are redelivered to the next group member
			appLog.Error(fmt.Sprintf("Payment consumer stopped: %v", err))
			exitCode = 1
		}
	}

	cancel()
	consumer.Stop()
	select {
	case <-consumer.Done():
	case <-time.After(10 * time.Second):
		appLog.Warn("Timed out waiting for payment consumer to stop")
	}

	appLog.Info("Worker exited")
	if exitCode != 0 {
		logger.Sync()
		os.Exit(exitCode)
	}
}
