package di

import (
	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/slot-booking/internal/handler"
	"github.com/prohmpiriya/slot-booking/internal/repository"
	"github.com/prohmpiriya/slot-booking/internal/service"
	"github.com/prohmpiriya/slot-booking/pkg/database"
	"github.com/prohmpiriya/slot-booking/pkg/redis"
)

// Container holds all dependencies for the slot booking binaries
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	BookingRepo     repository.BookingRepository
	CapacityRepo    repository.CapacityRepository
	CatalogRepo     repository.CatalogRepository
	ReservationRepo *repository.RedisReservationRepository
	MarkerRepo      repository.FinalizationMarkerRepository

	// Publishers
	PaymentPublisher service.PaymentSignalPublisher

	// Services
	ReservationEngine   service.ReservationEngine
	References          *service.ReferenceGenerator
	BookingService      service.BookingService
	FinalizationService service.FinalizationService

	// Handlers
	HealthHandler  *handler.HealthHandler
	BookingHandler *handler.BookingHandler
	AgencyHandler  *handler.AgencyHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB               *database.PostgresDB
	Redis            *redis.Client
	PaymentPublisher service.PaymentSignalPublisher
	EngineConfig     *service.ReservationEngineConfig
	ServiceConfig    *service.BookingServiceConfig
	FinalizerConfig  *service.FinalizationServiceConfig
	References       *service.ReferenceGenerator
	// ExtraHealth adds readiness checks beyond the database and Redis
	ExtraHealth map[string]handler.HealthChecker
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:               cfg.DB,
		Redis:            cfg.Redis,
		PaymentPublisher: cfg.PaymentPublisher,
		References:       cfg.References,
	}

	// Initialize repositories
	c.CapacityRepo = repository.NewPostgresCapacityRepository(c.DB.Pool())
	c.BookingRepo = repository.NewPostgresBookingRepository(c.DB.Pool(), c.CapacityRepo)
	c.CatalogRepo = repository.NewPostgresCatalogRepository(c.DB.Pool())
	c.ReservationRepo = repository.NewRedisReservationRepository(c.Redis)
	c.MarkerRepo = repository.NewRedisMarkerRepository(c.Redis)

	// Initialize services
	c.ReservationEngine = service.NewReservationEngine(c.ReservationRepo, cfg.EngineConfig)

	serviceCfg := cfg.ServiceConfig
	if serviceCfg == nil {
		serviceCfg = &service.BookingServiceConfig{}
	}
	if serviceCfg.References == nil {
		serviceCfg.References = c.References
	}
	c.BookingService = service.NewBookingService(
		c.BookingRepo,
		c.CatalogRepo,
		c.CapacityRepo,
		c.MarkerRepo,
		c.ReservationEngine,
		c.PaymentPublisher,
		serviceCfg,
	)
	c.FinalizationService = service.NewFinalizationService(
		c.BookingRepo,
		c.MarkerRepo,
		c.ReservationEngine,
		c.References,
		cfg.FinalizerConfig,
	)

	// Initialize handlers
	checks := map[string]handler.HealthChecker{
		"database": c.DB,
		"redis":    c.Redis,
	}
	for name, checker := range cfg.ExtraHealth {
		checks[name] = checker
	}
	c.HealthHandler = handler.NewHealthHandler(checks)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService, serviceCfg.Location)
	c.AgencyHandler = handler.NewAgencyHandler(c.BookingService, serviceCfg.Location)

	return c
}

// RouterConfig wires the container's handlers with the given middleware
func (c *Container) RouterConfig(auth, idempotency gin.HandlerFunc) *handler.RouterConfig {
	return &handler.RouterConfig{
		Booking:     c.BookingHandler,
		Agency:      c.AgencyHandler,
		Health:      c.HealthHandler,
		Auth:        auth,
		Idempotency: idempotency,
	}
}
