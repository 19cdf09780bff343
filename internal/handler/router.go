package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/slot-booking/pkg/middleware"
	"github.com/prohmpiriya/slot-booking/pkg/telemetry"
)

// RouterConfig holds what the HTTP routes need
type RouterConfig struct {
	Booking *BookingHandler
	Agency  *AgencyHandler
	Health  *HealthHandler
	// Auth resolves the acting user; required for every /api/v1 route except availability
	Auth gin.HandlerFunc
	// Idempotency guards payment confirmation; optional
	Idempotency gin.HandlerFunc
}

// NewRouter builds the gin engine with probes, metrics and the /api/v1 routes
func NewRouter(cfg *RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware())
	router.Use(middleware.Metrics())

	router.GET("/health", cfg.Health.Health)
	router.GET("/ready", cfg.Health.Ready)
	router.GET("/metrics", middleware.MetricsHandler())

	RegisterRoutes(router.Group("/api/v1"), cfg)
	return router
}

// RegisterRoutes registers the booking API on a router group
func RegisterRoutes(v1 *gin.RouterGroup, cfg *RouterConfig) {
	v1.GET("/slots/:id/availability", cfg.Booking.GetAvailability)

	authed := v1.Group("")
	if cfg.Auth != nil {
		authed.Use(cfg.Auth)
	}

	reservations := authed.Group("/reservations")
	{
		reservations.POST("", cfg.Booking.CreateReservation)
		reservations.GET("/:id", cfg.Booking.GetReservation)
		reservations.DELETE("/:id", cfg.Booking.ReleaseReservation)
	}

	confirm := []gin.HandlerFunc{cfg.Booking.ConfirmPayment}
	if cfg.Idempotency != nil {
		confirm = append([]gin.HandlerFunc{cfg.Idempotency}, confirm...)
	}
	authed.POST("/payments/confirm", confirm...)

	bookings := authed.Group("/bookings")
	{
		bookings.GET("", cfg.Booking.ListBookings)
		bookings.GET("/:id", cfg.Booking.GetBooking)
		bookings.POST("/:id/cancel", cfg.Booking.CancelBooking)
	}

	agency := authed.Group("/agency")
	{
		agency.GET("/bookings", cfg.Agency.ListBookings)
		agency.POST("/bookings/:id/cancel", cfg.Booking.CancelBooking)
		agency.POST("/bookings/:id/no-show", cfg.Agency.MarkAsNoShow)
		agency.GET("/offerings/:id/bookings", cfg.Agency.ListOfferingBookings)
		agency.GET("/slots/:id/adjustments", cfg.Agency.ListCapacityAdjustments)
	}
}
