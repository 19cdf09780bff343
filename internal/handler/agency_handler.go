package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prohmpiriya/slot-booking/internal/service"
	"github.com/prohmpiriya/slot-booking/pkg/response"
	"github.com/prohmpiriya/slot-booking/pkg/telemetry"
)

// AgencyHandler handles requests from offering owners
type AgencyHandler struct {
	bookingService service.BookingService
	location       *time.Location
}

// NewAgencyHandler creates a new agency handler
func NewAgencyHandler(bookingService service.BookingService, loc *time.Location) *AgencyHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &AgencyHandler{
		bookingService: bookingService,
		location:       loc,
	}
}

// ListBookings handles GET /agency/bookings
func (h *AgencyHandler) ListBookings(c *gin.Context) {
	ownerID, ok := actor(c)
	if !ok {
		return
	}

	filter, ok := bindListQuery(c, h.location)
	if !ok {
		return
	}

	result, err := h.bookingService.ListAgencyBookings(c.Request.Context(), ownerID, filter)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// ListOfferingBookings handles GET /agency/offerings/:id/bookings
func (h *AgencyHandler) ListOfferingBookings(c *gin.Context) {
	ownerID, ok := actor(c)
	if !ok {
		return
	}

	filter, ok := bindListQuery(c, h.location)
	if !ok {
		return
	}

	result, err := h.bookingService.ListOfferingBookings(c.Request.Context(), c.Param("id"), ownerID, filter)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// MarkAsNoShow handles POST /agency/bookings/:id/no-show
func (h *AgencyHandler) MarkAsNoShow(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.agency.no_show")
	defer span.End()

	ownerID, ok := actor(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("actor_id", ownerID),
	)

	booking, err := h.bookingService.MarkAsNoShow(ctx, bookingID, ownerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, booking)
}

// ListCapacityAdjustments handles GET /agency/slots/:id/adjustments
func (h *AgencyHandler) ListCapacityAdjustments(c *gin.Context) {
	ownerID, ok := actor(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	adjustments, err := h.bookingService.ListCapacityAdjustments(c.Request.Context(), c.Param("id"), ownerID, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, adjustments)
}
