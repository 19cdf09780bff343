package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prohmpiriya/slot-booking/internal/domain"
	"github.com/prohmpiriya/slot-booking/internal/dto"
	"github.com/prohmpiriya/slot-booking/internal/service"
	"github.com/prohmpiriya/slot-booking/pkg/response"
	"github.com/prohmpiriya/slot-booking/pkg/telemetry"
)

// BookingHandler handles customer-facing reservation and booking requests.
// Holds live in Redis; bookings are created asynchronously by the payment finalizer.
type BookingHandler struct {
	bookingService service.BookingService
	location       *time.Location
}

// NewBookingHandler creates a new booking handler. loc is the zone date filters are read in.
func NewBookingHandler(bookingService service.BookingService, loc *time.Location) *BookingHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &BookingHandler{
		bookingService: bookingService,
		location:       loc,
	}
}

// CreateReservation handles POST /reservations
func (h *BookingHandler) CreateReservation(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.create_reservation")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := actor(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	var req dto.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("slot_id", req.SlotID),
	)

	result, err := h.bookingService.CreateReservation(ctx, userID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("reservation_id", result.ReservationID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// GetReservation handles GET /reservations/:id
func (h *BookingHandler) GetReservation(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}

	result, err := h.bookingService.GetReservation(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// ReleaseReservation handles DELETE /reservations/:id
func (h *BookingHandler) ReleaseReservation(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.release_reservation")
	defer span.End()

	userID, ok := actor(c)
	if !ok {
		return
	}

	if err := h.bookingService.ReleaseReservation(ctx, c.Param("id"), userID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.MessageResponse{Message: "Reservation released"})
}

// GetAvailability handles GET /slots/:id/availability
func (h *BookingHandler) GetAvailability(c *gin.Context) {
	availability, err := h.bookingService.GetAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.FromAvailability(availability))
}

// ConfirmPayment handles POST /payments/confirm. It answers 202: the booking
// is created by the payment finalizer.
func (h *BookingHandler) ConfirmPayment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.confirm_payment")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := actor(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	var req dto.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("reservation_id", req.ReservationID),
		attribute.String("payment_id", req.PaymentID),
	)

	result, err := h.bookingService.ConfirmPayment(ctx, userID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Accepted(c, result)
}

// ListBookings handles GET /bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}

	filter, ok := bindListQuery(c, h.location)
	if !ok {
		return
	}

	result, err := h.bookingService.ListCustomerBookings(c.Request.Context(), userID, filter)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}

	booking, err := h.bookingService.GetBooking(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, booking)
}

// CancelBooking handles POST /bookings/:id/cancel and POST /agency/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := actor(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	// the body is optional
	var req dto.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid request")
			bindError(c, err)
			return
		}
	}

	bookingID := c.Param("id")
	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("actor_id", userID),
	)

	booking, err := h.bookingService.CancelBooking(ctx, bookingID, userID, req.CancellationReason)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, booking)
}

// bindListQuery binds and converts listing filters, writing 400 on failure
func bindListQuery(c *gin.Context, loc *time.Location) (*domain.BookingFilter, bool) {
	var query dto.BookingListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindError(c, err)
		return nil, false
	}
	filter, err := query.ToFilter(loc)
	if err != nil {
		handleError(c, err)
		return nil, false
	}
	return filter, true
}
