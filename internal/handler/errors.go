package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prohmpiriya/slot-booking/internal/domain"
	"github.com/prohmpiriya/slot-booking/pkg/logger"
	"github.com/prohmpiriya/slot-booking/pkg/response"
)

// handleError maps domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	var statusErr *domain.BookingStatusError
	switch {
	case errors.Is(err, domain.ErrSlotNotFound):
		response.Fail(c, http.StatusNotFound, "SLOT_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrOfferingNotFound):
		response.Fail(c, http.StatusNotFound, "OFFERING_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrReservationNotFound):
		response.Fail(c, http.StatusNotFound, "RESERVATION_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrBookingNotFound):
		response.Fail(c, http.StatusNotFound, "BOOKING_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrSlotFullyBooked):
		response.Fail(c, http.StatusConflict, "SLOT_FULLY_BOOKED", err.Error())
	case errors.Is(err, domain.ErrReservationAlreadyPaid):
		response.Fail(c, http.StatusConflict, "ALREADY_PAID", err.Error())
	case errors.Is(err, domain.ErrDuplicateReservation):
		response.Fail(c, http.StatusConflict, "DUPLICATE_RESERVATION", err.Error())
	case errors.Is(err, domain.ErrReservationExpired):
		response.Fail(c, http.StatusGone, "RESERVATION_EXPIRED", err.Error())
	case errors.As(err, &statusErr):
		response.Fail(c, http.StatusBadRequest, "INVALID_BOOKING_STATUS", err.Error())
	case errors.Is(err, domain.ErrBookingAlreadyCancelled):
		response.Fail(c, http.StatusBadRequest, "ALREADY_CANCELLED", err.Error())
	case errors.Is(err, domain.ErrBookingTimeNotPassed):
		response.Fail(c, http.StatusBadRequest, "BOOKING_TIME_NOT_PASSED", err.Error())
	case errors.Is(err, domain.ErrUnauthorizedAccess):
		response.Fail(c, http.StatusForbidden, "FORBIDDEN", err.Error())
	case domain.IsValidationError(err):
		response.Fail(c, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	default:
		logger.Get().Error("Unhandled request error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		response.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// bindError reports a request that failed binding or validation
func bindError(c *gin.Context, err error) {
	response.Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
}

// actor returns the authenticated user, writing 401 when absent
func actor(c *gin.Context) (string, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return "", false
	}
	return userID, true
}
