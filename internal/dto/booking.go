package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/prohmpiriya/slot-booking/internal/domain"
)

// DateLayout is the layout of date query parameters
const DateLayout = "2006-01-02"

// CreateReservationRequest represents request to hold a slot
type CreateReservationRequest struct {
	SlotID        string `json:"offering_time_slot_id" binding:"required"`
	CustomerNotes string `json:"customer_notes,omitempty" binding:"max=1000"`
}

// ReservationResponse represents a temporary reservation
type ReservationResponse struct {
	ReservationID string    `json:"reservation_id"`
	SlotID        string    `json:"offering_time_slot_id"`
	OfferingID    string    `json:"offering_id"`
	TotalPrice    float64   `json:"total_price"`
	CustomerNotes string    `json:"customer_notes,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
	TTLSeconds    int       `json:"ttl_seconds"`
}

// FromReservation converts a hold to ReservationResponse
func FromReservation(r *domain.TemporaryReservation, now time.Time) *ReservationResponse {
	return &ReservationResponse{
		ReservationID: r.ReservationID,
		SlotID:        r.SlotID,
		OfferingID:    r.OfferingID,
		TotalPrice:    r.TotalPrice,
		CustomerNotes: r.CustomerNotes,
		ExpiresAt:     r.ExpiresAt,
		TTLSeconds:    r.TTLSeconds(now),
	}
}

// ConfirmPaymentRequest represents a payment success signal from the client
type ConfirmPaymentRequest struct {
	ReservationID string `json:"reservation_id" binding:"required"`
	PaymentID     string `json:"payment_id" binding:"required"`
	CustomerNotes string `json:"customer_notes,omitempty" binding:"max=1000"`
}

// ConfirmPaymentResponse acknowledges a payment; the booking is created asynchronously
type ConfirmPaymentResponse struct {
	ReservationID string `json:"reservation_id"`
	PaymentID     string `json:"payment_id"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// CancelBookingRequest represents request to cancel a booking
type CancelBookingRequest struct {
	CancellationReason string `json:"cancellation_reason,omitempty" binding:"max=500"`
}

// MessageResponse is a plain acknowledgment
type MessageResponse struct {
	Message string `json:"message"`
}

// AvailabilityResponse represents the capacity of a slot
type AvailabilityResponse struct {
	*domain.Availability
	IsAvailable bool `json:"is_available"`
}

// FromAvailability converts domain Availability to AvailabilityResponse
func FromAvailability(a *domain.Availability) *AvailabilityResponse {
	return &AvailabilityResponse{Availability: a, IsAvailable: a.IsAvailable()}
}

// BookingListQuery holds listing filters from the query string
type BookingListQuery struct {
	OfferingID    string `form:"offering_id"`
	Status        string `form:"status" binding:"omitempty,oneof=confirmed cancelled completed no_show"`
	PaymentStatus string `form:"payment_status" binding:"omitempty,oneof=pending paid refunded"`
	DateFrom      string `form:"date_from"`
	DateTo        string `form:"date_to"`
	SortBy        string `form:"sort_by" binding:"omitempty,oneof=created_at confirmed_at total_price status"`
	SortDirection string `form:"sort_direction" binding:"omitempty,oneof=asc desc"`
	Page          int    `form:"page" binding:"omitempty,min=1"`
	PerPage       int    `form:"per_page" binding:"omitempty,min=1,max=100"`
}

// ToFilter converts the query into a normalized domain filter. Dates are
// calendar days in loc; date_to includes the whole day.
func (q *BookingListQuery) ToFilter(loc *time.Location) (*domain.BookingFilter, error) {
	if loc == nil {
		loc = time.UTC
	}
	filter := &domain.BookingFilter{
		OfferingID:    q.OfferingID,
		Status:        domain.BookingStatus(q.Status),
		PaymentStatus: domain.PaymentStatus(q.PaymentStatus),
		SortBy:        q.SortBy,
		SortDesc:      !strings.EqualFold(q.SortDirection, "asc"),
		Page:          q.Page,
		PerPage:       q.PerPage,
	}

	if q.DateFrom != "" {
		t, err := time.ParseInLocation(DateLayout, q.DateFrom, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: date_from must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
		filter.DateFrom = &t
	}
	if q.DateTo != "" {
		t, err := time.ParseInLocation(DateLayout, q.DateTo, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: date_to must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
		filter.DateTo = &t
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return nil, fmt.Errorf("%w: date_to must not be before date_from", domain.ErrInvalidInput)
	}

	filter.Normalize()
	return filter, nil
}
