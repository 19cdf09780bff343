package domain

import (
	"strings"
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusNoShow    BookingStatus = "no_show"
)

// IsValid checks if the status is a valid BookingStatus
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted, BookingStatusNoShow:
		return true
	}
	return false
}

// String returns the string representation of BookingStatus
func (s BookingStatus) String() string {
	return string(s)
}

// PaymentStatus represents the payment state recorded on a booking
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// Booking is a finalized, durable booking of one slot
type Booking struct {
	ID                 string        `json:"id"`
	SlotID             string        `json:"offering_time_slot_id"`
	OfferingID         string        `json:"offering_id"`
	UserID             string        `json:"user_id"`
	ReservationID      string        `json:"reservation_id,omitempty"`
	BookingReference   string        `json:"booking_reference"`
	Status             BookingStatus `json:"status"`
	TotalPrice         float64       `json:"total_price"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	PaymentID          string        `json:"payment_id,omitempty"`
	CustomerNotes      string        `json:"customer_notes,omitempty"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	ConfirmedAt        *time.Time    `json:"confirmed_at,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// NewConfirmedBooking builds the ledger row for a paid hold. Notes from the
// payment signal take precedence over the notes captured with the hold.
func NewConfirmedBooking(id, reference string, hold *TemporaryReservation, paymentID, notes string, now time.Time) *Booking {
	customerNotes := hold.CustomerNotes
	if notes != "" {
		customerNotes = notes
	}
	return &Booking{
		ID:               id,
		SlotID:           hold.SlotID,
		OfferingID:       hold.OfferingID,
		UserID:           hold.UserID,
		ReservationID:    hold.ReservationID,
		BookingReference: reference,
		Status:           BookingStatusConfirmed,
		TotalPrice:       hold.TotalPrice,
		PaymentStatus:    PaymentStatusPaid,
		PaymentID:        paymentID,
		CustomerNotes:    customerNotes,
		ConfirmedAt:      &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Validate validates the fields required to insert a booking
func (b *Booking) Validate() error {
	if strings.TrimSpace(b.SlotID) == "" {
		return ErrInvalidSlotID
	}
	if strings.TrimSpace(b.UserID) == "" {
		return ErrInvalidUserID
	}
	if b.TotalPrice < 0 {
		return ErrInvalidTotalPrice
	}
	if !b.Status.IsValid() || !b.PaymentStatus.IsValid() {
		return ErrInvalidBookingStatus
	}
	return nil
}

// IsCancelled checks if the booking is in cancelled status
func (b *Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// IsConfirmed checks if the booking is in confirmed status
func (b *Booking) IsConfirmed() bool {
	return b.Status == BookingStatusConfirmed
}

// BelongsToUser checks if the booking belongs to the specified user
func (b *Booking) BelongsToUser(userID string) bool {
	return b.UserID == userID
}

// BookingFilter narrows ledger listings
type BookingFilter struct {
	UserID        string
	OwnerID       string
	OfferingID    string
	Status        BookingStatus
	PaymentStatus PaymentStatus
	DateFrom      *time.Time
	DateTo        *time.Time
	SortBy        string
	SortDesc      bool
	Page          int
	PerPage       int
}

const (
	DefaultPerPage = 15
	MaxPerPage     = 100
)

var sortableColumns = map[string]bool{
	"created_at":   true,
	"confirmed_at": true,
	"total_price":  true,
	"status":       true,
}

// Normalize clamps paging and falls back to created_at ordering
func (f *BookingFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	if !sortableColumns[f.SortBy] {
		f.SortBy = "created_at"
	}
}

// Offset returns the row offset for the current page
func (f *BookingFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}
