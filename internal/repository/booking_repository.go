package repository

import (
	"context"
	"time"

	"github.com/prohmpiriya/slot-booking/internal/domain"
	"github.com/prohmpiriya/slot-booking/pkg/database"
)

// BookingUpdate holds the mutable ledger fields; nil fields are left unchanged
type BookingUpdate struct {
	Status             *domain.BookingStatus
	PaymentStatus      *domain.PaymentStatus
	PaymentID          *string
	CustomerNotes      *string
	CancellationReason *string
	CancelledAt        *time.Time
	ConfirmedAt        *time.Time
}

// FinalizeRecord is the result of recording a paid hold in the ledger
type FinalizeRecord struct {
	// Inserted is false when a booking for the reservation already existed
	Inserted   bool
	Booking    *domain.Booking
	Adjustment *domain.CapacityAdjustment
}

// BookingRepository is the durable booking ledger
type BookingRepository interface {
	// Insert adds a booking; false when the reservation was already recorded
	Insert(ctx context.Context, booking *domain.Booking) (bool, error)

	// FindByID returns the booking or domain.ErrBookingNotFound
	FindByID(ctx context.Context, id string) (*domain.Booking, error)

	// FindByReservationID returns the booking created from a hold
	FindByReservationID(ctx context.Context, reservationID string) (*domain.Booking, error)

	// CountConfirmedForSlot counts confirmed and completed bookings of a slot
	CountConfirmedForSlot(ctx context.Context, slotID string) (int, error)

	// UpdateFields updates the non-nil fields of a booking
	UpdateFields(ctx context.Context, id string, update *BookingUpdate) error

	// Cancel marks a booking cancelled with an optional reason
	Cancel(ctx context.Context, id string, reason string) error

	// List returns one page of bookings and the total match count
	List(ctx context.Context, filter *domain.BookingFilter) ([]*domain.Booking, int, error)

	// RecordFinalized inserts a confirmed booking and increments the slot's
	// booked_count in one transaction; a retried call is a no-op
	RecordFinalized(ctx context.Context, booking *domain.Booking) (*FinalizeRecord, error)

	// RecordCancellation cancels, marks refunded and releases capacity in one transaction
	RecordCancellation(ctx context.Context, id string, reason string, at time.Time) (*domain.CapacityAdjustment, error)

	// RecordNoShow marks a confirmed booking no_show and releases capacity in one transaction
	RecordNoShow(ctx context.Context, id string, at time.Time) (*domain.CapacityAdjustment, error)
}

// CapacityRepository is the slot capacity store. Adjustments run on the
// supplied querier so callers can join them to a ledger transaction.
type CapacityRepository interface {
	// Increment adds one to booked_count
	Increment(ctx context.Context, q database.Querier, slotID, bookingID string, reason domain.AdjustmentReason) (*domain.CapacityAdjustment, error)

	// Decrement subtracts one from booked_count, never going below zero
	Decrement(ctx context.Context, q database.Querier, slotID, bookingID string, reason domain.AdjustmentReason) (*domain.CapacityAdjustment, error)

	// ListAdjustments returns the latest audited adjustments of a slot
	ListAdjustments(ctx context.Context, slotID string, limit int) ([]*domain.CapacityAdjustment, error)
}

// CatalogRepository reads slot and offering definitions
type CatalogRepository interface {
	// GetSlot returns the slot or domain.ErrSlotNotFound
	GetSlot(ctx context.Context, slotID string) (*domain.Slot, error)

	// GetOffering returns the offering or domain.ErrOfferingNotFound
	GetOffering(ctx context.Context, offeringID string) (*domain.Offering, error)
}
