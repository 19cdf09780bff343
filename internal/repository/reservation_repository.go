package repository

import (
	"context"
	"time"

	"github.com/prohmpiriya/slot-booking/internal/domain"
)

// Redis key layout for holds
const (
	HoldKeyPrefix      = "temp_booking:"
	SlotIndexKeyPrefix = "temp_booking_slot_index:"
)

// HoldKey returns the key of a hold
func HoldKey(reservationID string) string {
	return HoldKeyPrefix + reservationID
}

// SlotIndexKey returns the key of a slot's hold index
func SlotIndexKey(slotID string) string {
	return SlotIndexKeyPrefix + slotID
}

// TryHoldResult is the outcome of an atomic check-and-hold
type TryHoldResult struct {
	Success      bool
	LiveHolds    int64
	Remaining    int64
	ErrorCode    string
	ErrorMessage string
}

// CountResult is the outcome of counting a slot's holds
type CountResult struct {
	Live   int64
	Pruned int64
}

// ReservationRepository stores ephemeral holds with a per-slot index
type ReservationRepository interface {
	// TryHold prunes, counts and writes the hold in one atomic step
	TryHold(ctx context.Context, hold *domain.TemporaryReservation, limit int, rejectDuplicate bool, ttl time.Duration) (*TryHoldResult, error)

	// Create writes a hold and refreshes the slot index TTL, without a capacity check
	Create(ctx context.Context, hold *domain.TemporaryReservation, ttl time.Duration) error

	// Get returns the hold or domain.ErrReservationNotFound
	Get(ctx context.Context, reservationID string) (*domain.TemporaryReservation, error)

	// Remove deletes the hold and its index entry; false when it was already gone
	Remove(ctx context.Context, reservationID string) (bool, error)

	// CountLive counts live holds of a slot, pruning stale index entries
	CountLive(ctx context.Context, slotID string) (*CountResult, error)

	// ListLive returns the live holds of a slot, pruning stale index entries
	ListLive(ctx context.Context, slotID string) ([]*domain.TemporaryReservation, error)
}

// FinalizationMarkerRepository stores idempotency markers for applied payments
type FinalizationMarkerRepository interface {
	// Get returns the marker, or nil when the reservation was never finalized
	Get(ctx context.Context, reservationID string) (*domain.FinalizationMarker, error)

	// Commit writes the marker if absent; false when one already existed
	Commit(ctx context.Context, reservationID string, marker *domain.FinalizationMarker, ttl time.Duration) (bool, error)
}
