package domain

import (
	"strings"
	"time"
)

// DefaultReservationTTL is how long a hold lives when not configured
const DefaultReservationTTL = 600 * time.Second

// TemporaryReservation is an ephemeral hold on one unit of slot capacity
type TemporaryReservation struct {
	ReservationID string    `json:"reservation_id"`
	SlotID        string    `json:"offering_time_slot_id"`
	OfferingID    string    `json:"offering_id"`
	UserID        string    `json:"user_id"`
	TotalPrice    float64   `json:"total_price"`
	CustomerNotes string    `json:"customer_notes,omitempty"`
	ReservedAt    time.Time `json:"reserved_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// BelongsToUser checks if the hold was created by the user
func (r *TemporaryReservation) BelongsToUser(userID string) bool {
	return r.UserID == userID
}

// TTLSeconds returns the remaining lifetime at now, floored at zero
func (r *TemporaryReservation) TTLSeconds(now time.Time) int {
	remaining := r.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Round(time.Second) / time.Second)
}

// HoldRequest describes a hold to be created atomically against a slot
type HoldRequest struct {
	SlotID     string
	OfferingID string
	UserID     string
	TotalPrice float64
	Notes      string
	// Limit is capacity minus confirmed bookings; live holds may not reach it
	Limit int
	// RejectDuplicate fails the hold when the user already holds this slot
	RejectDuplicate bool
}

// Validate checks the request fields
func (r *HoldRequest) Validate() error {
	if strings.TrimSpace(r.SlotID) == "" {
		return ErrInvalidSlotID
	}
	if strings.TrimSpace(r.UserID) == "" {
		return ErrInvalidUserID
	}
	if r.TotalPrice < 0 {
		return ErrInvalidTotalPrice
	}
	return nil
}

// FinalizationMarker records that a reservation's payment was applied
type FinalizationMarker struct {
	BookingReference string    `json:"booking_reference"`
	PaymentID        string    `json:"payment_id"`
	FinalizedAt      time.Time `json:"finalized_at"`
}

// DefaultMarkerTTL is how long finalization markers absorb redelivered signals
const DefaultMarkerTTL = 24 * time.Hour

// FinalizationState is a state of the hold-to-booking pipeline
type FinalizationState string

const (
	FinalizationHeld       FinalizationState = "held"
	FinalizationFinalizing FinalizationState = "finalizing"
	FinalizationFinalized  FinalizationState = "finalized"
	FinalizationExpired    FinalizationState = "expired"
)

// IsTerminal checks if no further transition is possible
func (s FinalizationState) IsTerminal() bool {
	return s == FinalizationFinalized || s == FinalizationExpired
}

// FinalizationOutcome is what handling one payment signal did
type FinalizationOutcome string

const (
	OutcomeFinalized FinalizationOutcome = "finalized"
	OutcomeDuplicate FinalizationOutcome = "duplicate"
)

// FinalizationResult is returned by the finalization pipeline
type FinalizationResult struct {
	Outcome          FinalizationOutcome `json:"outcome"`
	State            FinalizationState   `json:"state"`
	BookingID        string              `json:"booking_id,omitempty"`
	BookingReference string              `json:"booking_reference"`
	PaymentID        string              `json:"payment_id"`
}
