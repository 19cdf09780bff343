package domain

import "time"

// AdjustmentReason explains a booked_count change
type AdjustmentReason string

const (
	AdjustmentFinalized AdjustmentReason = "finalized"
	AdjustmentCancelled AdjustmentReason = "cancelled"
	AdjustmentNoShow    AdjustmentReason = "no_show"
)

// CapacityAdjustment is one audited change of a slot's booked_count.
// Applied is false when a decrement hit the zero floor.
type CapacityAdjustment struct {
	ID               int64            `json:"id"`
	SlotID           string           `json:"slot_id"`
	BookingID        string           `json:"booking_id"`
	Delta            int              `json:"delta"`
	Reason           AdjustmentReason `json:"reason"`
	BookedCountAfter int              `json:"booked_count_after"`
	Applied          bool             `json:"applied"`
	CreatedAt        time.Time        `json:"created_at"`
}
