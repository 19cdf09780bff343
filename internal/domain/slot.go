package domain

import (
	"fmt"
	"time"
)

// Slot is a bookable time window of an offering day
type Slot struct {
	ID            string    `json:"id"`
	OfferingID    string    `json:"offering_id"`
	OfferingDayID string    `json:"offering_day_id"`
	DayDate       time.Time `json:"day_date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	Capacity      int       `json:"capacity"`
	BookedCount   int       `json:"booked_count"`
	PriceOverride *float64  `json:"price_override,omitempty"`
}

// Offering is the catalog entry a slot belongs to
type Offering struct {
	ID        string  `json:"id"`
	OwnerID   string  `json:"owner_id"`
	Title     string  `json:"title"`
	BasePrice float64 `json:"base_price"`
}

// IsOwnedBy checks if the offering is owned by the user
func (o *Offering) IsOwnedBy(userID string) bool {
	return o != nil && o.OwnerID == userID
}

// EffectivePrice returns the slot override when set, otherwise the offering price
func (s *Slot) EffectivePrice(offering *Offering) float64 {
	if s.PriceOverride != nil {
		return *s.PriceOverride
	}
	return offering.BasePrice
}

var startTimeLayouts = []string{"15:04:05", "15:04"}

// StartsAt returns the scheduled start instant of the slot in loc
func (s *Slot) StartsAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range startTimeLayouts {
		t, err := time.Parse(layout, s.StartTime)
		if err != nil {
			continue
		}
		y, m, d := s.DayDate.Date()
		return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("invalid slot start time %q", s.StartTime)
}

// Availability is the capacity picture of one slot at a point in time
type Availability struct {
	SlotID    string `json:"slot_id"`
	Capacity  int    `json:"capacity"`
	Confirmed int    `json:"confirmed"`
	Held      int    `json:"held"`
	Available int    `json:"available"`
}

// NewAvailability computes capacity - (confirmed + held); Available may be negative
// when holds were created before a capacity reduction
func NewAvailability(slotID string, capacity, confirmed, held int) *Availability {
	return &Availability{
		SlotID:    slotID,
		Capacity:  capacity,
		Confirmed: confirmed,
		Held:      held,
		Available: capacity - (confirmed + held),
	}
}

// IsAvailable reports whether at least one more hold fits
func (a *Availability) IsAvailable() bool {
	return a.Available > 0
}
