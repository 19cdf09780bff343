package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotStartsAt(t *testing.T) {
	bangkok := time.FixedZone("ICT", 7*60*60)

	tests := []struct {
		name    string
		start   string
		loc     *time.Location
		want    time.Time
		wantErr bool
	}{
		{"seconds layout", "09:30:00", time.UTC, time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC), false},
		{"minutes layout", "14:05", time.UTC, time.Date(2026, 5, 2, 14, 5, 0, 0, time.UTC), false},
		{"timezone applied", "09:00:00", bangkok, time.Date(2026, 5, 2, 2, 0, 0, 0, time.UTC), false},
		{"nil location is utc", "10:00:00", nil, time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC), false},
		{"invalid", "9am", time.UTC, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot := &Slot{DayDate: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), StartTime: tt.start}
			got, err := slot.StartsAt(tt.loc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v got %v", tt.want, got)
		})
	}
}

func TestSlotEffectivePrice(t *testing.T) {
	offering := &Offering{BasePrice: 100}
	override := 80.5

	assert.Equal(t, 100.0, (&Slot{}).EffectivePrice(offering))
	assert.Equal(t, 80.5, (&Slot{PriceOverride: &override}).EffectivePrice(offering))
}

func TestAvailability(t *testing.T) {
	a := NewAvailability("s-1", 2, 1, 1)
	assert.Equal(t, 0, a.Available)
	assert.False(t, a.IsAvailable())

	a = NewAvailability("s-1", 3, 1, 1)
	assert.True(t, a.IsAvailable())
}

func TestNewConfirmedBooking_PrefersEventNotes(t *testing.T) {
	now := time.Now()
	hold := &TemporaryReservation{
		ReservationID: "r-1",
		SlotID:        "s-1",
		OfferingID:    "o-1",
		UserID:        "u-1",
		TotalPrice:    50,
		CustomerNotes: "window seat",
	}

	b := NewConfirmedBooking("b-1", "BOOK-20260101-ABC123", hold, "pay_1", "", now)
	assert.Equal(t, "window seat", b.CustomerNotes)
	assert.Equal(t, BookingStatusConfirmed, b.Status)
	assert.Equal(t, PaymentStatusPaid, b.PaymentStatus)
	assert.NoError(t, b.Validate())

	b = NewConfirmedBooking("b-1", "BOOK-20260101-ABC123", hold, "pay_1", "aisle", now)
	assert.Equal(t, "aisle", b.CustomerNotes)
}

func TestBookingStatusError(t *testing.T) {
	err := fmt.Errorf("mark no-show: %w", &BookingStatusError{Status: BookingStatusCancelled, Action: "no-show"})

	assert.True(t, errors.Is(err, ErrBookingAlreadyCancelled))
	assert.Contains(t, err.Error(), "cannot mark a cancelled booking as no-show")

	var statusErr *BookingStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, BookingStatusCancelled, statusErr.Status)
}

func TestBookingFilterNormalize(t *testing.T) {
	f := &BookingFilter{Page: 0, PerPage: 500, SortBy: "id; drop table"}
	f.Normalize()

	assert.Equal(t, 1, f.Page)
	assert.Equal(t, MaxPerPage, f.PerPage)
	assert.Equal(t, "created_at", f.SortBy)
	assert.Equal(t, 0, f.Offset())

	f = &BookingFilter{Page: 3, SortBy: "total_price"}
	f.Normalize()
	assert.Equal(t, DefaultPerPage, f.PerPage)
	assert.Equal(t, 30, f.Offset())
	assert.Equal(t, "total_price", f.SortBy)
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, IsNotFoundError(fmt.Errorf("x: %w", ErrBookingNotFound)))
	assert.True(t, IsConflictError(ErrSlotFullyBooked))
	assert.True(t, IsTerminalFinalizationError(ErrReservationExpired))
	assert.True(t, IsTerminalFinalizationError(ErrInvalidPaymentID))
	assert.False(t, IsTerminalFinalizationError(errors.New("connection refused")))
}

func TestTemporaryReservationTTLSeconds(t *testing.T) {
	now := time.Now()
	r := &TemporaryReservation{ExpiresAt: now.Add(600 * time.Second)}
	assert.Equal(t, 600, r.TTLSeconds(now))
	assert.Equal(t, 0, r.TTLSeconds(now.Add(time.Hour)))
}
