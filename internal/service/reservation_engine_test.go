package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/slot-booking/internal/domain"
)

func TestReservationEngine_TryReserve(t *testing.T) {
	engine, _ := newRedisEngine(t, 5*time.Minute)
	ctx := context.Background()

	req := &domain.HoldRequest{SlotID: "slot-1", OfferingID: "offering-1", UserID: "user-a", TotalPrice: 500, Limit: 1}
	hold, err := engine.TryReserve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "res-1", hold.ReservationID)
	assert.Equal(t, 5*time.Minute, hold.ExpiresAt.Sub(hold.ReservedAt))

	req.UserID = "user-b"
	_, err = engine.TryReserve(ctx, req)
	assert.ErrorIs(t, err, domain.ErrSlotFullyBooked)

	req.Limit = 0
	_, err = engine.TryReserve(ctx, req)
	assert.ErrorIs(t, err, domain.ErrSlotFullyBooked)

	_, err = engine.TryReserve(ctx, &domain.HoldRequest{SlotID: "slot-1", Limit: 3})
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)

	_, err = engine.TryReserve(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestReservationEngine_CreateAndLookup(t *testing.T) {
	engine, _ := newRedisEngine(t, 0)
	ctx := context.Background()
	assert.Equal(t, domain.DefaultReservationTTL, engine.TTL())

	hold, err := engine.CreateReservation(ctx, &domain.HoldRequest{SlotID: "slot-1", OfferingID: "offering-1", UserID: "user-a", TotalPrice: 120})
	require.NoError(t, err)

	got, err := engine.GetReservation(ctx, hold.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, "user-a", got.UserID)
	assert.Equal(t, 120.0, got.TotalPrice)

	has, err := engine.HasReservation(ctx, "slot-1", "user-a")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = engine.HasReservation(ctx, "slot-1", "user-b")
	require.NoError(t, err)
	assert.False(t, has)

	n, err := engine.CountLiveReservationsForSlot(ctx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, err := engine.RemoveReservation(ctx, hold.ReservationID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = engine.RemoveReservation(ctx, hold.ReservationID)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = engine.GetReservation(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidReservationID)
}
