package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/prohmpiriya/slot-booking/internal/domain"
	"github.com/prohmpiriya/slot-booking/internal/repository"
	"github.com/prohmpiriya/slot-booking/pkg/logger"
	"github.com/prohmpiriya/slot-booking/pkg/telemetry"
)

// ReservationEngine manages ephemeral holds on slot capacity
type ReservationEngine interface {
	// TryReserve checks the slot limit and writes the hold in one atomic step
	TryReserve(ctx context.Context, req *domain.HoldRequest) (*domain.TemporaryReservation, error)

	// CreateReservation writes a hold without a capacity check
	CreateReservation(ctx context.Context, req *domain.HoldRequest) (*domain.TemporaryReservation, error)

	// GetReservation returns a live hold or domain.ErrReservationNotFound
	GetReservation(ctx context.Context, reservationID string) (*domain.TemporaryReservation, error)

	// RemoveReservation deletes a hold; false when it was already gone
	RemoveReservation(ctx context.Context, reservationID string) (bool, error)

	// CountLiveReservationsForSlot counts live holds, pruning expired index entries
	CountLiveReservationsForSlot(ctx context.Context, slotID string) (int, error)

	// HasReservation reports whether the holder has a live hold on the slot
	HasReservation(ctx context.Context, slotID, holderID string) (bool, error)

	// TTL returns the configured hold lifetime
	TTL() time.Duration
}

// ReservationEngineConfig contains configuration for the reservation engine
type ReservationEngineConfig struct {
	TTL time.Duration
	// Now overrides the clock, mainly in tests
	Now func() time.Time
	// NewID overrides reservation id generation, mainly in tests
	NewID func() string
}

// reservationEngine implements ReservationEngine
type reservationEngine struct {
	repo  repository.ReservationRepository
	ttl   time.Duration
	now   func() time.Time
	newID func() string
}

// NewReservationEngine creates a new reservation engine
func NewReservationEngine(repo repository.ReservationRepository, cfg *ReservationEngineConfig) ReservationEngine {
	e := &reservationEngine{
		repo:  repo,
		ttl:   domain.DefaultReservationTTL,
		now:   time.Now,
		newID: uuid.NewString,
	}
	if cfg != nil {
		if cfg.TTL > 0 {
			e.ttl = cfg.TTL
		}
		if cfg.Now != nil {
			e.now = cfg.Now
		}
		if cfg.NewID != nil {
			e.newID = cfg.NewID
		}
	}
	return e
}

func (e *reservationEngine) TTL() time.Duration {
	return e.ttl
}

func (e *reservationEngine) newHold(req *domain.HoldRequest) *domain.TemporaryReservation {
	now := e.now()
	return &domain.TemporaryReservation{
		ReservationID: e.newID(),
		SlotID:        req.SlotID,
		OfferingID:    req.OfferingID,
		UserID:        req.UserID,
		TotalPrice:    req.TotalPrice,
		CustomerNotes: req.Notes,
		ReservedAt:    now,
		ExpiresAt:     now.Add(e.ttl),
	}
}

// TryReserve checks the slot limit and writes the hold in one atomic step
func (e *reservationEngine) TryReserve(ctx context.Context, req *domain.HoldRequest) (*domain.TemporaryReservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.try_reserve")
	defer span.End()

	if req == nil {
		span.SetStatus(codes.Error, "nil request")
		return nil, domain.ErrInvalidInput
	}
	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("slot_id", req.SlotID),
		attribute.String("user_id", req.UserID),
		attribute.Int("limit", req.Limit),
	)

	hold := e.newHold(req)
	result, err := e.repo.TryHold(ctx, hold, req.Limit, req.RejectDuplicate, e.ttl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if !result.Success {
		span.SetStatus(codes.Error, result.ErrorCode)
		switch result.ErrorCode {
		case repository.ErrCodeSlotFullyBooked:
			return nil, domain.ErrSlotFullyBooked
		case repository.ErrCodeDuplicateReservation:
			return nil, domain.ErrDuplicateReservation
		default:
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, result.ErrorMessage)
		}
	}

	span.SetAttributes(
		attribute.String("reservation_id", hold.ReservationID),
		attribute.Int64("live_holds", result.LiveHolds),
		attribute.Int64("remaining", result.Remaining),
	)
	span.SetStatus(codes.Ok, "")
	return hold, nil
}

// CreateReservation writes a hold without a capacity check
func (e *reservationEngine) CreateReservation(ctx context.Context, req *domain.HoldRequest) (*domain.TemporaryReservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.create")
	defer span.End()

	if req == nil {
		return nil, domain.ErrInvalidInput
	}
	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hold := e.newHold(req)
	if err := e.repo.Create(ctx, hold, e.ttl); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("reservation_id", hold.ReservationID))
	span.SetStatus(codes.Ok, "")
	return hold, nil
}

// GetReservation returns a live hold
func (e *reservationEngine) GetReservation(ctx context.Context, reservationID string) (*domain.TemporaryReservation, error) {
	if reservationID == "" {
		return nil, domain.ErrInvalidReservationID
	}
	return e.repo.Get(ctx, reservationID)
}

// RemoveReservation deletes a hold and its index entry
func (e *reservationEngine) RemoveReservation(ctx context.Context, reservationID string) (bool, error) {
	if reservationID == "" {
		return false, domain.ErrInvalidReservationID
	}
	return e.repo.Remove(ctx, reservationID)
}

// CountLiveReservationsForSlot counts live holds of a slot
func (e *reservationEngine) CountLiveReservationsForSlot(ctx context.Context, slotID string) (int, error) {
	result, err := e.repo.CountLive(ctx, slotID)
	if err != nil {
		return 0, err
	}
	if result.Pruned > 0 {
		logger.Get().Debug(fmt.Sprintf("Pruned %d expired holds from slot index", result.Pruned),
			zap.String("slot_id", slotID),
		)
	}
	return int(result.Live), nil
}

// HasReservation scans the slot's live holds for one owned by holderID
func (e *reservationEngine) HasReservation(ctx context.Context, slotID, holderID string) (bool, error) {
	holds, err := e.repo.ListLive(ctx, slotID)
	if err != nil {
		return false, err
	}
	for _, hold := range holds {
		if hold.BelongsToUser(holderID) {
			return true, nil
		}
	}
	return false, nil
}
