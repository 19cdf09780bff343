package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/prohmpiriya/slot-booking/internal/domain"
	"github.com/prohmpiriya/slot-booking/internal/metrics"
	"github.com/prohmpiriya/slot-booking/internal/repository"
	"github.com/prohmpiriya/slot-booking/pkg/logger"
	"github.com/prohmpiriya/slot-booking/pkg/retry"
	"github.com/prohmpiriya/slot-booking/pkg/saga"
	"github.com/prohmpiriya/slot-booking/pkg/telemetry"
)

// Finalization saga step names
const (
	StepRecordBooking = "record-booking"
	StepReleaseHold   = "release-hold"
	StepCommitMarker  = "commit-marker"

	finalizationSagaName = "payment-finalization"

	maxReferenceAttempts = 3
)

// FinalizationService turns a paid hold into a confirmed booking. Handling the
// same payment signal any number of times yields exactly one booking.
type FinalizationService interface {
	Finalize(ctx context.Context, event *domain.PaymentSucceededEvent) (*domain.FinalizationResult, error)
}

// FinalizationServiceConfig contains configuration for the finalization service
type FinalizationServiceConfig struct {
	MarkerTTL time.Duration
	// StepRetries adds in-process attempts per saga step. Zero leaves retrying
	// to broker redelivery.
	StepRetries int
	Timeout     time.Duration
	Now         func() time.Time
	NewID       func() string
}

type finalizationService struct {
	bookingRepo repository.BookingRepository
	markerRepo  repository.FinalizationMarkerRepository
	engine      ReservationEngine
	references  *ReferenceGenerator
	markerTTL   time.Duration
	now         func() time.Time
	newID       func() string
	definition  *saga.Definition[finalizeState]
}

// finalizeState is shared by the saga steps
type finalizeState struct {
	event    *domain.PaymentSucceededEvent
	hold     *domain.TemporaryReservation
	booking  *domain.Booking
	inserted bool
}

// NewFinalizationService creates a new finalization service
func NewFinalizationService(
	bookingRepo repository.BookingRepository,
	markerRepo repository.FinalizationMarkerRepository,
	engine ReservationEngine,
	references *ReferenceGenerator,
	cfg *FinalizationServiceConfig,
) FinalizationService {
	if cfg == nil {
		cfg = &FinalizationServiceConfig{}
	}
	s := &finalizationService{
		bookingRepo: bookingRepo,
		markerRepo:  markerRepo,
		engine:      engine,
		references:  references,
		markerTTL:   cfg.MarkerTTL,
		now:         cfg.Now,
		newID:       cfg.NewID,
	}
	if s.markerTTL <= 0 {
		s.markerTTL = domain.DefaultMarkerTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.references == nil {
		s.references = NewReferenceGenerator("", 0, time.UTC)
	}

	retries := max(cfg.StepRetries, 0)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s.definition = saga.NewDefinition[finalizeState](finalizationSagaName).
		WithTimeout(timeout).
		AddStep(&saga.Step[finalizeState]{Name: StepRecordBooking, Execute: s.recordBooking, Retries: retries}).
		AddStep(&saga.Step[finalizeState]{Name: StepReleaseHold, Execute: s.releaseHold, Retries: retries}).
		AddStep(&saga.Step[finalizeState]{Name: StepCommitMarker, Execute: s.commitMarker, Retries: retries})

	return s
}

// Finalize applies one payment signal. A returned error marked retry.Permanent,
// or one matching domain.IsTerminalFinalizationError, will not succeed on redelivery.
func (s *finalizationService) Finalize(ctx context.Context, event *domain.PaymentSucceededEvent) (*domain.FinalizationResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.finalization.finalize")
	defer span.End()

	start := s.now()

	if event == nil {
		return nil, retry.Permanent(domain.ErrInvalidInput)
	}
	if err := event.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, retry.Permanent(err)
	}

	span.SetAttributes(
		attribute.String("reservation_id", event.ReservationID),
		attribute.String("payment_id", event.PaymentID),
		attribute.String("event_id", event.EventID),
	)

	marker, err := s.markerRepo.Get(ctx, event.ReservationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if marker != nil {
		metrics.RecordDuplicate(ctx)
		span.SetAttributes(attribute.String("outcome", string(domain.OutcomeDuplicate)))
		span.SetStatus(codes.Ok, "")
		return &domain.FinalizationResult{
			Outcome:          domain.OutcomeDuplicate,
			State:            domain.FinalizationFinalized,
			BookingReference: marker.BookingReference,
			PaymentID:        marker.PaymentID,
		}, nil
	}

	hold, err := s.engine.GetReservation(ctx, event.ReservationID)
	if err != nil {
		if !errors.Is(err, domain.ErrReservationNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		return s.finalizeWithoutHold(ctx, event)
	}

	state := &finalizeState{event: event, hold: hold}
	if _, err := s.definition.Run(ctx, state); err != nil {
		var stepErr *saga.StepFailedError
		step := "unknown"
		if errors.As(err, &stepErr) {
			step = stepErr.Step
		}
		metrics.RecordFinalizationFailure(ctx, step)
		logger.Get().Error(fmt.Sprintf("Finalization of reservation %s failed at %s", event.ReservationID, step),
			zap.String("reservation_id", event.ReservationID),
			zap.String("payment_id", event.PaymentID),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &domain.FinalizationResult{
		Outcome:          domain.OutcomeFinalized,
		State:            domain.FinalizationFinalized,
		BookingID:        state.booking.ID,
		BookingReference: state.booking.BookingReference,
		PaymentID:        state.booking.PaymentID,
	}
	if state.inserted {
		finishedAt := s.now()
		metrics.RecordFinalized(ctx, hold.SlotID,
			finishedAt.Sub(hold.ReservedAt).Seconds(),
			finishedAt.Sub(start).Seconds(),
		)
		logger.Get().Info(fmt.Sprintf("Reservation %s finalized as booking %s", event.ReservationID, state.booking.BookingReference),
			zap.String("reservation_id", event.ReservationID),
			zap.String("booking_id", state.booking.ID),
			zap.String("slot_id", hold.SlotID),
		)
	} else {
		result.Outcome = domain.OutcomeDuplicate
		metrics.RecordDuplicate(ctx)
	}

	span.SetAttributes(
		attribute.String("outcome", string(result.Outcome)),
		attribute.String("booking_reference", result.BookingReference),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// finalizeWithoutHold handles a signal whose hold is gone. A prior delivery
// that recorded the booking but stopped before the marker is completed here;
// anything else is an expired hold.
func (s *finalizationService) finalizeWithoutHold(ctx context.Context, event *domain.PaymentSucceededEvent) (*domain.FinalizationResult, error) {
	booking, err := s.bookingRepo.FindByReservationID(ctx, event.ReservationID)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			metrics.RecordFinalizationFailure(ctx, "load-hold")
			logger.Get().Warn(fmt.Sprintf("Payment %s arrived for expired reservation %s", event.PaymentID, event.ReservationID),
				zap.String("reservation_id", event.ReservationID),
				zap.String("payment_id", event.PaymentID),
			)
			return nil, retry.Permanent(domain.ErrReservationExpired)
		}
		return nil, err
	}

	state := &finalizeState{event: event, booking: booking}
	if err := s.commitMarker(ctx, state); err != nil {
		return nil, err
	}

	metrics.RecordDuplicate(ctx)
	return &domain.FinalizationResult{
		Outcome:          domain.OutcomeDuplicate,
		State:            domain.FinalizationFinalized,
		BookingID:        booking.ID,
		BookingReference: booking.BookingReference,
		PaymentID:        booking.PaymentID,
	}, nil
}

func (s *finalizationService) recordBooking(ctx context.Context, state *finalizeState) error {
	if state.booking == nil {
		reference, err := s.references.Generate()
		if err != nil {
			return err
		}
		state.booking = domain.NewConfirmedBooking(
			s.newID(), reference, state.hold, state.event.PaymentID, state.event.Notes, s.now(),
		)
		if err := state.booking.Validate(); err != nil {
			return retry.Permanent(err)
		}
	}

	record, err := s.bookingRepo.RecordFinalized(ctx, state.booking)
	for attempt := 1; errors.Is(err, domain.ErrBookingReferenceTaken) && attempt < maxReferenceAttempts; attempt++ {
		logger.Get().Warn("Booking reference collision, regenerating",
			zap.String("reservation_id", state.event.ReservationID),
			zap.String("booking_reference", state.booking.BookingReference))
		reference, genErr := s.references.Generate()
		if genErr != nil {
			return genErr
		}
		state.booking.BookingReference = reference
		record, err = s.bookingRepo.RecordFinalized(ctx, state.booking)
	}
	if err != nil {
		return err
	}
	state.inserted = record.Inserted
	if record.Booking != nil {
		state.booking = record.Booking
	}
	return nil
}

// releaseHold is idempotent; a hold already gone is fine
func (s *finalizationService) releaseHold(ctx context.Context, state *finalizeState) error {
	removed, err := s.engine.RemoveReservation(ctx, state.event.ReservationID)
	if err != nil {
		return err
	}
	if removed {
		metrics.RecordHoldReleased(ctx, state.hold.SlotID)
	}
	return nil
}

func (s *finalizationService) commitMarker(ctx context.Context, state *finalizeState) error {
	marker := &domain.FinalizationMarker{
		BookingReference: state.booking.BookingReference,
		PaymentID:        state.booking.PaymentID,
		FinalizedAt:      s.now(),
	}
	if _, err := s.markerRepo.Commit(ctx, state.event.ReservationID, marker, s.markerTTL); err != nil {
		return err
	}
	return nil
}
