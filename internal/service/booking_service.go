package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/prohmpiriya/slot-booking/internal/domain"
	"github.com/prohmpiriya/slot-booking/internal/dto"
	"github.com/prohmpiriya/slot-booking/internal/metrics"
	"github.com/prohmpiriya/slot-booking/internal/repository"
	"github.com/prohmpiriya/slot-booking/pkg/logger"
	"github.com/prohmpiriya/slot-booking/pkg/telemetry"
)

// BookingService defines the interface for booking business logic. Every
// operation takes the acting user explicitly.
type BookingService interface {
	// CreateReservation holds one place on a slot for the holder
	CreateReservation(ctx context.Context, holderID string, req *dto.CreateReservationRequest) (*dto.ReservationResponse, error)

	// GetReservation returns a live hold owned by the holder
	GetReservation(ctx context.Context, reservationID, holderID string) (*dto.ReservationResponse, error)

	// ReleaseReservation removes a live hold owned by the holder
	ReleaseReservation(ctx context.Context, reservationID, holderID string) error

	// IsSlotAvailable reports whether one more hold fits
	IsSlotAvailable(ctx context.Context, slotID string) (bool, error)

	// GetAvailability returns capacity, confirmed, held and available counts
	GetAvailability(ctx context.Context, slotID string) (*domain.Availability, error)

	// ConfirmPayment emits the payment signal and returns immediately
	ConfirmPayment(ctx context.Context, holderID string, req *dto.ConfirmPaymentRequest) (*dto.ConfirmPaymentResponse, error)

	// CancelBooking cancels a booking as its holder or the offering owner
	CancelBooking(ctx context.Context, bookingID, actorID, reason string) (*domain.Booking, error)

	// MarkAsNoShow marks a past confirmed booking as no-show, offering owner only
	MarkAsNoShow(ctx context.Context, bookingID, actorID string) (*domain.Booking, error)

	// GetBooking returns a booking visible to its holder or the offering owner
	GetBooking(ctx context.Context, bookingID, actorID string) (*domain.Booking, error)

	// ListCustomerBookings lists the holder's bookings
	ListCustomerBookings(ctx context.Context, holderID string, filter *domain.BookingFilter) (*dto.PaginatedResponse, error)

	// ListAgencyBookings lists bookings of all offerings owned by ownerID
	ListAgencyBookings(ctx context.Context, ownerID string, filter *domain.BookingFilter) (*dto.PaginatedResponse, error)

	// ListOfferingBookings lists bookings of one offering owned by ownerID
	ListOfferingBookings(ctx context.Context, offeringID, ownerID string, filter *domain.BookingFilter) (*dto.PaginatedResponse, error)

	// ListCapacityAdjustments returns the audited booked_count changes of a slot
	ListCapacityAdjustments(ctx context.Context, slotID, ownerID string, limit int) ([]*domain.CapacityAdjustment, error)

	// GenerateBookingReference returns a new PREFIX-YYYYMMDD-RANDOM reference
	GenerateBookingReference() (string, error)
}

// BookingServiceConfig contains configuration for booking service
type BookingServiceConfig struct {
	PreventDuplicateHolds bool
	Location              *time.Location
	References            *ReferenceGenerator
	// Now overrides the clock, mainly in tests
	Now func() time.Time
}

// bookingService implements BookingService
type bookingService struct {
	bookingRepo      repository.BookingRepository
	catalogRepo      repository.CatalogRepository
	capacityRepo     repository.CapacityRepository
	markerRepo       repository.FinalizationMarkerRepository
	engine           ReservationEngine
	publisher        PaymentSignalPublisher
	references       *ReferenceGenerator
	location         *time.Location
	now              func() time.Time
	preventDuplicate bool
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookingRepo repository.BookingRepository,
	catalogRepo repository.CatalogRepository,
	capacityRepo repository.CapacityRepository,
	markerRepo repository.FinalizationMarkerRepository,
	engine ReservationEngine,
	publisher PaymentSignalPublisher,
	cfg *BookingServiceConfig,
) BookingService {
	s := &bookingService{
		bookingRepo:  bookingRepo,
		catalogRepo:  catalogRepo,
		capacityRepo: capacityRepo,
		markerRepo:   markerRepo,
		engine:       engine,
		publisher:    publisher,
		location:     time.UTC,
		now:          time.Now,
	}
	if cfg != nil {
		s.preventDuplicate = cfg.PreventDuplicateHolds
		if cfg.Location != nil {
			s.location = cfg.Location
		}
		if cfg.Now != nil {
			s.now = cfg.Now
		}
		s.references = cfg.References
	}
	if s.references == nil {
		s.references = NewReferenceGenerator("", 0, s.location)
	}
	// Use NoOpPaymentSignalPublisher if none provided
	if s.publisher == nil {
		s.publisher = NewNoOpPaymentSignalPublisher()
	}
	return s
}

// CreateReservation holds one place on a slot for the holder
func (s *bookingService) CreateReservation(ctx context.Context, holderID string, req *dto.CreateReservationRequest) (*dto.ReservationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.create_reservation")
	defer span.End()

	if req == nil || req.SlotID == "" {
		span.SetStatus(codes.Error, "invalid slot_id")
		return nil, domain.ErrInvalidSlotID
	}
	if holderID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	span.SetAttributes(
		attribute.String("slot_id", req.SlotID),
		attribute.String("user_id", holderID),
	)

	slot, err := s.catalogRepo.GetSlot(ctx, req.SlotID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	confirmed, err := s.bookingRepo.CountConfirmedForSlot(ctx, slot.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// holds may only use what confirmed bookings leave; the engine enforces it atomically
	limit := slot.Capacity - confirmed
	if limit <= 0 {
		metrics.RecordHoldRejected(ctx, slot.ID, "fully_booked")
		span.SetStatus(codes.Error, "slot fully booked")
		return nil, domain.ErrSlotFullyBooked
	}

	price, err := s.slotPrice(ctx, slot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hold, err := s.engine.TryReserve(ctx, &domain.HoldRequest{
		SlotID:          slot.ID,
		OfferingID:      slot.OfferingID,
		UserID:          holderID,
		TotalPrice:      price,
		Notes:           req.CustomerNotes,
		Limit:           limit,
		RejectDuplicate: s.preventDuplicate,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSlotFullyBooked):
			metrics.RecordHoldRejected(ctx, slot.ID, "fully_booked")
		case errors.Is(err, domain.ErrDuplicateReservation):
			metrics.RecordHoldRejected(ctx, slot.ID, "duplicate")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.verifyHoldFits(ctx, slot, hold); err != nil {
		if errors.Is(err, domain.ErrSlotFullyBooked) {
			metrics.RecordHoldRejected(ctx, slot.ID, "fully_booked")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordHold(ctx, slot.ID)

	span.AddEvent("reservation_created", trace.WithAttributes(
		attribute.String("reservation_id", hold.ReservationID),
		attribute.Float64("total_price", hold.TotalPrice),
		attribute.String("expires_at", hold.ExpiresAt.Format(time.RFC3339)),
	))
	span.SetStatus(codes.Ok, "")
	return dto.FromReservation(hold, s.now()), nil
}

// verifyHoldFits re-reads both stores after the hold was written. A booking
// finalized after the confirmed count was read has already left the hold
// index, so the limit given to the engine may be one too high. Live holds are
// counted before the ledger so a concurrent finalization is counted twice,
// never zero times. A hold that does not fit is removed.
func (s *bookingService) verifyHoldFits(ctx context.Context, slot *domain.Slot, hold *domain.TemporaryReservation) error {
	live, err := s.engine.CountLiveReservationsForSlot(ctx, slot.ID)
	if err == nil {
		var confirmed int
		confirmed, err = s.bookingRepo.CountConfirmedForSlot(ctx, slot.ID)
		if err == nil && confirmed+live <= slot.Capacity {
			return nil
		}
		if err == nil {
			err = domain.ErrSlotFullyBooked
			logger.Get().Info(fmt.Sprintf("Backing out hold %s: slot %s over capacity after recheck", hold.ReservationID, slot.ID),
				zap.Int("capacity", slot.Capacity),
				zap.Int("confirmed", confirmed),
				zap.Int("held", live),
			)
		}
	}

	if _, removeErr := s.engine.RemoveReservation(ctx, hold.ReservationID); removeErr != nil {
		logger.Get().Error("Failed to back out hold",
			zap.String("reservation_id", hold.ReservationID),
			zap.Error(removeErr),
		)
	}
	return err
}

func (s *bookingService) slotPrice(ctx context.Context, slot *domain.Slot) (float64, error) {
	if slot.PriceOverride != nil {
		return *slot.PriceOverride, nil
	}
	offering, err := s.catalogRepo.GetOffering(ctx, slot.OfferingID)
	if err != nil {
		return 0, err
	}
	return slot.EffectivePrice(offering), nil
}

// GetReservation returns a live hold owned by the holder
func (s *bookingService) GetReservation(ctx context.Context, reservationID, holderID string) (*dto.ReservationResponse, error) {
	hold, err := s.ownedHold(ctx, reservationID, holderID)
	if err != nil {
		return nil, err
	}
	return dto.FromReservation(hold, s.now()), nil
}

// ReleaseReservation removes a live hold owned by the holder
func (s *bookingService) ReleaseReservation(ctx context.Context, reservationID, holderID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.release_reservation")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", reservationID),
		attribute.String("user_id", holderID),
	)

	hold, err := s.ownedHold(ctx, reservationID, holderID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	removed, err := s.engine.RemoveReservation(ctx, reservationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !removed {
		span.SetStatus(codes.Error, "reservation not found")
		return domain.ErrReservationNotFound
	}

	metrics.RecordHoldReleased(ctx, hold.SlotID)
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *bookingService) ownedHold(ctx context.Context, reservationID, holderID string) (*domain.TemporaryReservation, error) {
	if reservationID == "" {
		return nil, domain.ErrInvalidReservationID
	}
	if holderID == "" {
		return nil, domain.ErrInvalidUserID
	}
	hold, err := s.engine.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !hold.BelongsToUser(holderID) {
		return nil, domain.ErrUnauthorizedAccess
	}
	return hold, nil
}

// IsSlotAvailable reports whether one more hold fits. An unknown slot is unavailable.
func (s *bookingService) IsSlotAvailable(ctx context.Context, slotID string) (bool, error) {
	availability, err := s.GetAvailability(ctx, slotID)
	if err != nil {
		if errors.Is(err, domain.ErrSlotNotFound) {
			return false, nil
		}
		return false, err
	}
	return availability.IsAvailable(), nil
}

// GetAvailability combines ledger and hold counts for a slot
func (s *bookingService) GetAvailability(ctx context.Context, slotID string) (*domain.Availability, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get_availability")
	defer span.End()

	if slotID == "" {
		return nil, domain.ErrInvalidSlotID
	}
	span.SetAttributes(attribute.String("slot_id", slotID))

	slot, err := s.catalogRepo.GetSlot(ctx, slotID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	confirmed, err := s.bookingRepo.CountConfirmedForSlot(ctx, slotID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	held, err := s.engine.CountLiveReservationsForSlot(ctx, slotID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	availability := domain.NewAvailability(slotID, slot.Capacity, confirmed, held)
	span.SetAttributes(
		attribute.Int("confirmed", confirmed),
		attribute.Int("held", held),
		attribute.Int("available", availability.Available),
	)
	span.SetStatus(codes.Ok, "")
	return availability, nil
}

// ConfirmPayment emits the payment signal. The booking is created by the
// finalization pipeline; this never returns it.
func (s *bookingService) ConfirmPayment(ctx context.Context, holderID string, req *dto.ConfirmPaymentRequest) (*dto.ConfirmPaymentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.confirm_payment")
	defer span.End()

	if req == nil || req.ReservationID == "" {
		span.SetStatus(codes.Error, "invalid reservation_id")
		return nil, domain.ErrInvalidReservationID
	}
	if req.PaymentID == "" {
		span.SetStatus(codes.Error, "invalid payment_id")
		return nil, domain.ErrInvalidPaymentID
	}
	if holderID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	span.SetAttributes(
		attribute.String("reservation_id", req.ReservationID),
		attribute.String("payment_id", req.PaymentID),
		attribute.String("user_id", holderID),
	)

	marker, err := s.markerRepo.Get(ctx, req.ReservationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if marker != nil {
		span.SetStatus(codes.Error, "already paid")
		return nil, domain.ErrReservationAlreadyPaid
	}

	hold, err := s.engine.GetReservation(ctx, req.ReservationID)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			span.SetStatus(codes.Error, "reservation expired")
			return nil, domain.ErrReservationExpired
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !hold.BelongsToUser(holderID) {
		span.SetStatus(codes.Error, "not the holder")
		return nil, domain.ErrUnauthorizedAccess
	}

	event := &domain.PaymentSucceededEvent{
		EventID:       uuid.NewString(),
		ReservationID: req.ReservationID,
		PaymentID:     req.PaymentID,
		UserID:        holderID,
		Notes:         req.CustomerNotes,
		OccurredAt:    s.now(),
	}
	if err := s.publisher.PublishPaymentSucceeded(ctx, event); err != nil {
		logger.Get().Error(fmt.Sprintf("Failed to publish payment signal for reservation %s", req.ReservationID),
			zap.String("reservation_id", req.ReservationID),
			zap.String("payment_id", req.PaymentID),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.AddEvent("payment_signal_published", trace.WithAttributes(
		attribute.String("event_id", event.EventID),
	))
	span.SetStatus(codes.Ok, "")
	return &dto.ConfirmPaymentResponse{
		ReservationID: req.ReservationID,
		PaymentID:     req.PaymentID,
		Status:        "processing",
		Message:       "Payment confirmed. Booking is being processed.",
	}, nil
}

// CancelBooking cancels a booking, refunds it and releases its capacity
func (s *bookingService) CancelBooking(ctx context.Context, bookingID, actorID, reason string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("actor_id", actorID),
	)

	booking, err := s.findBooking(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if booking.IsCancelled() {
		span.SetStatus(codes.Error, "already cancelled")
		return nil, domain.ErrBookingAlreadyCancelled
	}

	if !booking.BelongsToUser(actorID) {
		owner, err := s.isOfferingOwner(ctx, booking.OfferingID, actorID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if !owner {
			span.SetStatus(codes.Error, "unauthorized")
			return nil, domain.ErrUnauthorizedAccess
		}
	}

	now := s.now()
	adj, err := s.bookingRepo.RecordCancellation(ctx, bookingID, reason, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	previous := booking.Status
	booking.Status = domain.BookingStatusCancelled
	booking.PaymentStatus = domain.PaymentStatusRefunded
	booking.CancelledAt = &now
	booking.UpdatedAt = now
	if reason != "" {
		booking.CancellationReason = reason
	}

	released := adj != nil && adj.Applied
	metrics.RecordCancellation(ctx, booking.OfferingID, released)
	logger.Get().Info(fmt.Sprintf("Booking %s cancelled", bookingID),
		zap.String("booking_id", bookingID),
		zap.String("actor_id", actorID),
		zap.String("previous_status", previous.String()),
		zap.Bool("capacity_released", released),
	)

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// MarkAsNoShow marks a confirmed booking whose slot has started as no-show
func (s *bookingService) MarkAsNoShow(ctx context.Context, bookingID, actorID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.mark_no_show")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("actor_id", actorID),
	)

	booking, err := s.findBooking(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	owner, err := s.isOfferingOwner(ctx, booking.OfferingID, actorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !owner {
		span.SetStatus(codes.Error, "unauthorized")
		return nil, domain.ErrUnauthorizedAccess
	}

	if !booking.IsConfirmed() {
		span.SetStatus(codes.Error, "not confirmed")
		return nil, &domain.BookingStatusError{Status: booking.Status, Action: "no-show"}
	}

	slot, err := s.catalogRepo.GetSlot(ctx, booking.SlotID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	startsAt, err := slot.StartsAt(s.location)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	now := s.now()
	if startsAt.After(now) {
		span.SetStatus(codes.Error, "booking time not passed")
		return nil, domain.ErrBookingTimeNotPassed
	}

	if _, err := s.bookingRepo.RecordNoShow(ctx, bookingID, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	booking.Status = domain.BookingStatusNoShow
	booking.UpdatedAt = now

	metrics.RecordNoShow(ctx, booking.OfferingID)
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// GetBooking returns a booking visible to its holder or the offering owner
func (s *bookingService) GetBooking(ctx context.Context, bookingID, actorID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.findBooking(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if booking.BelongsToUser(actorID) {
		span.SetStatus(codes.Ok, "")
		return booking, nil
	}

	owner, err := s.isOfferingOwner(ctx, booking.OfferingID, actorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !owner {
		span.SetStatus(codes.Error, "unauthorized")
		return nil, domain.ErrUnauthorizedAccess
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// ListCustomerBookings lists the holder's bookings
func (s *bookingService) ListCustomerBookings(ctx context.Context, holderID string, filter *domain.BookingFilter) (*dto.PaginatedResponse, error) {
	if holderID == "" {
		return nil, domain.ErrInvalidUserID
	}
	f := copyFilter(filter)
	f.UserID = holderID
	return s.list(ctx, "service.booking.list_customer", f)
}

// ListAgencyBookings lists bookings of all offerings owned by ownerID
func (s *bookingService) ListAgencyBookings(ctx context.Context, ownerID string, filter *domain.BookingFilter) (*dto.PaginatedResponse, error) {
	if ownerID == "" {
		return nil, domain.ErrInvalidUserID
	}
	f := copyFilter(filter)
	f.OwnerID = ownerID
	return s.list(ctx, "service.booking.list_agency", f)
}

// ListOfferingBookings lists bookings of one offering after checking ownership
func (s *bookingService) ListOfferingBookings(ctx context.Context, offeringID, ownerID string, filter *domain.BookingFilter) (*dto.PaginatedResponse, error) {
	offering, err := s.catalogRepo.GetOffering(ctx, offeringID)
	if err != nil {
		return nil, err
	}
	if !offering.IsOwnedBy(ownerID) {
		return nil, domain.ErrUnauthorizedAccess
	}
	f := copyFilter(filter)
	f.OfferingID = offeringID
	return s.list(ctx, "service.booking.list_offering", f)
}

func (s *bookingService) list(ctx context.Context, spanName string, filter *domain.BookingFilter) (*dto.PaginatedResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()

	filter.Normalize()
	bookings, total, err := s.bookingRepo.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if bookings == nil {
		bookings = []*domain.Booking{}
	}

	span.SetAttributes(attribute.Int("total", total))
	span.SetStatus(codes.Ok, "")
	return dto.NewPaginatedResponse(bookings, filter.Page, filter.PerPage, total), nil
}

// ListCapacityAdjustments returns the audited booked_count changes of a slot
func (s *bookingService) ListCapacityAdjustments(ctx context.Context, slotID, ownerID string, limit int) ([]*domain.CapacityAdjustment, error) {
	slot, err := s.catalogRepo.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	owner, err := s.isOfferingOwner(ctx, slot.OfferingID, ownerID)
	if err != nil {
		return nil, err
	}
	if !owner {
		return nil, domain.ErrUnauthorizedAccess
	}
	if limit <= 0 || limit > domain.MaxPerPage {
		limit = domain.MaxPerPage
	}
	adjustments, err := s.capacityRepo.ListAdjustments(ctx, slotID, limit)
	if err != nil {
		return nil, err
	}
	if adjustments == nil {
		adjustments = []*domain.CapacityAdjustment{}
	}
	return adjustments, nil
}

// GenerateBookingReference returns a new booking reference
func (s *bookingService) GenerateBookingReference() (string, error) {
	return s.references.Generate()
}

func (s *bookingService) findBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	if bookingID == "" {
		return nil, domain.ErrBookingNotFound
	}
	return s.bookingRepo.FindByID(ctx, bookingID)
}

// isOfferingOwner treats a missing offering as not owned
func (s *bookingService) isOfferingOwner(ctx context.Context, offeringID, actorID string) (bool, error) {
	if actorID == "" {
		return false, nil
	}
	offering, err := s.catalogRepo.GetOffering(ctx, offeringID)
	if err != nil {
		if errors.Is(err, domain.ErrOfferingNotFound) {
			return false, nil
		}
		return false, err
	}
	return offering.IsOwnedBy(actorID), nil
}

func copyFilter(filter *domain.BookingFilter) *domain.BookingFilter {
	if filter == nil {
		return &domain.BookingFilter{}
	}
	f := *filter
	return &f
}
