package service

import (
	"context"
	"sync"
	"time"

	"github.com/prohmpiriya/slot-booking/internal/domain"
	"github.com/prohmpiriya/slot-booking/internal/repository"
	"github.com/prohmpiriya/slot-booking/pkg/database"
	"github.com/prohmpiriya/slot-booking/pkg/kafka"
)

// MockBookingRepository is a mock implementation of BookingRepository
type MockBookingRepository struct {
	InsertFunc                func(ctx context.Context, booking *domain.Booking) (bool, error)
	FindByIDFunc              func(ctx context.Context, id string) (*domain.Booking, error)
	FindByReservationIDFunc   func(ctx context.Context, reservationID string) (*domain.Booking, error)
	CountConfirmedForSlotFunc func(ctx context.Context, slotID string) (int, error)
	UpdateFieldsFunc          func(ctx context.Context, id string, update *repository.BookingUpdate) error
	CancelFunc                func(ctx context.Context, id string, reason string) error
	ListFunc                  func(ctx context.Context, filter *domain.BookingFilter) ([]*domain.Booking, int, error)
	RecordFinalizedFunc       func(ctx context.Context, booking *domain.Booking) (*repository.FinalizeRecord, error)
	RecordCancellationFunc    func(ctx context.Context, id, reason string, at time.Time) (*domain.CapacityAdjustment, error)
	RecordNoShowFunc          func(ctx context.Context, id string, at time.Time) (*domain.CapacityAdjustment, error)
}

func (m *MockBookingRepository) Insert(ctx context.Context, booking *domain.Booking) (bool, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, booking)
	}
	return true, nil
}

func (m *MockBookingRepository) FindByID(ctx context.Context, id string) (*domain.Booking, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingRepository) FindByReservationID(ctx context.Context, reservationID string) (*domain.Booking, error) {
	if m.FindByReservationIDFunc != nil {
		return m.FindByReservationIDFunc(ctx, reservationID)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingRepository) CountConfirmedForSlot(ctx context.Context, slotID string) (int, error) {
	if m.CountConfirmedForSlotFunc != nil {
		return m.CountConfirmedForSlotFunc(ctx, slotID)
	}
	return 0, nil
}

func (m *MockBookingRepository) UpdateFields(ctx context.Context, id string, update *repository.BookingUpdate) error {
	if m.UpdateFieldsFunc != nil {
		return m.UpdateFieldsFunc(ctx, id, update)
	}
	return nil
}

func (m *MockBookingRepository) Cancel(ctx context.Context, id string, reason string) error {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, id, reason)
	}
	return nil
}

func (m *MockBookingRepository) List(ctx context.Context, filter *domain.BookingFilter) ([]*domain.Booking, int, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return []*domain.Booking{}, 0, nil
}

func (m *MockBookingRepository) RecordFinalized(ctx context.Context, booking *domain.Booking) (*repository.FinalizeRecord, error) {
	if m.RecordFinalizedFunc != nil {
		return m.RecordFinalizedFunc(ctx, booking)
	}
	return &repository.FinalizeRecord{Inserted: true, Booking: booking}, nil
}

func (m *MockBookingRepository) RecordCancellation(ctx context.Context, id, reason string, at time.Time) (*domain.CapacityAdjustment, error) {
	if m.RecordCancellationFunc != nil {
		return m.RecordCancellationFunc(ctx, id, reason, at)
	}
	return &domain.CapacityAdjustment{BookingID: id, Delta: -1, Reason: domain.AdjustmentCancelled, Applied: true}, nil
}

func (m *MockBookingRepository) RecordNoShow(ctx context.Context, id string, at time.Time) (*domain.CapacityAdjustment, error) {
	if m.RecordNoShowFunc != nil {
		return m.RecordNoShowFunc(ctx, id, at)
	}
	return &domain.CapacityAdjustment{BookingID: id, Delta: -1, Reason: domain.AdjustmentNoShow, Applied: true}, nil
}

// MockCatalogRepository is a mock implementation of CatalogRepository
type MockCatalogRepository struct {
	GetSlotFunc     func(ctx context.Context, slotID string) (*domain.Slot, error)
	GetOfferingFunc func(ctx context.Context, offeringID string) (*domain.Offering, error)
}

func (m *MockCatalogRepository) GetSlot(ctx context.Context, slotID string) (*domain.Slot, error) {
	if m.GetSlotFunc != nil {
		return m.GetSlotFunc(ctx, slotID)
	}
	return nil, domain.ErrSlotNotFound
}

func (m *MockCatalogRepository) GetOffering(ctx context.Context, offeringID string) (*domain.Offering, error) {
	if m.GetOfferingFunc != nil {
		return m.GetOfferingFunc(ctx, offeringID)
	}
	return nil, domain.ErrOfferingNotFound
}

// MockCapacityRepository is a mock implementation of CapacityRepository
type MockCapacityRepository struct {
	IncrementFunc       func(ctx context.Context, q database.Querier, slotID, bookingID string, reason domain.AdjustmentReason) (*domain.CapacityAdjustment, error)
	DecrementFunc       func(ctx context.Context, q database.Querier, slotID, bookingID string, reason domain.AdjustmentReason) (*domain.CapacityAdjustment, error)
	ListAdjustmentsFunc func(ctx context.Context, slotID string, limit int) ([]*domain.CapacityAdjustment, error)
}

func (m *MockCapacityRepository) Increment(ctx context.Context, q database.Querier, slotID, bookingID string, reason domain.AdjustmentReason) (*domain.CapacityAdjustment, error) {
	if m.IncrementFunc != nil {
		return m.IncrementFunc(ctx, q, slotID, bookingID, reason)
	}
	return &domain.CapacityAdjustment{SlotID: slotID, BookingID: bookingID, Delta: 1, Reason: reason, Applied: true}, nil
}

func (m *MockCapacityRepository) Decrement(ctx context.Context, q database.Querier, slotID, bookingID string, reason domain.AdjustmentReason) (*domain.CapacityAdjustment, error) {
	if m.DecrementFunc != nil {
		return m.DecrementFunc(ctx, q, slotID, bookingID, reason)
	}
	return &domain.CapacityAdjustment{SlotID: slotID, BookingID: bookingID, Delta: -1, Reason: reason, Applied: true}, nil
}

func (m *MockCapacityRepository) ListAdjustments(ctx context.Context, slotID string, limit int) ([]*domain.CapacityAdjustment, error) {
	if m.ListAdjustmentsFunc != nil {
		return m.ListAdjustmentsFunc(ctx, slotID, limit)
	}
	return nil, nil
}

// MockMarkerRepository is a mock implementation of FinalizationMarkerRepository
type MockMarkerRepository struct {
	GetFunc    func(ctx context.Context, reservationID string) (*domain.FinalizationMarker, error)
	CommitFunc func(ctx context.Context, reservationID string, marker *domain.FinalizationMarker, ttl time.Duration) (bool, error)
}

func (m *MockMarkerRepository) Get(ctx context.Context, reservationID string) (*domain.FinalizationMarker, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, reservationID)
	}
	return nil, nil
}

func (m *MockMarkerRepository) Commit(ctx context.Context, reservationID string, marker *domain.FinalizationMarker, ttl time.Duration) (bool, error) {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx, reservationID, marker, ttl)
	}
	return true, nil
}

// MockReservationEngine is a mock implementation of ReservationEngine
type MockReservationEngine struct {
	TryReserveFunc        func(ctx context.Context, req *domain.HoldRequest) (*domain.TemporaryReservation, error)
	CreateReservationFunc func(ctx context.Context, req *domain.HoldRequest) (*domain.TemporaryReservation, error)
	GetReservationFunc    func(ctx context.Context, reservationID string) (*domain.TemporaryReservation, error)
	RemoveReservationFunc func(ctx context.Context, reservationID string) (bool, error)
	CountLiveFunc         func(ctx context.Context, slotID string) (int, error)
	HasReservationFunc    func(ctx context.Context, slotID, holderID string) (bool, error)
}

func (m *MockReservationEngine) TryReserve(ctx context.Context, req *domain.HoldRequest) (*domain.TemporaryReservation, error) {
	if m.TryReserveFunc != nil {
		return m.TryReserveFunc(ctx, req)
	}
	return nil, domain.ErrSlotFullyBooked
}

func (m *MockReservationEngine) CreateReservation(ctx context.Context, req *domain.HoldRequest) (*domain.TemporaryReservation, error) {
	if m.CreateReservationFunc != nil {
		return m.CreateReservationFunc(ctx, req)
	}
	return nil, domain.ErrInvalidInput
}

func (m *MockReservationEngine) GetReservation(ctx context.Context, reservationID string) (*domain.TemporaryReservation, error) {
	if m.GetReservationFunc != nil {
		return m.GetReservationFunc(ctx, reservationID)
	}
	return nil, domain.ErrReservationNotFound
}

func (m *MockReservationEngine) RemoveReservation(ctx context.Context, reservationID string) (bool, error) {
	if m.RemoveReservationFunc != nil {
		return m.RemoveReservationFunc(ctx, reservationID)
	}
	return true, nil
}

func (m *MockReservationEngine) CountLiveReservationsForSlot(ctx context.Context, slotID string) (int, error) {
	if m.CountLiveFunc != nil {
		return m.CountLiveFunc(ctx, slotID)
	}
	return 0, nil
}

func (m *MockReservationEngine) HasReservation(ctx context.Context, slotID, holderID string) (bool, error) {
	if m.HasReservationFunc != nil {
		return m.HasReservationFunc(ctx, slotID, holderID)
	}
	return false, nil
}

func (m *MockReservationEngine) TTL() time.Duration {
	return domain.DefaultReservationTTL
}

// MockPaymentSignalPublisher records published events
type MockPaymentSignalPublisher struct {
	mu     sync.Mutex
	Events []*domain.PaymentSucceededEvent
	Err    error
}

func (m *MockPaymentSignalPublisher) PublishPaymentSucceeded(ctx context.Context, event *domain.PaymentSucceededEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockPaymentSignalPublisher) Close() error {
	return nil
}

// MockMessageProducer records produced messages
type MockMessageProducer struct {
	mu       sync.Mutex
	Messages []*kafka.Message
	Err      error
}

func (m *MockMessageProducer) Produce(ctx context.Context, msg *kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, msg)
	return nil
}

// memoryLedger is an in-memory BookingRepository that keeps per-slot
// booked counts, used to exercise the finalization pipeline end to end
type memoryLedger struct {
	MockBookingRepository

	mu            sync.Mutex
	byReservation map[string]*domain.Booking
	byID          map[string]*domain.Booking
	booked        map[string]int
}

func newMemoryLedger() *memoryLedger {
	l := &memoryLedger{
		byReservation: make(map[string]*domain.Booking),
		byID:          make(map[string]*domain.Booking),
		booked:        make(map[string]int),
	}
	l.RecordFinalizedFunc = l.recordFinalized
	l.FindByReservationIDFunc = l.findByReservationID
	l.FindByIDFunc = l.findByID
	l.CountConfirmedForSlotFunc = l.countConfirmed
	l.RecordCancellationFunc = l.recordCancellation
	return l
}

func (l *memoryLedger) recordFinalized(ctx context.Context, booking *domain.Booking) (*repository.FinalizeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.byReservation[booking.ReservationID]; ok {
		copied := *existing
		return &repository.FinalizeRecord{Inserted: false, Booking: &copied}, nil
	}
	stored := *booking
	l.byReservation[booking.ReservationID] = &stored
	l.byID[booking.ID] = &stored
	l.booked[booking.SlotID]++
	return &repository.FinalizeRecord{
		Inserted: true,
		Booking:  booking,
		Adjustment: &domain.CapacityAdjustment{
			SlotID:           booking.SlotID,
			BookingID:        booking.ID,
			Delta:            1,
			Reason:           domain.AdjustmentFinalized,
			BookedCountAfter: l.booked[booking.SlotID],
			Applied:          true,
		},
	}, nil
}

func (l *memoryLedger) findByReservationID(ctx context.Context, reservationID string) (*domain.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.byReservation[reservationID]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	copied := *b
	return &copied, nil
}

func (l *memoryLedger) findByID(ctx context.Context, id string) (*domain.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.byID[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	copied := *b
	return &copied, nil
}

func (l *memoryLedger) countConfirmed(ctx context.Context, slotID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, b := range l.byID {
		if b.SlotID == slotID && (b.Status == domain.BookingStatusConfirmed || b.Status == domain.BookingStatusCompleted) {
			n++
		}
	}
	return n, nil
}

func (l *memoryLedger) recordCancellation(ctx context.Context, id, reason string, at time.Time) (*domain.CapacityAdjustment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.byID[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	if b.Status == domain.BookingStatusCancelled {
		return nil, domain.ErrBookingAlreadyCancelled
	}
	held := b.Status == domain.BookingStatusConfirmed || b.Status == domain.BookingStatusCompleted
	b.Status = domain.BookingStatusCancelled
	b.PaymentStatus = domain.PaymentStatusRefunded
	b.CancelledAt = &at
	if !held {
		return nil, nil
	}
	adj := &domain.CapacityAdjustment{SlotID: b.SlotID, BookingID: id, Delta: -1, Reason: domain.AdjustmentCancelled}
	if l.booked[b.SlotID] > 0 {
		l.booked[b.SlotID]--
		adj.Applied = true
	}
	adj.BookedCountAfter = l.booked[b.SlotID]
	return adj, nil
}

func (l *memoryLedger) bookedCount(slotID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.booked[slotID]
}

func (l *memoryLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byID)
}
