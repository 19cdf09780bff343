package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prohmpiriya/slot-booking/internal/domain"
	"github.com/prohmpiriya/slot-booking/pkg/database"
	"github.com/prohmpiriya/slot-booking/pkg/telemetry"
)

const bookingColumns = `
	b.id, b.offering_time_slot_id, b.offering_id, b.user_id, b.reservation_id,
	b.booking_reference, b.status, b.total_price, b.payment_status, b.payment_id,
	b.customer_notes, b.cancellation_reason, b.cancelled_at, b.confirmed_at,
	b.created_at, b.updated_at
`

// PostgresBookingRepository implements BookingRepository using PostgreSQL with pgxpool
type PostgresBookingRepository struct {
	pool     *pgxpool.Pool
	capacity CapacityRepository
}

var _ BookingRepository = (*PostgresBookingRepository)(nil)

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(pool *pgxpool.Pool, capacity CapacityRepository) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool, capacity: capacity}
}

// Insert adds a booking, ignoring a second insert for the same reservation
func (r *PostgresBookingRepository) Insert(ctx context.Context, booking *domain.Booking) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.insert")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("reservation_id", booking.ReservationID),
	)

	inserted, err := insertBooking(ctx, r.pool, booking)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	span.SetAttributes(attribute.Bool("inserted", inserted))
	span.SetStatus(codes.Ok, "")
	return inserted, nil
}

func insertBooking(ctx context.Context, q database.Querier, booking *domain.Booking) (bool, error) {
	if err := booking.Validate(); err != nil {
		return false, err
	}

	query := `
		INSERT INTO bookings (
			id, offering_time_slot_id, offering_id, user_id, reservation_id,
			booking_reference, status, total_price, payment_status, payment_id,
			customer_notes, confirmed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14
		)
		ON CONFLICT (reservation_id) DO NOTHING
	`

	tag, err := q.Exec(ctx, query,
		booking.ID,
		booking.SlotID,
		booking.OfferingID,
		booking.UserID,
		nullString(booking.ReservationID),
		booking.BookingReference,
		booking.Status.String(),
		booking.TotalPrice,
		booking.PaymentStatus.String(),
		nullString(booking.PaymentID),
		nullString(booking.CustomerNotes),
		booking.ConfirmedAt,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if database.IsUniqueViolationOn(err, "booking_reference") {
		return false, fmt.Errorf("failed to insert booking %s: %w", booking.BookingReference, domain.ErrBookingReferenceTaken)
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert booking: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FindByID retrieves a booking by ID
func (r *PostgresBookingRepository) FindByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.find_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = $1 AND b.deleted_at IS NULL`
	booking, err := scanBooking(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// FindByReservationID retrieves the booking created from a hold
func (r *PostgresBookingRepository) FindByReservationID(ctx context.Context, reservationID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.find_by_reservation_id")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", reservationID))

	booking, err := findByReservationID(ctx, r.pool, reservationID)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			span.SetStatus(codes.Error, "not found")
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

func findByReservationID(ctx context.Context, q database.Querier, reservationID string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.reservation_id = $1`
	booking, err := scanBooking(q.QueryRow(ctx, query, reservationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking by reservation: %w", err)
	}
	return booking, nil
}

// CountConfirmedForSlot counts bookings that occupy capacity
func (r *PostgresBookingRepository) CountConfirmedForSlot(ctx context.Context, slotID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.count_confirmed_for_slot")
	defer span.End()

	span.SetAttributes(attribute.String("slot_id", slotID))

	query := `
		SELECT COUNT(*)
		FROM bookings
		WHERE offering_time_slot_id = $1
		  AND status IN ('confirmed', 'completed')
		  AND deleted_at IS NULL
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, slotID).Scan(&count); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to count confirmed bookings: %w", err)
	}

	span.SetAttributes(attribute.Int("count", count))
	span.SetStatus(codes.Ok, "")
	return count, nil
}

// UpdateFields updates the non-nil fields of a booking
func (r *PostgresBookingRepository) UpdateFields(ctx context.Context, id string, update *BookingUpdate) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update_fields")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	n, err := updateFields(ctx, r.pool, id, update, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if n == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func updateFields(ctx context.Context, q database.Querier, id string, update *BookingUpdate, now time.Time) (int64, error) {
	sets := []string{}
	args := []interface{}{id}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != nil {
		add("status", update.Status.String())
	}
	if update.PaymentStatus != nil {
		add("payment_status", update.PaymentStatus.String())
	}
	if update.PaymentID != nil {
		add("payment_id", *update.PaymentID)
	}
	if update.CustomerNotes != nil {
		add("customer_notes", *update.CustomerNotes)
	}
	if update.CancellationReason != nil {
		add("cancellation_reason", *update.CancellationReason)
	}
	if update.CancelledAt != nil {
		add("cancelled_at", *update.CancelledAt)
	}
	if update.ConfirmedAt != nil {
		add("confirmed_at", *update.ConfirmedAt)
	}
	if len(sets) == 0 {
		return 0, fmt.Errorf("%w: no fields to update", domain.ErrInvalidInput)
	}
	add("updated_at", now)

	query := fmt.Sprintf(`UPDATE bookings SET %s WHERE id = $1 AND deleted_at IS NULL`, strings.Join(sets, ", "))
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update booking: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Cancel marks a booking cancelled without touching capacity or payment status
func (r *PostgresBookingRepository) Cancel(ctx context.Context, id string, reason string) error {
	now := time.Now()
	status := domain.BookingStatusCancelled
	update := &BookingUpdate{Status: &status, CancelledAt: &now}
	if reason != "" {
		update.CancellationReason = &reason
	}
	return r.UpdateFields(ctx, id, update)
}

// List returns a filtered, sorted page of bookings
func (r *PostgresBookingRepository) List(ctx context.Context, filter *domain.BookingFilter) ([]*domain.Booking, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list")
	defer span.End()

	filter.Normalize()
	span.SetAttributes(
		attribute.String("user_id", filter.UserID),
		attribute.String("owner_id", filter.OwnerID),
		attribute.Int("page", filter.Page),
		attribute.Int("per_page", filter.PerPage),
	)

	where, args := buildBookingFilter(filter)

	countQuery := `SELECT COUNT(*) FROM bookings b JOIN offerings o ON o.id = b.offering_id WHERE ` + where
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	// SortBy is whitelisted by Normalize
	query := fmt.Sprintf(`SELECT %s FROM bookings b JOIN offerings o ON o.id = b.offering_id WHERE %s ORDER BY b.%s %s, b.id %s LIMIT $%d OFFSET $%d`,
		bookingColumns, where, filter.SortBy, direction, direction, len(args)+1, len(args)+2)
	args = append(args, filter.PerPage, filter.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]*domain.Booking, 0, filter.PerPage)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("failed to iterate bookings: %w", err)
	}

	span.SetAttributes(attribute.Int("total", total))
	span.SetStatus(codes.Ok, "")
	return bookings, total, nil
}

func buildBookingFilter(filter *domain.BookingFilter) (string, []interface{}) {
	conds := []string{"b.deleted_at IS NULL"}
	args := []interface{}{}
	add := func(cond string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.UserID != "" {
		add("b.user_id = $%d", filter.UserID)
	}
	if filter.OwnerID != "" {
		add("o.user_id = $%d", filter.OwnerID)
	}
	if filter.OfferingID != "" {
		add("b.offering_id = $%d", filter.OfferingID)
	}
	if filter.Status != "" {
		add("b.status = $%d", filter.Status.String())
	}
	if filter.PaymentStatus != "" {
		add("b.payment_status = $%d", filter.PaymentStatus.String())
	}
	if filter.DateFrom != nil {
		add("b.created_at >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		// DateTo is a calendar day, inclusive
		add("b.created_at < $%d", filter.DateTo.AddDate(0, 0, 1))
	}
	return strings.Join(conds, " AND "), args
}

// RecordFinalized inserts the booking and increments capacity atomically
func (r *PostgresBookingRepository) RecordFinalized(ctx context.Context, booking *domain.Booking) (*FinalizeRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.record_finalized")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("reservation_id", booking.ReservationID),
		attribute.String("slot_id", booking.SlotID),
	)

	record := &FinalizeRecord{}
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		inserted, err := insertBooking(ctx, tx, booking)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := findByReservationID(ctx, tx, booking.ReservationID)
			if err != nil {
				return err
			}
			record.Booking = existing
			return nil
		}

		adj, err := r.capacity.Increment(ctx, tx, booking.SlotID, booking.ID, domain.AdjustmentFinalized)
		if err != nil {
			return err
		}
		record.Inserted = true
		record.Booking = booking
		record.Adjustment = adj
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Bool("inserted", record.Inserted))
	span.SetStatus(codes.Ok, "")
	return record, nil
}

// RecordCancellation cancels a booking, marks it refunded and releases its
// capacity. Capacity is released only when the previous status held a place.
func (r *PostgresBookingRepository) RecordCancellation(ctx context.Context, id string, reason string, at time.Time) (*domain.CapacityAdjustment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.record_cancellation")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `
		WITH prev AS (
			SELECT id, status, offering_time_slot_id
			FROM bookings
			WHERE id = $1 AND deleted_at IS NULL
			FOR UPDATE
		)
		UPDATE bookings b SET
			status = 'cancelled',
			payment_status = 'refunded',
			cancelled_at = $2,
			cancellation_reason = COALESCE($3, b.cancellation_reason),
			updated_at = $2
		FROM prev
		WHERE b.id = prev.id AND prev.status <> 'cancelled'
		RETURNING prev.status, prev.offering_time_slot_id
	`

	var adj *domain.CapacityAdjustment
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var prevStatus, slotID string
		if err := tx.QueryRow(ctx, query, id, at, nullString(reason)).Scan(&prevStatus, &slotID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.transitionMiss(ctx, tx, id)
			}
			return fmt.Errorf("failed to cancel booking: %w", err)
		}

		if !holdsCapacity(domain.BookingStatus(prevStatus)) {
			return nil
		}
		a, err := r.capacity.Decrement(ctx, tx, slotID, id, domain.AdjustmentCancelled)
		if err != nil {
			return err
		}
		adj = a
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return adj, nil
}

// RecordNoShow marks a confirmed booking no_show and releases its capacity.
// Payment status is left unchanged.
func (r *PostgresBookingRepository) RecordNoShow(ctx context.Context, id string, at time.Time) (*domain.CapacityAdjustment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.record_no_show")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `
		UPDATE bookings SET
			status = 'no_show',
			updated_at = $2
		WHERE id = $1 AND status = 'confirmed' AND deleted_at IS NULL
		RETURNING offering_time_slot_id
	`

	var adj *domain.CapacityAdjustment
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var slotID string
		if err := tx.QueryRow(ctx, query, id, at).Scan(&slotID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.transitionMiss(ctx, tx, id)
			}
			return fmt.Errorf("failed to mark booking as no-show: %w", err)
		}

		a, err := r.capacity.Decrement(ctx, tx, slotID, id, domain.AdjustmentNoShow)
		if err != nil {
			return err
		}
		adj = a
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return adj, nil
}

// transitionMiss explains why a guarded status update touched no row
func (r *PostgresBookingRepository) transitionMiss(ctx context.Context, q database.Querier, id string) error {
	var status string
	err := q.QueryRow(ctx, `SELECT status FROM bookings WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrBookingNotFound
		}
		return fmt.Errorf("failed to check booking status: %w", err)
	}
	if domain.BookingStatus(status) == domain.BookingStatusCancelled {
		return domain.ErrBookingAlreadyCancelled
	}
	return &domain.BookingStatusError{Status: domain.BookingStatus(status), Action: "no-show"}
}

func holdsCapacity(status domain.BookingStatus) bool {
	return status == domain.BookingStatusConfirmed || status == domain.BookingStatusCompleted
}

// scanBooking scans a row into a Booking struct
func scanBooking(row pgx.Row) (*domain.Booking, error) {
	booking := &domain.Booking{}
	var (
		status             string
		paymentStatus      string
		reservationID      *string
		paymentID          *string
		customerNotes      *string
		cancellationReason *string
	)

	err := row.Scan(
		&booking.ID,
		&booking.SlotID,
		&booking.OfferingID,
		&booking.UserID,
		&reservationID,
		&booking.BookingReference,
		&status,
		&booking.TotalPrice,
		&paymentStatus,
		&paymentID,
		&customerNotes,
		&cancellationReason,
		&booking.CancelledAt,
		&booking.ConfirmedAt,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	booking.Status = domain.BookingStatus(status)
	booking.PaymentStatus = domain.PaymentStatus(paymentStatus)
	if reservationID != nil {
		booking.ReservationID = *reservationID
	}
	if paymentID != nil {
		booking.PaymentID = *paymentID
	}
	if customerNotes != nil {
		booking.CustomerNotes = *customerNotes
	}
	if cancellationReason != nil {
		booking.CancellationReason = *cancellationReason
	}

	return booking, nil
}

// Helper function to convert empty string to nil pointer
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
