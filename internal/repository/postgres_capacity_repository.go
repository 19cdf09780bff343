package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prohmpiriya/slot-booking/internal/domain"
	"github.com/prohmpiriya/slot-booking/pkg/database"
	"github.com/prohmpiriya/slot-booking/pkg/telemetry"
)

// PostgresCapacityRepository implements CapacityRepository on offering_time_slots
type PostgresCapacityRepository struct {
	pool *pgxpool.Pool
}

var _ CapacityRepository = (*PostgresCapacityRepository)(nil)

// NewPostgresCapacityRepository creates a new PostgresCapacityRepository
func NewPostgresCapacityRepository(pool *pgxpool.Pool) *PostgresCapacityRepository {
	return &PostgresCapacityRepository{pool: pool}
}

// Increment adds one to booked_count
func (r *PostgresCapacityRepository) Increment(ctx context.Context, q database.Querier, slotID, bookingID string, reason domain.AdjustmentReason) (*domain.CapacityAdjustment, error) {
	return r.adjust(ctx, q, slotID, bookingID, 1, reason)
}

// Decrement subtracts one from booked_count with a floor of zero
func (r *PostgresCapacityRepository) Decrement(ctx context.Context, q database.Querier, slotID, bookingID string, reason domain.AdjustmentReason) (*domain.CapacityAdjustment, error) {
	return r.adjust(ctx, q, slotID, bookingID, -1, reason)
}

func (r *PostgresCapacityRepository) adjust(ctx context.Context, q database.Querier, slotID, bookingID string, delta int, reason domain.AdjustmentReason) (*domain.CapacityAdjustment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.capacity.adjust")
	defer span.End()

	span.SetAttributes(
		attribute.String("slot_id", slotID),
		attribute.String("booking_id", bookingID),
		attribute.Int("delta", delta),
		attribute.String("reason", string(reason)),
	)

	if q == nil {
		q = r.pool
	}

	// the row lock in "old" serializes concurrent adjustments of one slot
	query := `
		WITH old AS (
			SELECT id, booked_count FROM offering_time_slots WHERE id = $1 FOR UPDATE
		)
		UPDATE offering_time_slots s SET
			booked_count = GREATEST(s.booked_count + $2, 0),
			updated_at = NOW()
		FROM old
		WHERE s.id = old.id
		RETURNING s.booked_count, old.booked_count
	`

	var after, before int
	if err := q.QueryRow(ctx, query, slotID, delta).Scan(&after, &before); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "slot not found")
			return nil, domain.ErrSlotNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to adjust booked count: %w", err)
	}

	adj := &domain.CapacityAdjustment{
		SlotID:           slotID,
		BookingID:        bookingID,
		Delta:            delta,
		Reason:           reason,
		BookedCountAfter: after,
		Applied:          after != before,
	}

	audit := `
		INSERT INTO slot_capacity_adjustments (
			slot_id, booking_id, delta, reason, booked_count_after, applied
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	if err := q.QueryRow(ctx, audit,
		adj.SlotID,
		nullString(adj.BookingID),
		adj.Delta,
		string(adj.Reason),
		adj.BookedCountAfter,
		adj.Applied,
	).Scan(&adj.ID, &adj.CreatedAt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to record capacity adjustment: %w", err)
	}

	span.SetAttributes(
		attribute.Int("booked_count_after", after),
		attribute.Bool("applied", adj.Applied),
	)
	span.SetStatus(codes.Ok, "")
	return adj, nil
}

// ListAdjustments returns the latest adjustments of a slot, newest first
func (r *PostgresCapacityRepository) ListAdjustments(ctx context.Context, slotID string, limit int) ([]*domain.CapacityAdjustment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.capacity.list_adjustments")
	defer span.End()

	span.SetAttributes(attribute.String("slot_id", slotID), attribute.Int("limit", limit))

	query := `
		SELECT id, slot_id, booking_id, delta, reason, booked_count_after, applied, created_at
		FROM slot_capacity_adjustments
		WHERE slot_id = $1
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, slotID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list capacity adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []*domain.CapacityAdjustment
	for rows.Next() {
		adj := &domain.CapacityAdjustment{}
		var (
			bookingID *string
			reason    string
		)
		if err := rows.Scan(&adj.ID, &adj.SlotID, &bookingID, &adj.Delta, &reason, &adj.BookedCountAfter, &adj.Applied, &adj.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan capacity adjustment: %w", err)
		}
		adj.Reason = domain.AdjustmentReason(reason)
		if bookingID != nil {
			adj.BookingID = *bookingID
		}
		adjustments = append(adjustments, adj)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to iterate capacity adjustments: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return adjustments, nil
}
