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
	"github.com/prohmpiriya/slot-booking/pkg/telemetry"
)

// PostgresCatalogRepository implements CatalogRepository using PostgreSQL
type PostgresCatalogRepository struct {
	pool *pgxpool.Pool
}

var _ CatalogRepository = (*PostgresCatalogRepository)(nil)

// NewPostgresCatalogRepository creates a new PostgresCatalogRepository
func NewPostgresCatalogRepository(pool *pgxpool.Pool) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{pool: pool}
}

// GetSlot loads a slot together with its day date
func (r *PostgresCatalogRepository) GetSlot(ctx context.Context, slotID string) (*domain.Slot, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.get_slot")
	defer span.End()

	span.SetAttributes(attribute.String("slot_id", slotID))

	query := `
		SELECT
			s.id, d.offering_id, s.offering_day_id, d.day_date,
			to_char(s.start_time, 'HH24:MI:SS'), to_char(s.end_time, 'HH24:MI:SS'),
			s.capacity, s.booked_count, s.price_override
		FROM offering_time_slots s
		JOIN offering_days d ON d.id = s.offering_day_id
		WHERE s.id = $1 AND s.deleted_at IS NULL
	`

	slot := &domain.Slot{}
	err := r.pool.QueryRow(ctx, query, slotID).Scan(
		&slot.ID,
		&slot.OfferingID,
		&slot.OfferingDayID,
		&slot.DayDate,
		&slot.StartTime,
		&slot.EndTime,
		&slot.Capacity,
		&slot.BookedCount,
		&slot.PriceOverride,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrSlotNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return slot, nil
}

// GetOffering loads an offering
func (r *PostgresCatalogRepository) GetOffering(ctx context.Context, offeringID string) (*domain.Offering, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.get_offering")
	defer span.End()

	span.SetAttributes(attribute.String("offering_id", offeringID))

	query := `
		SELECT id, user_id, title, base_price
		FROM offerings
		WHERE id = $1 AND deleted_at IS NULL
	`

	offering := &domain.Offering{}
	err := r.pool.QueryRow(ctx, query, offeringID).Scan(
		&offering.ID,
		&offering.OwnerID,
		&offering.Title,
		&offering.BasePrice,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrOfferingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get offering: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return offering, nil
}
