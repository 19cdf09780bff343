package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prohmpiriya/slot-booking/internal/domain"
	pkgredis "github.com/prohmpiriya/slot-booking/pkg/redis"
	"github.com/prohmpiriya/slot-booking/pkg/telemetry"
)

//go:embed scripts/reserve_hold.lua
var reserveHoldSource string

//go:embed scripts/create_hold.lua
var createHoldSource string

//go:embed scripts/remove_hold.lua
var removeHoldSource string

//go:embed scripts/count_holds.lua
var countHoldsSource string

var (
	reserveHoldScript = pkgredis.NewScript("reserve_hold", reserveHoldSource)
	createHoldScript  = pkgredis.NewScript("create_hold", createHoldSource)
	removeHoldScript  = pkgredis.NewScript("remove_hold", removeHoldSource)
	countHoldsScript  = pkgredis.NewScript("count_holds", countHoldsSource)
)

// Error codes returned by reserve_hold.lua
const (
	ErrCodeSlotFullyBooked      = "SLOT_FULLY_BOOKED"
	ErrCodeDuplicateReservation = "DUPLICATE_RESERVATION"
)

// RedisReservationRepository implements ReservationRepository using Redis
type RedisReservationRepository struct {
	client *pkgredis.Client
}

var _ ReservationRepository = (*RedisReservationRepository)(nil)

// NewRedisReservationRepository creates a new RedisReservationRepository
func NewRedisReservationRepository(client *pkgredis.Client) *RedisReservationRepository {
	return &RedisReservationRepository{client: client}
}

// LoadScripts loads all Lua scripts into Redis
func (r *RedisReservationRepository) LoadScripts(ctx context.Context) error {
	for _, s := range []*pkgredis.Script{reserveHoldScript, createHoldScript, removeHoldScript, countHoldsScript} {
		if err := r.client.LoadScript(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// TryHold atomically checks the slot limit and writes the hold
func (r *RedisReservationRepository) TryHold(ctx context.Context, hold *domain.TemporaryReservation, limit int, rejectDuplicate bool, ttl time.Duration) (*TryHoldResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.reservation.try_hold")
	defer span.End()

	span.SetAttributes(
		attribute.String("slot_id", hold.SlotID),
		attribute.String("user_id", hold.UserID),
		attribute.Int("limit", limit),
	)

	payload, err := json.Marshal(hold)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to encode hold: %w", err)
	}

	reject := "0"
	if rejectDuplicate {
		reject = "1"
	}

	keys := []string{SlotIndexKey(hold.SlotID), HoldKey(hold.ReservationID)}
	args := []interface{}{
		HoldKeyPrefix,      // ARGV[1]
		limit,              // ARGV[2]
		ttlSeconds(ttl),    // ARGV[3]
		string(payload),    // ARGV[4]
		hold.ReservationID, // ARGV[5]
		hold.UserID,        // ARGV[6]
		reject,             // ARGV[7]
	}

	values, err := r.evalSlice(ctx, reserveHoldScript, keys, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	success, _ := toInt64(values[0])
	if success == 1 {
		live, _ := toInt64(values[1])
		remaining, _ := toInt64(values[2])
		span.SetAttributes(
			attribute.String("reservation_id", hold.ReservationID),
			attribute.Int64("live_holds", live),
		)
		span.SetStatus(codes.Ok, "")
		return &TryHoldResult{Success: true, LiveHolds: live, Remaining: remaining}, nil
	}

	errorCode, _ := values[1].(string)
	errorMessage, _ := values[2].(string)
	span.SetAttributes(attribute.String("error_code", errorCode))
	span.SetStatus(codes.Error, errorCode)
	return &TryHoldResult{Success: false, ErrorCode: errorCode, ErrorMessage: errorMessage}, nil
}

// Create writes a hold without checking capacity
func (r *RedisReservationRepository) Create(ctx context.Context, hold *domain.TemporaryReservation, ttl time.Duration) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.reservation.create")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", hold.ReservationID))

	payload, err := json.Marshal(hold)
	if err != nil {
		return fmt.Errorf("failed to encode hold: %w", err)
	}

	keys := []string{HoldKey(hold.ReservationID), SlotIndexKey(hold.SlotID)}
	if err := r.client.EvalWithFallback(ctx, createHoldScript, keys, string(payload), ttlSeconds(ttl), hold.ReservationID).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to execute create_hold script: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Get returns a live hold
func (r *RedisReservationRepository) Get(ctx context.Context, reservationID string) (*domain.TemporaryReservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.reservation.get")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", reservationID))

	raw, err := r.client.Get(ctx, HoldKey(reservationID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrReservationNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get hold: %w", err)
	}

	var hold domain.TemporaryReservation
	if err := json.Unmarshal([]byte(raw), &hold); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to decode hold %s: %w", reservationID, err)
	}
	if hold.ReservationID == "" {
		hold.ReservationID = reservationID
	}

	span.SetStatus(codes.Ok, "")
	return &hold, nil
}

// Remove deletes a hold and its index entry
func (r *RedisReservationRepository) Remove(ctx context.Context, reservationID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.reservation.remove")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", reservationID))

	// the slot id lives in the hold payload
	hold, err := r.Get(ctx, reservationID)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			return false, nil
		}
		return false, err
	}

	keys := []string{HoldKey(reservationID), SlotIndexKey(hold.SlotID)}
	deleted, err := r.client.EvalWithFallback(ctx, removeHoldScript, keys, reservationID).Int64()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to execute remove_hold script: %w", err)
	}

	span.SetAttributes(attribute.Bool("removed", deleted == 1))
	span.SetStatus(codes.Ok, "")
	return deleted == 1, nil
}

// CountLive counts a slot's live holds and prunes stale index entries
func (r *RedisReservationRepository) CountLive(ctx context.Context, slotID string) (*CountResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.reservation.count_live")
	defer span.End()

	span.SetAttributes(attribute.String("slot_id", slotID))

	values, err := r.evalSlice(ctx, countHoldsScript, []string{SlotIndexKey(slotID)}, HoldKeyPrefix)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	live, _ := toInt64(values[0])
	pruned, _ := toInt64(values[1])
	span.SetAttributes(attribute.Int64("live", live), attribute.Int64("pruned", pruned))
	span.SetStatus(codes.Ok, "")
	return &CountResult{Live: live, Pruned: pruned}, nil
}

// ListLive returns a slot's live holds
func (r *RedisReservationRepository) ListLive(ctx context.Context, slotID string) ([]*domain.TemporaryReservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.reservation.list_live")
	defer span.End()

	span.SetAttributes(attribute.String("slot_id", slotID))

	ids, err := r.client.SMembers(ctx, SlotIndexKey(slotID)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read slot index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, HoldKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read holds: %w", err)
	}

	holds := make([]*domain.TemporaryReservation, 0, len(ids))
	stale := make([]interface{}, 0)
	for i, cmd := range cmds {
		raw, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			stale = append(stale, ids[i])
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read hold %s: %w", ids[i], err)
		}
		var hold domain.TemporaryReservation
		if err := json.Unmarshal([]byte(raw), &hold); err != nil {
			continue
		}
		holds = append(holds, &hold)
	}

	if len(stale) > 0 {
		if err := r.client.SRem(ctx, SlotIndexKey(slotID), stale...).Err(); err != nil {
			span.RecordError(err)
		}
	}

	span.SetAttributes(attribute.Int("live", len(holds)), attribute.Int("pruned", len(stale)))
	span.SetStatus(codes.Ok, "")
	return holds, nil
}

func (r *RedisReservationRepository) evalSlice(ctx context.Context, script *pkgredis.Script, keys []string, args ...interface{}) ([]interface{}, error) {
	result := r.client.EvalWithFallback(ctx, script, keys, args...)
	if result.Err() != nil {
		return nil, fmt.Errorf("failed to execute %s script: %w", script.Name, result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s result: %w", script.Name, err)
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("unexpected %s result length: %d", script.Name, len(values))
	}
	if script == reserveHoldScript && len(values) < 3 {
		return nil, fmt.Errorf("unexpected %s result length: %d", script.Name, len(values))
	}
	return values, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// toInt64 converts a Lua reply value to int64
func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case float64:
		return int64(val), true
	case string:
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
