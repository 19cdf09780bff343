package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/prohmpiriya/slot-booking/pkg/logger"
	"github.com/prohmpiriya/slot-booking/pkg/response"
)

const (
	// IdempotencyKeyHeader carries the client's retry key on reservation and payment calls
	IdempotencyKeyHeader = "X-Idempotency-Key"
	// DefaultIdempotencyTTL covers client retries of reservation and payment calls
	DefaultIdempotencyTTL = 10 * time.Minute
	// IdempotencyKeyPrefix namespaces replay records in Redis
	IdempotencyKeyPrefix = "idempotency:"

	defaultInFlightTTL = 60 * time.Second
)

type replayState string

const (
	replayInFlight replayState = "processing"
	replayDone     replayState = "completed"
)

// replayRecord is the stored outcome of one keyed request
type replayRecord struct {
	State       replayState `json:"status"`
	RequestHash string      `json:"request_hash"`
	Code        int         `json:"response_code"`
	Body        string      `json:"response_body"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ReplayStore is the subset of the Redis client the middleware needs
type ReplayStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdempotencyConfig holds configuration for idempotency middleware
type IdempotencyConfig struct {
	Redis ReplayStore
	// TTL of a completed response
	TTL time.Duration
	// InFlightTTL bounds how long a crashed request blocks its key
	InFlightTTL time.Duration
	// SkipPaths are exact paths, or prefixes when they end in "*"
	SkipPaths []string
}

// DefaultIdempotencyConfig returns default configuration
func DefaultIdempotencyConfig(store ReplayStore) *IdempotencyConfig {
	return &IdempotencyConfig{
		Redis:       store,
		TTL:         DefaultIdempotencyTTL,
		InFlightTTL: defaultInFlightTTL,
	}
}

// IdempotencyMiddleware replays the stored response of a mutating request that
// repeats an X-Idempotency-Key. Requests without a key pass through. Records are
// scoped per user, and 5xx responses are dropped so the client may retry.
func IdempotencyMiddleware(config *IdempotencyConfig) gin.HandlerFunc {
	if config.InFlightTTL == 0 {
		config.InFlightTTL = defaultInFlightTTL
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || skipPath(c.Request.URL.Path, config.SkipPaths) {
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" {
			c.Next()
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		userID, _ := GetUserID(c)
		hash := requestHash(c.Request.Method, c.Request.URL.Path, userID, body)
		redisKey := IdempotencyKeyPrefix + key
		if userID != "" {
			redisKey = IdempotencyKeyPrefix + userID + ":" + key
		}

		ctx := c.Request.Context()

		existing, err := loadRecord(ctx, config.Redis, redisKey)
		if err != nil && !errors.Is(err, redis.Nil) {
			logger.Get().Warn("Idempotency lookup failed, continuing without it",
				zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if existing != nil {
			replay(c, existing, hash)
			return
		}

		record := &replayRecord{State: replayInFlight, RequestHash: hash, CreatedAt: time.Now()}
		if !claimRecord(ctx, config.Redis, redisKey, record, config.InFlightTTL) {
			// lost the race to a concurrent request with the same key
			if existing, _ = loadRecord(ctx, config.Redis, redisKey); existing != nil {
				replay(c, existing, hash)
				return
			}
		}

		rw := &capturingWriter{ResponseWriter: c.Writer, body: bytes.NewBuffer(nil)}
		c.Writer = rw

		c.Next()

		if rw.Status() >= http.StatusInternalServerError {
			_ = config.Redis.Del(ctx, redisKey).Err()
			return
		}

		record.State = replayDone
		record.Code = rw.Status()
		record.Body = rw.body.String()
		if err := storeRecord(ctx, config.Redis, redisKey, record, config.TTL); err != nil {
			logger.Get().Warn("Failed to store idempotency record", zap.String("key", key), zap.Error(err))
		}
	}
}

func replay(c *gin.Context, record *replayRecord, hash string) {
	switch {
	case record.RequestHash != hash:
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, response.ErrorBody("IDEMPOTENCY_KEY_REUSED", "Idempotency key already used with different request"))
	case record.State == replayInFlight:
		c.AbortWithStatusJSON(http.StatusConflict, response.ErrorBody("REQUEST_IN_PROGRESS", "A request with this idempotency key is already being processed"))
	default:
		c.Data(record.Code, "application/json", []byte(record.Body))
		c.Abort()
	}
}

type capturingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func skipPath(path string, patterns []string) bool {
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		} else if path == p {
			return true
		}
	}
	return false
}

func requestHash(method, path, userID string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write([]byte(userID))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func loadRecord(ctx context.Context, store ReplayStore, key string) (*replayRecord, error) {
	raw, err := store.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var record replayRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func claimRecord(ctx context.Context, store ReplayStore, key string, record *replayRecord, ttl time.Duration) bool {
	data, err := json.Marshal(record)
	if err != nil {
		return false
	}
	ok, err := store.SetNX(ctx, key, data, ttl).Result()
	return err == nil && ok
}

func storeRecord(ctx context.Context, store ReplayStore, key string, record *replayRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, data, ttl).Err()
}
