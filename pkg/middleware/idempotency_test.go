package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdempotencyRouter(t *testing.T, status int) (*gin.Engine, *int32, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var calls int32
	cfg := DefaultIdempotencyConfig(client)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextKeyUserID, c.GetHeader(UserIDHeader))
		c.Next()
	})
	r.POST("/reservations", IdempotencyMiddleware(cfg), func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(status, gin.H{"call": n})
	})
	return r, &calls, mr
}

func doPost(r *gin.Engine, key, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	req.Header.Set(UserIDHeader, user)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	r, calls, _ := newIdempotencyRouter(t, http.StatusCreated)

	first := doPost(r, "k1", "user-1", `{"slot_id":"s-1"}`)
	second := doPost(r, "k1", "user-1", `{"slot_id":"s-1"}`)

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestIdempotency_DifferentBodyRejected(t *testing.T) {
	r, _, _ := newIdempotencyRouter(t, http.StatusCreated)

	doPost(r, "k1", "user-1", `{"slot_id":"s-1"}`)
	w := doPost(r, "k1", "user-1", `{"slot_id":"s-2"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestIdempotency_KeysScopedPerUser(t *testing.T) {
	r, calls, _ := newIdempotencyRouter(t, http.StatusCreated)

	doPost(r, "k1", "user-1", `{"slot_id":"s-1"}`)
	doPost(r, "k1", "user-2", `{"slot_id":"s-1"}`)

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestIdempotency_MissingKeyPassesThrough(t *testing.T) {
	r, calls, _ := newIdempotencyRouter(t, http.StatusCreated)

	doPost(r, "", "user-1", `{}`)
	doPost(r, "", "user-1", `{}`)

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestIdempotency_ServerErrorsNotCached(t *testing.T) {
	r, calls, mr := newIdempotencyRouter(t, http.StatusInternalServerError)

	doPost(r, "k1", "user-1", `{}`)
	doPost(r, "k1", "user-1", `{}`)

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	assert.False(t, mr.Exists(IdempotencyKeyPrefix+"user-1:k1"))
}

func TestIdempotency_InProgress(t *testing.T) {
	r, calls, mr := newIdempotencyRouter(t, http.StatusCreated)

	w := doPost(r, "k1", "user-1", `{}`)
	require.Equal(t, http.StatusCreated, w.Code)

	record, err := mr.Get(IdempotencyKeyPrefix + "user-1:k1")
	require.NoError(t, err)
	processing := strings.Replace(record, `"status":"completed"`, `"status":"processing"`, 1)
	require.NoError(t, mr.Set(IdempotencyKeyPrefix+"user-1:k1", processing))

	w = doPost(r, "k1", "user-1", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestIdempotency_SkipPathsAndReadsBypassStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := DefaultIdempotencyConfig(client)
	cfg.SkipPaths = []string{"/internal/*"}

	var calls int32
	r := gin.New()
	r.Use(IdempotencyMiddleware(cfg))
	count := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"call": atomic.AddInt32(&calls, 1)}) }
	r.POST("/internal/sweep", count)
	r.GET("/slots", count)

	for _, target := range []struct{ method, path string }{
		{http.MethodPost, "/internal/sweep"},
		{http.MethodPost, "/internal/sweep"},
		{http.MethodGet, "/slots"},
		{http.MethodGet, "/slots"},
	} {
		req := httptest.NewRequest(target.method, target.path, nil)
		req.Header.Set(IdempotencyKeyHeader, "k1")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Empty(t, mr.Keys())
}
