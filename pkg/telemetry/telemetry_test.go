package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_Disabled(t *testing.T) {
	tel, err := Init(context.Background(), &Config{Enabled: false, ServiceName: "slot-booking"})
	require.NoError(t, err)
	require.NotNil(t, tel)

	ctx, span := StartSpan(context.Background(), "service.booking.reserve")
	defer span.End()
	assert.NotNil(t, ctx)
	assert.NoError(t, Shutdown(context.Background()))
}

func TestInit_NilConfig(t *testing.T) {
	_, err := Init(context.Background(), nil)
	assert.NoError(t, err)
}

func TestInstruments_OnNoopProvider(t *testing.T) {
	ctx := context.Background()

	c, err := NewCounter(MetricOpts{Name: "test_counter_total", Unit: "1"})
	require.NoError(t, err)
	c.Inc(ctx, attribute.String("slot_id", "s-1"))
	c.Add(ctx, 3)

	h, err := NewHistogramWithBuckets(MetricOpts{Name: "test_duration_seconds", Unit: "s"}, []float64{0.1, 1})
	require.NoError(t, err)
	h.Record(ctx, 0.25)

	u, err := NewUpDownCounter(MetricOpts{Name: "test_active", Unit: "1"})
	require.NoError(t, err)
	u.Add(ctx, -1)
}

func TestTracingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := gin.New()
	r.Use(TracingMiddleware())
	r.GET("/slots/:id/availability", func(c *gin.Context) {
		assert.NotEmpty(t, GetTraceID(c.Request.Context()))
		c.Status(http.StatusOK)
	})
	r.GET("/boom", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slots/s-1/availability", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(TraceIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /slots/:id/availability", spans[0].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
}

func TestGetTraceID_Empty(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
}
