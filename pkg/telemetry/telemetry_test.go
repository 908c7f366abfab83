package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Disabled(t *testing.T) {
	tel, err := Init(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "rpg-lobby", tel.ServiceName())

	ctx, span := StartSpan(context.Background(), "test.span")
	defer span.End()
	assert.NotNil(t, ctx)
	assert.NoError(t, Shutdown(context.Background()))
}

func TestInstruments_NoopProvider(t *testing.T) {
	counter, err := NewCounter(MetricOpts{Name: "test_total", Unit: "1"})
	require.NoError(t, err)
	counter.Inc(context.Background())

	hist, err := NewHistogramWithBuckets(MetricOpts{Name: "test_seconds", Unit: "s"}, []float64{0.1, 1})
	require.NoError(t, err)
	hist.Record(context.Background(), 0.5)

	gauge, err := NewUpDownCounter(MetricOpts{Name: "test_gauge", Unit: "1"})
	require.NoError(t, err)
	gauge.Inc(context.Background())
	gauge.Dec(context.Background())

	var nilCounter *Counter
	assert.NotPanics(t, func() { nilCounter.Inc(context.Background()) })
}

func TestTracingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TracingMiddleware("/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(TraceIDHeader))
}
