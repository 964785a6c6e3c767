package observability_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orders/internal/config"
	"github.com/Additional-Code/orders/internal/observability"
)

func TestNew_Disabled(t *testing.T) {
	mgr, err := observability.New(context.Background(), config.Observability{ServiceName: "orders"}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mgr.TracingEnabled())
	assert.False(t, mgr.MetricsEnabled())
	assert.Nil(t, mgr.MetricsHandler())
	assert.NotNil(t, mgr.MeterProvider())
	assert.NotNil(t, mgr.TracerProvider())
	assert.NoError(t, mgr.Shutdown(context.Background()))
}

func TestNew_PrometheusExportsCounters(t *testing.T) {
	ctx := context.Background()
	mgr, err := observability.New(ctx, config.Observability{
		ServiceName:     "orders",
		EnableMetrics:   true,
		MetricsExporter: "prometheus",
		PrometheusPath:  "/metrics",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	require.True(t, mgr.MetricsEnabled())
	assert.Equal(t, "/metrics", mgr.PrometheusPath())

	counter, err := mgr.MeterProvider().Meter("test").Int64Counter("orders_created_test")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "orders_created_test")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNew_OTLPRequiresEndpoint(t *testing.T) {
	_, err := observability.New(context.Background(), config.Observability{
		EnableTracing: true,
		TraceExporter: "otlp",
	}, zap.NewNop())
	require.Error(t, err)
}

func TestNew_UnknownExportersAreIgnored(t *testing.T) {
	mgr, err := observability.New(context.Background(), config.Observability{
		EnableTracing:   true,
		TraceExporter:   "zipkin",
		EnableMetrics:   true,
		MetricsExporter: "statsd",
	}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, mgr.TracingEnabled())
	assert.False(t, mgr.MetricsEnabled())
}
