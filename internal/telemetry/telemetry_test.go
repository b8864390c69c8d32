package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "phishguard-test", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordRequest(ctx, "ok")
		m.RecordCacheLookup(ctx, true)
		m.RecordDenied(ctx)
		m.RecordLLM(ctx, time.Second, false)
	})
}

func TestMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewMetricsFrom(provider.Meter("test"))

	ctx := context.Background()
	m.RecordRequest(ctx, "ok")
	m.RecordRequest(ctx, "ok")
	m.RecordCacheLookup(ctx, false)
	m.RecordDenied(ctx)
	m.RecordLLM(ctx, 1500*time.Millisecond, true)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics[0].Metrics {
		names[sm.Name] = true
		if sm.Name == "phishguard_requests_total" {
			sum := sm.Data.(metricdata.Sum[int64])
			require.Len(t, sum.DataPoints, 1)
			assert.Equal(t, int64(2), sum.DataPoints[0].Value)
		}
	}
	assert.True(t, names["phishguard_cache_lookups_total"])
	assert.True(t, names["phishguard_ratelimit_denied_total"])
	assert.True(t, names["phishguard_llm_duration_ms"])
}

func TestInitLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := initLogger(&buf, "svc", "warn", true)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"svc"`)

	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
