package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the service instruments. A nil *Metrics records nothing.
type Metrics struct {
	requests     metric.Int64Counter
	cacheLookups metric.Int64Counter
	denied       metric.Int64Counter
	llmDuration  metric.Float64Histogram
}

func NewMetrics() *Metrics {
	return NewMetricsFrom(otel.Meter("phishguard"))
}

func NewMetricsFrom(meter metric.Meter) *Metrics {
	requests, _ := meter.Int64Counter("phishguard_requests_total",
		metric.WithDescription("Analyze requests by outcome"))
	cacheLookups, _ := meter.Int64Counter("phishguard_cache_lookups_total",
		metric.WithDescription("URL cache lookups by result"))
	denied, _ := meter.Int64Counter("phishguard_ratelimit_denied_total",
		metric.WithDescription("Requests rejected by the rate limiter"))
	llmDuration, _ := meter.Float64Histogram("phishguard_llm_duration_ms",
		metric.WithDescription("LLM classifier latency"),
		metric.WithUnit("ms"))
	return &Metrics{
		requests:     requests,
		cacheLookups: cacheLookups,
		denied:       denied,
		llmDuration:  llmDuration,
	}
}

func (m *Metrics) RecordRequest(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) RecordDenied(ctx context.Context) {
	if m == nil {
		return
	}
	m.denied.Add(ctx, 1)
}

func (m *Metrics) RecordLLM(ctx context.Context, elapsed time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.llmDuration.Record(ctx, float64(elapsed.Microseconds())/1000,
		metric.WithAttributes(attribute.Bool("ok", ok)))
}
