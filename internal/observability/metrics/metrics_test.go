package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event_type", "status_change"),
		attribute.String("invoice_id", "inv_1"),
		attribute.String("outcome", "ok"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "event_type" && attrs[1].Key != "event_type" {
		t.Fatalf("expected event_type to be retained")
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordEvent(context.Background(), "create", "ok")
	m.RecordHistoryEntry(context.Background(), "status")
	m.RecordRemoteCall(context.Background(), "accept", "error")
	m.RecordLockWait(context.Background(), 0)
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "chargeback"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordEvent(context.Background(), "create", "ok")
}

func TestInstrumentsAreCollected(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := New(Config{}, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordEvent(ctx, "status_change", "ok")
	m.RecordHistoryEntry(ctx, "hold")
	m.RecordRemoteCall(ctx, "accept", RemoteOutcomeFailure)
	m.RecordLockWait(ctx, 5*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	assert.Equal(t, "chargeback", rm.ScopeMetrics[0].Scope.Name)

	names := map[string]bool{}
	for _, metric := range rm.ScopeMetrics[0].Metrics {
		names[metric.Name] = true
	}
	for _, want := range []string{
		"chargeback_events_total",
		"chargeback_history_entries_total",
		"chargeback_remote_calls_total",
		"chargeback_lock_wait_seconds",
	} {
		assert.True(t, names[want], want)
	}
}

func TestNewExporterRejectsUnknownProtocol(t *testing.T) {
	_, err := newExporter("thrift", "")
	assert.ErrorContains(t, err, "unsupported OTLP protocol")
}
