package correlation

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "cid-1")
	_, cid := EnsureCorrelationID(ctx)
	if cid != "cid-1" {
		t.Fatalf("expected existing correlation id, got %q", cid)
	}
}

func TestEnsureCorrelationIDGenerates(t *testing.T) {
	ctx, cid := EnsureCorrelationID(context.Background())
	if cid == "" {
		t.Fatalf("expected generated correlation id")
	}
	if ExtractCorrelationID(ctx) != cid {
		t.Fatalf("expected correlation id on context")
	}
}

func TestContextFromHeaders(t *testing.T) {
	ctx := ContextFromHeaders(context.Background(), map[string]string{
		HeaderCorrelationID: "cid-2",
		HeaderTraceID:       "4bf92f3577b34da6a3ce929d0e0e4736",
		HeaderSpanID:        "00f067aa0ba902b7",
	})
	if ExtractCorrelationID(ctx) != "cid-2" {
		t.Fatalf("expected correlation id from headers")
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsRemote() {
		t.Fatalf("expected remote span context, got %+v", sc)
	}
}

func TestContextFromHeadersIgnoresInvalidTrace(t *testing.T) {
	ctx := ContextFromHeaders(context.Background(), map[string]string{
		HeaderTraceID: "not-hex",
		HeaderSpanID:  "00f067aa0ba902b7",
	})
	if trace.SpanContextFromContext(ctx).IsValid() {
		t.Fatalf("expected no span context for invalid trace id")
	}
}

func TestContextFromHeadersNormalizesKeys(t *testing.T) {
	ctx := ContextFromHeaders(context.Background(), map[string]string{
		"Correlation_ID": " cid-3 ",
	})
	if got := ExtractCorrelationID(ctx); got != "cid-3" {
		t.Fatalf("expected trimmed correlation id, got %q", got)
	}
}
