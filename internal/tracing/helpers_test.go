package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans installs a recording tracer provider for the duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return recorder
}

func attrMap(attrs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, a := range attrs {
		out[string(a.Key)] = a.Value.Emit()
	}
	return out
}

func TestStartDBSpan(t *testing.T) {
	tests := []struct {
		name      string
		system    string
		table     string
		operation DBOperation
		wantName  string
	}{
		{"postgres query", "postgresql", "pins", DBOperationQuery, "query pins"},
		{"sqlite insert", "sqlite", "users", DBOperationInsert, "insert users"},
		{"no table", "postgresql", "", DBOperationQuery, "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := recordSpans(t)

			_, end := StartDBSpan(context.Background(), tt.system, tt.table, tt.operation)
			end(nil)

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			span := spans[0]
			if span.Name() != tt.wantName {
				t.Errorf("expected span name %q, got %q", tt.wantName, span.Name())
			}

			attrs := attrMap(span.Attributes())
			if attrs["db.system"] != tt.system {
				t.Errorf("expected db.system=%s, got %s", tt.system, attrs["db.system"])
			}
			if attrs["db.operation"] != string(tt.operation) {
				t.Errorf("expected db.operation=%s, got %s", tt.operation, attrs["db.operation"])
			}
			table, hasTable := attrs["db.sql.table"]
			if tt.table == "" && hasTable {
				t.Error("unexpected db.sql.table attribute")
			}
			if tt.table != "" && table != tt.table {
				t.Errorf("expected db.sql.table=%s, got %s", tt.table, table)
			}
		})
	}
}

func TestStartDBSpan_WithError(t *testing.T) {
	recorder := recordSpans(t)
	testErr := errors.New("database error")

	_, end := StartDBSpan(context.Background(), "postgresql", "pins", DBOperationQuery)
	end(testErr)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %s", spans[0].Status().Code)
	}
	if spans[0].Status().Description != testErr.Error() {
		t.Errorf("expected description %q, got %q", testErr.Error(), spans[0].Status().Description)
	}
}

func TestStartSpan(t *testing.T) {
	recorder := recordSpans(t)

	_, end := StartSpan(context.Background(), "geocode.lookup", attribute.Int("limit", 5))
	end(nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "geocode.lookup" {
		t.Errorf("expected span name geocode.lookup, got %q", spans[0].Name())
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("expected non-error status")
	}
	if attrMap(spans[0].Attributes())["limit"] != "5" {
		t.Errorf("expected limit attribute 5, got %v", spans[0].Attributes())
	}
}

func TestAddEvent(t *testing.T) {
	recorder := recordSpans(t)

	ctx, end := StartSpan(context.Background(), "test-span")
	AddEvent(ctx, "cache_hit", attribute.String("key", "geocode:5:colombo"))
	end(nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	events := spans[0].Events()
	if len(events) != 1 || events[0].Name != "cache_hit" {
		t.Fatalf("expected one cache_hit event, got %+v", events)
	}
}
