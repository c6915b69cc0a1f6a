package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestFromContext_AddsRequestAndTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	base := New("info", &buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})

	ctx := WithContext(context.Background(), base)
	ctx = context.WithValue(ctx, middleware.RequestIDKey, "req-42")
	ctx = trace.ContextWithSpanContext(ctx, sc)

	FromContext(ctx).Info("hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "req-42", record["request_id"])
	assert.Equal(t, traceID.String(), record["trace_id"])
	assert.Equal(t, spanID.String(), record["span_id"])
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", &buf)

	l.Info("dropped")
	assert.Empty(t, buf.String())

	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestFromContext_DefaultLogger(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
}

func TestEnrich_KeepsComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New("info", &buf).With("component", "checkout")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-7")
	Enrich(ctx, base).Info("started")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "checkout", record["component"])
	assert.Equal(t, "req-7", record["request_id"])
	assert.NotContains(t, record, "trace_id")
}
