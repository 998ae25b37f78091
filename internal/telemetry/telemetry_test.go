package telemetry

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestInitTracerWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "discovery", "")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestKafkaHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	headers := []kafka.Header{{Key: "source", Value: []byte("discovery")}}
	InjectKafkaHeaders(ctx, &headers)
	require.Len(t, headers, 2)

	extracted := trace.SpanContextFromContext(ExtractKafkaHeaders(context.Background(), headers))
	require.Equal(t, traceID, extracted.TraceID())
	require.Equal(t, spanID, extracted.SpanID())
	require.True(t, extracted.IsRemote())
}

func TestKafkaHeaderCarrierSetReplaces(t *testing.T) {
	carrier := &kafkaHeaderCarrier{}
	carrier.Set("traceparent", "a")
	carrier.Set("TraceParent", "b")
	require.Equal(t, "b", carrier.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, carrier.Keys())
}
