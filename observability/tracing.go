package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/relayhq/eventrelay"

// Tracer provides OpenTelemetry tracing for delivery attempts.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new relay tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartDeliverySpan starts a new span for a single delivery attempt.
func (t *Tracer) StartDeliverySpan(ctx context.Context, eventID, subscriptionID string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "eventrelay.delivery",
		trace.WithAttributes(
			attribute.String("eventrelay.event_id", eventID),
			attribute.String("eventrelay.subscription_id", subscriptionID),
			attribute.Int("eventrelay.attempt", attempt),
		),
	)
}

// EndDeliverySpan ends a delivery span with the attempt's result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode, latencyMs int, err string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("eventrelay.latency_ms", latencyMs),
	)
	if err != "" {
		span.SetAttributes(attribute.String("eventrelay.error", err))
	}
	span.End()
}
