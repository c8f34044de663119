package delivery

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "webhook-bridge/delivery"

// Tracer opens one span per delivery.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer uses tp, or the global provider when tp is nil.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(tracerName)}
}

func (t *Tracer) StartDeliverySpan(ctx context.Context, deliveryID string, registrationID int64, roomID, eventID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "webhook.delivery",
		trace.WithAttributes(
			attribute.String("webhook.delivery_id", deliveryID),
			attribute.Int64("webhook.registration_id", registrationID),
			attribute.String("chat.room_id", roomID),
			attribute.String("chat.event_id", eventID),
		),
	)
}

func (t *Tracer) EndDeliverySpan(span trace.Span, o Outcome) {
	span.SetAttributes(
		attribute.Int("webhook.attempts", o.Attempts),
		attribute.Int("http.status_code", o.StatusCode),
		attribute.Bool("webhook.delivered", o.Delivered),
	)
	if o.Err != nil {
		span.RecordError(o.Err)
		span.SetStatus(codes.Error, o.Err.Error())
	}
	span.End()
}
