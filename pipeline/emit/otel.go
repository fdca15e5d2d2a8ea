package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter bridges pipeline events to OpenTelemetry spans.
//
// Each event becomes a short span named after the event message, carrying the
// run id, node name, status and all metadata as attributes. Events whose
// metadata includes "error" mark the span as failed.
//
// Setup:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	emitter := emit.NewOTelEmitter(otel.Tracer("pipeflow"))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter over the given tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit records the event as an immediately-ended span.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("pipeline.run_id", event.RunID),
	}
	if event.Node != "" {
		attrs = append(attrs, attribute.String("pipeline.node", event.Node))
	}
	if event.Status != "" {
		attrs = append(attrs, attribute.String("pipeline.status", event.Status))
	}
	for key, value := range event.Meta {
		attrs = append(attrs, metaAttribute("pipeline.meta."+key, value))
	}
	span.SetAttributes(attrs...)

	if errText, ok := event.Meta["error"].(string); ok && errText != "" {
		span.SetStatus(codes.Error, errText)
		span.RecordError(fmt.Errorf("%s", errText))
	}
}

// metaAttribute converts a metadata value to a typed attribute, falling back
// to its string form.
func metaAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
