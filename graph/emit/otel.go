package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns events into OpenTelemetry spans.
//
// Each event becomes a short span named after Event.Msg with the run, hop,
// and node as attributes, plus every Meta entry. Events carrying an "error"
// meta key set the span status to Error. Spans are ended immediately: an
// event marks a point in a run, not an interval.
//
// Usage:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//
//	emitter := emit.NewOTelEmitter(otel.Tracer("finflow"))
//	engine, err := graph.New(reducer, emitter)
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter producing spans through the given
// tracer, typically otel.Tracer("finflow").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit records the event as a span. Never blocks beyond span bookkeeping;
// export happens in the provider's batch processor.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.String("finflow.run_id", event.RunID),
		attribute.Int("finflow.hop", event.Hop),
		attribute.String("finflow.node", event.Node),
	)
	o.addMetaAttributes(span, event.Meta)

	if errText, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errText)
		span.RecordError(fmt.Errorf("%s", errText))
	}
}

// Flush forces export of pending spans through the global tracer provider.
// Call before shutdown so the tail of a run is not lost in the batch
// processor's buffer. A provider without ForceFlush (such as the noop
// provider) flushes trivially.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	tp := otel.GetTracerProvider()

	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

// addMetaAttributes maps event meta onto span attributes. Well-known keys
// get namespaced attribute names; everything else keeps its key.
func (o *OTelEmitter) addMetaAttributes(span trace.Span, meta map[string]any) {
	for key, value := range meta {
		attrKey := key
		switch key {
		case "elapsed_ms":
			attrKey = "finflow.node.elapsed_ms"
		case "tokens_prompt":
			attrKey = "finflow.llm.tokens_prompt"
		case "tokens_completion":
			attrKey = "finflow.llm.tokens_completion"
		case "tokens_total":
			attrKey = "finflow.llm.tokens_total"
		case "provider":
			attrKey = "finflow.llm.provider"
		case "to":
			attrKey = "finflow.diverted_to"
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}
