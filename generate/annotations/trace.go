package annotations

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceHandler turns events into OpenTelemetry spans whose timestamps are
// taken from the event. Spans are children of the span in ctx, if any.
func TraceHandler(ctx context.Context, tracer trace.Tracer) Handler {
	return func(event Event) {
		_, span := tracer.Start(ctx, event.Name, trace.WithTimestamp(event.Start))
		span.SetAttributes(attributes(event.Data)...)

		if errv, ok := event.Data["error"]; ok && errv != nil {
			if err, ok := errv.(error); ok {
				span.RecordError(err)
			}
			span.SetStatus(codes.Error, fmt.Sprint(errv))
		}
		span.End(trace.WithTimestamp(event.End))
	}
}

func attributes(data map[string]interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(data))
	for k, v := range data {
		switch x := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, x))
		case int:
			attrs = append(attrs, attribute.Int(k, x))
		case int64:
			attrs = append(attrs, attribute.Int64(k, x))
		case bool:
			attrs = append(attrs, attribute.Bool(k, x))
		case float64:
			attrs = append(attrs, attribute.Float64(k, x))
		case nil:
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(x)))
		}
	}
	return attrs
}
