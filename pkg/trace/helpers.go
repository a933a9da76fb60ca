package trace

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	verrors "github.com/realtime-ai/voice-client/pkg/errors"
)

// RecordError marks the span failed and tags the event with the error kind.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err, trace.WithAttributes(ErrorAttrs(string(verrors.KindOf(err)), err.Error())...))
	span.SetStatus(codes.Error, err.Error())
}

// LogFields links a log line to the span in ctx. Unsampled or missing
// spans yield no fields.
func LogFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
