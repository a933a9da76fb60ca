package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	SpanOpenChannel = "session.open_channel"
	SpanTurn        = "session.turn"
	SpanAbort       = "session.abort"
	SpanDance       = "session.dance"
	SpanOTACheck    = "ota.check"
)

// InstrumentOpenChannel covers dialing and the hello handshake.
func InstrumentOpenChannel(ctx context.Context, url string) (context.Context, trace.Span) {
	return start(ctx, SpanOpenChannel, attribute.String(AttrProtocolURL, url))
}

// InstrumentTurn covers one listening turn, from Listening until the reply
// finishes or the turn is abandoned. audio carries AudioAttrs of the stream.
func InstrumentTurn(ctx context.Context, sessionID, mode string, audio ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := append(SessionAttrs(sessionID), attribute.String(AttrListeningMode, mode))
	return start(ctx, SpanTurn, append(attrs, audio...)...)
}

func InstrumentAbort(ctx context.Context, sessionID, reason, breakMode string) (context.Context, trace.Span) {
	attrs := append(SessionAttrs(sessionID),
		attribute.String(AttrAbortReason, reason),
		attribute.String(AttrBreakMode, breakMode),
	)
	return start(ctx, SpanAbort, attrs...)
}

func InstrumentDance(ctx context.Context, name string) (context.Context, trace.Span) {
	return start(ctx, SpanDance, attribute.String(AttrDanceName, name))
}

// InstrumentOTACheck covers one version check attempt.
func InstrumentOTACheck(ctx context.Context, url string, attempt int) (context.Context, trace.Span) {
	return start(ctx, SpanOTACheck,
		attribute.String(AttrOTAURL, url),
		attribute.Int(AttrOTAAttempt, attempt),
	)
}
