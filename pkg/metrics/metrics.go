// Package metrics records client health through the OpenTelemetry metrics
// API. InitProvider bridges the instruments to a Prometheus /metrics
// endpoint; tests build Metrics over their own MeterProvider.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope of every instrument.
const meterName = "github.com/realtime-ai/voice-client"

// Metrics holds the instruments. All fields are safe for concurrent use.
type Metrics struct {
	// PacketsSent counts encoded packets sent upstream.
	PacketsSent metric.Int64Counter
	// PacketsReceived counts packets received from the server.
	PacketsReceived metric.Int64Counter
	// DecodeErrors counts packets that failed to decode.
	DecodeErrors metric.Int64Counter

	// Aborts counts interrupted replies. Attribute: reason.
	Aborts metric.Int64Counter
	// WakeWords counts detected keywords.
	WakeWords metric.Int64Counter
	// StateChanges counts conversation transitions. Attribute: state.
	StateChanges metric.Int64Counter
	// ChannelOpens counts audio channel open attempts. Attribute: status.
	ChannelOpens metric.Int64Counter

	// TickDuration is the time spent in one frame tick.
	TickDuration metric.Float64Histogram

	meter metric.Meter
}

// tickBuckets are in milliseconds, around a 30 ms tick.
var tickBuckets = []float64{0.5, 1, 2, 5, 10, 20, 30, 50, 100}

// New creates the instruments on mp.
func New(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.PacketsSent, err = m.Int64Counter("voice.packets.sent",
		metric.WithDescription("Encoded audio packets sent to the server."),
	); err != nil {
		return nil, err
	}
	if met.PacketsReceived, err = m.Int64Counter("voice.packets.received",
		metric.WithDescription("Audio packets received from the server."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("voice.decode.errors",
		metric.WithDescription("Received packets that failed to decode."),
	); err != nil {
		return nil, err
	}
	if met.Aborts, err = m.Int64Counter("voice.aborts",
		metric.WithDescription("Interrupted replies by reason."),
	); err != nil {
		return nil, err
	}
	if met.WakeWords, err = m.Int64Counter("voice.wake_words",
		metric.WithDescription("Detected wake words."),
	); err != nil {
		return nil, err
	}
	if met.StateChanges, err = m.Int64Counter("voice.state.changes",
		metric.WithDescription("Conversation state transitions by target state."),
	); err != nil {
		return nil, err
	}
	if met.ChannelOpens, err = m.Int64Counter("voice.channel.opens",
		metric.WithDescription("Audio channel open attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.TickDuration, err = m.Float64Histogram("voice.tick.duration",
		metric.WithDescription("Time spent in one frame tick."),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Nop returns instruments that record nothing.
func Nop() *Metrics {
	m, err := New(noop.NewMeterProvider())
	if err != nil {
		panic("metrics: noop provider failed: " + err.Error())
	}
	return m
}

// ObserveDevice exports the device's cumulative counters on every
// collection.
func (m *Metrics) ObserveDevice(underruns, dropped func() uint64) error {
	u, err := m.meter.Int64ObservableCounter("voice.playback.underruns",
		metric.WithDescription("Playback buffer underruns."))
	if err != nil {
		return err
	}
	d, err := m.meter.Int64ObservableCounter("voice.capture.dropped",
		metric.WithDescription("Captured samples dropped because the input buffer was full."),
		metric.WithUnit("{sample}"))
	if err != nil {
		return err
	}
	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(u, int64(underruns()))
		o.ObserveInt64(d, int64(dropped()))
		return nil
	}, u, d)
	return err
}

// RecordAbort counts one interrupted reply.
func (m *Metrics) RecordAbort(ctx context.Context, reason string) {
	if reason == "" {
		reason = "none"
	}
	m.Aborts.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordState counts one transition into state.
func (m *Metrics) RecordState(ctx context.Context, state string) {
	m.StateChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordChannelOpen counts one open attempt.
func (m *Metrics) RecordChannelOpen(ctx context.Context, ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.ChannelOpens.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
