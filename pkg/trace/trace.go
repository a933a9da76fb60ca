// Package trace wires OpenTelemetry tracing for the client. Spans cover
// channel opens, turns, aborts, dances and version checks; they are no-ops
// until Setup installs an exporter.
package trace

import (
	"context"
	"io"
	"os"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/realtime-ai/voice-client/pkg/config"
	verrors "github.com/realtime-ai/voice-client/pkg/errors"
	"github.com/realtime-ai/voice-client/pkg/logger"
)

const TracerName = "github.com/realtime-ai/voice-client"

// Exporter names accepted in the trace config.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

var (
	ErrAlreadySetUp = verrors.New(verrors.KindConfig, "trace.setup", "tracing is already set up")

	// installed is the tracer Setup registered; nil means no-op
	installed atomic.Pointer[trace.Tracer]
)

// Identity names this process on every exported span.
type Identity struct {
	ServiceName    string
	ServiceVersion string
	DeviceID       string
	// Writer receives stdout-exporter spans. Defaults to stderr, since
	// stdout carries the console display.
	Writer io.Writer
	Logger *zap.Logger
}

// Provider owns the SDK tracer provider. Shutdown flushes pending spans.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Setup builds the exporter named by cfg and installs it as the span sink.
// The "none" exporter installs nothing and spans stay no-ops.
func Setup(ctx context.Context, cfg config.TraceConfig, id Identity) (*Provider, error) {
	log := logger.Or(id.Logger, "trace")
	if cfg.Exporter == "" || cfg.Exporter == ExporterNone {
		log.Debug("tracing disabled")
		return &Provider{}, nil
	}
	if installed.Load() != nil {
		return nil, ErrAlreadySetUp
	}

	exporter, err := newExporter(ctx, cfg, id.Writer)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(id.ServiceName),
			semconv.ServiceVersion(id.ServiceVersion),
			attribute.String(AttrDeviceID, id.DeviceID),
		),
	)
	if err != nil {
		return nil, verrors.Wrap(verrors.KindConfig, "trace.setup", "build resource", err)
	}

	rate := min(max(cfg.SamplingRate, 0), 1)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := tp.Tracer(TracerName)
	installed.Store(&t)
	log.Info("tracing enabled",
		zap.String("exporter", cfg.Exporter),
		zap.Float64("sampling_rate", rate))
	return &Provider{tp: tp}, nil
}

func newExporter(ctx context.Context, cfg config.TraceConfig, w io.Writer) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterStdout:
		if w == nil {
			w = os.Stderr
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, verrors.Wrap(verrors.KindConfig, "trace.setup", "create stdout exporter", err)
		}
		return exp, nil
	case ExporterOTLP:
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		exp, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, verrors.Wrap(verrors.KindNetwork, "trace.setup", "create otlp exporter", err)
		}
		return exp, nil
	default:
		return nil, verrors.New(verrors.KindConfig, "trace.setup", "unsupported exporter "+cfg.Exporter)
	}
}

// Shutdown flushes and stops the provider. Spans started afterwards are
// no-ops. Safe on a disabled provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	installed.Store(nil)
	if err := p.tp.Shutdown(ctx); err != nil {
		return verrors.Wrap(verrors.KindResource, "trace.shutdown", "flush spans", err)
	}
	return nil
}

func tracer() trace.Tracer {
	if t := installed.Load(); t != nil {
		return *t
	}
	return otel.Tracer(TracerName)
}

func start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}
