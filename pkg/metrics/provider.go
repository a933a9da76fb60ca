package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/realtime-ai/voice-client/pkg/logger"
)

// ProviderConfig configures the metrics endpoint.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string
	// Addr is the listen address of the /metrics endpoint. Empty disables
	// the endpoint; instruments still record.
	Addr   string
	Logger *zap.Logger
}

// Provider owns the meter provider and the /metrics server.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Registry      *prometheus.Registry

	server   *http.Server
	listener net.Listener
	log      *zap.Logger
}

// InitProvider builds a MeterProvider backed by a Prometheus exporter on a
// private registry, registers it globally and starts serving /metrics.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "voice-client"
	}
	log := logger.Or(cfg.Logger, "metrics")

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	)
	otel.SetMeterProvider(mp)

	p := &Provider{MeterProvider: mp, Registry: reg, log: log}
	if cfg.Addr == "" {
		return p, nil
	}

	lis, err := (&net.ListenConfig{}).Listen(ctx, "tcp", cfg.Addr)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	p.listener = lis
	p.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := p.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()
	log.Info("metrics endpoint listening", zap.String("addr", lis.Addr().String()))
	return p, nil
}

// Addr returns the bound address of the /metrics endpoint, or "".
func (p *Provider) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Shutdown stops the endpoint and flushes the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.server != nil {
		errs = append(errs, p.server.Shutdown(ctx))
	}
	errs = append(errs, p.MeterProvider.Shutdown(ctx))
	return errors.Join(errs...)
}
