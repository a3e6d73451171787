// Package observability wires OpenTelemetry tracing and metrics, with console,
// OTLP and Prometheus exporters, and records the service's own instruments.
package observability

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"

	"resumeopt/internal/config"
)

// Manager owns the tracer and meter providers for the process.
type Manager struct {
	cfg            config.ObservabilityConfig
	serviceVersion string
	resource       *resource.Resource
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metrics        *Metrics
	metricsHandler http.Handler
	extraReaders   []sdkmetric.Reader
	shutdownFuncs  []func(context.Context) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithReader attaches an additional metric reader, such as a manual reader in tests.
func WithReader(r sdkmetric.Reader) Option {
	return func(m *Manager) { m.extraReaders = append(m.extraReaders, r) }
}

// NewManager sets up exporters from cfg. A disabled config yields a manager
// whose recorders do nothing.
func NewManager(ctx context.Context, cfg config.ObservabilityConfig, version string, opts ...Option) (*Manager, error) {
	m := &Manager{cfg: cfg, serviceVersion: cfg.ServiceVersion}
	if m.serviceVersion == "" {
		m.serviceVersion = version
	}
	for _, opt := range opts {
		opt(m)
	}
	if !cfg.Enabled {
		return m, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(m.serviceVersion),
			semconv.ServiceInstanceID(cfg.ServiceInstance),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	m.resource = res

	if cfg.Tracing.Enabled {
		if err := m.initTracing(ctx); err != nil {
			_ = m.Shutdown(ctx)
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}
	if cfg.Metrics.Enabled {
		if err := m.initMetrics(ctx); err != nil {
			_ = m.Shutdown(ctx)
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Manager) initTracing(ctx context.Context) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(m.resource),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(m.cfg.Tracing.SampleRate))),
	}

	if m.cfg.ConsoleOutput {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create console trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	if m.cfg.OTLP.Enabled {
		exporter, err := otlptracehttp.New(ctx, m.otlpTraceOptions()...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	m.tracerProvider = tp
	m.shutdownFuncs = append(m.shutdownFuncs, tp.Shutdown)
	return nil
}

func (m *Manager) initMetrics(ctx context.Context) error {
	readers, err := m.metricReaders(ctx)
	if err != nil {
		return err
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(m.resource)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}
	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	m.meterProvider = mp
	m.shutdownFuncs = append(m.shutdownFuncs, mp.Shutdown)

	metrics, err := newMetrics(mp.Meter(m.cfg.ServiceName), m.cfg.CustomMetrics)
	if err != nil {
		return err
	}
	m.metrics = metrics
	return nil
}

func (m *Manager) metricReaders(ctx context.Context) ([]sdkmetric.Reader, error) {
	readers := append([]sdkmetric.Reader{}, m.extraReaders...)
	interval := m.cfg.Metrics.CollectionInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	if m.cfg.ConsoleOutput {
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create console metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)))
	}

	if m.cfg.OTLP.Enabled {
		exporter, err := otlpmetrichttp.New(ctx, m.otlpMetricOptions()...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)))
	}

	if m.cfg.Prometheus.Enabled {
		reader, handler, err := newPrometheusReader()
		if err != nil {
			return nil, err
		}
		readers = append(readers, reader)
		m.metricsHandler = handler
	}

	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewManualReader())
	}
	return readers, nil
}

func (m *Manager) otlpTraceOptions() []otlptracehttp.Option {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(m.cfg.OTLP.Endpoint)}
	if m.cfg.OTLP.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(m.cfg.OTLP.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(m.cfg.OTLP.Headers))
	}
	return opts
}

func (m *Manager) otlpMetricOptions() []otlpmetrichttp.Option {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(m.cfg.OTLP.Endpoint)}
	if m.cfg.OTLP.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(m.cfg.OTLP.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(m.cfg.OTLP.Headers))
	}
	return opts
}

// HTTPMiddleware wraps a handler with otelhttp when observability is on.
func (m *Manager) HTTPMiddleware(operation string) func(http.Handler) http.Handler {
	if !m.cfg.Enabled {
		return func(h http.Handler) http.Handler { return h }
	}
	opts := []otelhttp.Option{}
	if m.tracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(m.tracerProvider))
	}
	if m.meterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(m.meterProvider))
	}
	return otelhttp.NewMiddleware(operation, opts...)
}

// MetricsHandler returns the Prometheus scrape handler, or nil when the
// Prometheus exporter is off.
func (m *Manager) MetricsHandler() http.Handler {
	return m.metricsHandler
}

// MetricsEndpoint is the path the scrape handler is mounted on.
func (m *Manager) MetricsEndpoint() string {
	if m.cfg.Prometheus.Endpoint == "" {
		return "/metrics"
	}
	return m.cfg.Prometheus.Endpoint
}

// Shutdown flushes and stops every provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(m.shutdownFuncs) - 1; i >= 0; i-- {
		if err := m.shutdownFuncs[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	m.shutdownFuncs = nil
	return stderrors.Join(errs...)
}
