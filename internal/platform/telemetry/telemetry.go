// Package telemetry wires observability for the dossiers server: a
// Prometheus registry with HTTP and domain metrics, and an OpenTelemetry
// tracer provider exporting over OTLP/HTTP when an endpoint is configured.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// TelemetryConfig holds all configuration for the telemetry provider.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string  // host:port of an OTLP/HTTP collector; empty disables export
	MetricsEnabled *bool   // nil = use default (true)
	TracingEnabled *bool   // nil = use default (true)
	SampleRate     float64 // 0.0 to 1.0
}

func (c *TelemetryConfig) metricsOn() bool {
	if c.MetricsEnabled == nil {
		return true
	}
	return *c.MetricsEnabled
}

func (c *TelemetryConfig) tracingOn() bool {
	if c.TracingEnabled == nil {
		return true
	}
	return *c.TracingEnabled
}

func (c *TelemetryConfig) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "dossiers-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
}

// BoolPtr is a helper to create a *bool for TelemetryConfig fields.
func BoolPtr(b bool) *bool {
	return &b
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Metrics groups the collectors the server updates. All methods are safe on
// a nil receiver so services can run without telemetry.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge

	PatientsCreated       prometheus.Counter
	PatientsUpdated       prometheus.Counter
	PatientsDeleted       prometheus.Counter
	PrescriptionsExported prometheus.Counter
	ValidationFailures    *prometheus.CounterVec
}

const namespace = "dossiers"

// NewMetrics registers the server collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route", "status"}),

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		PatientsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "patients_created_total",
			Help:      "Total number of patient records created.",
		}),

		PatientsUpdated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "patients_updated_total",
			Help:      "Total number of patient record updates.",
		}),

		PatientsDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "patients_deleted_total",
			Help:      "Total number of patient records deleted.",
		}),

		PrescriptionsExported: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "prescriptions_exported_total",
			Help:      "Total prescription PDFs generated.",
		}),

		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "validation_failures_total",
			Help:      "Documents rejected by collection validation.",
		}, []string{"collection"}),
	}
}

func (m *Metrics) PatientCreated() {
	if m != nil {
		m.PatientsCreated.Inc()
	}
}

func (m *Metrics) PatientUpdated() {
	if m != nil {
		m.PatientsUpdated.Inc()
	}
}

func (m *Metrics) PatientDeleted() {
	if m != nil {
		m.PatientsDeleted.Inc()
	}
}

func (m *Metrics) PrescriptionExported() {
	if m != nil {
		m.PrescriptionsExported.Inc()
	}
}

func (m *Metrics) ValidationFailed(collection string) {
	if m != nil {
		m.ValidationFailures.WithLabelValues(collection).Inc()
	}
}

// ---------------------------------------------------------------------------
// TelemetryProvider
// ---------------------------------------------------------------------------

// TelemetryProvider owns the metrics registry and the tracer provider.
type TelemetryProvider struct {
	cfg TelemetryConfig

	registry *prometheus.Registry
	metrics  *Metrics

	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	propagator     propagation.TextMapPropagator

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewTelemetryProvider creates the registry and tracer provider and installs
// the tracer provider and W3C propagators as the otel globals.
func NewTelemetryProvider(ctx context.Context, cfg TelemetryConfig) (*TelemetryProvider, error) {
	cfg.applyDefaults()
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return nil, fmt.Errorf("telemetry: sample rate %v out of range [0,1]", cfg.SampleRate)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}
	if cfg.tracingOn() && cfg.OTLPEndpoint != "" {
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: creating OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	tracerProvider := sdktrace.NewTracerProvider(opts...)

	propagator := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagator)

	return &TelemetryProvider{
		cfg:            cfg,
		registry:       reg,
		metrics:        NewMetrics(reg),
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer("github.com/dossiers/dossiers/internal/platform/telemetry"),
		propagator:     propagator,
	}, nil
}

// Metrics returns the server collectors, or nil when metrics are disabled.
func (tp *TelemetryProvider) Metrics() *Metrics {
	if !tp.cfg.metricsOn() {
		return nil
	}
	return tp.metrics
}

// Registry exposes the registry for additional collectors.
func (tp *TelemetryProvider) Registry() *prometheus.Registry {
	return tp.registry
}

// ObservePool exports pgx pool statistics as gauges read at scrape time.
func (tp *TelemetryProvider) ObservePool(pool *pgxpool.Pool) {
	stat := func(pick func(*pgxpool.Stat) int32) func() float64 {
		return func() float64 { return float64(pick(pool.Stat())) }
	}
	tp.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_total_connections",
			Help:      "Connections currently held by the pool.",
		}, stat((*pgxpool.Stat).TotalConns)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_idle_connections",
			Help:      "Idle connections in the pool.",
		}, stat((*pgxpool.Stat).IdleConns)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_acquired_connections",
			Help:      "Connections currently acquired from the pool.",
		}, stat((*pgxpool.Stat).AcquiredConns)),
	)
}

// Shutdown flushes pending spans and stops the tracer provider.
func (tp *TelemetryProvider) Shutdown(ctx context.Context) error {
	tp.shutdownOnce.Do(func() {
		tp.shutdownErr = tp.tracerProvider.Shutdown(ctx)
	})
	return tp.shutdownErr
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// TracingMiddleware starts a server span per request, continuing any trace
// context carried by the request headers.
func (tp *TelemetryProvider) TracingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.tracingOn() {
				return next(c)
			}

			req := c.Request()
			route := routeOf(c)
			ctx := tp.propagator.Extract(req.Context(), propagation.HeaderCarrier(req.Header))
			ctx, span := tp.tracer.Start(ctx, "HTTP "+req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", route),
					attribute.String("http.url", req.URL.String()),
				),
			)
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			status := responseStatus(c, err)
			span.SetAttributes(attribute.Int("http.status_code", status))
			if err != nil {
				span.RecordError(err)
			}
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			return err
		}
	}
}

// MetricsMiddleware records request counts, latency and in-flight requests.
func (tp *TelemetryProvider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.metricsOn() {
				return next(c)
			}

			m := tp.metrics
			m.InFlight.Inc()
			start := time.Now()

			err := next(c)

			m.InFlight.Dec()
			labels := []string{c.Request().Method, routeOf(c), strconv.Itoa(responseStatus(c, err))}
			m.RequestsTotal.WithLabelValues(labels...).Inc()
			m.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// PrometheusHandler serves the registry in the Prometheus exposition format.
func (tp *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(tp.registry, promhttp.HandlerOpts{}))
}

func routeOf(c echo.Context) string {
	if route := c.Path(); route != "" {
		return route
	}
	return c.Request().URL.Path
}

// responseStatus is the status the error handler will write once the
// middleware chain returns.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
