package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/shivam13669/CRMManagementt-sub003"

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	RequestCount      metric.Int64Counter
	RequestDuration   metric.Float64Histogram
	RefreshCount      metric.Int64Counter
	RefreshDuration   metric.Float64Histogram
	TransitionCount   metric.Int64Counter
	GeocodeCount      metric.Int64Counter
	GeocodeDedupCount metric.Int64Counter
	ActiveSessions    metric.Int64UpDownCounter
}

// Setup initializes OpenTelemetry tracing, metrics and runtime instrumentation
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		_ = tracerProvider.Shutdown(ctx)
		_ = meterProvider.Shutdown(ctx)
		return nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
	}
	return shutdown, nil
}

// InitMetrics initializes application metrics against the global meter
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	if m.RequestCount, err = meter.Int64Counter("http.server.request.count",
		metric.WithDescription("Number of HTTP requests")); err != nil {
		return nil, err
	}
	if m.RequestDuration, err = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.RefreshCount, err = meter.Int64Counter("dispatch.refresh.count",
		metric.WithDescription("Dispatch request list loads by outcome")); err != nil {
		return nil, err
	}
	if m.RefreshDuration, err = meter.Float64Histogram("dispatch.refresh.duration",
		metric.WithDescription("Dispatch request list load duration in milliseconds"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.TransitionCount, err = meter.Int64Counter("dispatch.transition.count",
		metric.WithDescription("Lifecycle transitions by event and outcome")); err != nil {
		return nil, err
	}
	if m.GeocodeCount, err = meter.Int64Counter("dispatch.geocode.count",
		metric.WithDescription("Reverse geocoding lookups by outcome")); err != nil {
		return nil, err
	}
	if m.GeocodeDedupCount, err = meter.Int64Counter("dispatch.geocode.dedup.count",
		metric.WithDescription("Resolve calls collapsed onto an in-flight lookup")); err != nil {
		return nil, err
	}
	if m.ActiveSessions, err = meter.Int64UpDownCounter("dispatch.sessions.active",
		metric.WithDescription("Live dispatch coordinator sessions")); err != nil {
		return nil, err
	}
	return m, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, spanName)
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// SetSpanAttributes sets attributes on a span
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// RecordRequestMetric records an HTTP request
func (m *Metrics) RecordRequestMetric(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	)
	m.RequestCount.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordRefresh records one LoadAll call
func (m *Metrics) RecordRefresh(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.RefreshCount.Add(ctx, 1, attrs)
	m.RefreshDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordTransition records a lifecycle command result
func (m *Metrics) RecordTransition(ctx context.Context, event, outcome string) {
	if m == nil {
		return
	}
	m.TransitionCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("outcome", outcome),
	))
}

// RecordGeocode records a provider lookup result
func (m *Metrics) RecordGeocode(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.GeocodeCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordGeocodeDedup records a resolve that joined an in-flight lookup
func (m *Metrics) RecordGeocodeDedup(ctx context.Context) {
	if m == nil {
		return
	}
	m.GeocodeDedupCount.Add(ctx, 1)
}

// AddSessions adjusts the live session gauge
func (m *Metrics) AddSessions(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, delta)
}
