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

const instrumentationName = "github.com/zatekoja/eventscan"

// Setup initializes OpenTelemetry tracing, metrics and Go runtime instrumentation
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

	// Set up trace exporter
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

	// Set up metric exporter
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		GetLogger().Warn().Err(err).Msg("Failed to start runtime metrics")
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			meterProvider.Shutdown(ctx),
			tracerProvider.Shutdown(ctx),
		)
	}

	return shutdown, nil
}

// SearchMetrics holds the search core instruments. A nil *SearchMetrics is valid and records nothing.
type SearchMetrics struct {
	RequestCount         metric.Int64Counter
	RequestDuration      metric.Float64Histogram
	SearchCount          metric.Int64Counter
	SearchDuration       metric.Float64Histogram
	DegradedSearchCount  metric.Int64Counter
	CacheHitCount        metric.Int64Counter
	CacheMissCount       metric.Int64Counter
	AnalyticsFailedCount metric.Int64Counter
	ClusterRunDuration   metric.Float64Histogram
}

// InitMetrics initializes application metrics
func InitMetrics() (*SearchMetrics, error) {
	meter := otel.Meter(instrumentationName)

	requestCount, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	searchCount, err := meter.Int64Counter(
		"search.count",
		metric.WithDescription("Number of searches served, by operation"),
	)
	if err != nil {
		return nil, err
	}

	searchDuration, err := meter.Float64Histogram(
		"search.duration",
		metric.WithDescription("Search latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	degraded, err := meter.Int64Counter(
		"search.degraded.count",
		metric.WithDescription("Searches ranked without semantic similarity"),
	)
	if err != nil {
		return nil, err
	}

	cacheHitCount, err := meter.Int64Counter(
		"cache.hit.count",
		metric.WithDescription("Number of cache hits"),
	)
	if err != nil {
		return nil, err
	}

	cacheMissCount, err := meter.Int64Counter(
		"cache.miss.count",
		metric.WithDescription("Number of cache misses"),
	)
	if err != nil {
		return nil, err
	}

	analyticsFailed, err := meter.Int64Counter(
		"search.analytics.failed.count",
		metric.WithDescription("Search analytics writes that failed and were dropped"),
	)
	if err != nil {
		return nil, err
	}

	clusterDuration, err := meter.Float64Histogram(
		"search.clustering.duration",
		metric.WithDescription("Query clustering run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &SearchMetrics{
		RequestCount:         requestCount,
		RequestDuration:      requestDuration,
		SearchCount:          searchCount,
		SearchDuration:       searchDuration,
		DegradedSearchCount:  degraded,
		CacheHitCount:        cacheHitCount,
		CacheMissCount:       cacheMissCount,
		AnalyticsFailedCount: analyticsFailed,
		ClusterRunDuration:   clusterDuration,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
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
func (m *SearchMetrics) RecordRequestMetric(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	}

	m.RequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordSearch records one served search
func (m *SearchMetrics) RecordSearch(ctx context.Context, operation string, degraded bool, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("search.operation", operation))
	m.SearchCount.Add(ctx, 1, attrs)
	m.SearchDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if degraded {
		m.DegradedSearchCount.Add(ctx, 1, attrs)
	}
}

// RecordCacheHit records a cache hit for the named cache
func (m *SearchMetrics) RecordCacheHit(ctx context.Context, cacheName string) {
	if m == nil {
		return
	}
	m.CacheHitCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.name", cacheName)))
}

// RecordCacheMiss records a cache miss for the named cache
func (m *SearchMetrics) RecordCacheMiss(ctx context.Context, cacheName string) {
	if m == nil {
		return
	}
	m.CacheMissCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.name", cacheName)))
}

// RecordAnalyticsFailure records a dropped analytics write
func (m *SearchMetrics) RecordAnalyticsFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.AnalyticsFailedCount.Add(ctx, 1)
}

// RecordClusterRun records the duration of a clustering run
func (m *SearchMetrics) RecordClusterRun(ctx context.Context, clusters int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ClusterRunDuration.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(attribute.Int("search.clusters", clusters)))
}
