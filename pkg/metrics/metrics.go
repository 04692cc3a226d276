// Package metrics records application metrics through the OpenTelemetry
// metrics API. InitProvider bridges them to Prometheus so they can be scraped
// from /metrics; until it is called every instrument is a no-op.
package metrics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "github.com/troikatech/voice-ivr"

// Metrics holds every instrument the service records.
type Metrics struct {
	HTTPRequests        metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// ServiceCalls counts calls to external dependencies (completion
	// providers, Twilio, databases) with service and status attributes.
	ServiceCalls    metric.Int64Counter
	ServiceDuration metric.Float64Histogram

	DialogTurns     metric.Int64Counter
	SuspiciousFlags metric.Int64Counter
	OutboundCalls   metric.Int64Counter
	BreakerChanges  metric.Int64Counter
}

var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// New builds the instruments against the given provider.
func New(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.HTTPRequests, err = m.Int64Counter("ivr.http.requests",
		metric.WithDescription("HTTP requests served."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("ivr.http.duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ServiceCalls, err = m.Int64Counter("ivr.service.calls",
		metric.WithDescription("Calls to external services."),
	); err != nil {
		return nil, err
	}
	if met.ServiceDuration, err = m.Float64Histogram("ivr.service.duration",
		metric.WithDescription("Latency of external service calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DialogTurns, err = m.Int64Counter("ivr.dialog.turns",
		metric.WithDescription("Caller turns handled, by language and outcome."),
	); err != nil {
		return nil, err
	}
	if met.SuspiciousFlags, err = m.Int64Counter("ivr.dialog.suspicious",
		metric.WithDescription("Replies flagged as suspicious by the boundary filter."),
	); err != nil {
		return nil, err
	}
	if met.OutboundCalls, err = m.Int64Counter("ivr.outbound.calls",
		metric.WithDescription("Outbound call attempts, by status."),
	); err != nil {
		return nil, err
	}
	if met.BreakerChanges, err = m.Int64Counter("ivr.circuitbreaker.transitions",
		metric.WithDescription("Circuit breaker state transitions."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the instruments bound to the global meter provider.
func Default() *Metrics {
	defaultOnce.Do(func() {
		var err error
		defaultMetrics, err = New(otel.GetMeterProvider())
		if err != nil {
			panic("metrics: failed to create default instruments: " + err.Error())
		}
	})
	return defaultMetrics
}

// InitProvider registers a meter provider whose reader is the Prometheus
// exporter, so promhttp.Handler serves every instrument.
func InitProvider(serviceName, serviceVersion string) (func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

func status(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}

// RecordRequest records a served HTTP request
func RecordRequest(ctx context.Context, method, route string, code int, latency time.Duration) {
	m := Default()
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("code", strconv.Itoa(code)),
	)
	m.HTTPRequests.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, latency.Seconds(), attrs)
}

// RecordServiceCall records a call to an external service
func RecordServiceCall(ctx context.Context, service string, success bool, latency time.Duration) {
	m := Default()
	attrs := metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("status", status(success)),
	)
	m.ServiceCalls.Add(ctx, 1, attrs)
	m.ServiceDuration.Record(ctx, latency.Seconds(), attrs)
}

// RecordDialogTurn records a caller turn; outcome is "answered" or "fallback".
func RecordDialogTurn(ctx context.Context, language, outcome string) {
	Default().DialogTurns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("outcome", outcome),
	))
}

func RecordSuspicious(ctx context.Context, language string) {
	Default().SuspiciousFlags.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
}

func RecordOutboundCall(ctx context.Context, success bool) {
	Default().OutboundCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status(success))))
}

// RecordBreakerTransition records a circuit breaker moving to a new state
func RecordBreakerTransition(ctx context.Context, name, state string) {
	Default().BreakerChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("state", state),
	))
}
