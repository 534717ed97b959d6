package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.uber.org/zap"
)

// ServiceNamespace groups every daemon's spans
const ServiceNamespace = "vaultflow"

// Options configures tracing for one daemon
type Options struct {
	Enabled     bool
	ServiceName string
	// Endpoint is host:port of the OTLP/HTTP collector. Empty defers to
	// OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string
}

// ShutdownFunc flushes and stops tracing
type ShutdownFunc func(ctx context.Context) error

// Setup installs a tracer provider when tracing is enabled. The returned
// shutdown func is always safe to call.
func Setup(ctx context.Context, opts Options, logger *zap.Logger) (ShutdownFunc, error) {
	if !opts.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	tp, err := InitTracer(ctx, opts.ServiceName, opts.Endpoint)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("tracing_enabled",
			zap.String("service", opts.ServiceName),
			zap.String("endpoint", opts.Endpoint),
		)
	}
	return func(ctx context.Context) error { return Shutdown(ctx, tp) }, nil
}

// InitTracer initializes the OpenTelemetry tracer provider
func InitTracer(ctx context.Context, serviceName, endpoint string) (*sdktrace.TracerProvider, error) {
	exporterOpts := []otlptracehttp.Option{
		otlptracehttp.WithInsecure(), // collectors run on the same host
	}
	if endpoint != "" {
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpoint(endpoint))
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	if serviceName == "" {
		serviceName = ServiceNamespace
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attribute.String("service.namespace", ServiceNamespace),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// Shutdown gracefully shuts down the tracer provider
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
