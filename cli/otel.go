package main

import (
	"context"
	"time"

	"github.com/adonese/kaos/kaos_fields"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const otelShutdownTimeout = 5 * time.Second

// newTracerProvider builds the OTLP provider for search and ingest spans. It
// returns nil when tracing is off.
func newTracerProvider(ctx context.Context, cfg kaos_fields.KaosConfig) (*sdktrace.TracerProvider, error) {
	if !cfg.OtelEnabled && cfg.OtelEndpoint == "" {
		return nil, nil
	}
	var opts []otlptracegrpc.Option
	if cfg.OtelEndpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(cfg.OtelEndpoint))
	}
	if cfg.OtelInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(cfg.OtelServiceName),
		semconv.ServiceVersion(cfg.OtelServiceVersion),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.OtelSampleRate))),
	), nil
}

// initOTel installs the tracer provider globally. The returned shutdown is
// never nil; a failed exporter only disables tracing.
func initOTel(ctx context.Context, cfg kaos_fields.KaosConfig, logger *logrus.Logger) func(context.Context) error {
	tp, err := newTracerProvider(ctx, cfg)
	if err != nil {
		logger.WithError(err).Warn("otel trace exporter init failed")
	}
	if tp == nil {
		return func(context.Context) error { return nil }
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.WithFields(logrus.Fields{
		"endpoint":    cfg.OtelEndpoint,
		"sample_rate": cfg.OtelSampleRate,
		"service":     cfg.OtelServiceName,
	}).Info("otel tracing enabled")
	return tp.Shutdown
}
