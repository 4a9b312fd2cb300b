package tracing

import (
	"context"
	"log/slog"
	"time"

	"flightsync/pkg/otel"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InitTracing installs the global tracer provider when OTEL_TRACING_ENABLED
// is set. The returned function flushes and stops it.
func InitTracing() (func(), error) {
	if !otel.Enabled(otel.SignalTraces) {
		slog.Debug("OpenTelemetry tracing is disabled")
		return func() {}, nil
	}

	ctx := context.Background()
	cfg := otel.ExporterFor(otel.SignalTraces)

	exporter, err := otel.NewTraceExporter(ctx, cfg)
	if err != nil {
		slog.Warn("Failed to create OTLP trace exporter, using noop", "error", err)
		return func() {}, nil
	}

	res, err := otel.NewResource()
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otelapi.SetTracerProvider(tp)
	otelapi.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Debug("OpenTelemetry tracing initialized",
		"endpoint", cfg.Endpoint,
		"protocol", cfg.Protocol,
	)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("Error shutting down tracer provider", "error", err)
		}
	}, nil
}
