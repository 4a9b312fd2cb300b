package metrics

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"flightsync/pkg/otel"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	meterProvider *sdkmetric.MeterProvider

	// Meter creates every flightsync instrument. It is nil while metrics
	// are disabled.
	Meter metric.Meter

	lastSuccess  atomic.Int64
	lastCycleLeg atomic.Int64
)

// InitMetrics installs the global meter provider when OTEL_METRICS_ENABLED
// is set. Exporter or resource failures leave metrics off rather than
// failing the command. The returned function flushes and stops the provider.
func InitMetrics() (func(), error) {
	noop := func() {}
	if !otel.Enabled(otel.SignalMetrics) {
		slog.Debug("OpenTelemetry metrics is disabled")
		return noop, nil
	}

	cfg := otel.ExporterFor(otel.SignalMetrics)
	exporter, err := otel.NewMetricExporter(context.Background(), cfg)
	if err != nil {
		slog.Warn("Failed to create OTLP metric exporter, metrics disabled", "error", err)
		return noop, nil
	}
	res, err := otel.NewResource()
	if err != nil {
		slog.Warn("Failed to create resource, metrics disabled", "error", err)
		return noop, nil
	}

	interval := otel.MetricInterval()
	meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	otelapi.SetMeterProvider(meterProvider)
	Meter = meterProvider.Meter("flightsync")

	if err := initializeInstruments(); err != nil {
		slog.Error("Failed to initialize metric instruments", "error", err)
		Meter = nil
		return noop, nil
	}
	if err := registerGauges(); err != nil {
		slog.Warn("Failed to register gauges", "error", err)
	}

	slog.Debug("OpenTelemetry metrics initialized",
		"endpoint", cfg.Endpoint,
		"protocol", cfg.Protocol,
		"interval", interval,
	)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// A one-shot ingest exits before the first periodic export.
		if err := meterProvider.ForceFlush(ctx); err != nil {
			slog.Warn("Error flushing metrics", "error", err)
		}
		if err := meterProvider.Shutdown(ctx); err != nil {
			slog.Error("Error shutting down meter provider", "error", err)
		}
	}, nil
}

// registerGauges observes the ingest freshness gauges and the Go runtime.
// One callback serves every gauge so MemStats is read once per collection.
func registerGauges() error {
	type gauge struct {
		name, desc, unit string
		inst             metric.Int64ObservableGauge
	}
	gauges := []*gauge{
		{name: "ingest.last_success.timestamp", desc: "Unix time the last ingest cycle completed", unit: "s"},
		{name: "ingest.last_cycle.legs", desc: "Legs reconciled by the last completed cycle", unit: "{leg}"},
		{name: "runtime.go.goroutines", desc: "Number of goroutines", unit: "{goroutine}"},
		{name: "runtime.go.mem.heap_alloc", desc: "Heap memory allocated", unit: "By"},
		{name: "runtime.go.mem.sys", desc: "Total memory obtained from the OS", unit: "By"},
		{name: "runtime.go.gc.count", desc: "Completed GC cycles", unit: "{gc}"},
	}

	observables := make([]metric.Observable, 0, len(gauges))
	for _, g := range gauges {
		inst, err := Meter.Int64ObservableGauge(g.name, metric.WithDescription(g.desc), metric.WithUnit(g.unit))
		if err != nil {
			return err
		}
		g.inst = inst
		observables = append(observables, inst)
	}

	_, err := Meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		if ts := lastSuccess.Load(); ts > 0 {
			o.ObserveInt64(gauges[0].inst, ts)
			o.ObserveInt64(gauges[1].inst, lastCycleLeg.Load())
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		o.ObserveInt64(gauges[2].inst, int64(runtime.NumGoroutine()))
		o.ObserveInt64(gauges[3].inst, int64(m.HeapAlloc))
		o.ObserveInt64(gauges[4].inst, int64(m.Sys))
		o.ObserveInt64(gauges[5].inst, int64(m.NumGC))
		return nil
	}, observables...)
	return err
}

// RecordCycleSuccess stores the completion time and leg count of a cycle
// that ran to the end.
func RecordCycleSuccess(at time.Time, legs int) {
	lastSuccess.Store(at.Unix())
	lastCycleLeg.Store(int64(legs))
}

// LastSuccess returns the completion time recorded by RecordCycleSuccess.
func LastSuccess() (time.Time, bool) {
	ts := lastSuccess.Load()
	if ts == 0 {
		return time.Time{}, false
	}
	return time.Unix(ts, 0), true
}

// IsEnabled reports whether InitMetrics installed a meter.
func IsEnabled() bool {
	return Meter != nil
}
