package metrics

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Provider Metrics
var (
	// ProviderRequestDuration measures the duration of upstream API requests
	ProviderRequestDuration metric.Float64Histogram

	// ProviderRequestsTotal counts upstream API requests by provider and status
	ProviderRequestsTotal metric.Int64Counter

	// ProviderErrorsTotal counts fetches that ended in an error
	ProviderErrorsTotal metric.Int64Counter

	// ProviderRowsFetched counts rows returned by each provider
	ProviderRowsFetched metric.Int64Counter
)

// Ingest Metrics
var (
	// IngestCyclesTotal counts ingestion runs
	IngestCyclesTotal metric.Int64Counter

	// IngestCycleDuration measures the duration of ingestion runs
	IngestCycleDuration metric.Float64Histogram

	// IngestLegsWritten counts legs by write outcome
	IngestLegsWritten metric.Int64Counter

	// IngestRowsSkipped counts rows that did not become legs, by reason
	IngestRowsSkipped metric.Int64Counter
)

// Serving Metrics
var (
	// ServeQueriesTotal counts board queries
	ServeQueriesTotal metric.Int64Counter

	// ServeLegsReturned measures legs per query
	ServeLegsReturned metric.Int64Histogram

	// ServeLiveMatches counts legs whose status came from live telemetry
	ServeLiveMatches metric.Int64Counter
)

// Loki Metrics
var (
	// LokiSendDuration measures the duration of Loki push operations
	LokiSendDuration metric.Float64Histogram

	// LokiSendTotal counts total Loki sends by status
	LokiSendTotal metric.Int64Counter
)

// initializeInstruments creates all metric instruments
func initializeInstruments() error {
	var err error

	ProviderRequestDuration, err = Meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of upstream provider requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0),
	)
	if err != nil {
		return err
	}

	ProviderRequestsTotal, err = Meter.Int64Counter(
		"provider.requests.total",
		metric.WithDescription("Total upstream provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	ProviderErrorsTotal, err = Meter.Int64Counter(
		"provider.errors.total",
		metric.WithDescription("Provider fetches that failed"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	ProviderRowsFetched, err = Meter.Int64Counter(
		"provider.rows.fetched",
		metric.WithDescription("Rows returned by providers"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return err
	}

	IngestCyclesTotal, err = Meter.Int64Counter(
		"ingest.cycles.total",
		metric.WithDescription("Total number of ingestion runs"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return err
	}

	IngestCycleDuration, err = Meter.Float64Histogram(
		"ingest.cycle.duration",
		metric.WithDescription("Duration of ingestion runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return err
	}

	IngestLegsWritten, err = Meter.Int64Counter(
		"ingest.legs.written",
		metric.WithDescription("Legs written by outcome"),
		metric.WithUnit("{leg}"),
	)
	if err != nil {
		return err
	}

	IngestRowsSkipped, err = Meter.Int64Counter(
		"ingest.rows.skipped",
		metric.WithDescription("Input rows not persisted, by reason"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return err
	}

	ServeQueriesTotal, err = Meter.Int64Counter(
		"serve.queries.total",
		metric.WithDescription("Total board queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return err
	}

	ServeLegsReturned, err = Meter.Int64Histogram(
		"serve.legs.returned",
		metric.WithDescription("Legs returned per query"),
		metric.WithUnit("{leg}"),
		metric.WithExplicitBucketBoundaries(0, 5, 10, 25, 50, 100, 250),
	)
	if err != nil {
		return err
	}

	ServeLiveMatches, err = Meter.Int64Counter(
		"serve.live.matches",
		metric.WithDescription("Legs enriched from live telemetry"),
		metric.WithUnit("{leg}"),
	)
	if err != nil {
		return err
	}

	LokiSendDuration, err = Meter.Float64Histogram(
		"loki.send.duration",
		metric.WithDescription("Duration of Loki push operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return err
	}

	LokiSendTotal, err = Meter.Int64Counter(
		"loki.send.total",
		metric.WithDescription("Total Loki sends by status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordProviderRequest records one upstream request. A zero status means
// the request never produced a response.
func RecordProviderRequest(ctx context.Context, provider string, status int, d time.Duration) {
	if !IsEnabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("http.response.status_code", strconv.Itoa(status)),
	)
	ProviderRequestDuration.Record(ctx, d.Seconds(), attrs)
	ProviderRequestsTotal.Add(ctx, 1, attrs)
}

// RecordProviderFetch records the outcome of one adapter fetch.
func RecordProviderFetch(ctx context.Context, provider string, rows int, failed bool) {
	if !IsEnabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	ProviderRowsFetched.Add(ctx, int64(rows), attrs)
	if failed {
		ProviderErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordCycle records a finished ingestion run.
func RecordCycle(ctx context.Context, d time.Duration, dryRun bool) {
	if !IsEnabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("dry_run", dryRun))
	IngestCyclesTotal.Add(ctx, 1, attrs)
	IngestCycleDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordWrites records legs by write outcome (inserted, updated, unchanged).
func RecordWrites(ctx context.Context, outcome string, n int) {
	if !IsEnabled() || n == 0 {
		return
	}
	IngestLegsWritten.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSkips records rows skipped for reason.
func RecordSkips(ctx context.Context, reason string, n int) {
	if !IsEnabled() || n == 0 {
		return
	}
	IngestRowsSkipped.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordServe records one board query.
func RecordServe(ctx context.Context, direction string, legs, liveMatches int) {
	if !IsEnabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("direction", direction))
	ServeQueriesTotal.Add(ctx, 1, attrs)
	ServeLegsReturned.Record(ctx, int64(legs), attrs)
	if liveMatches > 0 {
		ServeLiveMatches.Add(ctx, int64(liveMatches), attrs)
	}
}

// RecordLokiSend records one Loki push.
func RecordLokiSend(ctx context.Context, d time.Duration, ok bool) {
	if !IsEnabled() {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	LokiSendDuration.Record(ctx, d.Seconds())
	LokiSendTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
