package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"flightsync/pkg/clock"
	"flightsync/pkg/config"
	"flightsync/pkg/metrics"
	fsotel "flightsync/pkg/otel"
	"flightsync/pkg/parser"
	"flightsync/pkg/providers"
	"flightsync/pkg/store"
	"flightsync/pkg/timenorm"
	"flightsync/pkg/types"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidDate is returned for a requested date that is not YYYY-MM-DD.
var ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

// Writer persists merged legs.
type Writer interface {
	Upsert(ctx context.Context, leg types.FlightLeg) (store.Outcome, error)
}

// Sink receives the summary of every completed cycle.
type Sink interface {
	SendCycleSummary(ctx context.Context, summary *types.CycleSummary) error
}

type Pipeline struct {
	config   Config
	adapters []providers.Adapter
	writer   Writer
	sink     Sink
	tracer   trace.Tracer
}

type Config struct {
	Airports []config.Airport
	// Direction restricts the cycle to one direction; empty means every
	// direction configured for each airport.
	Direction types.Direction
	// Date is the first local date to ingest; empty means today.
	Date      string
	Days      int
	MaxDays   int
	SingleDay bool
	DryRun    bool
	Zones     *timenorm.Zones
	Clock     clock.Clock
}

func New(cfg Config, adapters []providers.Adapter, writer Writer) (*Pipeline, error) {
	if len(cfg.Airports) == 0 {
		return nil, fmt.Errorf("at least one airport is required")
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if writer == nil && !cfg.DryRun {
		return nil, fmt.Errorf("a store is required unless running dry")
	}
	if err := ValidateDate(cfg.Date); err != nil {
		return nil, err
	}
	if cfg.Zones == nil {
		zones, err := timenorm.NewZones(nil)
		if err != nil {
			return nil, err
		}
		cfg.Zones = zones
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = 7
	}
	switch {
	case cfg.SingleDay || cfg.Days <= 0:
		cfg.Days = 1
	case cfg.Days > cfg.MaxDays:
		cfg.Days = cfg.MaxDays
	}

	return &Pipeline{
		config:   cfg,
		adapters: adapters,
		writer:   writer,
		tracer:   otel.Tracer("pipeline"),
	}, nil
}

// ValidateDate checks a requested date is YYYY-MM-DD. Empty means today.
func ValidateDate(date string) error {
	if date == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}

// SetSink sends each cycle summary to s as well.
func (p *Pipeline) SetSink(s Sink) {
	p.sink = s
}

// target is one airport and direction with the dates to ingest.
type target struct {
	airport   config.Airport
	direction types.Direction
	location  *time.Location
	today     string
	dates     []string
}

func (p *Pipeline) targets() []target {
	now := p.config.Clock.Now()
	var out []target
	for _, a := range p.config.Airports {
		loc := p.config.Zones.Lookup(a.IATA)
		if loc == nil {
			loc = time.UTC
		}
		today := timenorm.LocalDate(now, loc)
		for _, dir := range []types.Direction{types.DirectionArrival, types.DirectionDeparture} {
			if !a.HasDirection(dir) || (p.config.Direction != "" && p.config.Direction != dir) {
				continue
			}
			out = append(out, target{
				airport:   a,
				direction: dir,
				location:  loc,
				today:     today,
				dates:     p.dates(today),
			})
		}
	}
	return out
}

// dates lists the local dates of a cycle. A single future day is pulled
// back to today; a multi-day window starts where requested.
func (p *Pipeline) dates(today string) []string {
	start := p.config.Date
	if start == "" || (p.config.Days == 1 && start > today) {
		start = today
	}
	first, _ := time.Parse("2006-01-02", start)
	out := make([]string, 0, p.config.Days)
	for i := 0; i < p.config.Days; i++ {
		out = append(out, first.AddDate(0, 0, i).Format("2006-01-02"))
	}
	return out
}

// batch is what one adapter returned for one request.
type batch struct {
	adapter providers.Adapter
	req     providers.FetchRequest
	rows    []parser.RawRow
}

// Run executes one ingestion cycle and returns its summary. Provider
// failures are recorded in the summary; only a cancelled context is an
// error.
func (p *Pipeline) Run(ctx context.Context) (*types.CycleSummary, error) {
	started := time.Now()
	summary := types.NewCycleSummary(uuid.NewString(), started.UTC(), p.config.DryRun)

	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("cycle_id", summary.CycleID),
			attribute.Bool("dry_run", p.config.DryRun),
			attribute.Int("airports_count", len(p.config.Airports)),
			attribute.Int("days", p.config.Days),
		),
	)
	defer span.End()

	targets := p.targets()
	batches, errs := p.fetchAll(ctx, targets)
	summary.Errors = errs

	for _, t := range targets {
		p.reconcile(ctx, t, batches, summary)
	}

	summary.Duration = time.Since(started)
	span.SetAttributes(
		attribute.Int("fetched", summary.Fetched),
		attribute.Int("inserted", summary.Inserted),
		attribute.Int("updated", summary.Updated),
		attribute.Int("provider_errors", len(summary.Errors)),
	)

	metrics.RecordCycle(ctx, summary.Duration, p.config.DryRun)
	for reason, n := range summary.Skipped {
		metrics.RecordSkips(ctx, string(reason), n)
	}
	metrics.RecordWrites(ctx, string(store.Inserted), summary.Inserted)
	metrics.RecordWrites(ctx, string(store.Updated), summary.Updated)

	if err := ctx.Err(); err != nil {
		fsotel.Fail(span, err, fsotel.ErrorTypeCanceled)
		return summary, err
	}
	metrics.RecordCycleSuccess(summary.StartedAt.Add(summary.Duration), summary.Merged)

	slog.Info("Ingest cycle complete",
		"cycle_id", summary.CycleID,
		"fetched", summary.Fetched,
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"skipped", summary.TotalSkipped(),
		"errors", len(summary.Errors),
		"duration", summary.Duration,
	)

	if p.sink != nil {
		if err := p.sink.SendCycleSummary(ctx, summary); err != nil {
			slog.Warn("Failed to send cycle summary", "cycle_id", summary.CycleID, "error", err)
		}
	}
	return summary, nil
}

// fetchAll runs the providers in parallel. Each provider works through its
// requests one at a time, so its pages stay sequential.
func (p *Pipeline) fetchAll(ctx context.Context, targets []target) ([]batch, []string) {
	var (
		mu      sync.Mutex
		batches []batch
		errs    []string
	)

	var g errgroup.Group
	for _, adapter := range p.adapters {
		adapter := adapter
		g.Go(func() error {
			fetchCtx, span := p.tracer.Start(ctx, "pipeline.fetch_provider",
				trace.WithAttributes(attribute.String("provider", adapter.Name())),
			)
			defer span.End()

			for _, t := range targets {
				for _, date := range t.dates {
					if fetchCtx.Err() != nil {
						return nil
					}
					req := providers.FetchRequest{
						Airport:     t.airport.IATA,
						AirportICAO: t.airport.ICAO,
						Direction:   t.direction,
						Date:        date,
						Today:       t.today,
						Location:    t.location,
					}
					rows, err := adapter.Fetch(fetchCtx, req)
					metrics.RecordProviderFetch(fetchCtx, adapter.Name(), len(rows), err != nil)

					mu.Lock()
					if err != nil {
						fsotel.Fail(span, err, fsotel.ErrorTypeNetwork)
						msg := fmt.Sprintf("%s %s %s %s: %v", adapter.Name(), req.Airport, req.Direction, date, err)
						errs = append(errs, msg)
						slog.Warn("Provider fetch failed",
							"provider", adapter.Name(),
							"airport", req.Airport,
							"direction", req.Direction,
							"date", date,
							"rows_kept", len(rows),
							"error", err,
						)
					}
					if len(rows) > 0 {
						batches = append(batches, batch{adapter: adapter, req: req, rows: rows})
					}
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return orderBatches(p.adapters, batches), errs
}

// orderBatches restores adapter order so merging does not depend on which
// provider answered first.
func orderBatches(adapters []providers.Adapter, batches []batch) []batch {
	rank := make(map[providers.Adapter]int, len(adapters))
	for i, a := range adapters {
		rank[a] = i
	}
	out := make([]batch, 0, len(batches))
	for i := range adapters {
		for _, b := range batches {
			if rank[b.adapter] == i {
				out = append(out, b)
			}
		}
	}
	return out
}
