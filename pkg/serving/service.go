// Package serving answers flight board queries: persisted legs for a time
// window, enriched with the live feed.
package serving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"flightsync/pkg/clock"
	"flightsync/pkg/live"
	"flightsync/pkg/metrics"
	"flightsync/pkg/otel"
	"flightsync/pkg/store"
	"flightsync/pkg/timenorm"
	"flightsync/pkg/types"

	gotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrInvalidQuery = errors.New("invalid query")

// Reader is the read side of the leg store.
type Reader interface {
	QueryWindow(ctx context.Context, w store.Window) ([]types.FlightLeg, error)
}

// LiveFeed lists aircraft currently flying to or from an airport.
type LiveFeed interface {
	Positions(ctx context.Context, airport string, dir types.Direction) ([]types.LivePosition, error)
}

type Query struct {
	Airport   string
	Direction types.Direction
	From      time.Time
	To        time.Time
	// Statuses keeps only rows with one of these served statuses; empty
	// keeps everything.
	Statuses []types.Status
}

type Result struct {
	From   time.Time
	To     time.Time
	Rows   []types.ServedLeg
	Errors []string
}

type Options struct {
	Clock       clock.Clock
	Zones       *timenorm.Zones
	LandedAfter time.Duration
}

type Service struct {
	reader Reader
	feed   LiveFeed
	opts   Options
	badges *BadgeGenerator
	tracer trace.Tracer
}

// NewService builds a query service. feed may be nil, in which case rows
// are served from the store with heuristic statuses only.
func NewService(reader Reader, feed LiveFeed, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Service{
		reader: reader,
		feed:   feed,
		opts:   opts,
		badges: NewBadgeGenerator(),
		tracer: gotel.Tracer("serving"),
	}
}

func (s *Service) Query(ctx context.Context, q Query) (*Result, error) {
	if q.Airport == "" {
		return nil, fmt.Errorf("%w: airport is required", ErrInvalidQuery)
	}
	dirs := []types.Direction{q.Direction}
	switch q.Direction {
	case types.DirectionArrival, types.DirectionDeparture:
	case types.DirectionBoth:
		dirs = []types.Direction{types.DirectionArrival, types.DirectionDeparture}
	default:
		return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidQuery, q.Direction)
	}
	if !q.To.After(q.From) {
		return nil, fmt.Errorf("%w: window end must be after its start", ErrInvalidQuery)
	}

	ctx, span := s.tracer.Start(ctx, "serving.query",
		trace.WithAttributes(
			attribute.String("airport", q.Airport),
			attribute.String("direction", string(q.Direction)),
			attribute.String("from", q.From.UTC().Format(time.RFC3339)),
			attribute.String("to", q.To.UTC().Format(time.RFC3339)),
		),
	)
	defer span.End()

	res := &Result{From: q.From.UTC(), To: q.To.UTC()}

	var served []types.ServedLeg
	legsCount, positionsCount, matched := 0, 0, 0
	for _, dir := range dirs {
		b, err := s.queryDirection(ctx, span, q, dir, res)
		if err != nil {
			return nil, err
		}
		served = append(served, b.rows...)
		legsCount += b.legs
		positionsCount += b.positions
		matched += b.matched
	}

	rows := filterStatuses(served, q.Statuses)
	sortRows(rows)
	for i := range rows {
		rows[i].Badge = s.badges.StatusBadge(rowCode(&rows[i].FlightLeg), rows[i].Direction, rows[i].Status)
	}
	res.Rows = rows

	span.SetAttributes(
		attribute.Int("legs_count", legsCount),
		attribute.Int("positions_count", positionsCount),
		attribute.Int("rows_count", len(rows)),
	)
	metrics.RecordServe(ctx, string(q.Direction), len(rows), matched)
	otel.SetSpanOk(span)
	return res, nil
}

type board struct {
	rows      []types.ServedLeg
	legs      int
	positions int
	matched   int
}

// queryDirection reads one direction of the window and overlays the live
// feed on it. A live feed failure is reported in res and does not fail the query.
func (s *Service) queryDirection(ctx context.Context, span trace.Span, q Query, dir types.Direction, res *Result) (board, error) {
	legs, err := s.reader.QueryWindow(ctx, store.Window{
		Airport:   q.Airport,
		Direction: dir,
		From:      q.From,
		To:        q.To,
	})
	if err != nil {
		otel.Fail(span, err, otel.ErrorTypeStore)
		return board{}, fmt.Errorf("failed to read legs: %w", err)
	}

	var positions []types.LivePosition
	if s.feed != nil {
		positions, err = s.feed.Positions(ctx, q.Airport, dir)
		if err != nil {
			otel.Fail(span, err, otel.ErrorTypeNetwork)
			slog.Warn("Live feed unavailable", "airport", q.Airport, "direction", dir, "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("live feed: %v", err))
			positions = nil
		}
	}

	opts := live.Options{
		Clock:       s.opts.Clock,
		LandedAfter: s.opts.LandedAfter,
		Airport:     q.Airport,
		Direction:   dir,
	}
	if s.opts.Zones != nil {
		opts.SameAirport = s.opts.Zones.SameAirport
	}
	served := live.Enrich(legs, positions, opts)
	for i := range served {
		served[i].Direction = dir
	}

	return board{
		rows:      served,
		legs:      len(legs),
		positions: len(positions),
		matched:   len(positions) - countEphemeral(served),
	}, nil
}

func countEphemeral(rows []types.ServedLeg) int {
	n := 0
	for i := range rows {
		if rows[i].Ephemeral {
			n++
		}
	}
	return n
}

func filterStatuses(rows []types.ServedLeg, statuses []types.Status) []types.ServedLeg {
	if len(statuses) == 0 {
		return rows
	}
	keep := make(map[types.Status]bool, len(statuses))
	for _, s := range statuses {
		keep[s] = true
	}
	out := rows[:0]
	for _, r := range rows {
		if keep[r.Status] {
			out = append(out, r)
		}
	}
	return out
}

// sortRows orders by scheduled time for each row's direction (rows without
// one last), then rows with a callsign first, then callsign, then flight
// number.
func sortRows(rows []types.ServedLeg) {
	sched := func(r *types.ServedLeg) *time.Time {
		if r.Direction == types.DirectionDeparture {
			return r.ScheduledDep
		}
		return r.ScheduledArr
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := &rows[i], &rows[j]
		ta, tb := sched(a), sched(b)
		switch {
		case ta != nil && tb != nil && !ta.Equal(*tb):
			return ta.Before(*tb)
		case ta != nil && tb == nil:
			return true
		case ta == nil && tb != nil:
			return false
		}
		if (a.Callsign != "") != (b.Callsign != "") {
			return a.Callsign != ""
		}
		if a.Callsign != b.Callsign {
			return a.Callsign < b.Callsign
		}
		return a.FlightNumber < b.FlightNumber
	})
}

func rowCode(leg *types.FlightLeg) string {
	if leg.FlightNumber != "" {
		return leg.FlightNumber
	}
	return leg.Callsign
}

// ParseStatuses reads a comma separated status filter.
func ParseStatuses(raw string) []types.Status {
	var out []types.Status
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		out = append(out, types.NormalizeStatus(part))
	}
	return out
}
