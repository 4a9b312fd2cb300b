package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"flightsync/pkg/identity"
	"flightsync/pkg/merge"
	fsotel "flightsync/pkg/otel"
	"flightsync/pkg/store"
	"flightsync/pkg/timenorm"
	"flightsync/pkg/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// adoptWindow bounds how far an observed time may sit from the scheduled
// time it borrows.
const adoptWindow = 6 * time.Hour

// reconcile normalizes, merges and writes everything fetched for t.
func (p *Pipeline) reconcile(ctx context.Context, t target, batches []batch, summary *types.CycleSummary) {
	ctx, span := p.tracer.Start(ctx, "pipeline.reconcile",
		trace.WithAttributes(
			attribute.String("airport", t.airport.IATA),
			attribute.String("direction", string(t.direction)),
		),
	)
	defer span.End()

	var recs []types.IntermediateRecord
	for _, b := range batches {
		if b.req.Airport != t.airport.IATA || b.req.Direction != t.direction {
			continue
		}
		summary.Fetched += len(b.rows)
		for _, row := range b.rows {
			rec, reason := b.adapter.Normalize(row, b.req)
			if reason != types.SkipNone {
				summary.Skip(reason, 1)
				continue
			}
			summary.Normalized++
			recs = append(recs, *rec)
		}
	}

	recs = adoptAnchors(recs, t.direction)

	kept := recs[:0]
	for _, rec := range recs {
		switch {
		case rec.KeyTime() == nil:
			summary.Skip(types.SkipNoTimeAnchor, 1)
		case legDate(&rec.FlightLeg, t) == "":
			summary.Skip(types.SkipOutOfDateRange, 1)
		default:
			kept = append(kept, rec)
		}
	}

	res := merge.Group(kept)
	summary.Skip(types.SkipCodeshareMerged, res.MergedAway)
	summary.Merged += len(res.Legs)

	for _, leg := range res.Legs {
		dc := summary.Date(legDate(&leg, t))
		dc.Legs++
		if p.config.DryRun {
			continue
		}

		outcome, err := p.writer.Upsert(ctx, leg)
		if err != nil {
			fsotel.RecordError(span, err, fsotel.ErrorTypeStore, false)
			slog.Error("Failed to write leg", "leg_key", leg.LegKey, "error", err)
			summary.Skip(types.SkipWriteFailed, 1)
			continue
		}
		switch outcome {
		case store.Inserted:
			summary.Inserted++
			dc.Inserted++
		case store.Updated:
			summary.Updated++
			dc.Updated++
		}
	}

	span.SetAttributes(
		attribute.Int("records", len(recs)),
		attribute.Int("legs", len(res.Legs)),
	)
}

// legDate returns the first requested date the leg falls on, or "".
// A leg with no time for the direction is placed by its other side.
func legDate(leg *types.FlightLeg, t target) string {
	times := append(leg.TimesForDirection(t.direction), observedTime(leg, t.direction))
	for _, d := range t.dates {
		if timenorm.FallsOn(d, t.location, times...) {
			return d
		}
	}
	return ""
}

// adoptAnchors gives records without a scheduled time (flight summaries
// only know take-off and landing) the schedule and leg key of a record for
// the same flight observed within adoptWindow. All other records get their
// own key; unscheduled flights nobody published are keyed on their observed
// times.
func adoptAnchors(recs []types.IntermediateRecord, dir types.Direction) []types.IntermediateRecord {
	byCode := make(map[string][]int)
	for i := range recs {
		if recs[i].TimeAnchor() == nil {
			continue
		}
		recs[i].LegKey = identity.LegKey(&recs[i])
		for _, c := range recordCodes(&recs[i]) {
			byCode[c] = append(byCode[c], i)
		}
	}

	for i := range recs {
		rec := &recs[i]
		if rec.TimeAnchor() != nil {
			continue
		}
		observed := observedTime(&rec.FlightLeg, dir)
		if observed == nil {
			continue
		}

		best, bestGap := -1, adoptWindow+1
		for _, c := range recordCodes(rec) {
			for _, idx := range byCode[c] {
				sched := scheduledTime(&recs[idx].FlightLeg, dir)
				if sched == nil {
					continue
				}
				gap := observed.Sub(*sched)
				if gap < 0 {
					gap = -gap
				}
				if gap < bestGap {
					best, bestGap = idx, gap
				}
			}
		}
		if best < 0 {
			continue
		}

		anchor := &recs[best]
		rec.ScheduledArr = anchor.ScheduledArr
		rec.ScheduledDep = anchor.ScheduledDep
		if rec.DepCode == "" {
			rec.DepCode = anchor.DepCode
		}
		rec.LegKey = anchor.LegKey
	}
	return recs
}

func recordCodes(rec *types.IntermediateRecord) []string {
	var out []string
	for _, c := range append(rec.Codes(), rec.ReportedCode) {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func observedTime(leg *types.FlightLeg, dir types.Direction) *time.Time {
	for _, t := range leg.TimesForDirection(dir) {
		if t != nil {
			return t
		}
	}
	if dir == types.DirectionArrival {
		return leg.ActualDep
	}
	return leg.ActualArr
}

func scheduledTime(leg *types.FlightLeg, dir types.Direction) *time.Time {
	if dir == types.DirectionDeparture && leg.ScheduledDep != nil {
		return leg.ScheduledDep
	}
	if dir == types.DirectionArrival && leg.ScheduledArr != nil {
		return leg.ScheduledArr
	}
	return leg.TimeAnchor()
}
