// Package merge collapses provider records describing the same leg into one
// canonical FlightLeg.
package merge

import (
	"sort"
	"strings"
	"time"

	"flightsync/pkg/identity"
	"flightsync/pkg/types"
)

// Score ranks a candidate: status priority, plus one for a known aircraft
// registration, minus one for a codeshare (marketing) row.
func Score(rec *types.IntermediateRecord) int {
	s := rec.Status.Priority()
	if rec.AircraftReg != "" {
		s++
	}
	if rec.IsCodeshare {
		s--
	}
	return s
}

// Rank orders candidate indexes best first. Equal scores prefer the more
// complete record, then the one seen first.
func Rank(candidates []types.IntermediateRecord) []int {
	order := make([]int, len(candidates))
	scores := make([]int, len(candidates))
	filled := make([]int, len(candidates))
	for i := range candidates {
		order[i] = i
		scores[i] = Score(&candidates[i])
		filled[i] = candidates[i].FilledFields()
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if scores[ia] != scores[ib] {
			return scores[ia] > scores[ib]
		}
		return filled[ia] > filled[ib]
	})
	return order
}

// Merge reduces one group of candidates to a single canonical leg.
func Merge(candidates []types.IntermediateRecord) types.FlightLeg {
	if len(candidates) == 0 {
		return types.FlightLeg{}
	}
	order := Rank(candidates)

	leg := candidates[order[0]].FlightLeg
	leg.Codeshares = nil
	for _, idx := range order[1:] {
		backfill(&leg, &candidates[idx].FlightLeg)
	}
	if leg.Status == "" {
		leg.Status = types.StatusScheduled
	}
	if leg.StatusOrigin == "" {
		leg.StatusOrigin = types.OriginProvider
	}

	leg.Codeshares = codeshares(&leg, candidates)
	leg.Source = sources(candidates)
	return leg
}

func codeshares(base *types.FlightLeg, candidates []types.IntermediateRecord) []string {
	own := map[string]bool{
		strings.ToUpper(base.FlightNumber): true,
		strings.ToUpper(base.Callsign):     true,
		"":                                 true,
	}
	set := make(map[string]struct{})
	add := func(code string) {
		code = strings.ToUpper(strings.TrimSpace(code))
		if !own[code] {
			set[code] = struct{}{}
		}
	}
	for i := range candidates {
		add(candidates[i].ReportedCode)
		for _, c := range candidates[i].Codeshares {
			add(c)
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func sources(candidates []types.IntermediateRecord) string {
	seen := make(map[string]bool)
	var out []string
	for i := range candidates {
		for _, s := range strings.Split(candidates[i].Source, ",") {
			if s = strings.TrimSpace(s); s != "" && !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func backfill(dst, src *types.FlightLeg) {
	fillString(&dst.FlightNumber, src.FlightNumber)
	fillString(&dst.Callsign, src.Callsign)
	fillString(&dst.OperatingCode, src.OperatingCode)
	fillString(&dst.AirlineName, src.AirlineName)
	fillString(&dst.AircraftReg, src.AircraftReg)
	fillString(&dst.AircraftType, src.AircraftType)
	fillString(&dst.DepCode, src.DepCode)
	fillString(&dst.ArrCode, src.ArrCode)
	fillString(&dst.ReportedArrCode, src.ReportedArrCode)
	fillTime(&dst.ScheduledDep, src.ScheduledDep)
	fillTime(&dst.EstimatedDep, src.EstimatedDep)
	fillTime(&dst.ActualDep, src.ActualDep)
	fillTime(&dst.ScheduledArr, src.ScheduledArr)
	fillTime(&dst.EstimatedArr, src.EstimatedArr)
	fillTime(&dst.ActualArr, src.ActualArr)
	if dst.DelayMinutes == nil && src.DelayMinutes != nil {
		d := *src.DelayMinutes
		dst.DelayMinutes = &d
	}
	if dst.Status == "" {
		dst.Status = src.Status
		dst.StatusOrigin = src.StatusOrigin
	}
}

func fillString(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

func fillTime(dst **time.Time, src *time.Time) {
	if *dst == nil && src != nil {
		t := *src
		*dst = &t
	}
}

// Result is the outcome of grouping and merging a batch of records.
type Result struct {
	Legs []types.FlightLeg
	// MergedAway counts input rows absorbed into another row's leg.
	MergedAway int
}

// Group buckets records by leg key in first-seen order and merges each
// bucket. Records without a key are keyed first.
func Group(recs []types.IntermediateRecord) Result {
	var keys []string
	groups := make(map[string][]types.IntermediateRecord)
	for _, rec := range recs {
		if rec.LegKey == "" {
			rec.LegKey = identity.LegKey(&rec)
		}
		if _, ok := groups[rec.LegKey]; !ok {
			keys = append(keys, rec.LegKey)
		}
		groups[rec.LegKey] = append(groups[rec.LegKey], rec)
	}

	res := Result{Legs: make([]types.FlightLeg, 0, len(keys))}
	for _, key := range keys {
		leg := Merge(groups[key])
		leg.LegKey = key
		res.Legs = append(res.Legs, leg)
		res.MergedAway += len(groups[key]) - 1
	}
	return res
}
