// Package live overlays live aircraft positions on the persisted schedule.
// Nothing here is written back to the store.
package live

import (
	"strings"
	"time"

	"flightsync/pkg/clock"
	"flightsync/pkg/types"
)

// DefaultLandedAfter is how long past its scheduled time an unmatched leg is
// assumed to have landed.
const DefaultLandedAfter = time.Hour

// Source tags rows that exist only because the live feed reported them.
const Source = "fr24-live"

// Options configure one enrichment pass.
type Options struct {
	Clock       clock.Clock
	LandedAfter time.Duration
	Airport     string
	Direction   types.Direction
	// SameAirport compares airport codes; IATA and ICAO forms of one airport
	// should compare equal. Defaults to a case-insensitive match.
	SameAirport func(a, b string) bool
}

func (o *Options) defaults() {
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.LandedAfter <= 0 {
		o.LandedAfter = DefaultLandedAfter
	}
	if o.SameAirport == nil {
		o.SameAirport = strings.EqualFold
	}
}

// Enrich matches positions to legs by flight code and derives the served
// status of every leg. Positions matching no leg are returned as ephemeral
// rows after the scheduled ones.
func Enrich(legs []types.FlightLeg, positions []types.LivePosition, opts Options) []types.ServedLeg {
	opts.defaults()
	now := opts.Clock.Now()

	byCode := make(map[string]int, len(positions)*2)
	for i := range positions {
		for _, c := range positions[i].Codes() {
			c = strings.ToUpper(c)
			if _, ok := byCode[c]; !ok {
				byCode[c] = i
			}
		}
	}
	used := make([]bool, len(positions))

	served := make([]types.ServedLeg, 0, len(legs)+len(positions))
	for _, leg := range legs {
		s := types.ServedLeg{FlightLeg: leg, DisplayArrCode: displayArr(&leg)}

		if idx, ok := match(&leg, byCode); ok {
			used[idx] = true
			applyLive(&s, &positions[idx], opts)
		} else {
			inferLanded(&s, now, opts.LandedAfter)
		}
		served = append(served, s)
	}

	for i := range positions {
		if !used[i] {
			served = append(served, ephemeral(&positions[i], opts))
		}
	}
	return served
}

func match(leg *types.FlightLeg, byCode map[string]int) (int, bool) {
	for _, c := range leg.Codes() {
		if idx, ok := byCode[strings.ToUpper(c)]; ok {
			return idx, true
		}
	}
	return 0, false
}

// displayArr is where a leg is shown as going: the reported destination of
// a diverted leg, else its arrival code.
func displayArr(leg *types.FlightLeg) string {
	if leg.Status == types.StatusDiverted && leg.ReportedArrCode != "" {
		return leg.ReportedArrCode
	}
	return leg.ArrCode
}

func applyLive(s *types.ServedLeg, p *types.LivePosition, opts Options) {
	scheduledArr := s.ArrCode
	if opts.Direction == types.DirectionArrival && opts.Airport != "" {
		scheduledArr = opts.Airport
	}

	status := types.StatusActive
	diverted := p.ArrCode != "" && scheduledArr != "" && !opts.SameAirport(p.ArrCode, scheduledArr)
	switch {
	case diverted:
		status = types.StatusDiverted
	case p.ETA == nil:
		status = types.StatusTaxi
	}

	if s.Status.IsTerminal() && status.Priority() <= s.Status.Priority() {
		return
	}

	s.Status = status
	s.StatusOrigin = types.OriginTelemetry
	if diverted {
		s.DisplayArrCode = p.ArrCode
	}
	if p.ETA != nil {
		eta := *p.ETA
		s.EstimatedArr = &eta
		if d := types.Minutes(s.ScheduledArr, &eta); d != nil {
			s.DelayMinutes = d
		}
	}
	if s.AircraftReg == "" {
		s.AircraftReg = p.AircraftReg
	}
	if s.AircraftType == "" {
		s.AircraftType = p.AircraftType
	}
}

// inferLanded marks a leg landed once its scheduled time is well past and
// nothing terminal has been reported. The result is a guess, tagged as such.
func inferLanded(s *types.ServedLeg, now time.Time, after time.Duration) {
	ref := s.ReferenceTime()
	if ref == nil || s.Status == types.StatusCancelled || s.Status.IsTerminal() {
		return
	}
	if now.Sub(*ref) > after {
		s.Status = types.StatusLanded
		s.StatusOrigin = types.OriginHeuristic
	}
}

func ephemeral(p *types.LivePosition, opts Options) types.ServedLeg {
	leg := types.FlightLeg{
		FlightNumber:  p.FlightNumber,
		Callsign:      p.Callsign,
		OperatingCode: p.Callsign,
		AirlineName:   p.Operator,
		AircraftReg:   p.AircraftReg,
		AircraftType:  p.AircraftType,
		DepCode:       p.DepCode,
		ArrCode:       p.ArrCode,
		Status:        types.StatusActive,
		StatusOrigin:  types.OriginTelemetry,
		Source:        Source,
	}
	if leg.OperatingCode == "" {
		leg.OperatingCode = p.FlightNumber
	}
	if p.ETA != nil {
		eta := *p.ETA
		leg.EstimatedArr = &eta
	}

	s := types.ServedLeg{FlightLeg: leg, DisplayArrCode: p.ArrCode, Ephemeral: true}
	switch opts.Direction {
	case types.DirectionArrival:
		if opts.Airport != "" {
			s.ArrCode = opts.Airport
		}
	case types.DirectionDeparture:
		if opts.Airport != "" {
			s.DepCode = opts.Airport
		}
	}
	return s
}
