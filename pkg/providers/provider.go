// Package providers defines the adapter contract shared by the upstream
// flight data sources and the normalization every adapter applies.
package providers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"flightsync/pkg/parser"
	"flightsync/pkg/timenorm"
	"flightsync/pkg/types"
)

// FetchRequest selects one airport, direction and local calendar date.
type FetchRequest struct {
	Airport     string
	AirportICAO string
	Direction   types.Direction
	Date        string
	// Today is the current local date at the airport.
	Today    string
	Location *time.Location
}

// DaysAhead is the signed distance between Date and Today in days.
func (r FetchRequest) DaysAhead() int {
	d, err1 := time.Parse("2006-01-02", r.Date)
	t, err2 := time.Parse("2006-01-02", r.Today)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(d.Sub(t).Hours() / 24)
}

// Adapter turns one provider's API into intermediate records.
type Adapter interface {
	Name() string
	// Fetch returns every row for req. On failure it returns the rows
	// gathered so far together with the error.
	Fetch(ctx context.Context, req FetchRequest) ([]parser.RawRow, error)
	// Normalize maps a row onto canonical fields or reports why it cannot.
	Normalize(row parser.RawRow, req FetchRequest) (*types.IntermediateRecord, types.SkipReason)
}

// Normalizer converts extracted fields into an IntermediateRecord.
type Normalizer struct {
	Source string
	Zones  *timenorm.Zones
	// StatusFromTimes derives the status from actual times for providers
	// that do not report one.
	StatusFromTimes bool
}

// Normalize applies identity, time, status and airport rules to f.
func (n Normalizer) Normalize(f parser.Fields, raw []byte, req FetchRequest) (*types.IntermediateRecord, types.SkipReason) {
	rec := &types.IntermediateRecord{Raw: raw}
	rec.Source = n.Source

	flightNumber := designator(f.FlightNumber, f.AirlineIATA, f.FlightDigits)
	callsign := designator(f.Callsign, f.AirlineICAO, f.FlightDigits)
	rec.AirlineName = f.AirlineName

	if f.HasCodeshare {
		opNumber := f.CodeshareFlightNumber
		opCallsign := designator(f.CodeshareCallsign, f.CodeshareAirlineICAO, f.CodeshareDigits)
		if opNumber != "" || opCallsign != "" {
			rec.IsCodeshare = true
			rec.ReportedCode = flightNumber
			if rec.ReportedCode == "" {
				rec.ReportedCode = callsign
			}
			flightNumber, callsign = opNumber, opCallsign
			if f.CodeshareAirlineName != "" {
				rec.AirlineName = f.CodeshareAirlineName
			}
		}
	}

	if flightNumber == "" && callsign == "" {
		return nil, types.SkipNoFlightIdentity
	}
	rec.FlightNumber = flightNumber
	rec.Callsign = callsign
	rec.OperatingCode = callsign
	if rec.OperatingCode == "" {
		rec.OperatingCode = flightNumber
	}

	rec.AircraftReg = f.AircraftReg
	rec.AircraftType = f.AircraftType
	rec.DepCode = f.DepCode
	rec.ArrCode = f.ArrCode

	depLoc := n.Zones.For(f.DepCode, f.DepTimezone, req.Airport)
	arrLoc := n.Zones.For(f.ArrCode, f.ArrTimezone, req.Airport)
	rec.ScheduledDep = timenorm.ToUTC(f.ScheduledDep, depLoc)
	rec.EstimatedDep = timenorm.ToUTC(f.EstimatedDep, depLoc)
	rec.ActualDep = timenorm.ToUTC(f.ActualDep, depLoc)
	rec.ScheduledArr = timenorm.ToUTC(f.ScheduledArr, arrLoc)
	rec.EstimatedArr = timenorm.ToUTC(f.EstimatedArr, arrLoc)
	rec.ActualArr = timenorm.ToUTC(f.ActualArr, arrLoc)

	if !anyTime(&rec.FlightLeg) {
		return nil, types.SkipNoTimeAnchor
	}

	rec.Status, rec.StatusOrigin = n.status(f, rec)
	if f.ArrActual != "" && f.ArrCode != "" && !n.Zones.SameAirport(f.ArrActual, f.ArrCode) {
		rec.Status = types.StatusDiverted
		rec.StatusOrigin = types.OriginTelemetry
		rec.ArrCode = f.ArrActual
	}

	rec.DelayMinutes = delay(f, &rec.FlightLeg, req.Direction)
	n.pinAirport(rec, req)
	return rec, types.SkipNone
}

func (n Normalizer) status(f parser.Fields, rec *types.IntermediateRecord) (types.Status, types.StatusOrigin) {
	if f.Status == "" && n.StatusFromTimes {
		switch {
		case rec.ActualArr != nil:
			return types.StatusLanded, types.OriginTelemetry
		case rec.ActualDep != nil:
			return types.StatusEnRoute, types.OriginTelemetry
		}
		return types.StatusScheduled, types.OriginProvider
	}

	s := types.NormalizeStatus(f.Status)
	if s.IsAirborne() && rec.EstimatedArr == nil {
		s = types.StatusTaxi
	}
	return s, types.OriginProvider
}

// pinAirport rewrites the queried airport's side of the leg to its IATA
// code, keeping a differing provider value as the reported code.
func (n Normalizer) pinAirport(rec *types.IntermediateRecord, req FetchRequest) {
	switch req.Direction {
	case types.DirectionArrival:
		if rec.ArrCode != "" && !n.Zones.SameAirport(rec.ArrCode, req.Airport) {
			rec.ReportedArrCode = rec.ArrCode
		}
		rec.ArrCode = req.Airport
	case types.DirectionDeparture:
		rec.DepCode = req.Airport
	}
}

// delay prefers the provider's figure, then estimated minus scheduled,
// then actual minus scheduled.
func delay(f parser.Fields, leg *types.FlightLeg, dir types.Direction) *int {
	raw, sched, est, act := f.ArrDelay, leg.ScheduledArr, leg.EstimatedArr, leg.ActualArr
	if dir == types.DirectionDeparture {
		raw, sched, est, act = f.DepDelay, leg.ScheduledDep, leg.EstimatedDep, leg.ActualDep
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		m := int(v)
		return &m
	}
	if d := types.Minutes(sched, est); d != nil {
		return d
	}
	return types.Minutes(sched, act)
}

func designator(code, airline, digits string) string {
	if code != "" {
		return code
	}
	if airline != "" && digits != "" {
		return strings.ToUpper(airline + strings.TrimSpace(digits))
	}
	return ""
}

func anyTime(l *types.FlightLeg) bool {
	for _, t := range []*time.Time{l.ScheduledDep, l.EstimatedDep, l.ActualDep, l.ScheduledArr, l.EstimatedArr, l.ActualArr} {
		if t != nil {
			return true
		}
	}
	return false
}
