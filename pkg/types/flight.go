package types

import (
	"strings"
	"time"
)

// Status is the canonical lifecycle state of a flight leg
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusDelayed   Status = "delayed"
	StatusTaxi      Status = "taxi"
	StatusActive    Status = "active"
	StatusEnRoute   Status = "en-route"
	StatusIncident  Status = "incident"
	StatusDiverted  Status = "diverted"
	StatusLanded    Status = "landed"
	StatusCancelled Status = "cancelled"
	StatusUnknown   Status = "unknown"
)

var statusPriority = map[Status]int{
	StatusLanded:    6,
	StatusDiverted:  5,
	StatusIncident:  4,
	StatusActive:    3,
	StatusEnRoute:   3,
	StatusTaxi:      2,
	StatusDelayed:   1,
	StatusScheduled: 1,
	StatusCancelled: 0,
	StatusUnknown:   0,
}

// Priority ranks how much operational progress a status represents.
func (s Status) Priority() int {
	return statusPriority[s]
}

// IsTerminal reports whether the leg has reached an end state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusLanded, StatusDiverted, StatusCancelled, StatusIncident:
		return true
	}
	return false
}

// IsAirborne reports whether the status describes a leg in motion.
func (s Status) IsAirborne() bool {
	return s == StatusActive || s == StatusEnRoute
}

var statusAliases = map[string]Status{
	"":          StatusScheduled,
	"scheduled": StatusScheduled,
	"active":    StatusActive,
	"airborne":  StatusEnRoute,
	"enroute":   StatusEnRoute,
	"en-route":  StatusEnRoute,
	"en route":  StatusEnRoute,
	"landed":    StatusLanded,
	"arrived":   StatusLanded,
	"diverted":  StatusDiverted,
	"alternate": StatusDiverted,
	"rerouted":  StatusDiverted,
	"cancelled": StatusCancelled,
	"canceled":  StatusCancelled,
	"cncl":      StatusCancelled,
	"cancld":    StatusCancelled,
	"delayed":   StatusDelayed,
	"delay":     StatusDelayed,
	"taxi":      StatusTaxi,
	"incident":  StatusIncident,
}

// NormalizeStatus maps a provider status string onto the canonical vocabulary.
// Unrecognized values map to StatusUnknown.
func NormalizeStatus(raw string) Status {
	if s, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StatusUnknown
}

// StatusOrigin records where a status value came from
type StatusOrigin string

const (
	OriginProvider  StatusOrigin = "provider"
	OriginTelemetry StatusOrigin = "telemetry"
	OriginHeuristic StatusOrigin = "heuristic"
)

// Direction of a leg relative to the queried airport
type Direction string

const (
	DirectionArrival   Direction = "arrival"
	DirectionDeparture Direction = "departure"
	// DirectionBoth is only meaningful for board queries.
	DirectionBoth Direction = "both"
)

// ParseDirection accepts the short forms used on the CLI and in queries.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arrival", "arrivals", "arr", "inbound":
		return DirectionArrival, true
	case "departure", "departures", "dep", "outbound":
		return DirectionDeparture, true
	}
	return "", false
}

// SkipReason attributes an input row that did not become a persisted leg
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipNoFlightIdentity SkipReason = "no_flight_identity"
	SkipNoTimeAnchor     SkipReason = "no_time_anchor"
	SkipCodeshareMerged  SkipReason = "codeshare_merged_away"
	SkipOutOfDateRange   SkipReason = "out_of_date_range"
	SkipWriteFailed      SkipReason = "write_failed"
)

// SkipReasons lists every reason in reporting order.
var SkipReasons = []SkipReason{
	SkipNoFlightIdentity,
	SkipNoTimeAnchor,
	SkipCodeshareMerged,
	SkipOutOfDateRange,
	SkipWriteFailed,
}

// FlightLeg is the canonical record for one physical takeoff-to-landing segment.
type FlightLeg struct {
	LegKey string

	FlightNumber  string
	Callsign      string
	OperatingCode string

	AirlineName  string
	AircraftReg  string
	AircraftType string

	DepCode         string
	ArrCode         string
	ReportedArrCode string

	ScheduledDep *time.Time
	EstimatedDep *time.Time
	ActualDep    *time.Time
	ScheduledArr *time.Time
	EstimatedArr *time.Time
	ActualArr    *time.Time

	DelayMinutes *int
	Status       Status
	StatusOrigin StatusOrigin

	Codeshares  []string
	IsCodeshare bool
	Source      string
}

// FlightKey returns the preferred code identifying the flight: callsign,
// then IATA flight number, then the operating code.
func (l *FlightLeg) FlightKey() string {
	switch {
	case l.Callsign != "":
		return l.Callsign
	case l.FlightNumber != "":
		return l.FlightNumber
	}
	return l.OperatingCode
}

// TimeAnchor is the time used for identity: STA, else ETA, else STD.
func (l *FlightLeg) TimeAnchor() *time.Time {
	switch {
	case l.ScheduledArr != nil:
		return l.ScheduledArr
	case l.EstimatedArr != nil:
		return l.EstimatedArr
	}
	return l.ScheduledDep
}

// KeyTime is the time a leg is keyed on: the time anchor, else the first
// observed time (ATA, ETD, ATD) for flights no schedule covers.
func (l *FlightLeg) KeyTime() *time.Time {
	if t := l.TimeAnchor(); t != nil {
		return t
	}
	for _, t := range []*time.Time{l.ActualArr, l.EstimatedDep, l.ActualDep} {
		if t != nil {
			return t
		}
	}
	return nil
}

// ReferenceTime is the scheduled time a leg is judged against, STA else STD.
func (l *FlightLeg) ReferenceTime() *time.Time {
	if l.ScheduledArr != nil {
		return l.ScheduledArr
	}
	return l.ScheduledDep
}

// Codes returns every code the leg can be matched by.
func (l *FlightLeg) Codes() []string {
	codes := make([]string, 0, 3+len(l.Codeshares))
	for _, c := range []string{l.FlightNumber, l.Callsign, l.OperatingCode} {
		if c != "" {
			codes = append(codes, c)
		}
	}
	return append(codes, l.Codeshares...)
}

// FilledFields counts the non-empty attributes of the leg.
func (l *FlightLeg) FilledFields() int {
	n := 0
	for _, s := range []string{
		l.FlightNumber, l.Callsign, l.OperatingCode, l.AirlineName,
		l.AircraftReg, l.AircraftType, l.DepCode, l.ArrCode,
	} {
		if s != "" {
			n++
		}
	}
	for _, t := range []*time.Time{
		l.ScheduledDep, l.EstimatedDep, l.ActualDep,
		l.ScheduledArr, l.EstimatedArr, l.ActualArr,
	} {
		if t != nil {
			n++
		}
	}
	if l.DelayMinutes != nil {
		n++
	}
	return n
}

// TimesForDirection returns the scheduled, estimated and actual times that
// place a leg on a calendar day for the given direction.
func (l *FlightLeg) TimesForDirection(dir Direction) []*time.Time {
	if dir == DirectionDeparture {
		return []*time.Time{l.ScheduledDep, l.EstimatedDep, l.ActualDep}
	}
	return []*time.Time{l.ScheduledArr, l.EstimatedArr, l.ActualArr}
}

// IntermediateRecord is one provider row mapped onto canonical fields.
type IntermediateRecord struct {
	FlightLeg

	// ReportedCode is the marketing code a codeshare row was published under.
	ReportedCode string
	// Raw is the canonical encoding of the provider row.
	Raw []byte
}

// ServedLeg is a leg as presented to readers after live enrichment.
type ServedLeg struct {
	FlightLeg

	Direction      Direction
	DisplayArrCode string
	Ephemeral      bool
	Badge          string
}

// Minutes returns a pointer to the signed whole-minute difference b - a.
func Minutes(a, b *time.Time) *int {
	if a == nil || b == nil {
		return nil
	}
	m := int(b.Sub(*a).Round(time.Minute) / time.Minute)
	return &m
}

// LivePosition is one aircraft currently tracked by the live feed.
type LivePosition struct {
	FlightNumber string
	Callsign     string
	Operator     string
	AircraftReg  string
	AircraftType string
	DepCode      string
	ArrCode      string
	ETA          *time.Time
	Altitude     int
	GroundSpeed  int
}

// Codes returns every code the position can be matched by.
func (p *LivePosition) Codes() []string {
	var codes []string
	for _, c := range []string{p.FlightNumber, p.Callsign} {
		if c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}
