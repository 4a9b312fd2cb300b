package types

import (
	"testing"
	"time"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected Status
	}{
		{"", StatusScheduled},
		{"Scheduled", StatusScheduled},
		{"active", StatusActive},
		{"airborne", StatusEnRoute},
		{"EnRoute", StatusEnRoute},
		{"arrived", StatusLanded},
		{"alternate", StatusDiverted},
		{"canceled", StatusCancelled},
		{"CNCL", StatusCancelled},
		{"delay", StatusDelayed},
		{"  taxi ", StatusTaxi},
		{"incident", StatusIncident},
		{"boarding", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := NormalizeStatus(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeStatus(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStatusPriority(t *testing.T) {
	order := []Status{StatusLanded, StatusDiverted, StatusIncident, StatusActive, StatusTaxi, StatusScheduled, StatusCancelled}
	for i := 1; i < len(order); i++ {
		if order[i-1].Priority() <= order[i].Priority() {
			t.Errorf("%s.Priority() = %d, want > %s.Priority() = %d",
				order[i-1], order[i-1].Priority(), order[i], order[i].Priority())
		}
	}
	if StatusActive.Priority() != StatusEnRoute.Priority() {
		t.Error("active and en-route should rank equally")
	}
	if StatusDelayed.Priority() != StatusScheduled.Priority() {
		t.Error("delayed and scheduled should rank equally")
	}
	if StatusUnknown.Priority() != 0 {
		t.Errorf("unknown priority = %d, want 0", StatusUnknown.Priority())
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusLanded:    true,
		StatusDiverted:  true,
		StatusCancelled: true,
		StatusIncident:  true,
		StatusActive:    false,
		StatusScheduled: false,
		StatusTaxi:      false,
	}
	for s, want := range terminal {
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}

func TestParseDirection(t *testing.T) {
	for _, in := range []string{"arrival", "ARR", "inbound"} {
		if d, ok := ParseDirection(in); !ok || d != DirectionArrival {
			t.Errorf("ParseDirection(%q) = %q, %v", in, d, ok)
		}
	}
	for _, in := range []string{"departures", "dep", "outbound"} {
		if d, ok := ParseDirection(in); !ok || d != DirectionDeparture {
			t.Errorf("ParseDirection(%q) = %q, %v", in, d, ok)
		}
	}
	if _, ok := ParseDirection("sideways"); ok {
		t.Error("ParseDirection(sideways) should fail")
	}
}

func TestFlightLegKeys(t *testing.T) {
	sta := time.Date(2025, 11, 12, 16, 0, 0, 0, time.UTC)
	std := sta.Add(-3 * time.Hour)

	leg := FlightLeg{FlightNumber: "AM180", OperatingCode: "AMX180", ScheduledDep: &std}
	if got := leg.FlightKey(); got != "AM180" {
		t.Errorf("FlightKey() = %q, want %q", got, "AM180")
	}
	if got := leg.TimeAnchor(); got == nil || !got.Equal(std) {
		t.Errorf("TimeAnchor() = %v, want STD %v", got, std)
	}

	leg.Callsign = "AMX180"
	leg.ScheduledArr = &sta
	if got := leg.FlightKey(); got != "AMX180" {
		t.Errorf("FlightKey() = %q, want %q", got, "AMX180")
	}
	if got := leg.TimeAnchor(); !got.Equal(sta) {
		t.Errorf("TimeAnchor() = %v, want STA %v", got, sta)
	}
}

func TestFlightLegKeyTime(t *testing.T) {
	sta := time.Date(2025, 11, 12, 16, 0, 0, 0, time.UTC)
	atd := sta.Add(-2 * time.Hour)
	ata := sta.Add(-10 * time.Minute)

	leg := FlightLeg{ActualDep: &atd}
	if got := leg.KeyTime(); got == nil || !got.Equal(atd) {
		t.Errorf("KeyTime() = %v, want ATD %v", got, atd)
	}
	leg.ActualArr = &ata
	if got := leg.KeyTime(); !got.Equal(ata) {
		t.Errorf("KeyTime() = %v, want ATA %v", got, ata)
	}
	leg.ScheduledArr = &sta
	if got := leg.KeyTime(); !got.Equal(sta) {
		t.Errorf("KeyTime() = %v, want STA %v", got, sta)
	}
	if got := (&FlightLeg{}).KeyTime(); got != nil {
		t.Errorf("KeyTime() = %v, want nil", got)
	}
}

func TestMinutes(t *testing.T) {
	a := time.Date(2025, 11, 12, 16, 0, 0, 0, time.UTC)
	b := a.Add(47 * time.Minute)

	if got := Minutes(&a, &b); got == nil || *got != 47 {
		t.Errorf("Minutes = %v, want 47", got)
	}
	if got := Minutes(&b, &a); got == nil || *got != -47 {
		t.Errorf("Minutes = %v, want -47", got)
	}
	if got := Minutes(nil, &a); got != nil {
		t.Errorf("Minutes(nil) = %v, want nil", *got)
	}
}
