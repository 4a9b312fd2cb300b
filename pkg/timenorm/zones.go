package timenorm

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Zone binds the codes of one airport to its IANA time zone.
type Zone struct {
	Codes []string
	Name  string
}

// Zones resolves the time zone assumed for a segment's local times.
type Zones struct {
	byCode map[string]int
	locs   []*time.Location

	mu       sync.Mutex
	declared map[string]*time.Location
}

// NewZones loads every configured zone. Unknown zone names are an error.
func NewZones(entries []Zone) (*Zones, error) {
	z := &Zones{
		byCode:   make(map[string]int),
		declared: make(map[string]*time.Location),
	}
	for _, e := range entries {
		loc, err := time.LoadLocation(e.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to load time zone %q: %w", e.Name, err)
		}
		idx := len(z.locs)
		z.locs = append(z.locs, loc)
		for _, code := range e.Codes {
			if code == "" {
				continue
			}
			z.byCode[strings.ToUpper(code)] = idx
		}
	}
	return z, nil
}

// Lookup returns the configured zone for an airport code, or nil.
func (z *Zones) Lookup(code string) *time.Location {
	if idx, ok := z.byCode[strings.ToUpper(code)]; ok {
		return z.locs[idx]
	}
	return nil
}

// SameAirport reports whether two codes name the same configured airport.
func (z *Zones) SameAirport(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	ia, okA := z.byCode[strings.ToUpper(a)]
	ib, okB := z.byCode[strings.ToUpper(b)]
	return okA && okB && ia == ib
}

// For picks the zone to read a segment's local times in. The queried
// airport's own segment uses its configured zone; other segments use the
// zone the provider declared, falling back to the queried airport's zone.
func (z *Zones) For(segmentCode, declared, airport string) *time.Location {
	home := z.Lookup(airport)
	if home == nil {
		home = time.UTC
	}
	if segmentCode == "" || z.SameAirport(segmentCode, airport) {
		return home
	}
	if loc := z.loadDeclared(declared); loc != nil {
		return loc
	}
	return home
}

func (z *Zones) loadDeclared(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	if loc, ok := z.declared[name]; ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = nil
	}
	z.declared[name] = loc
	return loc
}
