package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateCounts is the per-date slice of a cycle summary.
type DateCounts struct {
	Legs     int `json:"legs"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// CycleSummary holds the counters of one ingestion cycle. Every fetched row
// ends up in exactly one of Skipped, Inserted or Updated (or in Merged on a
// dry run).
type CycleSummary struct {
	CycleID    string                 `json:"cycle_id"`
	StartedAt  time.Time              `json:"started_at"`
	Duration   time.Duration          `json:"duration"`
	DryRun     bool                   `json:"dry_run"`
	Fetched    int                    `json:"fetched"`
	Normalized int                    `json:"normalized"`
	Merged     int                    `json:"merged"`
	Inserted   int                    `json:"inserted"`
	Updated    int                    `json:"updated"`
	Skipped    map[SkipReason]int     `json:"skipped"`
	PerDate    map[string]*DateCounts `json:"per_date"`
	Errors     []string               `json:"errors"`
}

// NewCycleSummary returns a summary with every skip reason at zero.
func NewCycleSummary(id string, started time.Time, dryRun bool) *CycleSummary {
	s := &CycleSummary{
		CycleID:   id,
		StartedAt: started,
		DryRun:    dryRun,
		Skipped:   make(map[SkipReason]int, len(SkipReasons)),
		PerDate:   make(map[string]*DateCounts),
	}
	for _, r := range SkipReasons {
		s.Skipped[r] = 0
	}
	return s
}

// Skip attributes n rows to reason.
func (s *CycleSummary) Skip(reason SkipReason, n int) {
	s.Skipped[reason] += n
}

// TotalSkipped sums every skip reason.
func (s *CycleSummary) TotalSkipped() int {
	n := 0
	for _, v := range s.Skipped {
		n += v
	}
	return n
}

// Date returns the counters for date, creating them on first use.
func (s *CycleSummary) Date(date string) *DateCounts {
	dc, ok := s.PerDate[date]
	if !ok {
		dc = &DateCounts{}
		s.PerDate[date] = dc
	}
	return dc
}

// String renders the one-line summary printed after a cycle.
func (s *CycleSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cycle=%s dry_run=%t fetched=%d normalized=%d merged=%d inserted=%d updated=%d merged_codeshares=%d",
		s.CycleID, s.DryRun, s.Fetched, s.Normalized, s.Merged, s.Inserted, s.Updated, s.Skipped[SkipCodeshareMerged])

	skips := make([]string, 0, len(SkipReasons))
	for _, r := range SkipReasons {
		skips = append(skips, fmt.Sprintf("%s=%d", r, s.Skipped[r]))
	}
	fmt.Fprintf(&b, " skipped={%s}", strings.Join(skips, ","))

	dates := make([]string, 0, len(s.PerDate))
	for d := range s.PerDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	parts := make([]string, 0, len(dates))
	for _, d := range dates {
		dc := s.PerDate[d]
		parts = append(parts, fmt.Sprintf("%s:%d/%d/%d", d, dc.Legs, dc.Inserted, dc.Updated))
	}
	fmt.Fprintf(&b, " dates={%s}", strings.Join(parts, ","))

	fmt.Fprintf(&b, " errors=%d", len(s.Errors))
	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(s.Errors, "; "))
	}
	fmt.Fprintf(&b, " duration=%s", s.Duration.Round(time.Millisecond))
	return b.String()
}
