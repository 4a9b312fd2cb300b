// Package timenorm converts provider timestamp strings into UTC instants.
package timenorm

import (
	"regexp"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

// explicitZone matches strings that carry their own offset or a Z suffix
var explicitZone = regexp.MustCompile(`(?:[Zz]|[+\-]\d{2}:?\d{2})$`)

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04Z07:00",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ToUTC parses raw into a UTC instant. Strings with an explicit zone are
// absolute; anything else is read as wall-clock time in assumed (UTC when
// nil). A nil result means the time is unknown.
func ToUTC(raw string, assumed *time.Location) *time.Time {
	s := canonical(strings.TrimSpace(raw))
	if s == "" {
		return nil
	}
	if assumed == nil {
		assumed = time.UTC
	}

	if explicitZone.MatchString(s) {
		for _, layout := range zonedLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return utc(t)
			}
		}
	} else {
		for _, layout := range localLayouts {
			if t, err := time.ParseInLocation(layout, s, assumed); err == nil {
				return utc(t)
			}
		}
	}

	// loose formats, e.g. "2025.11.12 08:00:00" or "2025/11/12"
	if !hasDate(s) {
		return nil
	}
	t, err := now.ParseInLocation(assumed, s)
	if err != nil || t.IsZero() {
		return nil
	}
	return utc(t)
}

var (
	lowerSeparator = regexp.MustCompile(`^(\d{4}-\d{1,2}-\d{1,2})t(\d)`)
	lowerZulu      = regexp.MustCompile(`(\d)z$`)
)

// canonical upper-cases the ISO 8601 date/time separator and zulu suffix,
// which some feeds send in lowercase.
func canonical(s string) string {
	s = lowerSeparator.ReplaceAllString(s, "${1}T${2}")
	return lowerZulu.ReplaceAllString(s, "${1}Z")
}

var datePart = regexp.MustCompile(`\d{4}[-/.]\d{1,2}[-/.]\d{1,2}`)

// hasDate guards the loose parser, which fills a missing date with today.
func hasDate(s string) bool {
	return datePart.MatchString(s)
}

func utc(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}

// DayBounds returns the UTC instants bounding a local calendar date.
func DayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start.UTC(), start.AddDate(0, 0, 1).UTC(), nil
}

// LocalDate formats t as a calendar date in loc.
func LocalDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}

// FallsOn reports whether any of the given instants lands on date in loc.
func FallsOn(date string, loc *time.Location, times ...*time.Time) bool {
	for _, t := range times {
		if t != nil && LocalDate(*t, loc) == date {
			return true
		}
	}
	return false
}
