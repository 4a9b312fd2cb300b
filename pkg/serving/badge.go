package serving

import (
	"encoding/base64"
	"fmt"
	"html"
	"strings"

	"flightsync/pkg/types"
)

// BadgeGenerator creates base64-encoded SVG badges for flight board rows
type BadgeGenerator struct{}

func NewBadgeGenerator() *BadgeGenerator {
	return &BadgeGenerator{}
}

// statusColor returns the badge background for a served status
func statusColor(status types.Status) string {
	switch status {
	case types.StatusLanded:
		return "#198754" // Green
	case types.StatusActive, types.StatusEnRoute:
		return "#0d6efd" // Blue
	case types.StatusTaxi:
		return "#0dcaf0" // Cyan
	case types.StatusDelayed:
		return "#fd7e14" // Orange
	case types.StatusDiverted:
		return "#6f42c1" // Purple
	case types.StatusCancelled, types.StatusIncident:
		return "#dc3545" // Red
	default:
		return "#6c757d" // Gray
	}
}

// StatusBadge creates a pill badge with the flight code, a direction arrow
// and the status, e.g. "AM180 ↓ LANDED".
func (g *BadgeGenerator) StatusBadge(code string, direction types.Direction, status types.Status) string {
	arrow := "•"
	switch direction {
	case types.DirectionArrival:
		arrow = "↓"
	case types.DirectionDeparture:
		arrow = "↑"
	}
	if status == "" {
		status = types.StatusScheduled
	}

	svg := fmt.Sprintf(`<svg width="140" height="24" xmlns="http://www.w3.org/2000/svg">
  <!-- Badge Background -->
  <rect width="140" height="24" fill="%s" rx="12"/>

  <!-- Text Content -->
  <text x="70" y="16" font-family="Arial, sans-serif" font-size="11" font-weight="bold"
        fill="white" text-anchor="middle">%s %s %s</text>
</svg>`, statusColor(status), html.EscapeString(code), arrow, strings.ToUpper(string(status)))

	encoded := base64.StdEncoding.EncodeToString([]byte(svg))
	return fmt.Sprintf("data:image/svg+xml;base64,%s", encoded)
}
