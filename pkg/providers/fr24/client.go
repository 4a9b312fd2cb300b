// Package fr24 adapts the Flightradar24 flight summary and live position APIs.
package fr24

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"flightsync/pkg/cache"
	"flightsync/pkg/config"
	fsotel "flightsync/pkg/otel"
	"flightsync/pkg/parser"
	"flightsync/pkg/providers"
	"flightsync/pkg/timenorm"
	"flightsync/pkg/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	endpointSummary = "/flight-summary/full"
	endpointLive    = "/live/flight-positions/full"

	// windowLayout is the timestamp format the summary filters accept, in UTC.
	windowLayout = "2006-01-02T15:04:05"

	// maxSplits bounds how often a full summary window is halved.
	maxSplits = 3
)

// summaryFields maps flight summary rows. The summary carries no scheduled
// times, only takeoff and landing.
var summaryFields = parser.FieldMap{
	FlightNumber: []string{"flight"},
	Callsign:     []string{"callsign"},
	AirlineICAO:  []string{"operated_as", "painted_as"},
	AircraftReg:  []string{"reg"},
	AircraftType: []string{"type"},

	DepCode:   []string{"orig_iata", "orig_icao"},
	ArrCode:   []string{"dest_iata", "dest_icao"},
	ArrActual: []string{"dest_iata_actual", "dest_icao_actual"},

	ActualDep: []string{"datetime_takeoff"},
	ActualArr: []string{"datetime_landed"},
}

// Client reads historic flight summaries and the live position feed.
type Client struct {
	http       *providers.HTTPClient
	live       *providers.HTTPClient
	parser     *parser.JSONParser
	normalizer providers.Normalizer
	zones      *timenorm.Zones
	baseURL    string
	token      string
	limit      int
	tracer     trace.Tracer
}

// NewClient builds the adapter. Summary responses go through responses;
// live responses get their own short-lived cache.
func NewClient(cfg config.FR24Config, zones *timenorm.Zones, responses *cache.ResponseCache) *Client {
	headers := map[string]string{
		"Authorization":  "Bearer " + cfg.APIToken,
		"Accept-Version": "v1",
	}
	c := &Client{
		http:    providers.NewHTTPClient("fr24", cfg.Timeout, headers, responses),
		live:    providers.NewHTTPClient("fr24-live", cfg.Timeout, headers, cache.New(cfg.LiveTTL)),
		parser:  parser.NewJSONParser(),
		zones:   zones,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.APIToken,
		limit:   cfg.Limit,
		tracer:  otel.Tracer("fr24-client"),
	}
	c.normalizer = providers.Normalizer{Source: c.Name(), Zones: zones, StatusFromTimes: true}
	return c
}

// SetTransport replaces the HTTP transport for both feeds.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.http.SetTransport(rt)
	c.live.SetTransport(rt)
}

func (c *Client) Name() string {
	return "fr24-summary"
}

func airportFilter(airport string, dir types.Direction) string {
	if dir == types.DirectionDeparture {
		return "outbound:" + airport
	}
	return "inbound:" + airport
}

// Fetch returns the summaries of flights touching the airport during the
// local calendar day of req.
func (c *Client) Fetch(ctx context.Context, req providers.FetchRequest) ([]parser.RawRow, error) {
	ctx, span := c.tracer.Start(ctx, "fr24.fetch",
		trace.WithAttributes(
			attribute.String("airport", req.Airport),
			attribute.String("direction", string(req.Direction)),
			attribute.String("date", req.Date),
		),
	)
	defer span.End()

	if c.token == "" {
		err := fmt.Errorf("fr24 api token is not configured")
		fsotel.RecordError(span, err, fsotel.ErrorTypeConfig, false)
		return nil, err
	}

	loc := req.Location
	if loc == nil {
		loc = c.zones.Lookup(req.Airport)
	}
	start, end, err := timenorm.DayBounds(req.Date, loc)
	if err != nil {
		fsotel.RecordError(span, err, fsotel.ErrorTypeValidation, false)
		return nil, fmt.Errorf("failed to resolve day window: %w", err)
	}

	rows, truncated, err := c.fetchWindow(ctx, span, req, start.UTC(), end.UTC(), 0)
	if err != nil {
		return nil, err
	}
	if truncated {
		slog.Warn("Flight summary window still full after splitting",
			"provider", c.Name(), "airport", req.Airport, "date", req.Date, "limit", c.limit)
	}

	span.SetAttributes(
		attribute.Int("rows", len(rows)),
		attribute.Bool("truncated", truncated),
	)
	return rows, nil
}

// fetchWindow requests the summaries taking off in [from, to). The endpoint
// has no offset, so a response that fills the limit is refetched as two
// halves, at most maxSplits levels deep. truncated reports a window that was
// still full at the last level.
func (c *Client) fetchWindow(ctx context.Context, span trace.Span, req providers.FetchRequest, from, to time.Time, depth int) (rows []parser.RawRow, truncated bool, err error) {
	params := url.Values{}
	params.Set("airports", airportFilter(req.Airport, req.Direction))
	params.Set("flight_datetime_from", from.Format(windowLayout))
	params.Set("flight_datetime_to", to.Add(-time.Second).Format(windowLayout))
	params.Set("limit", strconv.Itoa(c.limit))
	params.Set("sort", "asc")

	body, err := c.http.Get(ctx, c.baseURL+endpointSummary, params)
	if err != nil {
		fsotel.Fail(span, err, fsotel.ErrorTypeNetwork)
		return nil, false, fmt.Errorf("failed to fetch flight summary: %w", err)
	}
	rows, err = c.parser.ParsePage(ctx, body, "data")
	if err != nil {
		fsotel.Fail(span, err, fsotel.ErrorTypeParse)
		return nil, false, fmt.Errorf("failed to parse flight summary: %w", err)
	}

	if c.limit <= 0 || len(rows) < c.limit {
		return rows, false, nil
	}
	mid := from.Add(to.Sub(from) / 2).Truncate(time.Second)
	if depth >= maxSplits || !mid.After(from) {
		return rows, true, nil
	}

	first, cutFirst, err := c.fetchWindow(ctx, span, req, from, mid, depth+1)
	if err != nil {
		return nil, false, err
	}
	second, cutSecond, err := c.fetchWindow(ctx, span, req, mid, to, depth+1)
	if err != nil {
		return nil, false, err
	}
	return append(first, second...), cutFirst || cutSecond, nil
}

func (c *Client) Normalize(row parser.RawRow, req providers.FetchRequest) (*types.IntermediateRecord, types.SkipReason) {
	return c.normalizer.Normalize(summaryFields.Extract(row), row.Raw, req)
}

// Positions returns the aircraft currently inbound to or outbound from the
// airport. Responses are reused for the configured live TTL.
func (c *Client) Positions(ctx context.Context, airport string, dir types.Direction) ([]types.LivePosition, error) {
	ctx, span := c.tracer.Start(ctx, "fr24.positions",
		trace.WithAttributes(
			attribute.String("airport", airport),
			attribute.String("direction", string(dir)),
		),
	)
	defer span.End()

	if c.token == "" {
		return nil, fmt.Errorf("fr24 api token is not configured")
	}

	params := url.Values{}
	params.Set("airports", airportFilter(airport, dir))

	body, err := c.live.Get(ctx, c.baseURL+endpointLive, params)
	if err != nil {
		fsotel.Fail(span, err, fsotel.ErrorTypeNetwork)
		return nil, fmt.Errorf("failed to fetch live positions: %w", err)
	}
	rows, err := c.parser.ParsePage(ctx, body, "data")
	if err != nil {
		fsotel.Fail(span, err, fsotel.ErrorTypeParse)
		return nil, fmt.Errorf("failed to parse live positions: %w", err)
	}

	positions := make([]types.LivePosition, 0, len(rows))
	for _, row := range rows {
		p := types.LivePosition{
			FlightNumber: code(row.Str("flight")),
			Callsign:     code(row.Str("callsign")),
			Operator:     code(row.Str("painted_as", "operating_as")),
			AircraftReg:  strings.ToUpper(row.Str("reg")),
			AircraftType: strings.ToUpper(row.Str("type")),
			DepCode:      code(row.Str("orig_iata", "orig_icao")),
			ArrCode:      code(row.Str("dest_iata", "dest_icao")),
			ETA:          timenorm.ToUTC(row.Str("eta"), time.UTC),
			Altitude:     atoi(row.Str("alt")),
			GroundSpeed:  atoi(row.Str("gspeed")),
		}
		if p.FlightNumber == "" && p.Callsign == "" {
			continue
		}
		positions = append(positions, p)
	}

	span.SetAttributes(attribute.Int("positions", len(positions)))
	return positions, nil
}

// Fields exposes the summary mapping table.
func Fields() parser.FieldMap {
	return summaryFields
}

func code(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, " ", ""))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

var _ providers.Adapter = (*Client)(nil)
