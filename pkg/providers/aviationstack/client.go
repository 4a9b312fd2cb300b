// Package aviationstack adapts the AviationStack timetable and flights APIs.
package aviationstack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

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
	"golang.org/x/time/rate"
)

const (
	endpointTimetable = "/timetable"
	endpointFlights   = "/flights"
	endpointFuture    = "/flightsFuture"

	// futureAfterDays is the distance beyond which only flightsFuture has data.
	futureAfterDays = 7

	defaultStatuses = "scheduled,active,landed,diverted,cancelled,incident"
)

// Mode selects which AviationStack feed an adapter reads.
type Mode int

const (
	ModeTimetable Mode = iota
	ModeFlights
)

// fields covers both the timetable (camelCase) and flights (snake_case) shapes.
var fields = parser.FieldMap{
	FlightNumber: []string{"flight.iata", "flight.iataNumber"},
	Callsign:     []string{"flight.icao", "flight.icaoNumber"},
	FlightDigits: []string{"flight.number"},
	AirlineName:  []string{"airline.name"},
	AirlineIATA:  []string{"airline.iata", "airline.iataCode"},
	AirlineICAO:  []string{"airline.icao", "airline.icaoCode"},
	AircraftReg:  []string{"aircraft.registration", "aircraft.regNumber"},
	AircraftType: []string{"aircraft.icao", "aircraft.icao_code", "aircraft.iata", "aircraft.modelCode"},

	DepCode:     []string{"departure.iata", "departure.iataCode", "departure.icao", "departure.icaoCode"},
	DepTimezone: []string{"departure.timezone"},
	ArrCode:     []string{"arrival.iata", "arrival.iataCode", "arrival.icao", "arrival.icaoCode"},
	ArrTimezone: []string{"arrival.timezone"},

	ScheduledDep: []string{"departure.scheduled", "departure.scheduledTime", "departure.scheduled_time"},
	EstimatedDep: []string{"departure.estimated", "departure.estimatedTime", "departure.estimated_runway"},
	ActualDep:    []string{"departure.actual", "departure.actualTime", "departure.actual_runway"},
	ScheduledArr: []string{"arrival.scheduled", "arrival.scheduledTime", "arrival.scheduled_time"},
	EstimatedArr: []string{"arrival.estimated", "arrival.estimatedTime", "arrival.estimated_runway"},
	ActualArr:    []string{"arrival.actual", "arrival.actualTime", "arrival.actual_runway"},

	DepDelay: []string{"departure.delay"},
	ArrDelay: []string{"arrival.delay"},
	Status:   []string{"flight_status", "status"},

	Codeshare:             []string{"flight.codeshared", "codeshared"},
	CodeshareFlightNumber: []string{"flight.codeshared.flight_iata", "codeshared.flight.iataNumber"},
	CodeshareCallsign:     []string{"flight.codeshared.flight_icao", "codeshared.flight.icaoNumber"},
	CodeshareAirlineICAO:  []string{"flight.codeshared.airline_icao", "codeshared.airline.icaoCode"},
	CodeshareAirlineName:  []string{"flight.codeshared.airline_name", "codeshared.airline.name"},
	CodeshareDigits:       []string{"flight.codeshared.flight_number", "codeshared.flight.number"},
}

// Client pages through one AviationStack feed.
type Client struct {
	http       *providers.HTTPClient
	parser     *parser.JSONParser
	normalizer providers.Normalizer
	mode       Mode
	baseURL    string
	accessKey  string
	pageSize   int
	maxPages   int
	limiter    *rate.Limiter
	tracer     trace.Tracer
}

// NewClient builds an adapter for mode from the provider configuration.
func NewClient(mode Mode, cfg config.AviationStackConfig, zones *timenorm.Zones, responses *cache.ResponseCache) *Client {
	c := &Client{
		http:      providers.NewHTTPClient("aviationstack", cfg.Timeout, nil, responses),
		parser:    parser.NewJSONParser(),
		mode:      mode,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		accessKey: cfg.AccessKey,
		pageSize:  cfg.PageSize,
		maxPages:  cfg.MaxPages,
		limiter:   rate.NewLimiter(rate.Every(cfg.PageDelay), 1),
		tracer:    otel.Tracer("aviationstack-client"),
	}
	if cfg.PageDelay <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	c.normalizer = providers.Normalizer{Source: c.Name(), Zones: zones}
	return c
}

// SetTransport replaces the HTTP transport.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.http.SetTransport(rt)
}

func (c *Client) Name() string {
	if c.mode == ModeTimetable {
		return "aviationstack-timetable"
	}
	return "aviationstack-flights"
}

// endpoint routes a request: the timetable feed only covers today; the
// flights feed switches to flightsFuture far enough ahead.
func (c *Client) endpoint(req providers.FetchRequest) (string, url.Values, bool) {
	params := url.Values{}
	params.Set("access_key", c.accessKey)
	params.Set("limit", strconv.Itoa(c.pageSize))

	if c.mode == ModeTimetable {
		if req.Date != req.Today {
			return "", nil, false
		}
		params.Set("iataCode", req.Airport)
		params.Set("type", string(req.Direction))
		return endpointTimetable, params, true
	}

	if req.DaysAhead() > futureAfterDays {
		params.Set("iataCode", req.Airport)
		params.Set("type", string(req.Direction))
		params.Set("date", req.Date)
		return endpointFuture, params, true
	}

	if req.Direction == types.DirectionArrival {
		params.Set("arr_iata", req.Airport)
	} else {
		params.Set("dep_iata", req.Airport)
	}
	params.Set("flight_status", defaultStatuses)
	params.Set("flight_date", req.Date)
	return endpointFlights, params, true
}

// Fetch pages with limit/offset until a short page or the page ceiling.
// Pages are requested one at a time, spaced by the configured delay.
func (c *Client) Fetch(ctx context.Context, req providers.FetchRequest) ([]parser.RawRow, error) {
	endpoint, params, ok := c.endpoint(req)
	if !ok {
		return nil, nil
	}

	ctx, span := c.tracer.Start(ctx, "aviationstack.fetch",
		trace.WithAttributes(
			attribute.String("airport", req.Airport),
			attribute.String("direction", string(req.Direction)),
			attribute.String("date", req.Date),
			attribute.String("api.endpoint", endpoint),
		),
	)
	defer span.End()

	if c.accessKey == "" {
		err := fmt.Errorf("aviationstack access key is not configured")
		fsotel.RecordError(span, err, fsotel.ErrorTypeConfig, false)
		return nil, err
	}

	var rows []parser.RawRow
	pages, truncated := 0, false
	for offset := 0; ; offset += c.pageSize {
		if pages == c.maxPages {
			truncated = true
			break
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return rows, fmt.Errorf("failed waiting for page slot: %w", err)
		}
		params.Set("offset", strconv.Itoa(offset))

		body, err := c.http.Get(ctx, c.baseURL+endpoint, params)
		if err != nil {
			fsotel.Fail(span, err, fsotel.ErrorTypeNetwork)
			return rows, fmt.Errorf("failed to fetch %s offset %d: %w", endpoint, offset, err)
		}
		page, err := c.parser.ParsePage(ctx, body, "data")
		if err != nil {
			fsotel.Fail(span, err, fsotel.ErrorTypeParse)
			return rows, fmt.Errorf("failed to parse %s offset %d: %w", endpoint, offset, err)
		}
		pages++
		rows = append(rows, page...)

		if len(page) < c.pageSize {
			break
		}
	}

	if truncated {
		slog.Warn("Page ceiling reached", "provider", c.Name(), "airport", req.Airport, "date", req.Date, "pages", pages)
	}

	span.SetAttributes(
		attribute.Int("pages", pages),
		attribute.Int("rows", len(rows)),
	)
	return rows, nil
}

func (c *Client) Normalize(row parser.RawRow, req providers.FetchRequest) (*types.IntermediateRecord, types.SkipReason) {
	return c.normalizer.Normalize(fields.Extract(row), row.Raw, req)
}

// Fields exposes the mapping table.
func Fields() parser.FieldMap {
	return fields
}

var _ providers.Adapter = (*Client)(nil)

