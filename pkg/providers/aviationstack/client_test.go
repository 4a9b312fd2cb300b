package aviationstack

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightsync/pkg/cache"
	"flightsync/pkg/config"
	"flightsync/pkg/providers"
	"flightsync/pkg/timenorm"
	"flightsync/pkg/types"
)

const baseURL = "https://avs.test/v1"

func testZones(t *testing.T) *timenorm.Zones {
	t.Helper()
	zones, err := timenorm.NewZones([]timenorm.Zone{
		{Codes: []string{"TIJ", "MMTJ"}, Name: "America/Tijuana"},
	})
	require.NoError(t, err)
	return zones
}

func testConfig() config.AviationStackConfig {
	return config.AviationStackConfig{
		BaseURL:   baseURL,
		AccessKey: "secret",
		PageSize:  2,
		MaxPages:  5,
		Timeout:   time.Second,
	}
}

func newTestClient(t *testing.T, mode Mode, cfg config.AviationStackConfig) (*Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	c := NewClient(mode, cfg, testZones(t), cache.Disabled())
	c.SetTransport(transport)
	return c, transport
}

func arrivalsRequest(date, today string) providers.FetchRequest {
	return providers.FetchRequest{
		Airport:   "TIJ",
		Direction: types.DirectionArrival,
		Date:      date,
		Today:     today,
	}
}

func flightRow(n int) string {
	return fmt.Sprintf(`{"flight_status":"scheduled","flight":{"iata":"Y4%d","icao":"VOI%d","number":"%d"},
		"departure":{"iata":"GDL","scheduled":"2025-11-12T06:00:00+00:00"},
		"arrival":{"iata":"TIJ","scheduled":"2025-11-12T08:%02d:00-08:00"}}`, n, n, n, n%60)
}

func page(rows ...string) string {
	return `{"pagination":{"limit":2},"data":[` + strings.Join(rows, ",") + `]}`
}

func TestFetch_Pagination(t *testing.T) {
	c, transport := newTestClient(t, ModeFlights, testConfig())

	var offsets []string
	transport.RegisterResponder("GET", baseURL+"/flights",
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			offsets = append(offsets, q.Get("offset"))
			assert.Equal(t, "TIJ", q.Get("arr_iata"))
			assert.Equal(t, "2025-11-12", q.Get("flight_date"))
			assert.Equal(t, "secret", q.Get("access_key"))

			switch q.Get("offset") {
			case "0":
				return httpmock.NewStringResponse(200, page(flightRow(1), flightRow(2))), nil
			case "2":
				return httpmock.NewStringResponse(200, page(flightRow(3))), nil
			}
			return httpmock.NewStringResponse(200, page()), nil
		})

	rows, err := c.Fetch(context.Background(), arrivalsRequest("2025-11-12", "2025-11-13"))
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, []string{"0", "2"}, offsets)
}

func TestFetch_PageCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPages = 3
	c, transport := newTestClient(t, ModeFlights, cfg)

	transport.RegisterResponder("GET", baseURL+"/flights",
		httpmock.NewStringResponder(200, page(flightRow(1), flightRow(2))))

	rows, err := c.Fetch(context.Background(), arrivalsRequest("2025-11-12", "2025-11-12"))
	require.NoError(t, err)
	assert.Len(t, rows, 6)
	assert.Equal(t, 3, transport.GetTotalCallCount())
}

func TestFetch_PageDelay(t *testing.T) {
	cfg := testConfig()
	cfg.PageDelay = 40 * time.Millisecond
	c, transport := newTestClient(t, ModeFlights, cfg)

	transport.RegisterResponder("GET", baseURL+"/flights",
		func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("offset") == "4" {
				return httpmock.NewStringResponse(200, page()), nil
			}
			return httpmock.NewStringResponse(200, page(flightRow(1), flightRow(2))), nil
		})

	start := time.Now()
	_, err := c.Fetch(context.Background(), arrivalsRequest("2025-11-12", "2025-11-12"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond, "three pages need two delays")
}

func TestFetch_ErrorKeepsEarlierPages(t *testing.T) {
	c, transport := newTestClient(t, ModeFlights, testConfig())

	transport.RegisterResponder("GET", baseURL+"/flights",
		func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("offset") == "0" {
				return httpmock.NewStringResponse(200, page(flightRow(1), flightRow(2))), nil
			}
			return httpmock.NewStringResponse(500, `{"error":{"message":"boom"}}`), nil
		})

	rows, err := c.Fetch(context.Background(), arrivalsRequest("2025-11-12", "2025-11-12"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Len(t, rows, 2)
}

func TestFetch_MissingKey(t *testing.T) {
	cfg := testConfig()
	cfg.AccessKey = ""
	c, transport := newTestClient(t, ModeFlights, cfg)

	_, err := c.Fetch(context.Background(), arrivalsRequest("2025-11-12", "2025-11-12"))
	require.Error(t, err)
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestEndpointRouting(t *testing.T) {
	timetable, _ := newTestClient(t, ModeTimetable, testConfig())
	flights, _ := newTestClient(t, ModeFlights, testConfig())

	tests := []struct {
		name     string
		client   *Client
		req      providers.FetchRequest
		endpoint string
		ok       bool
	}{
		{"timetable today", timetable, arrivalsRequest("2025-11-12", "2025-11-12"), endpointTimetable, true},
		{"timetable other day", timetable, arrivalsRequest("2025-11-11", "2025-11-12"), "", false},
		{"flights past", flights, arrivalsRequest("2025-11-10", "2025-11-12"), endpointFlights, true},
		{"flights within a week", flights, arrivalsRequest("2025-11-19", "2025-11-12"), endpointFlights, true},
		{"flights far future", flights, arrivalsRequest("2025-11-20", "2025-11-12"), endpointFuture, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, params, ok := tt.client.endpoint(tt.req)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.endpoint, endpoint)
			if ok {
				assert.Equal(t, strconv.Itoa(2), params.Get("limit"))
			}
		})
	}

	dep := arrivalsRequest("2025-11-12", "2025-11-12")
	dep.Direction = types.DirectionDeparture
	_, params, _ := flights.endpoint(dep)
	assert.Equal(t, "TIJ", params.Get("dep_iata"))
	assert.Empty(t, params.Get("arr_iata"))
}

const codesharePage = `{"data":[
 {"flight_status":"scheduled",
  "departure":{"iata":"MEX","timezone":"America/Mexico_City","scheduled":"2025-11-12T05:00:00-06:00"},
  "arrival":{"iata":"TIJ","timezone":"America/Tijuana","scheduled":"2025-11-12T08:00:00-08:00"},
  "airline":{"name":"LATAM Airlines","iata":"LA","icao":"LAN"},
  "flight":{"number":"7588","iata":"LA7588","icao":"LAN7588",
    "codeshared":{"airline_name":"aeromexico","airline_iata":"am","airline_icao":"amx","flight_number":"180","flight_iata":"am180","flight_icao":"amx180"}}},
 {"status":"active",
  "departure":{"iataCode":"MEX","scheduledTime":"2025-11-12T05:00:00-06:00"},
  "arrival":{"icaoCode":"MMTJ","scheduledTime":"2025-11-12T08:00:00","estimatedTime":"2025-11-12T08:25:00","delay":"25"},
  "airline":{"name":"Aeromexico","iataCode":"AM","icaoCode":"AMX"},
  "flight":{"number":"180","iataNumber":"AM180","icaoNumber":"AMX180"},
  "aircraft":{"regNumber":"XA-ADL","modelCode":"b738"}},
 {"flight_status":"active",
  "departure":{"iata":"GDL","scheduled":"2025-11-12T06:00:00-06:00"},
  "arrival":{"iata":"SAN","scheduled":"2025-11-12T08:30:00-08:00"},
  "flight":{"iata":"Y4810"}},
 {"flight_status":"scheduled","departure":{"iata":"GDL"},"arrival":{"iata":"TIJ"},"flight":{"iata":"Y4999"}},
 {"flight_status":"scheduled","arrival":{"iata":"TIJ","scheduled":"2025-11-12T09:00:00-08:00"},"flight":{}}
]}`

func TestNormalize(t *testing.T) {
	c, transport := newTestClient(t, ModeFlights, testConfig())
	transport.RegisterResponder("GET", "=~^"+baseURL+"/flights", httpmock.NewStringResponder(200, codesharePage))

	c.pageSize = 100

	req := arrivalsRequest("2025-11-12", "2025-11-12")
	rows, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	codeshare, reason := c.Normalize(rows[0], req)
	require.Equal(t, types.SkipNone, reason)
	assert.True(t, codeshare.IsCodeshare)
	assert.Equal(t, "AM180", codeshare.FlightNumber)
	assert.Equal(t, "AMX180", codeshare.Callsign)
	assert.Equal(t, "LA7588", codeshare.ReportedCode)
	assert.Equal(t, "aeromexico", codeshare.AirlineName)
	assert.Equal(t, "2025-11-12T16:00:00Z", codeshare.ScheduledArr.Format(time.RFC3339))
	assert.Equal(t, "2025-11-12T11:00:00Z", codeshare.ScheduledDep.Format(time.RFC3339))
	assert.Equal(t, "aviationstack-flights", codeshare.Source)

	operating, reason := c.Normalize(rows[1], req)
	require.Equal(t, types.SkipNone, reason)
	assert.False(t, operating.IsCodeshare)
	assert.Equal(t, "AM180", operating.FlightNumber)
	assert.Equal(t, "TIJ", operating.ArrCode, "ICAO arrival code pinned to IATA")
	assert.Empty(t, operating.ReportedArrCode)
	assert.Equal(t, "XA-ADL", operating.AircraftReg)
	assert.Equal(t, "B738", operating.AircraftType)
	assert.Equal(t, types.StatusActive, operating.Status)
	assert.Equal(t, "2025-11-12T16:00:00Z", operating.ScheduledArr.Format(time.RFC3339), "local time read in Tijuana zone")
	require.NotNil(t, operating.DelayMinutes)
	assert.Equal(t, 25, *operating.DelayMinutes)

	wrongAirport, reason := c.Normalize(rows[2], req)
	require.Equal(t, types.SkipNone, reason)
	assert.Equal(t, "TIJ", wrongAirport.ArrCode)
	assert.Equal(t, "SAN", wrongAirport.ReportedArrCode)
	assert.Equal(t, types.StatusTaxi, wrongAirport.Status, "active without ETA becomes taxi")

	_, reason = c.Normalize(rows[3], req)
	assert.Equal(t, types.SkipNoTimeAnchor, reason)

	_, reason = c.Normalize(rows[4], req)
	assert.Equal(t, types.SkipNoFlightIdentity, reason)
}

func TestFieldsValid(t *testing.T) {
	assert.NoError(t, Fields().Validate())
}
