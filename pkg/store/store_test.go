package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightsync/pkg/config"
	"flightsync/pkg/types"
)

// openTest opens a private in-memory SQLite store for t.
func openTest(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func intp(n int) *int { return &n }

func am180() types.FlightLeg {
	return types.FlightLeg{
		LegKey:        "AMX180|2025-11-12T19:40:00Z|MEX",
		FlightNumber:  "AM180",
		Callsign:      "AMX180",
		OperatingCode: "AMX180",
		AirlineName:   "Aeromexico",
		DepCode:       "MEX",
		ArrCode:       "TIJ",
		ScheduledDep:  ts("2025-11-12T16:00:00Z"),
		ScheduledArr:  ts("2025-11-12T19:40:00Z"),
		Status:        types.StatusScheduled,
		StatusOrigin:  types.OriginProvider,
		Codeshares:    []string{"LA7588"},
		Source:        "aviationstack-flights",
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "postgres", DSN: "x"})
	require.ErrorIs(t, err, ErrOpen)
}

func TestUpsert_InsertThenUpdate(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	out, err := s.Upsert(ctx, am180())
	require.NoError(t, err)
	assert.Equal(t, Inserted, out)

	out, err = s.Upsert(ctx, am180())
	require.NoError(t, err)
	assert.Equal(t, Updated, out)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestUpsert_Idempotent(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	window := Window{
		Airport:   "TIJ",
		Direction: types.DirectionArrival,
		From:      *ts("2025-11-12T00:00:00Z"),
		To:        *ts("2025-11-13T00:00:00Z"),
	}

	_, err := s.Upsert(ctx, am180())
	require.NoError(t, err)
	first, err := s.QueryWindow(ctx, window)
	require.NoError(t, err)

	_, err = s.Upsert(ctx, am180())
	require.NoError(t, err)
	second, err := s.QueryWindow(ctx, window)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, second, 1)
	assert.Equal(t, []string{"LA7588"}, second[0].Codeshares)
}

func TestUpsert_EmptyValuesDoNotErase(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	full := am180()
	full.AircraftReg = "XA-ADL"
	full.DelayMinutes = intp(12)
	_, err := s.Upsert(ctx, full)
	require.NoError(t, err)

	sparse := am180()
	sparse.AirlineName = ""
	sparse.Codeshares = []string{"WS5785"}
	sparse.EstimatedArr = ts("2025-11-12T19:55:00Z")
	_, err = s.Upsert(ctx, sparse)
	require.NoError(t, err)

	legs, err := s.QueryWindow(ctx, Window{
		Airport: "TIJ", Direction: types.DirectionArrival,
		From: *ts("2025-11-12T00:00:00Z"), To: *ts("2025-11-13T00:00:00Z"),
	})
	require.NoError(t, err)
	require.Len(t, legs, 1)

	leg := legs[0]
	assert.Equal(t, "Aeromexico", leg.AirlineName)
	assert.Equal(t, "XA-ADL", leg.AircraftReg)
	require.NotNil(t, leg.DelayMinutes)
	assert.Equal(t, 12, *leg.DelayMinutes)
	require.NotNil(t, leg.EstimatedArr)
	assert.Equal(t, []string{"LA7588", "WS5785"}, leg.Codeshares)
}

func TestUpsert_TerminalStatusNotRegressed(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	landed := am180()
	landed.Status = types.StatusLanded
	landed.StatusOrigin = types.OriginTelemetry
	landed.ActualArr = ts("2025-11-12T19:35:00Z")
	_, err := s.Upsert(ctx, landed)
	require.NoError(t, err)

	_, err = s.Upsert(ctx, am180())
	require.NoError(t, err)

	legs, err := s.QueryWindow(ctx, Window{
		Airport: "TIJ", Direction: types.DirectionArrival,
		From: *ts("2025-11-12T00:00:00Z"), To: *ts("2025-11-13T00:00:00Z"),
	})
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, types.StatusLanded, legs[0].Status)
	assert.Equal(t, types.OriginTelemetry, legs[0].StatusOrigin)
	assert.NotNil(t, legs[0].ActualArr)
}

func TestUpsert_NonTerminalStatusFollowsLatest(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	active := am180()
	active.Status = types.StatusActive
	_, err := s.Upsert(ctx, active)
	require.NoError(t, err)

	cancelled := am180()
	cancelled.Status = types.StatusCancelled
	_, err = s.Upsert(ctx, cancelled)
	require.NoError(t, err)

	legs, err := s.QueryWindow(ctx, Window{
		Airport: "TIJ", Direction: types.DirectionArrival,
		From: *ts("2025-11-12T00:00:00Z"), To: *ts("2025-11-13T00:00:00Z"),
	})
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, types.StatusCancelled, legs[0].Status)
}

func TestQueryWindow_DirectionAndRange(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	arrival := am180()
	departure := types.FlightLeg{
		LegKey:       "VOI811|2025-11-12T23:00:00Z|TIJ",
		FlightNumber: "Y4811",
		Callsign:     "VOI811",
		DepCode:      "TIJ",
		ArrCode:      "GDL",
		ScheduledDep: ts("2025-11-12T20:00:00Z"),
		ScheduledArr: ts("2025-11-12T23:00:00Z"),
		Status:       types.StatusScheduled,
	}
	tomorrow := am180()
	tomorrow.ScheduledArr = ts("2025-11-13T19:40:00Z")
	tomorrow.LegKey = "AMX180|2025-11-13T19:40:00Z|MEX"

	for _, leg := range []types.FlightLeg{arrival, departure, tomorrow} {
		_, err := s.Upsert(ctx, leg)
		require.NoError(t, err)
	}

	day := func(dir types.Direction) []types.FlightLeg {
		legs, err := s.QueryWindow(ctx, Window{
			Airport: "TIJ", Direction: dir,
			From: *ts("2025-11-12T00:00:00Z"), To: *ts("2025-11-13T00:00:00Z"),
		})
		require.NoError(t, err)
		return legs
	}

	arrivals := day(types.DirectionArrival)
	require.Len(t, arrivals, 1)
	assert.Equal(t, "AM180", arrivals[0].FlightNumber)

	departures := day(types.DirectionDeparture)
	require.Len(t, departures, 1)
	assert.Equal(t, "Y4811", departures[0].FlightNumber)
}

func TestUnionCodes(t *testing.T) {
	got := unionCodes([]string{"la7588", "AM180"}, []string{"WS5785", "LA7588"}, "AM180", "AMX180")
	assert.Equal(t, []string{"LA7588", "WS5785"}, []string(got))
}
