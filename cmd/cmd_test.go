package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightsync/pkg/cache"
	"flightsync/pkg/config"
	"flightsync/pkg/pipeline"
	"flightsync/pkg/store"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flightsync.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const baseConfig = `
airports:
  - iata: TIJ
    icao: MMTJ
    timezone: America/Tijuana
providers:
  aviationstack:
    enabled: %t
database:
  driver: %s
  dsn: "%s"
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected ExitError, got %v", err)
	return exitErr.Code
}

func TestExitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid date", fmt.Errorf("%w: %q", pipeline.ErrInvalidDate, "2025-13-01"), ExitInvalidArgs},
		{"store open", fmt.Errorf("%w: connection refused", store.ErrOpen), ExitStoreOpen},
		{"migrate", fmt.Errorf("%w: no such table", store.ErrMigrate), ExitMigrate},
		{"anything else", errors.New("no provider is enabled"), ExitInvalidArgs},
		{"already classified", &ExitError{Code: 42, Err: errors.New("x")}, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(t, exitError(tt.err)))
		})
	}
	assert.NoError(t, exitError(nil))
}

func TestIngest_InvalidDate(t *testing.T) {
	t.Setenv("AVS_ACCESS_KEY", "test-key")
	path := writeConfig(t, fmt.Sprintf(baseConfig, true, "sqlite", ":memory:"))

	_, err := run(t, "ingest", "12/11/2025", "--dry-run", "--config", path)
	require.ErrorIs(t, err, pipeline.ErrInvalidDate)
	assert.Equal(t, ExitInvalidArgs, exitCode(t, err))
}

func TestIngest_InvalidDateBeforeStore(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(baseConfig, true, "mysql", "flightsync:secret@tcp(127.0.0.1:1)/flightsync?timeout=1s"))

	_, err := run(t, "ingest", "2025-11-31", "--config", path)
	require.ErrorIs(t, err, pipeline.ErrInvalidDate)
	assert.NotErrorIs(t, err, store.ErrOpen)
	assert.Equal(t, ExitInvalidArgs, exitCode(t, err))
}

func TestIngest_ArgumentErrors(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(baseConfig, true, "sqlite", ":memory:"))

	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"unknown airport", []string{"--airport", "LAX"}, "not configured"},
		{"bad direction", []string{"--direction", "sideways"}, "direction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"ingest", "--dry-run", "--config", path}, tt.args...)
			_, err := run(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
			assert.Equal(t, ExitInvalidArgs, exitCode(t, err))
		})
	}
}

func TestIngest_NoProviders(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(baseConfig, false, "sqlite", ":memory:"))

	_, err := run(t, "ingest", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no provider")
}

func TestIngest_MissingConfig(t *testing.T) {
	_, err := run(t, "ingest", "--config", filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
	assert.Equal(t, ExitInvalidArgs, exitCode(t, err))
}

func TestIngest_StoreUnreachable(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(baseConfig, true, "mysql", "flightsync:secret@tcp(127.0.0.1:1)/flightsync?timeout=1s"))

	_, err := run(t, "ingest", "--config", path)
	require.ErrorIs(t, err, store.ErrOpen)
	assert.Equal(t, ExitStoreOpen, exitCode(t, err))
}

func TestBuildAdapters(t *testing.T) {
	cfg := config.Default()
	zones, err := cfg.TimeZones()
	require.NoError(t, err)

	names := func() []string {
		var out []string
		for _, a := range buildAdapters(cfg, zones, cache.Disabled()) {
			out = append(out, a.Name())
		}
		return out
	}

	assert.Equal(t, []string{"aviationstack-timetable", "aviationstack-flights", "fr24-summary"}, names())

	cfg.Providers.AviationStack.Enabled = false
	assert.Equal(t, []string{"fr24-summary"}, names())

	cfg.Providers.FR24.Enabled = false
	assert.Empty(t, names())
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "ingest")
	assert.Contains(t, names, "serve")

	ingest, _, err := root.Find([]string{"ingest"})
	require.NoError(t, err)
	for _, flag := range []string{"days", "single-day", "dry-run", "nocache", "airport", "direction"} {
		assert.NotNil(t, ingest.Flags().Lookup(flag), flag)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}
