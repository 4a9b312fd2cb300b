package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"flightsync/pkg/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flightsync.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
airports:
  - iata: tij
    icao: mmtj
    timezone: America/Tijuana
    directions: [arrival]
zones:
  - codes: [MEX, MMMX]
    timezone: America/Mexico_City
providers:
  aviationstack:
    enabled: true
    access_key: from-file
    page_delay: 500ms
  fr24:
    enabled: false
database:
  driver: mysql
  dsn: "user:pass@tcp(db:3306)/flights?parseTime=true"
`)
	t.Setenv("AVS_ACCESS_KEY", "")
	t.Setenv("FR24_API_TOKEN", "token-from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	a, ok := cfg.Airport("MMTJ")
	if !ok {
		t.Fatal("Airport(MMTJ) not found")
	}
	if a.IATA != "TIJ" {
		t.Errorf("IATA = %q, want %q", a.IATA, "TIJ")
	}
	if !a.HasDirection(types.DirectionArrival) || a.HasDirection(types.DirectionDeparture) {
		t.Errorf("Directions = %v, want [arrival]", a.Directions)
	}

	avs := cfg.Providers.AviationStack
	if avs.AccessKey != "from-file" {
		t.Errorf("AccessKey = %q, want %q", avs.AccessKey, "from-file")
	}
	if avs.PageDelay != 500*time.Millisecond {
		t.Errorf("PageDelay = %v, want 500ms", avs.PageDelay)
	}
	if avs.PageSize != 100 || avs.MaxPages != 20 {
		t.Errorf("PageSize/MaxPages = %d/%d, want defaults 100/20", avs.PageSize, avs.MaxPages)
	}
	if cfg.Providers.FR24.APIToken != "token-from-env" {
		t.Errorf("APIToken = %q, want env value", cfg.Providers.FR24.APIToken)
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("Driver = %q, want mysql", cfg.Database.Driver)
	}
	if cfg.Ingest.MaxDays != 7 {
		t.Errorf("MaxDays = %d, want 7", cfg.Ingest.MaxDays)
	}

	zones, err := cfg.TimeZones()
	if err != nil {
		t.Fatalf("TimeZones failed: %v", err)
	}
	if loc := zones.Lookup("MMMX"); loc == nil || loc.String() != "America/Mexico_City" {
		t.Errorf("Lookup(MMMX) = %v, want America/Mexico_City", loc)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no airports", `airports: []`},
		{"bad iata", "airports:\n  - iata: TIJUANA\n    timezone: America/Tijuana\n"},
		{"bad direction", "airports:\n  - iata: TIJ\n    timezone: America/Tijuana\n    directions: [sideways]\n"},
		{"bad driver", "airports:\n  - iata: TIJ\n    timezone: America/Tijuana\ndatabase:\n  driver: oracle\n"},
		{"too many days", "airports:\n  - iata: TIJ\n    timezone: America/Tijuana\ningest:\n  max_days: 30\n"},
		{"malformed yaml", "airports: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("FLIGHTSYNC_CONFIG", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with no file should use defaults: %v", err)
	}
	if len(cfg.Airports) != 5 {
		t.Errorf("len(Airports) = %d, want 5", len(cfg.Airports))
	}
	if _, ok := cfg.Airport("GYM"); !ok {
		t.Error("default config should include GYM")
	}

	if _, err := Load(filepath.Join(dir, "missing.yml")); err == nil {
		t.Error("an explicit missing path should fail")
	}
}
