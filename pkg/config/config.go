// Package config loads the flightsync YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"flightsync/pkg/timenorm"
	"flightsync/pkg/types"
)

// DefaultPath is read when no --config flag or FLIGHTSYNC_CONFIG is given.
const DefaultPath = "flightsync.yml"

type Config struct {
	Airports  []Airport       `yaml:"airports" validate:"required,min=1,dive"`
	Zones     []ZoneConfig    `yaml:"zones" validate:"omitempty,dive"`
	Providers ProvidersConfig `yaml:"providers"`
	Database  DatabaseConfig  `yaml:"database"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Serve     ServeConfig     `yaml:"serve"`
	Loki      LokiConfig      `yaml:"loki"`
}

type Airport struct {
	IATA       string   `yaml:"iata" validate:"required,len=3,alpha"`
	ICAO       string   `yaml:"icao" validate:"omitempty,len=4,alpha"`
	Timezone   string   `yaml:"timezone" validate:"required"`
	Directions []string `yaml:"directions" validate:"omitempty,dive,oneof=arrival departure"`
}

// ZoneConfig maps extra airport codes to a time zone.
type ZoneConfig struct {
	Codes    []string `yaml:"codes" validate:"required,min=1"`
	Timezone string   `yaml:"timezone" validate:"required"`
}

type ProvidersConfig struct {
	AviationStack AviationStackConfig `yaml:"aviationstack"`
	FR24          FR24Config          `yaml:"fr24"`
}

type AviationStackConfig struct {
	Enabled   bool          `yaml:"enabled"`
	BaseURL   string        `yaml:"base_url" validate:"omitempty,url"`
	AccessKey string        `yaml:"access_key"`
	PageSize  int           `yaml:"page_size" validate:"gte=0,lte=100"`
	MaxPages  int           `yaml:"max_pages" validate:"gte=0"`
	PageDelay time.Duration `yaml:"page_delay" validate:"gte=0"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
}

type FR24Config struct {
	Enabled  bool          `yaml:"enabled"`
	BaseURL  string        `yaml:"base_url" validate:"omitempty,url"`
	APIToken string        `yaml:"api_token"`
	Limit    int           `yaml:"limit" validate:"gte=0,lte=20000"`
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
	LiveTTL  time.Duration `yaml:"live_ttl" validate:"gte=0"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=sqlite mysql"`
	DSN    string `yaml:"dsn"`
}

type IngestConfig struct {
	MaxDays  int           `yaml:"max_days" validate:"gte=0,lte=7"`
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"gte=0"`

	// CacheFile keeps raw responses between runs. Empty means the user
	// cache directory.
	CacheFile string `yaml:"cache_file"`
}

type ServeConfig struct {
	Listen        string        `yaml:"listen"`
	WindowHours   int           `yaml:"window_hours" validate:"gte=0,lte=48"`
	LandedAfter   time.Duration `yaml:"landed_after" validate:"gte=0"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace" validate:"gte=0"`
}

type LokiConfig struct {
	URL      string `yaml:"url" validate:"omitempty,url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Load reads, defaults and validates the configuration at path. A missing
// file at the default path yields the built-in configuration.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = getEnv("FLIGHTSYNC_CONFIG", DefaultPath)
		explicit = path != DefaultPath
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		cfg = Default()
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default is the configuration used when no file exists: the Baja
// California and Sonora airports with both directions enabled.
func Default() *Config {
	cfg := &Config{
		Airports: []Airport{
			{IATA: "TIJ", ICAO: "MMTJ", Timezone: "America/Tijuana"},
			{IATA: "MXL", ICAO: "MMML", Timezone: "America/Tijuana"},
			{IATA: "PPE", ICAO: "MMPE", Timezone: "America/Hermosillo"},
			{IATA: "HMO", ICAO: "MMHO", Timezone: "America/Hermosillo"},
			{IATA: "GYM", ICAO: "MMGM", Timezone: "America/Hermosillo"},
		},
	}
	cfg.Providers.AviationStack.Enabled = true
	cfg.Providers.FR24.Enabled = true
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	for i := range c.Airports {
		c.Airports[i].IATA = strings.ToUpper(c.Airports[i].IATA)
		c.Airports[i].ICAO = strings.ToUpper(c.Airports[i].ICAO)
		if len(c.Airports[i].Directions) == 0 {
			c.Airports[i].Directions = []string{string(types.DirectionArrival), string(types.DirectionDeparture)}
		}
	}

	avs := &c.Providers.AviationStack
	setString(&avs.BaseURL, "https://api.aviationstack.com/v1")
	setInt(&avs.PageSize, 100)
	setInt(&avs.MaxPages, 20)
	setDuration(&avs.PageDelay, 1200*time.Millisecond)
	setDuration(&avs.Timeout, 20*time.Second)

	fr := &c.Providers.FR24
	setString(&fr.BaseURL, "https://fr24api.flightradar24.com/api")
	setInt(&fr.Limit, 2000)
	setDuration(&fr.Timeout, 20*time.Second)
	setDuration(&fr.LiveTTL, 5*time.Second)

	setString(&c.Database.Driver, "sqlite")
	setString(&c.Database.DSN, "flightsync.db")

	setInt(&c.Ingest.MaxDays, 7)
	setDuration(&c.Ingest.CacheTTL, 10*time.Minute)

	setString(&c.Serve.Listen, ":8080")
	setInt(&c.Serve.WindowHours, 12)
	setDuration(&c.Serve.LandedAfter, time.Hour)
	setDuration(&c.Serve.ShutdownGrace, 5*time.Second)
}

// applyEnv lets secrets and connection strings come from the environment.
func (c *Config) applyEnv() {
	c.Providers.AviationStack.AccessKey = getEnv("AVS_ACCESS_KEY", c.Providers.AviationStack.AccessKey)
	c.Providers.FR24.APIToken = getEnv("FR24_API_TOKEN", c.Providers.FR24.APIToken)
	c.Database.Driver = getEnv("FLIGHTSYNC_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("FLIGHTSYNC_DB_DSN", c.Database.DSN)
	c.Loki.URL = getEnv("LOKI_URL", c.Loki.URL)
	c.Loki.User = getEnv("LOKI_USER", c.Loki.User)
	c.Loki.Password = getEnv("LOKI_PASSWORD", c.Loki.Password)
}

// Airport returns the configured airport with the given IATA or ICAO code.
func (c *Config) Airport(code string) (Airport, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, a := range c.Airports {
		if a.IATA == code || (a.ICAO != "" && a.ICAO == code) {
			return a, true
		}
	}
	return Airport{}, false
}

// HasDirection reports whether the airport is ingested in dir.
func (a Airport) HasDirection(dir types.Direction) bool {
	for _, d := range a.Directions {
		if d == string(dir) {
			return true
		}
	}
	return false
}

// TimeZones builds the time zone table from the airports and extra zones.
func (c *Config) TimeZones() (*timenorm.Zones, error) {
	entries := make([]timenorm.Zone, 0, len(c.Airports)+len(c.Zones))
	for _, a := range c.Airports {
		entries = append(entries, timenorm.Zone{Codes: []string{a.IATA, a.ICAO}, Name: a.Timezone})
	}
	for _, z := range c.Zones {
		entries = append(entries, timenorm.Zone{Codes: z.Codes, Name: z.Timezone})
	}
	return timenorm.NewZones(entries)
}

// getEnv returns the value of an environment variable or a default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}
