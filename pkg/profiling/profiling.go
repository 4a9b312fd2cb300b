package profiling

import (
	"log/slog"
	"os"
	"strings"

	"flightsync/pkg/otel"

	"github.com/grafana/pyroscope-go"
)

var defaultProfiles = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
}

// InitProfiling starts continuous profiling when PYROSCOPE_PROFILING_ENABLED
// is set. Goroutine profiles are on by default to catch provider fan-out
// stalls; PYROSCOPE_PROFILE_TYPES replaces the list.
func InitProfiling() (func(), error) {
	noop := func() {}
	if !isTrue(os.Getenv("PYROSCOPE_PROFILING_ENABLED")) {
		slog.Debug("Pyroscope profiling is disabled")
		return noop, nil
	}

	cfg := config()
	profiler, err := pyroscope.Start(cfg)
	if err != nil {
		slog.Warn("Failed to start Pyroscope profiler", "error", err)
		return noop, nil
	}
	slog.Debug("Pyroscope profiling started",
		"server", cfg.ServerAddress,
		"application", cfg.ApplicationName,
		"profiles", len(cfg.ProfileTypes),
	)

	return func() {
		if err := profiler.Stop(); err != nil {
			slog.Error("Error stopping Pyroscope profiler", "error", err)
		}
	}, nil
}

func config() pyroscope.Config {
	cfg := pyroscope.Config{
		ApplicationName: envOr("PYROSCOPE_APPLICATION_NAME", otel.ServiceName),
		ServerAddress:   envOr("PYROSCOPE_SERVER_ADDRESS", "http://localhost:4040"),
		Logger:          pyroscope.StandardLogger,
		ProfileTypes:    profileTypes(os.Getenv("PYROSCOPE_PROFILE_TYPES")),
		Tags: map[string]string{
			"service":   otel.ServiceName,
			"component": otel.Component(),
			"version":   otel.Version,
		},
	}
	user, password := os.Getenv("PYROSCOPE_BASIC_AUTH_USER"), os.Getenv("PYROSCOPE_BASIC_AUTH_PASSWORD")
	if user != "" && password != "" {
		cfg.BasicAuthUser = user
		cfg.BasicAuthPassword = password
	}
	return cfg
}

// profileTypes parses a comma separated list such as "cpu,goroutines".
// Unknown names are logged and skipped; an empty result means the defaults.
func profileTypes(raw string) []pyroscope.ProfileType {
	known := map[string]pyroscope.ProfileType{
		"cpu":            pyroscope.ProfileCPU,
		"alloc_space":    pyroscope.ProfileAllocSpace,
		"alloc_objects":  pyroscope.ProfileAllocObjects,
		"inuse_space":    pyroscope.ProfileInuseSpace,
		"inuse_objects":  pyroscope.ProfileInuseObjects,
		"goroutines":     pyroscope.ProfileGoroutines,
		"mutex_count":    pyroscope.ProfileMutexCount,
		"mutex_duration": pyroscope.ProfileMutexDuration,
		"block_count":    pyroscope.ProfileBlockCount,
		"block_duration": pyroscope.ProfileBlockDuration,
	}

	var types []pyroscope.ProfileType
	for _, name := range strings.Split(raw, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		pt, ok := known[name]
		if !ok {
			slog.Warn("Ignoring unknown Pyroscope profile type", "type", name)
			continue
		}
		types = append(types, pt)
	}
	if len(types) == 0 {
		return defaultProfiles
	}
	return types
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
