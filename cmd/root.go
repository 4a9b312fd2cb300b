// Package cmd implements the flightsync command line.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"flightsync/pkg/logging"
	"flightsync/pkg/metrics"
	"flightsync/pkg/otel"
	"flightsync/pkg/profiling"
	"flightsync/pkg/reporting"
	"flightsync/pkg/tracing"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "flightsync",
		Short: "Reconcile airport flight schedules from several providers",
		Long: `flightsync fetches arrivals and departures for the configured airports
from AviationStack and Flightradar24, reconciles them into one record per
flight leg and serves the result enriched with live positions.`,
		Version:       otel.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.InitLogging()
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML config (default flightsync.yml or $FLIGHTSYNC_CONFIG)")

	rootCmd.AddCommand(
		newIngestCommand(&configPath),
		newServeCommand(&configPath),
	)
	return rootCmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	err := NewRootCommand().Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitInvalidArgs
}

// startTelemetry brings up tracing, metrics, profiling and error reporting
// from the environment, tagged with component. Failures are logged and the
// command continues without that signal.
func startTelemetry(component string) func() {
	otel.SetComponent(component)
	var shutdowns []func()

	for _, init := range []struct {
		name string
		fn   func() (func(), error)
	}{
		{"tracing", tracing.InitTracing},
		{"metrics", metrics.InitMetrics},
		{"profiling", profiling.InitProfiling},
		{"error reporting", reporting.InitReporting},
	} {
		shutdown, err := init.fn()
		if err != nil {
			slog.Warn("Failed to initialize "+init.name, "error", err)
			continue
		}
		shutdowns = append(shutdowns, shutdown)
	}

	return func() {
		for i := len(shutdowns) - 1; i >= 0; i-- {
			shutdowns[i]()
		}
	}
}
