// Package reporting forwards fatal cycle errors and provider failures to
// Sentry. Reporting is off unless SENTRY_DSN is set.
package reporting

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"flightsync/pkg/otel"
	"flightsync/pkg/types"
)

var enabled atomic.Bool

// Enabled reports whether events are being sent.
func Enabled() bool {
	return enabled.Load()
}

// InitReporting configures Sentry from SENTRY_DSN and SENTRY_ENVIRONMENT and
// returns a function that flushes pending events.
func InitReporting() (func(), error) {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		slog.Debug("Error reporting disabled (SENTRY_DSN not set)")
		return func() {}, nil
	}
	env := os.Getenv("SENTRY_ENVIRONMENT")
	if env == "" {
		env = "production"
	}
	return initWithOptions(sentry.ClientOptions{
		Dsn:         dsn,
		SampleRate:  1.0,
		Environment: env,
		ServerName:  "",
	})
}

func initWithOptions(opts sentry.ClientOptions) (func(), error) {
	opts.Release = fmt.Sprintf("flightsync@%s", otel.Version)
	if err := sentry.Init(opts); err != nil {
		return func() {}, fmt.Errorf("sentry initialization failed: %w", err)
	}
	enabled.Store(true)
	slog.Info("Error reporting enabled", "environment", opts.Environment)

	return func() {
		sentry.Flush(2 * time.Second)
	}, nil
}

// CaptureError reports err tagged with the component that raised it.
func CaptureError(err error, component string, tags map[string]string) {
	if err == nil || !Enabled() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		scope.SetFingerprint([]string{component, err.Error()})
		sentry.CaptureException(err)
	})
}

// CaptureCycle reports the provider failures of a completed cycle as one
// warning event.
func CaptureCycle(summary *types.CycleSummary) {
	if summary == nil || len(summary.Errors) == 0 || !Enabled() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "pipeline")
		scope.SetTag("cycle_id", summary.CycleID)
		scope.SetTag("dry_run", fmt.Sprintf("%t", summary.DryRun))
		scope.SetContext("cycle", map[string]any{
			"fetched":  summary.Fetched,
			"inserted": summary.Inserted,
			"updated":  summary.Updated,
			"skipped":  summary.TotalSkipped(),
			"errors":   summary.Errors,
		})
		scope.SetFingerprint([]string{"pipeline", "provider_errors"})

		event := sentry.NewEvent()
		event.Level = sentry.LevelWarning
		event.Message = fmt.Sprintf("%d provider fetches failed", len(summary.Errors))
		sentry.CaptureEvent(event)
	})
}
