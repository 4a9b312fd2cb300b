package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"flightsync/pkg/cache"
	"flightsync/pkg/config"
	"flightsync/pkg/providers/fr24"
	"flightsync/pkg/reporting"
	"flightsync/pkg/serving"
	"flightsync/pkg/store"
)

func newServeCommand(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the flight board API",
		Long: `Serve GET /api/v1/flights: persisted legs for a time window, enriched
with Flightradar24 live positions when a token is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exitError(runServe(cmd, *configPath, listen))
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config, :8080)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath, listen string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen == "" {
		listen = cfg.Serve.Listen
	}

	zones, err := cfg.TimeZones()
	if err != nil {
		return err
	}

	shutdown := startTelemetry("serve")
	defer shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		reporting.CaptureError(err, "store", map[string]string{"driver": cfg.Database.Driver})
		return err
	}
	defer st.Close()

	var feed serving.LiveFeed
	if cfg.Providers.FR24.Enabled && cfg.Providers.FR24.APIToken != "" {
		feed = fr24.NewClient(cfg.Providers.FR24, zones, cache.Disabled())
	} else {
		slog.Warn("Live feed disabled, serving persisted legs with heuristic statuses only")
	}

	svc := serving.NewService(st, feed, serving.Options{
		Zones:       zones,
		LandedAfter: cfg.Serve.LandedAfter,
	})
	e := serving.NewServer(serving.NewHandler(svc, cfg, zones))

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Serving flight board", "listen", listen)
		if err := e.Start(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		slog.Info("Received signal, shutting down gracefully...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Serve.ShutdownGrace)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Shutdown timeout, forcing exit", "error", err)
	}
	slog.Info("Server stopped")
	return nil
}
