package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"flightsync/pkg/cache"
	"flightsync/pkg/config"
	"flightsync/pkg/loki"
	"flightsync/pkg/pipeline"
	"flightsync/pkg/providers"
	"flightsync/pkg/providers/aviationstack"
	"flightsync/pkg/providers/fr24"
	"flightsync/pkg/reporting"
	"flightsync/pkg/store"
	"flightsync/pkg/timenorm"
	"flightsync/pkg/types"
)

type ingestOptions struct {
	days      int
	singleDay bool
	dryRun    bool
	noCache   bool
	airport   string
	direction string
}

func newIngestCommand(configPath *string) *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest [YYYY-MM-DD]",
		Short: "Run one ingestion cycle",
		Long: `Fetch every enabled provider for the configured airports, reconcile the
rows into flight legs and upsert them into the store. The date defaults to
today at each airport.`,
		Example: `  # Today, all airports, both directions
  flightsync ingest

  # Three days of TIJ arrivals without writing anything
  flightsync ingest 2025-11-12 --days=3 --airport=TIJ --direction=arrival --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var date string
			if len(args) == 1 {
				date = args[0]
			}
			return exitError(runIngest(cmd, *configPath, date, opts))
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.days, "days", 1, "Number of consecutive days to ingest (max 7)")
	flags.BoolVar(&opts.singleDay, "single-day", false, "Ingest only the requested date")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Reconcile and report without writing to the store")
	flags.BoolVar(&opts.noCache, "nocache", false, "Bypass the raw response cache")
	flags.StringVar(&opts.airport, "airport", "", "Restrict the cycle to one configured airport (IATA or ICAO)")
	flags.StringVar(&opts.direction, "direction", "", "Restrict the cycle to arrival or departure")
	return cmd
}

func runIngest(cmd *cobra.Command, configPath, date string, opts *ingestOptions) error {
	if err := pipeline.ValidateDate(date); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	airports := cfg.Airports
	if opts.airport != "" {
		a, ok := cfg.Airport(opts.airport)
		if !ok {
			return fmt.Errorf("airport %q is not configured", opts.airport)
		}
		airports = []config.Airport{a}
	}

	var dir types.Direction
	if opts.direction != "" {
		d, ok := types.ParseDirection(opts.direction)
		if !ok {
			return fmt.Errorf("direction must be arrival or departure, got %q", opts.direction)
		}
		dir = d
	}

	zones, err := cfg.TimeZones()
	if err != nil {
		return err
	}

	responses := cache.Disabled()
	if !opts.noCache {
		path := cfg.Ingest.CacheFile
		if path == "" {
			path = cache.DefaultPath()
		}
		responses = cache.Open(cfg.Ingest.CacheTTL, path)
	}
	adapters := buildAdapters(cfg, zones, responses)
	if len(adapters) == 0 {
		return fmt.Errorf("no provider is enabled")
	}

	shutdown := startTelemetry("ingest")
	defer shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var writer pipeline.Writer
	if !opts.dryRun {
		st, err := store.Open(ctx, cfg.Database)
		if err != nil {
			reporting.CaptureError(err, "store", map[string]string{"driver": cfg.Database.Driver})
			return err
		}
		defer st.Close()
		writer = st
	}

	p, err := pipeline.New(pipeline.Config{
		Airports:  airports,
		Direction: dir,
		Date:      date,
		Days:      opts.days,
		MaxDays:   cfg.Ingest.MaxDays,
		SingleDay: opts.singleDay,
		DryRun:    opts.dryRun,
		Zones:     zones,
	}, adapters, writer)
	if err != nil {
		return err
	}
	if cfg.Loki.URL != "" {
		p.SetSink(loki.NewClient(cfg.Loki.URL, cfg.Loki.User, cfg.Loki.Password))
	}

	if opts.dryRun {
		slog.Info("Starting ingest in DRY RUN mode, nothing will be written")
	}
	slog.Info("Starting ingest",
		"airports", len(airports),
		"providers", len(adapters),
		"days", opts.days,
		"nocache", opts.noCache,
		"cached_responses", responses.Len(),
	)

	started := time.Now()
	summary, err := p.Run(ctx)
	if err != nil {
		reporting.CaptureError(err, "pipeline", nil)
		return fmt.Errorf("ingest interrupted after %s: %w", time.Since(started).Round(time.Millisecond), err)
	}
	reporting.CaptureCycle(summary)

	if err := responses.Save(); err != nil {
		slog.Warn("Failed to save response cache", "error", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), summary.String())
	return nil
}

// buildAdapters returns the adapters of every enabled provider, timetable
// first so the schedule anchors the other feeds.
func buildAdapters(cfg *config.Config, zones *timenorm.Zones, responses *cache.ResponseCache) []providers.Adapter {
	var adapters []providers.Adapter
	if avs := cfg.Providers.AviationStack; avs.Enabled {
		adapters = append(adapters,
			aviationstack.NewClient(aviationstack.ModeTimetable, avs, zones, responses),
			aviationstack.NewClient(aviationstack.ModeFlights, avs, zones, responses),
		)
	}
	if fr := cfg.Providers.FR24; fr.Enabled {
		adapters = append(adapters, fr24.NewClient(fr, zones, responses))
	}
	return adapters
}
