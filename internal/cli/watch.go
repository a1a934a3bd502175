//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/barstore/barstore/internal/catalog"
	"github.com/barstore/barstore/internal/db"
	"github.com/barstore/barstore/internal/fetch"
	"github.com/barstore/barstore/internal/ingest"
	"github.com/barstore/barstore/internal/logging"
	"github.com/barstore/barstore/internal/ohlcv"
	"github.com/barstore/barstore/internal/planner"
	"github.com/barstore/barstore/internal/schema"
)

var (
	watchSpoolDir string
	watchSchedule string
	watchOnce     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Ingest fetcher CSV files from a spool directory on a schedule",
	Long: `Periodically sweep a spool directory for fetcher CSV files named
{symbol}_{timeframe}_{from}_to_{to}.csv, ingest each into its table, and
archive it under processed/. After every sweep the update planner's
output is logged so operators can see which series still have coverage
gaps. Deciding when to actually fetch stays with the external
scheduling layer.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSpoolDir, "spool-dir", "",
		"directory to sweep for CSV files")
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "",
		"cron schedule for sweeps (default: @every 5m)")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false,
		"run a single sweep and exit")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchSpoolDir != "" {
		cfg.Watch.SpoolDir = watchSpoolDir
	}
	if watchSchedule != "" {
		cfg.Watch.Schedule = watchSchedule
	}
	if err := cfg.ValidateWatch(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if watchOnce {
		return sweepSpool(ctx, pool)
	}

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Watch.Schedule, func() {
		if err := sweepSpool(ctx, pool); err != nil {
			logging.Error().Err(err).Msg("Spool sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Watch.Schedule, err)
	}

	logging.Info().
		Str("spool_dir", cfg.Watch.SpoolDir).
		Str("schedule", cfg.Watch.Schedule).
		Msg("Watching spool directory")

	scheduler.Start()
	<-ctx.Done()
	logging.Info().Msg("Shutting down")

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	return nil
}

// sweepSpool ingests every recognizable CSV in the spool directory and
// archives it, then logs the remaining coverage gaps.
func sweepSpool(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := os.ReadDir(cfg.Watch.SpoolDir)
	if err != nil {
		return fmt.Errorf("failed to read spool directory: %w", err)
	}

	retry := fetch.DefaultRetryPolicy()
	processed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		symbol, timeframe, err := ohlcv.ParseDataFilename(entry.Name())
		if err != nil {
			logging.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping unrecognized file")
			continue
		}

		target, err := cfg.Target(symbol, timeframe)
		if err != nil {
			logging.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping file for unconfigured asset")
			continue
		}

		path := filepath.Join(cfg.Watch.SpoolDir, entry.Name())
		err = retry.Do(ctx, func() error {
			return ingestSpoolFile(ctx, pool, path, target)
		})
		if err != nil {
			logging.Error().Err(err).Str("file", entry.Name()).Msg("Failed to ingest spool file")
			continue
		}

		if err := archiveSpoolFile(path); err != nil {
			logging.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to archive ingested file")
		}
		processed++
	}

	if processed > 0 {
		logging.Info().Int("files", processed).Msg("Spool sweep complete")
	}

	return reportCoverageGaps(ctx, pool)
}

func ingestSpoolFile(ctx context.Context, pool *pgxpool.Pool, path string, target schema.Target) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = ingest.Run(ctx, pool, target, ohlcv.NewCSVSource(f), cfg.IngestOptions())
	return err
}

// archiveSpoolFile moves an ingested file into processed/ next to the
// spool so a re-sweep never double-ingests it. Double ingest would be
// harmless (upserts are idempotent) but noisy.
func archiveSpoolFile(path string) error {
	dir := filepath.Join(filepath.Dir(path), "processed")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dir, filepath.Base(path)))
}

func reportCoverageGaps(ctx context.Context, pool *pgxpool.Pool) error {
	defaultStart, err := cfg.DefaultStart()
	if err != nil {
		return err
	}
	targets, err := cfg.Targets()
	if err != nil {
		return err
	}

	manager := catalog.NewManager(pool)
	if err := manager.EnsureSchema(ctx); err != nil {
		return err
	}

	plans, err := planner.New(manager, defaultStart).PlanUpdates(ctx, targets)
	if err != nil {
		return err
	}

	for _, p := range plans {
		if p.Kind == planner.None {
			continue
		}
		logging.Info().
			Str("table", p.TableName).
			Str("kind", string(p.Kind)).
			Str("from", p.From.Format("2006-01-02")).
			Str("to", p.To.Format("2006-01-02")).
			Int("gap_days", p.GapDays).
			Msg("Coverage gap")
	}
	return nil
}
