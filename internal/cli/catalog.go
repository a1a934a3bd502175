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
	"time"

	"github.com/spf13/cobra"

	"github.com/barstore/barstore/internal/catalog"
	"github.com/barstore/barstore/internal/db"
	"github.com/barstore/barstore/internal/logging"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List catalog entries and their coverage",
	RunE:  runCatalog,
}

var (
	rescanAll bool
)

var rescanCmd = &cobra.Command{
	Use:   "rescan [table-name]",
	Short: "Recompute coverage statistics for one or all tables",
	Long: `Recompute a catalog entry's statistics (row count, first/last
timestamp, weekday distribution, volume availability) from a full scan
of the underlying table. Rescans run automatically after every ingest;
this command covers manual fixups, e.g. after administrative edits to a
table.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRescan,
}

func init() {
	rescanCmd.Flags().BoolVar(&rescanAll, "all", false,
		"rescan every table in the catalog")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	manager := catalog.NewManager(pool)
	exists, err := manager.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		cmd.Println("Catalog is empty (no tables have been created yet).")
		return nil
	}

	entries, err := manager.ListAll(ctx)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		cmd.Println("Catalog is empty.")
		return nil
	}

	for _, e := range entries {
		cmd.Printf("%s\n", e.TableName)
		cmd.Printf("  symbol: %s  timeframe: %s  class: %s", e.Symbol, e.Timeframe, e.AssetClass)
		if e.Exchange != "" {
			cmd.Printf("  exchange: %s", e.Exchange)
		}
		cmd.Println()
		cmd.Printf("  records: %d  coverage: %d days  format: %s\n",
			e.TotalRecords, e.CoverageDays, e.DataFormat)
		cmd.Printf("  range: %s .. %s\n",
			formatTimestamp(e.FirstTimestamp), formatTimestamp(e.LastTimestamp))
		cmd.Printf("  resume from: %s  last rescan: %s\n",
			formatTimestamp(e.CanUpdateFrom), formatTimestamp(e.LastMetadataUpdate))
	}
	return nil
}

func runRescan(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !rescanAll && len(args) == 0 {
		return fmt.Errorf("pass a table name or --all")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	manager := catalog.NewManager(pool)

	var tables []string
	if rescanAll {
		entries, err := manager.ListAll(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			tables = append(tables, e.TableName)
		}
	} else {
		tables = args
	}

	for _, table := range tables {
		entry, err := manager.Rescan(ctx, table)
		if err != nil {
			return fmt.Errorf("rescan of %s failed: %w", table, err)
		}
		logging.Info().
			Str("table", table).
			Int64("records", entry.TotalRecords).
			Int64("coverage_days", entry.CoverageDays).
			Msg("Rescanned")
	}

	cmd.Printf("Rescanned %d table(s)\n", len(tables))
	return nil
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
