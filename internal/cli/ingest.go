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

	"github.com/spf13/cobra"

	"github.com/barstore/barstore/internal/db"
	"github.com/barstore/barstore/internal/ingest"
	"github.com/barstore/barstore/internal/logging"
	"github.com/barstore/barstore/internal/ohlcv"
	"github.com/barstore/barstore/internal/schema"
)

var (
	ingestFile       string
	ingestSymbol     string
	ingestTimeframe  string
	ingestAssetClass string
	ingestExchange   string
	ingestBatchSize  int
	ingestStrict     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a CSV bar file into its per-symbol table",
	Long: `Ingest a fetcher CSV file (timestamp,open,high,low,close,volume) into
the table derived from the target symbol, timeframe and asset class.
Re-running over the same file is idempotent: existing timestamps are
overwritten in place, never duplicated.

Example:
  barstore ingest --file data/EURUSD_1h_2024-01-01_to_2024-02-01.csv \
    --symbol EURUSD --timeframe 1h`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "",
		"CSV file to ingest (required)")
	ingestCmd.Flags().StringVar(&ingestSymbol, "symbol", "",
		"instrument symbol, e.g. EURUSD or BTC/USDT (required)")
	ingestCmd.Flags().StringVar(&ingestTimeframe, "timeframe", "",
		"bar timeframe, e.g. 1m, 1h, 1d (required)")
	ingestCmd.Flags().StringVar(&ingestAssetClass, "asset-class", "",
		"asset class (tradfi, crypto); default from the configured asset registry")
	ingestCmd.Flags().StringVar(&ingestExchange, "exchange", "",
		"source exchange for crypto symbols; default from the configured asset registry")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0,
		"rows per batch transaction")
	ingestCmd.Flags().BoolVar(&ingestStrict, "strict", false,
		"abort on the first invalid row or failed batch")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestFile == "" || ingestSymbol == "" || ingestTimeframe == "" {
		return fmt.Errorf("--file, --symbol and --timeframe are required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	target, err := resolveTarget(ingestSymbol, ingestTimeframe)
	if err != nil {
		return err
	}

	opts := cfg.IngestOptions()
	if ingestBatchSize > 0 {
		opts.BatchSize = ingestBatchSize
	}
	if ingestStrict {
		opts.SkipInvalidRecords = false
		opts.ContinueOnBatchFailure = false
	}

	f, err := os.Open(ingestFile)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", ingestFile, err)
	}
	defer f.Close()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	logging.Info().
		Str("file", ingestFile).
		Str("table", target.TableName()).
		Msg("Ingesting CSV file")

	result, err := ingest.Run(ctx, pool, target, ohlcv.NewCSVSource(f), opts)
	if err != nil {
		return fmt.Errorf("ingest failed after %d written, %d skipped: %w",
			result.Rows(), result.SkippedInvalid, err)
	}

	cmd.Printf("Ingested %s: %d inserted, %d updated, %d skipped, %d failed batches\n",
		target.TableName(), result.Inserted, result.Updated,
		result.SkippedInvalid, result.FailedBatches)
	return nil
}

// resolveTarget builds the logical target from flags, falling back to the
// configured asset registry for the class and exchange.
func resolveTarget(symbol, timeframe string) (schema.Target, error) {
	class := ingestAssetClass
	exchange := ingestExchange

	if asset, ok := cfg.AssetBySymbol(symbol); ok {
		if class == "" {
			class = asset.AssetClass
		}
		if exchange == "" {
			exchange = asset.Exchange
		}
	}
	if class == "" {
		return schema.Target{}, fmt.Errorf(
			"asset %q is not in the configured registry; pass --asset-class (and --exchange for crypto)", symbol)
	}

	t := schema.Target{
		AssetClass: schema.AssetClass(class),
		Symbol:     symbol,
		Timeframe:  timeframe,
		Exchange:   exchange,
	}
	if err := t.Validate(); err != nil {
		return schema.Target{}, err
	}
	return t, nil
}
