//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package ingest

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barstore/barstore/internal/catalog"
	"github.com/barstore/barstore/internal/logging"
	"github.com/barstore/barstore/internal/ohlcv"
	"github.com/barstore/barstore/internal/schema"
)

// Run is the ingest entry point: it ensures the target's table and
// catalog entry exist, drives the source through the pipeline into the
// table, and finishes with a catalog rescan so coverage metadata matches
// what was just written.
//
// The returned Result is meaningful even on error: batches committed
// before a terminal failure stay durable, and the totals let the caller
// resume incrementally instead of restarting.
func Run(ctx context.Context, pool *pgxpool.Pool, target schema.Target, src Source, opts Options) (Result, error) {
	tableName, err := schema.EnsureTable(ctx, pool, target)
	if err != nil {
		return Result{}, err
	}

	cat := catalog.NewManager(pool)
	if err := cat.EnsureSchema(ctx); err != nil {
		return Result{}, err
	}
	if err := cat.EnsureEntry(ctx, target); err != nil {
		return Result{}, err
	}

	pipeline := NewPipeline(NewUpserter(pool, target), ohlcv.NewValidator(), opts)
	result, runErr := pipeline.Run(ctx, src)

	// Rescan even after a partial failure: whatever committed is real
	// coverage and the catalog should say so.
	if result.Rows() > 0 || runErr == nil {
		entry, err := cat.Rescan(ctx, tableName)
		if err != nil {
			logging.Error().Err(err).Str("table", tableName).Msg("Catalog rescan failed")
		} else if result.Rows() > 0 && entry.TotalRecords == 0 {
			// Upstream bug worth flagging, but not worth halting over.
			logging.Warn().
				Str("table", tableName).
				Int("rows_reported", result.Rows()).
				Msg("Catalog inconsistency: table scanned empty after a non-zero write count")
		}
	}

	event := logging.Info()
	if runErr != nil {
		event = logging.Error().Err(runErr)
	}
	event.
		Str("table", tableName).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("skipped_invalid", result.SkippedInvalid).
		Int("failed_batches", result.FailedBatches).
		Msg("Ingest finished")

	return result, runErr
}
