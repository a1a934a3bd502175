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
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barstore/barstore/internal/ohlcv"
	"github.com/barstore/barstore/internal/schema"
)

// barColumnCount is the number of bound parameters per row. PostgreSQL
// caps a statement at 65535 parameters, which bounds the batch size.
const barColumnCount = 8

// MaxBatchSize is the largest batch a single upsert statement can carry.
const MaxBatchSize = 65000 / barColumnCount

// UpsertResult reports how a committed batch landed: brand-new rows
// versus overwrites of existing timestamps.
type UpsertResult struct {
	Inserted int
	Updated  int
}

// BatchCommitError is a failed batch transaction. The batch rolled back
// atomically; no rows from it were committed.
type BatchCommitError struct {
	Table string
	Rows  int
	Err   error
}

func (e *BatchCommitError) Error() string {
	return fmt.Sprintf("batch of %d rows failed on %s: %v", e.Rows, e.Table, e.Err)
}

func (e *BatchCommitError) Unwrap() error { return e.Err }

// BatchWriter commits one bounded batch of validated bars. The concrete
// implementation is Upserter; tests substitute in-memory fakes.
type BatchWriter interface {
	UpsertBatch(ctx context.Context, bars []ohlcv.Bar) (UpsertResult, error)
}

// Upserter writes batches into one OHLCV table with last-writer-wins
// semantics keyed on timestamp. One transaction per batch: the batch
// either fully commits or fully rolls back.
type Upserter struct {
	pool      *pgxpool.Pool
	table     string
	timeframe string
}

// NewUpserter returns an upserter bound to the target's table. The table
// name comes from the single naming function; the target must already
// have been validated and its table created.
func NewUpserter(pool *pgxpool.Pool, target schema.Target) *Upserter {
	return &Upserter{
		pool:      pool,
		table:     target.TableName(),
		timeframe: target.Timeframe,
	}
}

// Table returns the physical table this upserter writes to.
func (u *Upserter) Table() string { return u.table }

// UpsertBatch inserts the bars, overwriting all non-key columns on a
// timestamp conflict. Duplicate timestamps inside the batch collapse to
// the last occurrence before the statement is built, mirroring the
// dedupe the fetchers apply, and because a single INSERT may not touch
// the same row twice.
func (u *Upserter) UpsertBatch(ctx context.Context, bars []ohlcv.Bar) (UpsertResult, error) {
	var result UpsertResult
	bars = dedupeByTimestamp(bars)
	if len(bars) == 0 {
		return result, nil
	}
	if len(bars) > MaxBatchSize {
		return result, &BatchCommitError{Table: u.table, Rows: len(bars),
			Err: fmt.Errorf("batch exceeds %d rows", MaxBatchSize)}
	}

	sql, args := u.buildUpsert(bars)

	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return result, &BatchCommitError{Table: u.table, Rows: len(bars), Err: err}
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return result, &BatchCommitError{Table: u.table, Rows: len(bars), Err: err}
	}

	for rows.Next() {
		var inserted bool
		if err := rows.Scan(&inserted); err != nil {
			rows.Close()
			return UpsertResult{}, &BatchCommitError{Table: u.table, Rows: len(bars), Err: err}
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return UpsertResult{}, &BatchCommitError{Table: u.table, Rows: len(bars), Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return UpsertResult{}, &BatchCommitError{Table: u.table, Rows: len(bars), Err: err}
	}

	return result, nil
}

// buildUpsert assembles a multi-row parameterized insert. The RETURNING
// clause reports, per input row, whether it was a fresh insert (xmax = 0)
// or a conflict overwrite.
func (u *Upserter) buildUpsert(bars []ohlcv.Bar) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(bars)*barColumnCount)

	fmt.Fprintf(&sb, "INSERT INTO %s (timestamp, open, high, low, close, volume, day_of_week, timeframe) VALUES ", u.table)

	for i, b := range bars {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * barColumnCount
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)

		var volume any
		if b.Volume != nil {
			volume = *b.Volume
		}
		args = append(args,
			b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close,
			volume, b.DayOfWeek(), u.timeframe)
	}

	sb.WriteString(` ON CONFLICT (timestamp) DO UPDATE SET
        open = EXCLUDED.open,
        high = EXCLUDED.high,
        low = EXCLUDED.low,
        close = EXCLUDED.close,
        volume = EXCLUDED.volume,
        day_of_week = EXCLUDED.day_of_week,
        timeframe = EXCLUDED.timeframe
    RETURNING (xmax = 0) AS inserted`)

	return sb.String(), args
}

// dedupeByTimestamp keeps the last occurrence of each timestamp while
// preserving the batch's order of first appearance.
func dedupeByTimestamp(bars []ohlcv.Bar) []ohlcv.Bar {
	seen := make(map[int64]int, len(bars))
	out := make([]ohlcv.Bar, 0, len(bars))
	for _, b := range bars {
		key := b.Timestamp.UnixNano()
		if idx, ok := seen[key]; ok {
			out[idx] = b
			continue
		}
		seen[key] = len(out)
		out = append(out, b)
	}
	return out
}
