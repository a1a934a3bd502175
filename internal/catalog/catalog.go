//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package catalog keeps per-table coverage metadata consistent with the
// actual contents of the OHLCV tables.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barstore/barstore/internal/logging"
	"github.com/barstore/barstore/internal/schema"
)

// Table holds one row per OHLCV table. table_name maps 1:1 onto exactly
// one physical table and is the durable join key between the two.
const catalogTable = "ohlcv_catalog"

const createCatalogSQL = `
CREATE TABLE IF NOT EXISTS ohlcv_catalog (
    table_name    TEXT PRIMARY KEY,
    symbol        TEXT NOT NULL,
    timeframe     TEXT NOT NULL,
    asset_class   TEXT NOT NULL,
    exchange      TEXT,
    total_records BIGINT NOT NULL DEFAULT 0,
    first_available_timestamp TIMESTAMPTZ,
    last_available_timestamp  TIMESTAMPTZ,
    coverage_days BIGINT NOT NULL DEFAULT 0,
    volume_available BOOLEAN NOT NULL DEFAULT FALSE,
    data_format   TEXT NOT NULL DEFAULT 'OHLC',
    day_of_week_distribution JSONB NOT NULL DEFAULT '{}'::jsonb,
    last_metadata_update TIMESTAMPTZ,
    can_update_from TIMESTAMPTZ,
    UNIQUE (symbol, timeframe, exchange, asset_class)
)`

// Entry describes one OHLCV table's coverage and freshness.
type Entry struct {
	TableName  string
	Symbol     string
	Timeframe  string
	AssetClass schema.AssetClass
	Exchange   string

	TotalRecords    int64
	FirstTimestamp  *time.Time
	LastTimestamp   *time.Time
	CoverageDays    int64
	VolumeAvailable bool
	// DataFormat is OHLCV when at least one row carries positive volume,
	// OHLC otherwise.
	DataFormat            string
	DayOfWeekDistribution map[string]int64

	LastMetadataUpdate *time.Time
	// CanUpdateFrom is the safe resume point for the next fetch. It never
	// exceeds the table's actual last timestamp.
	CanUpdateFrom *time.Time
}

// ErrNoEntry is returned when a catalog lookup finds no row.
var ErrNoEntry = errors.New("no catalog entry")

// Manager performs all catalog mutations. Entries are created alongside
// their tables, mutated only by Rescan, and never deleted automatically.
type Manager struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewManager returns a catalog manager over the pool.
func NewManager(pool *pgxpool.Pool) *Manager {
	return &Manager{pool: pool, now: time.Now}
}

// Exists reports whether the catalog table has been created.
func (m *Manager) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := m.pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT FROM information_schema.tables
            WHERE table_name = $1
        )
    `, catalogTable).Scan(&exists)
	return exists, err
}

// EnsureSchema creates the catalog table if absent.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	if _, err := m.pool.Exec(ctx, createCatalogSQL); err != nil {
		return fmt.Errorf("failed to create catalog table: %w", err)
	}
	return nil
}

// EnsureEntry creates the zero-stats catalog row for a target's table,
// right after table creation and before any data exists. Idempotent: an
// existing row is left untouched.
func (m *Manager) EnsureEntry(ctx context.Context, t schema.Target) error {
	if err := t.Validate(); err != nil {
		return err
	}

	var exchange any
	if t.Exchange != "" {
		exchange = t.Exchange
	}

	_, err := m.pool.Exec(ctx, `
        INSERT INTO ohlcv_catalog (table_name, symbol, timeframe, asset_class, exchange, day_of_week_distribution)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (table_name) DO NOTHING
    `, t.TableName(), t.Symbol, t.Timeframe, string(t.AssetClass), exchange, emptyDistribution())
	if err != nil {
		return fmt.Errorf("failed to ensure catalog entry for %s: %w", t.TableName(), err)
	}
	return nil
}

// Get returns the entry for a table name, or ErrNoEntry.
func (m *Manager) Get(ctx context.Context, tableName string) (*Entry, error) {
	row := m.pool.QueryRow(ctx, selectEntrySQL+` WHERE table_name = $1`, tableName)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w for table %s", ErrNoEntry, tableName)
	}
	return e, err
}

// Rescan re-derives the entry's statistics from a full aggregate scan of
// the underlying table and stamps can_update_from and
// last_metadata_update. Always a complete re-derivation, never an
// incremental delta: catalog rows are tiny next to the data tables and a
// rescan happens once per ingest cycle, so correctness wins.
//
// Idempotent: two rescans over an unchanged table produce identical rows
// up to the update stamp.
func (m *Manager) Rescan(ctx context.Context, tableName string) (*Entry, error) {
	// Only tables registered in the catalog are scanned; the entry's
	// presence is also what vouches for the table name, which has to be
	// interpolated into the aggregate query.
	entry, err := m.Get(ctx, tableName)
	if err != nil {
		return nil, err
	}

	var (
		total  int64
		first  *time.Time
		last   *time.Time
		hasVol bool
	)
	err = m.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT count(*),
               min(timestamp),
               max(timestamp),
               COALESCE(bool_or(volume IS NOT NULL AND volume > 0), FALSE)
        FROM %s
    `, tableName)).Scan(&total, &first, &last, &hasVol)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", tableName, err)
	}

	dist := emptyDistribution()
	rows, err := m.pool.Query(ctx, fmt.Sprintf(`
        SELECT day_of_week, count(*) FROM %s GROUP BY day_of_week
    `, tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to scan weekday distribution of %s: %w", tableName, err)
	}
	for rows.Next() {
		var day string
		var count int64
		if err := rows.Scan(&day, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan weekday distribution of %s: %w", tableName, err)
		}
		dist[day] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan weekday distribution of %s: %w", tableName, err)
	}

	entry.TotalRecords = total
	entry.FirstTimestamp = first
	entry.LastTimestamp = last
	entry.CoverageDays = coverageDays(first, last)
	entry.VolumeAvailable = hasVol
	entry.DataFormat = "OHLC"
	if hasVol {
		entry.DataFormat = "OHLCV"
	}
	entry.DayOfWeekDistribution = dist
	entry.CanUpdateFrom = last
	updatedAt := m.now().UTC()
	entry.LastMetadataUpdate = &updatedAt

	_, err = m.pool.Exec(ctx, `
        UPDATE ohlcv_catalog SET
            total_records = $2,
            first_available_timestamp = $3,
            last_available_timestamp = $4,
            coverage_days = $5,
            volume_available = $6,
            data_format = $7,
            day_of_week_distribution = $8,
            last_metadata_update = $9,
            can_update_from = $10
        WHERE table_name = $1
    `, tableName, entry.TotalRecords, entry.FirstTimestamp, entry.LastTimestamp,
		entry.CoverageDays, entry.VolumeAvailable, entry.DataFormat,
		entry.DayOfWeekDistribution, entry.LastMetadataUpdate, entry.CanUpdateFrom)
	if err != nil {
		return nil, fmt.Errorf("failed to update catalog entry for %s: %w", tableName, err)
	}

	logging.Debug().
		Str("table", tableName).
		Int64("total_records", total).
		Int64("coverage_days", entry.CoverageDays).
		Bool("volume_available", hasVol).
		Msg("Catalog entry rescanned")

	return entry, nil
}

// ListAll returns every entry ordered by table name for deterministic
// output.
func (m *Manager) ListAll(ctx context.Context) ([]Entry, error) {
	return m.list(ctx, selectEntrySQL+` ORDER BY table_name`)
}

// ListNeedingUpdate returns entries whose safe resume point is missing or
// earlier than the cutoff, ordered by table name.
func (m *Manager) ListNeedingUpdate(ctx context.Context, cutoff time.Time) ([]Entry, error) {
	return m.list(ctx, selectEntrySQL+
		` WHERE can_update_from IS NULL OR can_update_from < $1 ORDER BY table_name`, cutoff)
}

const selectEntrySQL = `
    SELECT table_name, symbol, timeframe, asset_class, exchange,
           total_records, first_available_timestamp, last_available_timestamp,
           coverage_days, volume_available, data_format,
           day_of_week_distribution, last_metadata_update, can_update_from
    FROM ohlcv_catalog`

func (m *Manager) list(ctx context.Context, sql string, args ...any) ([]Entry, error) {
	rows, err := m.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e        Entry
		class    string
		exchange *string
	)
	err := row.Scan(&e.TableName, &e.Symbol, &e.Timeframe, &class, &exchange,
		&e.TotalRecords, &e.FirstTimestamp, &e.LastTimestamp,
		&e.CoverageDays, &e.VolumeAvailable, &e.DataFormat,
		&e.DayOfWeekDistribution, &e.LastMetadataUpdate, &e.CanUpdateFrom)
	if err != nil {
		return nil, err
	}
	e.AssetClass = schema.AssetClass(class)
	if exchange != nil {
		e.Exchange = *exchange
	}
	return &e, nil
}

// coverageDays is the whole-day span between the first and last bar's
// dates: bars on 2024-01-01 through 2024-01-10 cover 9 days.
func coverageDays(first, last *time.Time) int64 {
	if first == nil || last == nil {
		return 0
	}
	f := first.UTC().Truncate(24 * time.Hour)
	l := last.UTC().Truncate(24 * time.Hour)
	return int64(l.Sub(f) / (24 * time.Hour))
}

func emptyDistribution() map[string]int64 {
	return map[string]int64{
		"Monday": 0, "Tuesday": 0, "Wednesday": 0, "Thursday": 0,
		"Friday": 0, "Saturday": 0, "Sunday": 0,
	}
}
