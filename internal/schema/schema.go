//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package schema owns physical table identity: the naming function that
// maps a logical target onto its per-symbol OHLCV table, and the DDL for
// those tables. The derived name IS the table's durable identity, so the
// naming rules here must stay pure and stable across versions.
package schema

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barstore/barstore/internal/logging"
)

// AssetClass partitions the naming scheme. Names must never collide
// across classes, so each class carries its own suffix.
type AssetClass string

const (
	// TradFi covers conventional instruments (FX, equities, indices).
	TradFi AssetClass = "tradfi"
	// Crypto covers exchange-traded crypto pairs.
	Crypto AssetClass = "crypto"
)

// Target identifies one logical bar series: where a batch of records is
// headed. Exchange is only meaningful for crypto targets.
type Target struct {
	AssetClass AssetClass
	Symbol     string
	Timeframe  string
	Exchange   string
}

// SchemaError is a fatal naming or DDL failure. There is no safe partial
// state to continue from, so callers surface it immediately.
type SchemaError struct {
	Table  string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schema error on %s: %s: %v", e.Table, e.Reason, e.Err)
	}
	return fmt.Sprintf("schema error on %s: %s", e.Table, e.Reason)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// namingRule produces the physical table name for one asset class.
type namingRule func(Target) string

// naming is the registry of per-class naming rules. All identifier
// construction funnels through here; nothing else in the repository may
// build a table name by hand.
var naming = map[AssetClass]namingRule{
	TradFi: func(t Target) string {
		return fmt.Sprintf("%s_%s_tradfi_ohlcv",
			strings.ToLower(t.Symbol), strings.ToLower(t.Timeframe))
	},
	Crypto: func(t Target) string {
		return fmt.Sprintf("%s_%s_%s_crypto_ohlcv",
			strings.ToLower(stripSeparators(t.Symbol)),
			strings.ToLower(t.Timeframe),
			strings.ToLower(t.Exchange))
	},
}

// separatorReplacer flattens pair symbols like BTC/USDT into btcusdt.
var separatorReplacer = strings.NewReplacer("/", "", "-", "", "_", "")

func stripSeparators(symbol string) string {
	return separatorReplacer.Replace(symbol)
}

// identPattern is the only shape accepted for a derived identifier.
// Anything else never reaches a DDL or DML statement.
var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks the target's fields are present and produce a legal
// identifier.
func (t Target) Validate() error {
	if _, ok := naming[t.AssetClass]; !ok {
		return &SchemaError{Reason: fmt.Sprintf("unknown asset class %q", t.AssetClass)}
	}
	if t.Symbol == "" {
		return &SchemaError{Reason: "symbol is required"}
	}
	if t.Timeframe == "" {
		return &SchemaError{Reason: "timeframe is required"}
	}
	if t.AssetClass == Crypto && t.Exchange == "" {
		return &SchemaError{Reason: "exchange is required for crypto targets"}
	}

	name := naming[t.AssetClass](t)
	if !identPattern.MatchString(name) {
		return &SchemaError{Table: name,
			Reason: fmt.Sprintf("derived name for %s/%s is not a valid identifier", t.Symbol, t.Timeframe)}
	}
	return nil
}

// TableName derives the physical table name for the target. The mapping
// is deterministic and case-insensitive over its inputs:
//
//	tradfi: {symbol}_{timeframe}_tradfi_ohlcv
//	crypto: {symbol w/o separator}_{timeframe}_{exchange}_crypto_ohlcv
func (t Target) TableName() string {
	rule, ok := naming[t.AssetClass]
	if !ok {
		return ""
	}
	return rule(t)
}

// barTableColumns is the expected column set of an OHLCV table, used by
// the defensive shape check in EnsureTable.
var barTableColumns = []string{
	"timestamp", "open", "high", "low", "close", "volume", "day_of_week", "timeframe",
}

const barTableDDL = `
CREATE TABLE IF NOT EXISTS %[1]s (
    timestamp   TIMESTAMPTZ PRIMARY KEY,
    open        NUMERIC(30,10) NOT NULL,
    high        NUMERIC(30,10) NOT NULL,
    low         NUMERIC(30,10) NOT NULL,
    close       NUMERIC(30,10) NOT NULL,
    volume      NUMERIC(30,10),
    day_of_week TEXT NOT NULL,
    timeframe   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_dow_ts ON %[1]s (day_of_week, timestamp);
CREATE INDEX IF NOT EXISTS idx_%[1]s_tf_ts ON %[1]s (timeframe, timestamp);
`

// EnsureTable creates the target's OHLCV table if it does not exist and
// returns its name. Safe to call repeatedly. If a table of the same name
// already exists with an incompatible shape, a *SchemaError is returned
// rather than silently writing into it.
func EnsureTable(ctx context.Context, pool *pgxpool.Pool, t Target) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	name := t.TableName()

	exists, err := tableExists(ctx, pool, name)
	if err != nil {
		return "", &SchemaError{Table: name, Reason: "checking table existence", Err: err}
	}

	if exists {
		if err := checkTableShape(ctx, pool, name); err != nil {
			return "", err
		}
		return name, nil
	}

	logging.Info().
		Str("table", name).
		Str("symbol", t.Symbol).
		Str("timeframe", t.Timeframe).
		Msg("Creating OHLCV table")

	if _, err := pool.Exec(ctx, fmt.Sprintf(barTableDDL, name)); err != nil {
		return "", &SchemaError{Table: name, Reason: "creating table", Err: err}
	}
	return name, nil
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, name string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT FROM information_schema.tables
            WHERE table_name = $1
        )
    `, name).Scan(&exists)
	return exists, err
}

// checkTableShape verifies an existing table carries the expected OHLCV
// columns. Collisions here mean the naming function's injectivity was
// violated (or an unrelated table squats on the name); either way writing
// into it would corrupt history.
func checkTableShape(ctx context.Context, pool *pgxpool.Pool, name string) error {
	rows, err := pool.Query(ctx, `
        SELECT column_name FROM information_schema.columns
        WHERE table_name = $1
    `, name)
	if err != nil {
		return &SchemaError{Table: name, Reason: "checking table shape", Err: err}
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return &SchemaError{Table: name, Reason: "checking table shape", Err: err}
		}
		have[col] = true
	}
	if err := rows.Err(); err != nil {
		return &SchemaError{Table: name, Reason: "checking table shape", Err: err}
	}

	for _, col := range barTableColumns {
		if !have[col] {
			return &SchemaError{Table: name,
				Reason: fmt.Sprintf("existing table is missing column %q; name collides with an incompatible table", col)}
		}
	}
	return nil
}
