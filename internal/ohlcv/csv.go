//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package ohlcv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CSV files produced by the fetch collaborators carry the columns
// timestamp,open,high,low,close,volume. The volume column may be absent
// entirely (OHLC-only datasets) or empty per row.

// csvTimeLayouts are the accepted textual timestamp layouts, in the order
// the fetchers have historically emitted them.
var csvTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// CSVSource reads bars from a CSV stream. It implements the ingest
// pipeline's record source contract: Next returns io.EOF when the stream
// is exhausted.
type CSVSource struct {
	reader    *csv.Reader
	hasVolume bool
	started   bool
	line      int
}

// NewCSVSource wraps r in a bar source. The header row, if present, is
// consumed on the first Next call.
func NewCSVSource(r io.Reader) *CSVSource {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	// Tolerate OHLC rows without a volume field.
	cr.FieldsPerRecord = -1
	return &CSVSource{reader: cr, hasVolume: true}
}

// Next returns the next bar, or io.EOF at end of stream. A malformed row
// is returned as a *ValidationError so the pipeline can apply its
// skip-or-abort policy; reading may continue afterwards.
func (s *CSVSource) Next() (Bar, error) {
	for {
		record, err := s.reader.Read()
		if err != nil {
			if err == io.EOF {
				return Bar{}, io.EOF
			}
			return Bar{}, fmt.Errorf("reading csv: %w", err)
		}
		s.line++

		if !s.started {
			s.started = true
			if isHeaderRow(record) {
				s.hasVolume = len(record) >= 6
				continue
			}
			s.hasVolume = len(record) >= 6
		}

		return s.parseRow(record)
	}
}

func (s *CSVSource) parseRow(record []string) (Bar, error) {
	if len(record) < 5 {
		return Bar{}, &ValidationError{Reason: fmt.Sprintf("line %d: expected at least 5 fields, got %d", s.line, len(record))}
	}

	ts, err := ParseTimestamp(record[0])
	if err != nil {
		return Bar{}, &ValidationError{Reason: fmt.Sprintf("line %d: %v", s.line, err)}
	}

	var bar Bar
	bar.Timestamp = ts

	fields := []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
	}
	for i, f := range fields {
		v, err := decimal.NewFromString(strings.TrimSpace(record[i+1]))
		if err != nil {
			return Bar{}, &ValidationError{Timestamp: ts,
				Reason: fmt.Sprintf("line %d: non-numeric %s %q", s.line, f.name, record[i+1])}
		}
		*f.dst = v
	}

	if s.hasVolume && len(record) >= 6 {
		raw := strings.TrimSpace(record[5])
		if raw != "" {
			v, err := decimal.NewFromString(raw)
			if err != nil {
				return Bar{}, &ValidationError{Timestamp: ts,
					Reason: fmt.Sprintf("line %d: non-numeric volume %q", s.line, record[5])}
			}
			bar.Volume = &v
		}
	}

	return bar, nil
}

func isHeaderRow(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "timestamp")
}

// ParseTimestamp parses the timestamp formats seen in fetcher output:
// the standard CSV layout, RFC3339, a bare date, or epoch milliseconds.
// All parsed instants are UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}

	for _, layout := range csvTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

// ParseDataFilename extracts the symbol and timeframe from a fetcher CSV
// filename of the form {symbol}_{timeframe}_{from}_to_{to}.csv, where a
// multi-part symbol like BTC/USDT was flattened to BTC_USDT.
func ParseDataFilename(name string) (symbol, timeframe string, err error) {
	base := strings.TrimSuffix(name, ".csv")
	if base == name {
		return "", "", fmt.Errorf("not a csv file: %s", name)
	}

	parts := strings.Split(base, "_")
	// Minimum shape: SYMBOL_tf_from_to_to.
	if len(parts) < 5 || parts[len(parts)-2] != "to" {
		return "", "", fmt.Errorf("filename %s does not match {symbol}_{timeframe}_{from}_to_{to}.csv", name)
	}

	timeframe = parts[len(parts)-4]
	symParts := parts[:len(parts)-4]
	if len(symParts) == 0 {
		return "", "", fmt.Errorf("filename %s has no symbol component", name)
	}
	symbol = strings.Join(symParts, "/")

	return symbol, timeframe, nil
}
