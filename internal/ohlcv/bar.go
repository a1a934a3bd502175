//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package ohlcv defines the bar record type shared by the ingest and
// catalog layers, plus validation and source parsing for it.
package ohlcv

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV observation for a fixed time interval. Upstream shapes
// (CCXT arrays, CSV rows, exchange payloads) are normalized into this type
// at the collaborator boundary; nothing past that boundary deals with
// positional records.
type Bar struct {
	// Timestamp is the bar's interval start.
	Timestamp time.Time

	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal

	// Volume is nil when the source carries no volume data. A zero value
	// means "no trade volume", which is a different statement.
	Volume *decimal.Decimal
}

// DayOfWeek returns the weekday label stored alongside the bar, derived
// from the UTC timestamp.
func (b Bar) DayOfWeek() string {
	return b.Timestamp.UTC().Weekday().String()
}

// HasVolume reports whether the bar carries volume data.
func (b Bar) HasVolume() bool {
	return b.Volume != nil
}
