//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package ohlcv

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMaxPrice is the default upper bound on any OHLC value. Prices
// beyond this are treated as corrupt upstream data (typically a
// decimal-shift bug) rather than a legitimate quote.
var DefaultMaxPrice = decimal.New(1, 9) // 1e9

// ValidationError describes why a bar was rejected before storage.
type ValidationError struct {
	Timestamp time.Time
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.Timestamp.IsZero() {
		return fmt.Sprintf("invalid bar: %s", e.Reason)
	}
	return fmt.Sprintf("invalid bar at %s: %s", e.Timestamp.UTC().Format(time.RFC3339), e.Reason)
}

// Validator performs per-row sanity checks on bars.
type Validator struct {
	// MaxPrice is the maximum accepted magnitude for any OHLC value.
	MaxPrice decimal.Decimal
}

// NewValidator returns a validator with the default price ceiling.
func NewValidator() Validator {
	return Validator{MaxPrice: DefaultMaxPrice}
}

// Validate returns a *ValidationError when the bar is structurally
// invalid, nil otherwise.
func (v Validator) Validate(b Bar) error {
	if b.Timestamp.IsZero() {
		return &ValidationError{Reason: "missing or unparseable timestamp"}
	}

	prices := []struct {
		name  string
		value decimal.Decimal
	}{
		{"open", b.Open},
		{"high", b.High},
		{"low", b.Low},
		{"close", b.Close},
	}
	for _, p := range prices {
		if p.value.IsNegative() {
			return &ValidationError{Timestamp: b.Timestamp,
				Reason: fmt.Sprintf("negative %s price %s", p.name, p.value)}
		}
		if p.value.GreaterThan(v.MaxPrice) {
			return &ValidationError{Timestamp: b.Timestamp,
				Reason: fmt.Sprintf("%s price %s exceeds maximum magnitude %s", p.name, p.value, v.MaxPrice)}
		}
	}

	if b.High.LessThan(b.Low) {
		return &ValidationError{Timestamp: b.Timestamp,
			Reason: fmt.Sprintf("high %s below low %s", b.High, b.Low)}
	}
	if b.Open.LessThan(b.Low) || b.Open.GreaterThan(b.High) {
		return &ValidationError{Timestamp: b.Timestamp,
			Reason: fmt.Sprintf("open %s outside low/high range", b.Open)}
	}
	if b.Close.LessThan(b.Low) || b.Close.GreaterThan(b.High) {
		return &ValidationError{Timestamp: b.Timestamp,
			Reason: fmt.Sprintf("close %s outside low/high range", b.Close)}
	}

	if b.Volume != nil && b.Volume.IsNegative() {
		return &ValidationError{Timestamp: b.Timestamp,
			Reason: fmt.Sprintf("negative volume %s", b.Volume)}
	}

	return nil
}
