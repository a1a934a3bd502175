//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package ohlcv_test

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/barstore/barstore/internal/ohlcv"
)

func readAll(t *testing.T, src *ohlcv.CSVSource) []ohlcv.Bar {
	t.Helper()
	var bars []ohlcv.Bar
	for {
		bar, err := src.Next()
		if err == io.EOF {
			return bars
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		bars = append(bars, bar)
	}
}

func TestCSVSource(t *testing.T) {
	input := `timestamp,open,high,low,close,volume
2024-01-01 00:00:00,1.10,1.15,1.05,1.12,250.5
2024-01-01 01:00:00,1.12,1.13,1.10,1.11,
2024-01-01 02:00:00,1.11,1.14,1.10,1.13,0
`
	bars := readAll(t, ohlcv.NewCSVSource(strings.NewReader(input)))
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}

	first := bars[0]
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", first.Timestamp, want)
	}
	if !first.Open.Equal(decimal.NewFromFloat(1.10)) || !first.Close.Equal(decimal.NewFromFloat(1.12)) {
		t.Errorf("unexpected prices: open=%s close=%s", first.Open, first.Close)
	}
	if !first.HasVolume() || !first.Volume.Equal(decimal.NewFromFloat(250.5)) {
		t.Errorf("expected volume 250.5, got %v", first.Volume)
	}

	// Empty volume field means absent, not zero.
	if bars[1].HasVolume() {
		t.Errorf("expected absent volume, got %v", bars[1].Volume)
	}
	// Explicit zero volume stays zero.
	if !bars[2].HasVolume() || !bars[2].Volume.IsZero() {
		t.Errorf("expected zero volume, got %v", bars[2].Volume)
	}
}

func TestCSVSourceWithoutVolumeColumn(t *testing.T) {
	input := `timestamp,open,high,low,close
2024-01-01 00:00:00,1.10,1.15,1.05,1.12
`
	bars := readAll(t, ohlcv.NewCSVSource(strings.NewReader(input)))
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
	if bars[0].HasVolume() {
		t.Errorf("expected OHLC-only bar, got volume %v", bars[0].Volume)
	}
}

func TestCSVSourceWithoutHeader(t *testing.T) {
	input := "2024-01-01 00:00:00,1.10,1.15,1.05,1.12,10\n"
	bars := readAll(t, ohlcv.NewCSVSource(strings.NewReader(input)))
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
}

func TestCSVSourceTimestampFormats(t *testing.T) {
	input := strings.Join([]string{
		"2024-01-01 06:30:00,1,1,1,1,1",
		"2024-01-02T06:30:00Z,1,1,1,1,1",
		"1704177000000,1,1,1,1,1", // 2024-01-02 06:30:00 UTC in epoch millis
	}, "\n")

	bars := readAll(t, ohlcv.NewCSVSource(strings.NewReader(input)))
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}
	if !bars[1].Timestamp.Equal(bars[2].Timestamp) {
		t.Errorf("RFC3339 and epoch millis disagree: %v vs %v",
			bars[1].Timestamp, bars[2].Timestamp)
	}
}

func TestCSVSourceMalformedRow(t *testing.T) {
	input := `timestamp,open,high,low,close,volume
2024-01-01 00:00:00,1.10,1.15,1.05,1.12,10
not-a-timestamp,1.10,1.15,1.05,1.12,10
2024-01-03 00:00:00,abc,1.15,1.05,1.12,10
2024-01-04 00:00:00,1.10,1.15,1.05,1.12,10
`
	src := ohlcv.NewCSVSource(strings.NewReader(input))

	var good, bad int
	for {
		_, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			var verr *ohlcv.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T: %v", err, err)
			}
			bad++
			continue
		}
		good++
	}

	if good != 2 || bad != 2 {
		t.Errorf("expected 2 good and 2 bad rows, got %d good, %d bad", good, bad)
	}
}

func TestParseDataFilename(t *testing.T) {
	tests := []struct {
		name          string
		wantSymbol    string
		wantTimeframe string
		wantErr       bool
	}{
		{
			name:       "EURUSD_1h_2024-01-01_to_2024-02-01.csv",
			wantSymbol: "EURUSD", wantTimeframe: "1h",
		},
		{
			name:       "BTC_USDT_1m_2024-01-01_to_2024-03-01.csv",
			wantSymbol: "BTC/USDT", wantTimeframe: "1m",
		},
		{name: "notes.txt", wantErr: true},
		{name: "EURUSD.csv", wantErr: true},
		{name: "EURUSD_1h_2024-01-01_2024-02-01.csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			symbol, timeframe, err := ohlcv.ParseDataFilename(tt.name)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if symbol != tt.wantSymbol || timeframe != tt.wantTimeframe {
				t.Errorf("got (%q, %q), want (%q, %q)",
					symbol, timeframe, tt.wantSymbol, tt.wantTimeframe)
			}
		})
	}
}
