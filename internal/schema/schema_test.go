//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package schema_test

import (
	"errors"
	"testing"

	"github.com/barstore/barstore/internal/schema"
)

func TestTableName(t *testing.T) {
	tests := []struct {
		name   string
		target schema.Target
		want   string
	}{
		{
			name: "tradfi",
			target: schema.Target{
				AssetClass: schema.TradFi, Symbol: "EURUSD", Timeframe: "1h",
			},
			want: "eurusd_1h_tradfi_ohlcv",
		},
		{
			name: "tradfi lowercase input",
			target: schema.Target{
				AssetClass: schema.TradFi, Symbol: "eurusd", Timeframe: "1h",
			},
			want: "eurusd_1h_tradfi_ohlcv",
		},
		{
			name: "tradfi mixed case timeframe",
			target: schema.Target{
				AssetClass: schema.TradFi, Symbol: "SPX500", Timeframe: "1D",
			},
			want: "spx500_1d_tradfi_ohlcv",
		},
		{
			name: "crypto slash separator",
			target: schema.Target{
				AssetClass: schema.Crypto, Symbol: "BTC/USDT", Timeframe: "1m", Exchange: "binance",
			},
			want: "btcusdt_1m_binance_crypto_ohlcv",
		},
		{
			name: "crypto dash separator",
			target: schema.Target{
				AssetClass: schema.Crypto, Symbol: "ETH-USD", Timeframe: "5m", Exchange: "coinbase",
			},
			want: "ethusd_5m_coinbase_crypto_ohlcv",
		},
		{
			name: "crypto uppercase exchange",
			target: schema.Target{
				AssetClass: schema.Crypto, Symbol: "btc/usdt", Timeframe: "1d", Exchange: "Kraken",
			},
			want: "btcusdt_1d_kraken_crypto_ohlcv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.target.TableName()
			if got != tt.want {
				t.Errorf("TableName() = %q, want %q", got, tt.want)
			}

			// Naming must be deterministic.
			if again := tt.target.TableName(); again != got {
				t.Errorf("TableName() not deterministic: %q then %q", got, again)
			}
		})
	}
}

func TestTableNameNoCrossClassCollision(t *testing.T) {
	tradfi := schema.Target{AssetClass: schema.TradFi, Symbol: "BTCUSDT", Timeframe: "1m"}
	crypto := schema.Target{AssetClass: schema.Crypto, Symbol: "BTC/USDT", Timeframe: "1m", Exchange: "binance"}

	if tradfi.TableName() == crypto.TableName() {
		t.Errorf("tradfi and crypto names collide: %q", tradfi.TableName())
	}
}

func TestTargetValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  schema.Target
		wantErr bool
	}{
		{
			name:   "valid tradfi",
			target: schema.Target{AssetClass: schema.TradFi, Symbol: "EURUSD", Timeframe: "1h"},
		},
		{
			name:   "valid crypto",
			target: schema.Target{AssetClass: schema.Crypto, Symbol: "BTC/USDT", Timeframe: "1m", Exchange: "binance"},
		},
		{
			name:    "unknown asset class",
			target:  schema.Target{AssetClass: "bonds", Symbol: "X", Timeframe: "1d"},
			wantErr: true,
		},
		{
			name:    "missing symbol",
			target:  schema.Target{AssetClass: schema.TradFi, Timeframe: "1h"},
			wantErr: true,
		},
		{
			name:    "missing timeframe",
			target:  schema.Target{AssetClass: schema.TradFi, Symbol: "EURUSD"},
			wantErr: true,
		},
		{
			name:    "crypto without exchange",
			target:  schema.Target{AssetClass: schema.Crypto, Symbol: "BTC/USDT", Timeframe: "1m"},
			wantErr: true,
		},
		{
			name:    "symbol producing illegal identifier",
			target:  schema.Target{AssetClass: schema.TradFi, Symbol: "EUR USD; DROP TABLE x", Timeframe: "1h"},
			wantErr: true,
		},
		{
			name:    "symbol starting with digit",
			target:  schema.Target{AssetClass: schema.TradFi, Symbol: "5minuteCoin", Timeframe: "1h"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var serr *schema.SchemaError
				if !errors.As(err, &serr) {
					t.Errorf("expected *SchemaError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
