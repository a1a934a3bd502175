//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package datagen produces synthetic bar histories for seeding test and
// load databases through the real ingest pipeline.
package datagen

import (
	"io"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"github.com/barstore/barstore/internal/ohlcv"
)

// priceScale is the decimal precision of generated prices.
const priceScale = 10

// BarSource generates a random-walk OHLCV series between two instants.
// It implements the ingest pipeline's record source contract.
type BarSource struct {
	faker *gofakeit.Faker

	next time.Time
	end  time.Time
	step time.Duration

	lastClose  float64
	withVolume bool
}

// NewBarSource returns a generator emitting one bar per step from start
// (inclusive) to end (exclusive). A fixed seed yields a reproducible
// series.
func NewBarSource(seed uint64, start, end time.Time, step time.Duration, withVolume bool) *BarSource {
	f := gofakeit.New(seed)
	return &BarSource{
		faker:      f,
		next:       start.UTC(),
		end:        end.UTC(),
		step:       step,
		lastClose:  f.Price(20, 50000),
		withVolume: withVolume,
	}
}

// Next implements the record source contract; io.EOF after the last bar.
func (s *BarSource) Next() (ohlcv.Bar, error) {
	if !s.next.Before(s.end) {
		return ohlcv.Bar{}, io.EOF
	}

	open := s.lastClose
	drift := s.faker.Float64Range(-0.004, 0.004)
	closing := open * (1 + drift)

	high := open
	if closing > high {
		high = closing
	}
	high *= 1 + s.faker.Float64Range(0, 0.002)

	low := open
	if closing < low {
		low = closing
	}
	low *= 1 - s.faker.Float64Range(0, 0.002)

	bar := ohlcv.Bar{
		Timestamp: s.next,
		Open:      decimal.NewFromFloat(open).Round(priceScale),
		High:      decimal.NewFromFloat(high).Round(priceScale),
		Low:       decimal.NewFromFloat(low).Round(priceScale),
		Close:     decimal.NewFromFloat(closing).Round(priceScale),
	}
	if s.withVolume {
		v := decimal.NewFromFloat(s.faker.Float64Range(0.1, 5000)).Round(priceScale)
		bar.Volume = &v
	}

	s.lastClose = closing
	s.next = s.next.Add(s.step)
	return bar, nil
}
