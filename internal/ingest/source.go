//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package ingest drives validated, batched, idempotent writes of bar
// records into per-symbol OHLCV tables.
package ingest

import (
	"io"

	"github.com/barstore/barstore/internal/ohlcv"
)

// Source supplies bar records one at a time. Next returns io.EOF when the
// source is exhausted. Sources are consumed incrementally so arbitrarily
// large inputs never have to fit in memory.
//
// A Source may return a *ohlcv.ValidationError for a malformed record and
// remain readable afterwards; the pipeline applies its skip-or-abort
// policy to such rows.
type Source interface {
	Next() (ohlcv.Bar, error)
}

// SliceSource adapts an in-memory bar slice to the Source interface.
type SliceSource struct {
	bars []ohlcv.Bar
	pos  int
}

// NewSliceSource returns a Source over the given bars.
func NewSliceSource(bars []ohlcv.Bar) *SliceSource {
	return &SliceSource{bars: bars}
}

// Next implements Source.
func (s *SliceSource) Next() (ohlcv.Bar, error) {
	if s.pos >= len(s.bars) {
		return ohlcv.Bar{}, io.EOF
	}
	b := s.bars[s.pos]
	s.pos++
	return b, nil
}
