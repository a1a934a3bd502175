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
	"errors"
	"fmt"
	"io"

	"github.com/barstore/barstore/internal/logging"
	"github.com/barstore/barstore/internal/ohlcv"
)

// DefaultBatchSize bounds transaction size and lock duration while still
// amortizing round-trip cost.
const DefaultBatchSize = 2000

// DefaultMaxFailedBatches is the lenient-mode failure ceiling. A couple of
// transient errors are tolerated; a systematically broken destination
// (bad credentials, dropped table) aborts quickly instead of burning
// through the whole source.
const DefaultMaxFailedBatches = 3

// Options configures one pipeline run.
type Options struct {
	// BatchSize is the number of rows flushed per transaction.
	BatchSize int

	// SkipInvalidRecords drops malformed rows and counts them instead of
	// aborting the run on the first one.
	SkipInvalidRecords bool

	// ContinueOnBatchFailure records a failed batch and moves on to the
	// next one (lenient mode) instead of aborting immediately.
	ContinueOnBatchFailure bool

	// MaxFailedBatches aborts a lenient run once this many batches have
	// failed. Zero means DefaultMaxFailedBatches.
	MaxFailedBatches int
}

// DefaultOptions returns the production ingest policy: skip and count
// invalid rows, tolerate up to DefaultMaxFailedBatches failed batches.
func DefaultOptions() Options {
	return Options{
		BatchSize:              DefaultBatchSize,
		SkipInvalidRecords:     true,
		ContinueOnBatchFailure: true,
		MaxFailedBatches:       DefaultMaxFailedBatches,
	}
}

// Result accumulates the running totals of a pipeline run. On a terminal
// failure the totals cover everything committed or skipped so far, so a
// caller can resume incrementally instead of restarting.
type Result struct {
	Inserted       int
	Updated        int
	SkippedInvalid int
	FailedBatches  int
}

// Rows returns the number of rows durably written.
func (r Result) Rows() int { return r.Inserted + r.Updated }

// Pipeline consumes a record source, validates rows, chunks them into
// batches and flushes each batch through a BatchWriter. Consumption is
// single-threaded; ingestion is I/O-bound on the database.
type Pipeline struct {
	writer    BatchWriter
	validator ohlcv.Validator
	opts      Options
}

// NewPipeline builds a pipeline over the given batch writer.
func NewPipeline(writer BatchWriter, validator ohlcv.Validator, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize > MaxBatchSize {
		opts.BatchSize = MaxBatchSize
	}
	if opts.MaxFailedBatches <= 0 {
		opts.MaxFailedBatches = DefaultMaxFailedBatches
	}
	return &Pipeline{writer: writer, validator: validator, opts: opts}
}

// Run drains the source. It returns the totals accumulated so far along
// with the first terminal error, if any. Batches committed before a
// terminal error remain durable.
func (p *Pipeline) Run(ctx context.Context, src Source) (Result, error) {
	var result Result
	buffer := make([]ohlcv.Bar, 0, p.opts.BatchSize)

	for {
		bar, err := src.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			var verr *ohlcv.ValidationError
			if errors.As(err, &verr) {
				if p.opts.SkipInvalidRecords {
					result.SkippedInvalid++
					logging.Debug().Str("reason", verr.Reason).Msg("Skipping malformed record")
					continue
				}
				return result, fmt.Errorf("aborting on malformed record: %w", verr)
			}
			return result, fmt.Errorf("reading record source: %w", err)
		}

		if err := p.validator.Validate(bar); err != nil {
			if p.opts.SkipInvalidRecords {
				result.SkippedInvalid++
				logging.Debug().Err(err).Msg("Skipping invalid record")
				continue
			}
			return result, fmt.Errorf("aborting on invalid record: %w", err)
		}

		buffer = append(buffer, bar)
		if len(buffer) >= p.opts.BatchSize {
			if err := p.flush(ctx, buffer, &result); err != nil {
				return result, err
			}
			buffer = buffer[:0]
		}
	}

	if len(buffer) > 0 {
		if err := p.flush(ctx, buffer, &result); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (p *Pipeline) flush(ctx context.Context, batch []ohlcv.Bar, result *Result) error {
	res, err := p.writer.UpsertBatch(ctx, batch)
	if err != nil {
		result.FailedBatches++
		if !p.opts.ContinueOnBatchFailure {
			return fmt.Errorf("batch commit failed: %w", err)
		}
		if result.FailedBatches >= p.opts.MaxFailedBatches {
			return fmt.Errorf("aborting after %d failed batches: %w", result.FailedBatches, err)
		}
		logging.Warn().
			Err(err).
			Int("failed_batches", result.FailedBatches).
			Int("max_failed_batches", p.opts.MaxFailedBatches).
			Msg("Batch failed, continuing")
		return nil
	}

	result.Inserted += res.Inserted
	result.Updated += res.Updated

	logging.Debug().
		Int("rows", len(batch)).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Msg("Batch committed")
	return nil
}
