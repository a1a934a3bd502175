//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package ingest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/barstore/barstore/internal/ingest"
	"github.com/barstore/barstore/internal/ohlcv"
)

// memWriter is an in-memory BatchWriter keyed on timestamp, mimicking the
// upserter's last-writer-wins semantics.
type memWriter struct {
	rows    map[int64]ohlcv.Bar
	batches int
	failAll bool
}

func newMemWriter() *memWriter {
	return &memWriter{rows: make(map[int64]ohlcv.Bar)}
}

func (w *memWriter) UpsertBatch(ctx context.Context, bars []ohlcv.Bar) (ingest.UpsertResult, error) {
	w.batches++
	if w.failAll {
		return ingest.UpsertResult{}, &ingest.BatchCommitError{
			Table: "test", Rows: len(bars), Err: errors.New("forced failure"),
		}
	}

	var result ingest.UpsertResult
	for _, b := range bars {
		key := b.Timestamp.UnixNano()
		if _, ok := w.rows[key]; ok {
			result.Updated++
		} else {
			result.Inserted++
		}
		w.rows[key] = b
	}
	return result, nil
}

func validBars(n int, start time.Time) []ohlcv.Bar {
	bars := make([]ohlcv.Bar, n)
	for i := range bars {
		bars[i] = ohlcv.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      decimal.NewFromFloat(1.10),
			High:      decimal.NewFromFloat(1.15),
			Low:       decimal.NewFromFloat(1.05),
			Close:     decimal.NewFromFloat(1.12),
		}
	}
	return bars
}

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestPipelineIdempotence(t *testing.T) {
	writer := newMemWriter()
	bars := validBars(250, testStart)
	opts := ingest.Options{BatchSize: 100, SkipInvalidRecords: true}

	pipeline := ingest.NewPipeline(writer, ohlcv.NewValidator(), opts)

	first, err := pipeline.Run(context.Background(), ingest.NewSliceSource(bars))
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.Inserted != 250 || first.Updated != 0 {
		t.Errorf("first run: inserted=%d updated=%d, want 250/0", first.Inserted, first.Updated)
	}

	second, err := pipeline.Run(context.Background(), ingest.NewSliceSource(bars))
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.Inserted != 0 || second.Updated != 250 {
		t.Errorf("second run: inserted=%d updated=%d, want 0/250", second.Inserted, second.Updated)
	}

	if len(writer.rows) != 250 {
		t.Errorf("row count after two runs = %d, want 250", len(writer.rows))
	}
}

func TestPipelineFlushesRemainder(t *testing.T) {
	writer := newMemWriter()
	pipeline := ingest.NewPipeline(writer, ohlcv.NewValidator(),
		ingest.Options{BatchSize: 100})

	result, err := pipeline.Run(context.Background(),
		ingest.NewSliceSource(validBars(205, testStart)))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.Inserted != 205 {
		t.Errorf("inserted = %d, want 205", result.Inserted)
	}
	// Two full batches plus the 5-row remainder.
	if writer.batches != 3 {
		t.Errorf("batches = %d, want 3", writer.batches)
	}
}

func TestPipelineDedupWithinSource(t *testing.T) {
	writer := newMemWriter()
	pipeline := ingest.NewPipeline(writer, ohlcv.NewValidator(),
		ingest.Options{BatchSize: 100})

	bars := validBars(2, testStart)
	// Same timestamp, different close: the later value must win.
	bars[1].Timestamp = bars[0].Timestamp
	bars[1].Close = decimal.NewFromFloat(1.14)

	result, err := pipeline.Run(context.Background(), ingest.NewSliceSource(bars))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.Inserted+result.Updated != 2 {
		t.Errorf("rows written = %d, want 2", result.Inserted+result.Updated)
	}
	if len(writer.rows) != 1 {
		t.Fatalf("stored rows = %d, want 1", len(writer.rows))
	}
	stored := writer.rows[bars[0].Timestamp.UnixNano()]
	if !stored.Close.Equal(decimal.NewFromFloat(1.14)) {
		t.Errorf("stored close = %s, want 1.14 (later value wins)", stored.Close)
	}
}

func TestPipelineSkipInvalidRecords(t *testing.T) {
	writer := newMemWriter()
	bars := validBars(100, testStart)
	bars[42].Open = decimal.NewFromFloat(-1) // one corrupt row

	pipeline := ingest.NewPipeline(writer, ohlcv.NewValidator(),
		ingest.Options{BatchSize: 1000, SkipInvalidRecords: true})

	result, err := pipeline.Run(context.Background(), ingest.NewSliceSource(bars))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.Inserted != 99 {
		t.Errorf("inserted = %d, want 99", result.Inserted)
	}
	if result.SkippedInvalid != 1 {
		t.Errorf("skipped = %d, want 1", result.SkippedInvalid)
	}
}

func TestPipelineAbortOnInvalidRecord(t *testing.T) {
	writer := newMemWriter()
	bars := validBars(100, testStart)
	bars[42].Open = decimal.NewFromFloat(-1)

	pipeline := ingest.NewPipeline(writer, ohlcv.NewValidator(),
		ingest.Options{BatchSize: 1000, SkipInvalidRecords: false})

	result, err := pipeline.Run(context.Background(), ingest.NewSliceSource(bars))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var verr *ohlcv.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected wrapped *ValidationError, got %v", err)
	}

	// Strict mode must abort before anything is committed.
	if writer.batches != 0 {
		t.Errorf("batches committed = %d, want 0", writer.batches)
	}
	if result.Inserted != 0 {
		t.Errorf("inserted = %d, want 0", result.Inserted)
	}
}

func TestPipelineBatchFailureCeiling(t *testing.T) {
	writer := newMemWriter()
	writer.failAll = true

	pipeline := ingest.NewPipeline(writer, ohlcv.NewValidator(), ingest.Options{
		BatchSize:              10,
		ContinueOnBatchFailure: true,
		MaxFailedBatches:       3,
	})

	result, err := pipeline.Run(context.Background(),
		ingest.NewSliceSource(validBars(100, testStart)))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var berr *ingest.BatchCommitError
	if !errors.As(err, &berr) {
		t.Errorf("expected wrapped *BatchCommitError, got %v", err)
	}

	if result.FailedBatches != 3 {
		t.Errorf("failed batches = %d, want exactly 3", result.FailedBatches)
	}
	if result.Inserted != 0 {
		t.Errorf("inserted = %d, want 0", result.Inserted)
	}
}

func TestPipelineStrictBatchFailure(t *testing.T) {
	writer := newMemWriter()
	writer.failAll = true

	pipeline := ingest.NewPipeline(writer, ohlcv.NewValidator(), ingest.Options{
		BatchSize:              10,
		ContinueOnBatchFailure: false,
		MaxFailedBatches:       5,
	})

	result, err := pipeline.Run(context.Background(),
		ingest.NewSliceSource(validBars(100, testStart)))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if result.FailedBatches != 1 {
		t.Errorf("failed batches = %d, want 1 (strict mode aborts immediately)", result.FailedBatches)
	}
	if writer.batches != 1 {
		t.Errorf("attempted batches = %d, want 1", writer.batches)
	}
}
