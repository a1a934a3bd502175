//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package planner_test

import (
	"context"
	"testing"
	"time"

	"github.com/barstore/barstore/internal/catalog"
	"github.com/barstore/barstore/internal/planner"
	"github.com/barstore/barstore/internal/schema"
)

type fakeCatalog struct {
	entries []catalog.Entry
}

func (f *fakeCatalog) ListAll(ctx context.Context) ([]catalog.Entry, error) {
	return f.entries, nil
}

func fixedClock(ts string) func() time.Time {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

var defaultStart = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)

func entryFor(t schema.Target, canUpdateFrom *time.Time) catalog.Entry {
	return catalog.Entry{
		TableName:     t.TableName(),
		Symbol:        t.Symbol,
		Timeframe:     t.Timeframe,
		AssetClass:    t.AssetClass,
		CanUpdateFrom: canUpdateFrom,
	}
}

func TestPlanIncrementalGap(t *testing.T) {
	target := schema.Target{AssetClass: schema.TradFi, Symbol: "EURUSD", Timeframe: "1h"}
	can := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	cat := &fakeCatalog{entries: []catalog.Entry{entryFor(target, &can)}}

	// Clock on Jan 21 makes yesterday Jan 20.
	p := planner.NewWithClock(cat, defaultStart, fixedClock("2024-01-21T09:30:00Z"))

	plans, err := p.PlanUpdates(context.Background(), []schema.Target{target})
	if err != nil {
		t.Fatalf("PlanUpdates failed: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("expected 1 plan, got %d", len(plans))
	}

	plan := plans[0]
	if plan.Kind != planner.Incremental {
		t.Errorf("kind = %q, want incremental", plan.Kind)
	}
	if plan.GapDays != 15 {
		t.Errorf("gap = %d days, want 15", plan.GapDays)
	}
	wantTo := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	if !plan.From.Equal(can) || !plan.To.Equal(wantTo) {
		t.Errorf("range = %v .. %v, want %v .. %v", plan.From, plan.To, can, wantTo)
	}
}

func TestPlanFullWhenNoEntry(t *testing.T) {
	target := schema.Target{AssetClass: schema.TradFi, Symbol: "EURUSD", Timeframe: "1h"}
	p := planner.NewWithClock(&fakeCatalog{}, defaultStart, fixedClock("2024-01-21T00:00:00Z"))

	plans, err := p.PlanUpdates(context.Background(), []schema.Target{target})
	if err != nil {
		t.Fatalf("PlanUpdates failed: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("expected 1 plan, got %d", len(plans))
	}
	if plans[0].Kind != planner.Full {
		t.Errorf("kind = %q, want full", plans[0].Kind)
	}
	if !plans[0].From.Equal(defaultStart) {
		t.Errorf("from = %v, want default start %v", plans[0].From, defaultStart)
	}
}

func TestPlanFullWhenEntryHasNoCoverage(t *testing.T) {
	target := schema.Target{AssetClass: schema.TradFi, Symbol: "EURUSD", Timeframe: "1h"}
	cat := &fakeCatalog{entries: []catalog.Entry{entryFor(target, nil)}}
	p := planner.NewWithClock(cat, defaultStart, fixedClock("2024-01-21T00:00:00Z"))

	plans, err := p.PlanUpdates(context.Background(), []schema.Target{target})
	if err != nil {
		t.Fatalf("PlanUpdates failed: %v", err)
	}
	if plans[0].Kind != planner.Full {
		t.Errorf("kind = %q, want full", plans[0].Kind)
	}
}

func TestPlanNoneWhenCurrent(t *testing.T) {
	target := schema.Target{AssetClass: schema.TradFi, Symbol: "EURUSD", Timeframe: "1h"}
	can := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC) // exactly yesterday
	cat := &fakeCatalog{entries: []catalog.Entry{entryFor(target, &can)}}
	p := planner.NewWithClock(cat, defaultStart, fixedClock("2024-01-21T23:59:00Z"))

	plans, err := p.PlanUpdates(context.Background(), []schema.Target{target})
	if err != nil {
		t.Fatalf("PlanUpdates failed: %v", err)
	}
	if plans[0].Kind != planner.None {
		t.Errorf("kind = %q, want none", plans[0].Kind)
	}
	if plans[0].GapDays != 0 {
		t.Errorf("gap = %d, want 0", plans[0].GapDays)
	}
}

func TestPlanIncludesUnconfiguredCatalogEntries(t *testing.T) {
	configured := schema.Target{AssetClass: schema.TradFi, Symbol: "EURUSD", Timeframe: "1h"}
	orphan := schema.Target{AssetClass: schema.Crypto, Symbol: "BTC/USDT", Timeframe: "1m", Exchange: "binance"}
	can := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	cat := &fakeCatalog{entries: []catalog.Entry{entryFor(orphan, &can)}}

	p := planner.NewWithClock(cat, defaultStart, fixedClock("2024-01-21T00:00:00Z"))
	plans, err := p.PlanUpdates(context.Background(), []schema.Target{configured})
	if err != nil {
		t.Fatalf("PlanUpdates failed: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(plans))
	}

	// Sorted by table name: btcusdt... before eurusd...
	if plans[0].TableName != orphan.TableName() {
		t.Errorf("first plan = %q, want %q", plans[0].TableName, orphan.TableName())
	}
	if plans[1].TableName != configured.TableName() {
		t.Errorf("second plan = %q, want %q", plans[1].TableName, configured.TableName())
	}
}

func TestPlanPartialDayCountsAsGap(t *testing.T) {
	target := schema.Target{AssetClass: schema.TradFi, Symbol: "EURUSD", Timeframe: "1h"}
	// Coverage ends mid-day on Jan 19; yesterday is Jan 20.
	can := time.Date(2024, 1, 19, 15, 0, 0, 0, time.UTC)
	cat := &fakeCatalog{entries: []catalog.Entry{entryFor(target, &can)}}
	p := planner.NewWithClock(cat, defaultStart, fixedClock("2024-01-21T00:00:00Z"))

	plans, err := p.PlanUpdates(context.Background(), []schema.Target{target})
	if err != nil {
		t.Fatalf("PlanUpdates failed: %v", err)
	}
	if plans[0].Kind != planner.Incremental {
		t.Fatalf("kind = %q, want incremental", plans[0].Kind)
	}
	// 9 hours short of a full day still rounds up to one gap day.
	if plans[0].GapDays != 1 {
		t.Errorf("gap = %d, want 1", plans[0].GapDays)
	}
}
