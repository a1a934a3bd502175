//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package planner decides, per configured series, whether and how much
// history still needs fetching. Plans are derived from catalog state and
// the clock; they are never persisted.
package planner

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/barstore/barstore/internal/catalog"
	"github.com/barstore/barstore/internal/schema"
)

// Kind classifies an update plan.
type Kind string

const (
	// Full means no usable coverage exists; fetch from the dataset's
	// default start date.
	Full Kind = "full"
	// Incremental means coverage exists but stops short of yesterday.
	Incremental Kind = "incremental"
	// None means coverage already reaches through yesterday.
	None Kind = "none"
)

// Plan is one series' fetch decision. From/To bound the range still
// needed; To is always the last complete day (yesterday), never today:
// the still-open day's bars may be incomplete at the source and would
// only have to be re-ingested.
type Plan struct {
	Symbol    string
	Timeframe string
	TableName string
	Kind      Kind
	Reason    string
	From      time.Time
	To        time.Time
	GapDays   int
}

// CatalogReader is the slice of the catalog manager the planner needs.
type CatalogReader interface {
	ListAll(ctx context.Context) ([]catalog.Entry, error)
}

// Planner computes update plans.
type Planner struct {
	catalog      CatalogReader
	defaultStart time.Time
	now          func() time.Time
}

// New returns a planner using the wall clock.
func New(cat CatalogReader, defaultStart time.Time) *Planner {
	return NewWithClock(cat, defaultStart, time.Now)
}

// NewWithClock returns a planner with an injected clock.
func NewWithClock(cat CatalogReader, defaultStart time.Time, now func() time.Time) *Planner {
	return &Planner{catalog: cat, defaultStart: defaultStart, now: now}
}

// PlanUpdates derives a plan for every configured target plus any catalog
// entry not covered by the configuration, ordered by table name.
func (p *Planner) PlanUpdates(ctx context.Context, targets []schema.Target) ([]Plan, error) {
	entries, err := p.catalog.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	byTable := make(map[string]catalog.Entry, len(entries))
	for _, e := range entries {
		byTable[e.TableName] = e
	}

	yesterday := p.yesterday()
	plans := make(map[string]Plan)

	for _, t := range targets {
		name := t.TableName()
		if entry, ok := byTable[name]; ok {
			plans[name] = p.planFromEntry(entry, yesterday)
			continue
		}
		plans[name] = Plan{
			Symbol:    t.Symbol,
			Timeframe: t.Timeframe,
			TableName: name,
			Kind:      Full,
			Reason:    "no catalog entry",
			From:      p.defaultStart,
			To:        yesterday,
			GapDays:   gapDays(p.defaultStart, yesterday),
		}
	}

	// Catalog entries for tables outside the configured set still get
	// planned; the catalog is the authority on what exists.
	for name, entry := range byTable {
		if _, ok := plans[name]; !ok {
			plans[name] = p.planFromEntry(entry, yesterday)
		}
	}

	out := make([]Plan, 0, len(plans))
	for _, plan := range plans {
		out = append(out, plan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableName < out[j].TableName })
	return out, nil
}

func (p *Planner) planFromEntry(entry catalog.Entry, yesterday time.Time) Plan {
	plan := Plan{
		Symbol:    entry.Symbol,
		Timeframe: entry.Timeframe,
		TableName: entry.TableName,
	}

	if entry.CanUpdateFrom == nil {
		plan.Kind = Full
		plan.Reason = "catalog entry has no recorded coverage"
		plan.From = p.defaultStart
		plan.To = yesterday
		plan.GapDays = gapDays(p.defaultStart, yesterday)
		return plan
	}

	from := entry.CanUpdateFrom.UTC()
	gap := gapDays(from, yesterday)
	if gap <= 0 {
		plan.Kind = None
		plan.Reason = "coverage is current through yesterday"
		return plan
	}

	plan.Kind = Incremental
	plan.Reason = "coverage stops before yesterday"
	plan.From = from
	plan.To = yesterday
	plan.GapDays = gap
	return plan
}

// yesterday returns the UTC start of the last complete day.
func (p *Planner) yesterday() time.Time {
	return p.now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
}

func gapDays(from, to time.Time) int {
	return int(math.Ceil(to.Sub(from).Hours() / 24))
}
