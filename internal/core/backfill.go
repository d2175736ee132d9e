package core

import (
	"context"
	"fmt"
	"time"

	"vetcore/pkg/domain"
)

const defaultBackfillPageSize = 100

// Backfill links every unlinked historical record item in the store to a
// clinical event. It pages through the store's unlinked items in
// (startTime, id) order, re-issuing the query after every flush so that
// items linked during a pass drop out of the next one.
type Backfill struct {
	store    RecordStore
	linker   *Linker
	pageSize int
	logger   Logger
	metrics  MetricsRecorder
}

// BackfillOption customizes a Backfill.
type BackfillOption func(*Backfill)

// WithPageSize sets how many unlinked items each pass fetches.
func WithPageSize(n int) BackfillOption {
	return func(b *Backfill) {
		if n > 0 {
			b.pageSize = n
		}
	}
}

// WithBackfillLogger sets the logger used between passes.
func WithBackfillLogger(logger Logger) BackfillOption {
	return func(b *Backfill) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBackfillMetrics sets the metrics recorder for backfill passes.
func WithBackfillMetrics(metrics MetricsRecorder) BackfillOption {
	return func(b *Backfill) {
		if metrics != nil {
			b.metrics = metrics
		}
	}
}

// NewBackfill constructs a backfill over the store, driving the given
// linker.
func NewBackfill(store RecordStore, linker *Linker, opts ...BackfillOption) *Backfill {
	b := &Backfill{
		store:    store,
		linker:   linker,
		pageSize: defaultBackfillPageSize,
		logger:   noopLogger{},
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run links unlinked items until none remain or the context is cancelled,
// returning the number of items linked. Items within a page are split
// into runs of consecutive identical calendar dates so that each run
// resolves against events of its own date.
func (b *Backfill) Run(ctx context.Context) (int, error) {
	total := 0
	for pass := 1; ; pass++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		start := time.Now()
		items, err := b.store.QueryUnlinkedItems(ctx, b.pageSize)
		if err != nil {
			return total, fmt.Errorf("query unlinked items: %w", err)
		}
		if len(items) == 0 {
			return total, nil
		}
		linked, err := b.processPage(ctx, items)
		total += linked
		b.metrics.Observe(ctx, "backfill.pass", err == nil, time.Since(start))
		if err != nil {
			return total, err
		}
		b.logger.Info("backfill pass complete", "pass", pass, "linked", linked, "total", total)
	}
}

// processPage splits a page into runs of consecutive items sharing a
// calendar date and links each run as a batch.
func (b *Backfill) processPage(ctx context.Context, items []*RecordItem) (int, error) {
	linked := 0
	for start := 0; start < len(items); {
		date := domain.DateOf(items[start].StartTime)
		end := start + 1
		for end < len(items) && domain.DateOf(items[end].StartTime).Equal(date) {
			end++
		}
		run := items[start:end]
		if err := b.linker.AddToHistoricalEvents(ctx, run); err != nil {
			return linked, fmt.Errorf("link run starting %s: %w", date.Format("2006-01-02"), err)
		}
		linked += len(run)
		start = end
	}
	return linked, nil
}
