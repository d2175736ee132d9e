package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"vetcore/internal/infra/persistence/memory"
)

func newBufferedSlog(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()
	rec.Observe(ctx, "linker.add_to_events", true, 20*time.Millisecond)
	rec.Observe(ctx, "linker.add_to_events", true, 30*time.Millisecond)
	rec.Observe(ctx, "linker.add_to_events", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	snap := rec.Snapshot()
	if got := snap.Results["linker.add_to_events"]["success"]; got != 2 {
		t.Fatalf("success count = %d, want 2", got)
	}
	if got := snap.Results["linker.add_to_events"]["error"]; got != 1 {
		t.Fatalf("error count = %d, want 1", got)
	}
	if got := snap.DurationsMS["linker.add_to_events"]; got != 55 {
		t.Fatalf("duration total = %v ms, want 55", got)
	}
	if len(snap.Results) != 1 {
		t.Fatalf("empty operation names must be discarded, have %d operations", len(snap.Results))
	}
}

func TestPrometheusMetricsRecorderCountsResults(t *testing.T) {
	rec, err := NewPrometheusMetricsRecorder()
	if err != nil {
		t.Fatalf("NewPrometheusMetricsRecorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "linker.add_to_event", true, 10*time.Millisecond)
	rec.Observe(ctx, "linker.add_to_event", false, 10*time.Millisecond)
	rec.Observe(ctx, "linker.add_to_event", true, 10*time.Millisecond)

	families, err := rec.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "vetcore_linker_operation_results_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("results counter not registered")
	}
	got := testutil.ToFloat64(rec.results.WithLabelValues("linker.add_to_event", "success"))
	if got != 2 {
		t.Fatalf("success counter = %v, want 2", got)
	}
}

func TestJSONTracerRecordsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)

	_, span := tracer.Start(context.Background(), "linker.add_to_events")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "linker.link_records")
	span.End(errors.New("boom"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("have %d entries, want 2", len(entries))
	}
	if entries[0].Status != "success" || entries[1].Status != "error" {
		t.Fatalf("statuses = %s/%s", entries[0].Status, entries[1].Status)
	}
	if entries[1].Error != "boom" {
		t.Fatalf("error = %q, want boom", entries[1].Error)
	}
	if !strings.Contains(buf.String(), "linker.link_records") {
		t.Fatal("encoded output missing span operation")
	}
}

func TestLinkerReportsMetricsAndSpans(t *testing.T) {
	store := memory.NewStore()
	rec := NewExpvarMetricsRecorder("")
	tracer := NewJSONTracer(nil)
	linker := NewLinker(store, WithMetrics(rec), WithTracer(tracer))

	item := newItem("patient-1", KindNote, at(2024, 3, 10, 9, 0))
	if _, err := linker.AddToEvent(context.Background(), item, item.StartTime); err != nil {
		t.Fatalf("AddToEvent: %v", err)
	}

	snap := rec.Snapshot()
	if snap.Results["linker.add_to_event"]["success"] != 1 {
		t.Fatal("operation success not recorded")
	}
	entries := tracer.Entries()
	if len(entries) != 1 || entries[0].Operation != "linker.add_to_event" {
		t.Fatalf("unexpected trace entries: %+v", entries)
	}
}

func TestSlogLoggerForwardsMessages(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(newBufferedSlog(&buf))
	logger.Info("linked items", "count", 3)
	if !strings.Contains(buf.String(), "linked items") {
		t.Fatalf("log output missing message: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "count=3") {
		t.Fatalf("log output missing attribute: %s", buf.String())
	}
}
