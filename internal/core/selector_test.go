package core

import (
	"context"
	"testing"
	"time"

	"vetcore/internal/infra/persistence/memory"
	"vetcore/pkg/domain"
)

func day(yyyy int, mm time.Month, dd int) time.Time {
	return time.Date(yyyy, mm, dd, 0, 0, 0, 0, time.UTC)
}

func at(yyyy int, mm time.Month, dd, hh, min int) time.Time {
	return time.Date(yyyy, mm, dd, hh, min, 0, 0, time.UTC)
}

func saveEvent(t *testing.T, store RecordStore, event *ClinicalEvent) *ClinicalEvent {
	t.Helper()
	if err := store.Save(context.Background(), event); err != nil {
		t.Fatalf("save event: %v", err)
	}
	return event
}

func inProgress(patient string, start time.Time) *ClinicalEvent {
	return &ClinicalEvent{
		Base:      domain.Base{ID: newID()},
		Patient:   patient,
		Status:    StatusInProgress,
		StartTime: start,
	}
}

func completed(patient string, start time.Time, end *time.Time) *ClinicalEvent {
	return &ClinicalEvent{
		Base:      domain.Base{ID: newID()},
		Patient:   patient,
		Status:    StatusCompleted,
		StartTime: start,
		EndTime:   end,
	}
}

func TestCanAddToInProgressEventWithinWindow(t *testing.T) {
	event := inProgress("patient-1", day(2024, 3, 1))
	cases := []struct {
		name      string
		timestamp time.Time
		want      bool
	}{
		{"same day", at(2024, 3, 1, 9, 0), true},
		{"seven days later", at(2024, 3, 8, 23, 0), true},
		{"eight days later", at(2024, 3, 9, 0, 1), false},
		{"before start", at(2024, 2, 28, 12, 0), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := canAddToEvent(event, tc.timestamp); got != tc.want {
				t.Fatalf("canAddToEvent(%s) = %v, want %v", tc.timestamp, got, tc.want)
			}
		})
	}
}

func TestCanAddToCompletedEventWithinBounds(t *testing.T) {
	end := at(2024, 3, 5, 17, 30)
	event := completed("patient-1", at(2024, 3, 3, 8, 0), &end)
	cases := []struct {
		name      string
		timestamp time.Time
		want      bool
	}{
		{"on start date", at(2024, 3, 3, 1, 0), true},
		{"mid range", at(2024, 3, 4, 12, 0), true},
		{"on end date after end instant", at(2024, 3, 5, 23, 0), true},
		{"day after end", at(2024, 3, 6, 0, 1), false},
		{"day before start", at(2024, 3, 2, 23, 59), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := canAddToEvent(event, tc.timestamp); got != tc.want {
				t.Fatalf("canAddToEvent(%s) = %v, want %v", tc.timestamp, got, tc.want)
			}
		})
	}
}

func TestCanAddToCompletedEventWithoutEndTime(t *testing.T) {
	event := completed("patient-1", at(2024, 3, 3, 8, 0), nil)
	if !canAddToEvent(event, at(2024, 3, 3, 22, 0)) {
		t.Fatal("expected same-date record to qualify when end time is unset")
	}
	if canAddToEvent(event, at(2024, 3, 4, 0, 1)) {
		t.Fatal("expected next-day record to be rejected when end time is unset")
	}
}

func TestEventForAdditionPrefersLatestEligibleEvent(t *testing.T) {
	store := memory.NewStore()
	older := saveEvent(t, store, inProgress("patient-1", day(2024, 3, 1)))
	newer := saveEvent(t, store, inProgress("patient-1", day(2024, 3, 4)))
	_ = older

	selector := NewEventSelector(store)
	changes := NewHistoryChanges(store, nil, nil)
	event, err := selector.EventForAddition(context.Background(), changes, "patient-1", at(2024, 3, 5, 10, 0), nil)
	if err != nil {
		t.Fatalf("EventForAddition: %v", err)
	}
	if event.ID != newer.ID {
		t.Fatalf("selected event %s, want latest eligible %s", event.ID, newer.ID)
	}
}

func TestEventForAdditionIgnoresEventsStartingAfterTimestamp(t *testing.T) {
	store := memory.NewStore()
	earlier := saveEvent(t, store, inProgress("patient-1", day(2024, 3, 1)))
	saveEvent(t, store, inProgress("patient-1", day(2024, 3, 6)))

	selector := NewEventSelector(store)
	changes := NewHistoryChanges(store, nil, nil)
	event, err := selector.EventForAddition(context.Background(), changes, "patient-1", at(2024, 3, 5, 10, 0), nil)
	if err != nil {
		t.Fatalf("EventForAddition: %v", err)
	}
	if event.ID != earlier.ID {
		t.Fatalf("selected event %s, want %s; later-starting events must not match", event.ID, earlier.ID)
	}
}

func TestEventForAdditionSkipsStaleInProgressEvent(t *testing.T) {
	store := memory.NewStore()
	saveEvent(t, store, inProgress("patient-1", day(2024, 3, 1)))

	selector := NewEventSelector(store)
	changes := NewHistoryChanges(store, nil, nil)
	clinician := "vet-9"
	event, err := selector.EventForAddition(context.Background(), changes, "patient-1", at(2024, 3, 15, 10, 0), &clinician)
	if err != nil {
		t.Fatalf("EventForAddition: %v", err)
	}
	if !changes.IsNew(event) {
		t.Fatal("expected a new event; the stale one must not qualify")
	}
	if event.Status != StatusCompleted {
		t.Fatalf("created event status = %s, want %s", event.Status, StatusCompleted)
	}
	if !event.StartTime.Equal(day(2024, 3, 15)) {
		t.Fatalf("created event start = %s, want the item's calendar date", event.StartTime)
	}
	if event.Clinician == nil || *event.Clinician != clinician {
		t.Fatal("created event should carry the batch clinician")
	}
}

func TestEventForAdditionReusesBatchEventBeforeStore(t *testing.T) {
	store := memory.NewStore()
	selector := NewEventSelector(store)
	changes := NewHistoryChanges(store, nil, nil)

	first, err := selector.EventForAddition(context.Background(), changes, "patient-1", at(2024, 3, 10, 9, 0), nil)
	if err != nil {
		t.Fatalf("first EventForAddition: %v", err)
	}
	second, err := selector.EventForAddition(context.Background(), changes, "patient-1", at(2024, 3, 10, 17, 0), nil)
	if err != nil {
		t.Fatalf("second EventForAddition: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("same-day additions resolved different events: %s vs %s", first.ID, second.ID)
	}
}

func TestEventForAdditionAppliesAuthorAndLocationDefaults(t *testing.T) {
	store := memory.NewStore()
	selector := NewEventSelector(store)
	author, location := "user-1", "clinic-east"
	changes := NewHistoryChanges(store, &author, &location)

	event, err := selector.EventForAddition(context.Background(), changes, "patient-1", at(2024, 3, 10, 9, 0), nil)
	if err != nil {
		t.Fatalf("EventForAddition: %v", err)
	}
	if event.Author == nil || *event.Author != author {
		t.Fatal("new event should carry the default author")
	}
	if event.Location == nil || *event.Location != location {
		t.Fatal("new event should carry the default location")
	}
}

func TestSelectorReusesOpenEventWithEarlierEndTime(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	end := at(2024, 3, 1, 18, 0)
	open := inProgress("patient-1", day(2024, 3, 1))
	open.EndTime = &end
	saveEvent(t, store, open)

	selector := NewEventSelector(store)
	changes := NewHistoryChanges(store, nil, nil)
	got, err := selector.EventForAddition(ctx, changes, "patient-1", at(2024, 3, 3, 10, 0), nil)
	if err != nil {
		t.Fatalf("EventForAddition: %v", err)
	}
	if got.ID != open.ID {
		t.Fatalf("selected %s, want the open event %s despite its earlier end time", got.ID, open.ID)
	}
}

// Two batches that both select before either flushes each create a visit
// for the same patient and date. The store is the only serialization
// point and does not guard selection against concurrent insertion; this
// window is accepted.
func TestInterleavedBatchesMayCreateDuplicateEvents(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	selector := NewEventSelector(store)
	timestamp := at(2024, 3, 10, 9, 0)

	first := NewHistoryChanges(store, nil, nil)
	second := NewHistoryChanges(store, nil, nil)

	fromFirst, err := selector.EventForAddition(ctx, first, "patient-1", timestamp, nil)
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	fromSecond, err := selector.EventForAddition(ctx, second, "patient-1", timestamp, nil)
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if err := first.Save(ctx); err != nil {
		t.Fatalf("flush first: %v", err)
	}
	if err := second.Save(ctx); err != nil {
		t.Fatalf("flush second: %v", err)
	}

	if fromFirst.ID == fromSecond.ID {
		t.Fatal("interleaved batches resolved the same event; the duplicate window closed")
	}
	events, err := store.QueryEvents(ctx, EventQuery{Patient: "patient-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("store holds %d events for the patient/date, want the accepted duplicate pair", len(events))
	}
}
