package core

import (
	"context"
	"fmt"
	"time"

	"vetcore/pkg/domain"
)

// inProgressWindowDays is how far back an IN_PROGRESS event's start date may
// lie, relative to an item's date, before the event is considered stale.
const inProgressWindowDays = 7

// EventSelector finds or creates the clinical event a record item belongs
// to. Matching works at calendar-date granularity in the store's local
// time representation; the time of day only breaks ties between events on
// the same date.
type EventSelector struct {
	store RecordStore
}

// NewEventSelector constructs a selector over the given store.
func NewEventSelector(store RecordStore) *EventSelector {
	return &EventSelector{store: store}
}

// EventForAddition returns the event a record timestamped at the given
// instant should attach to. Events already touched in the batch are
// preferred; the store is only consulted when none of them qualify. When
// nothing qualifies at all, a new COMPLETED event dated to the item's
// calendar date is created and registered with the change tracker.
func (s *EventSelector) EventForAddition(ctx context.Context, changes *HistoryChanges, patient string, timestamp time.Time, clinician *string) (*ClinicalEvent, error) {
	if event := bestCandidate(changes.EventsFor(patient), timestamp); event != nil {
		return event, nil
	}

	events, err := s.store.QueryEvents(ctx, EventQuery{
		Patient:          patient,
		StartsOnOrBefore: domain.EndOfDay(timestamp),
		EndsOnOrAfter:    domain.DateOf(timestamp),
	})
	if err != nil {
		return nil, fmt.Errorf("query events for patient %s: %w", patient, err)
	}
	if event := bestCandidate(events, timestamp); event != nil {
		changes.AddEvent(event)
		return event, nil
	}

	event := &ClinicalEvent{
		Base:      Base{ID: newID()},
		Patient:   patient,
		Clinician: clinician,
		Status:    StatusCompleted,
		StartTime: domain.DateOf(timestamp),
	}
	changes.AddEvent(event)
	return event, nil
}

// bestCandidate scans events sorted ascending by start time and returns
// the latest one starting at or before the timestamp that can accept an
// addition, or nil. The scan stops at the first event starting after the
// timestamp; later events cannot qualify.
func bestCandidate(events []*ClinicalEvent, timestamp time.Time) *ClinicalEvent {
	var result *ClinicalEvent
	for _, event := range events {
		if event.StartTime.After(timestamp) {
			break
		}
		if canAddToEvent(event, timestamp) {
			result = event
		}
	}
	return result
}

// canAddToEvent reports whether a record dated at the timestamp may be
// added to the event. An IN_PROGRESS event accepts records dated up to
// seven days after its start date; a COMPLETED event accepts records whose
// date falls within its start and end dates, the end date defaulting to
// the start date when unset.
func canAddToEvent(event *ClinicalEvent, timestamp time.Time) bool {
	date := domain.DateOf(timestamp)
	if event.Status != StatusCompleted {
		floor := date.AddDate(0, 0, -inProgressWindowDays)
		return !event.StartDate().Before(floor)
	}
	return !date.Before(event.StartDate()) && !date.After(event.EndDate())
}
