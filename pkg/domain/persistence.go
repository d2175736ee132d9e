package domain

import (
	"context"
	"time"
)

// EventQuery selects clinical events for a patient. The zero value of a
// field disables that filter.
type EventQuery struct {
	// Patient restricts results to events linked to this patient.
	Patient string
	// StartsOnOrBefore is an inclusive upper bound on startTime.
	StartsOnOrBefore time.Time
	// EndsOnOrAfter is an inclusive lower bound on endTime. Events with no
	// end time match regardless, as do events whose startTime is on or
	// before the bound; eligibility for those is decided by the caller.
	EndsOnOrAfter time.Time
	// Status restricts results to a single status.
	Status EventStatus
	// Descending reverses the (startTime, id) sort order.
	Descending bool
	// Limit caps the number of results when positive.
	Limit int
}

// RecordStore is the persistence boundary of the association engine. Save
// accepts a batch of records atomically; callers must not assume partial
// success after an error. Query methods return clones, sorted ascending by
// (startTime, id) unless the query says otherwise.
type RecordStore interface {
	// Get resolves any record by identifier. A missing record yields
	// (nil, false, nil), not an error.
	Get(ctx context.Context, id string) (Record, bool, error)
	// GetEvent resolves a clinical event by identifier.
	GetEvent(ctx context.Context, id string) (*ClinicalEvent, bool, error)
	// GetItem resolves a record item by identifier.
	GetItem(ctx context.Context, id string) (*RecordItem, bool, error)
	// Save persists the given records in one atomic batch, assigning
	// identifiers and creation stamps to new records.
	Save(ctx context.Context, records ...Record) error
	// Remove deletes a record. Removing an absent record is a no-op.
	Remove(ctx context.Context, record Record) error
	// QueryEvents returns the events matching the query.
	QueryEvents(ctx context.Context, q EventQuery) ([]*ClinicalEvent, error)
	// QueryUnlinkedItems returns up to limit items that carry no inbound
	// event edge, ordered ascending by (startTime, id). Addenda are
	// excluded; they are linked through their parent item.
	QueryUnlinkedItems(ctx context.Context, limit int) ([]*RecordItem, error)
}
