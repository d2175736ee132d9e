// Package memory provides an in-memory implementation of the record store
// used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"vetcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the
// domain record store interface.
var _ domain.RecordStore = (*Store)(nil)

type (
	// ClinicalEvent aliases domain.ClinicalEvent for in-memory persistence operations.
	ClinicalEvent = domain.ClinicalEvent
	// RecordItem aliases domain.RecordItem.
	RecordItem = domain.RecordItem
	// Record aliases domain.Record.
	Record = domain.Record
	// EventQuery aliases domain.EventQuery.
	EventQuery = domain.EventQuery
)

type storeState struct {
	events map[string]*ClinicalEvent
	items  map[string]*RecordItem
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Events map[string]*ClinicalEvent `json:"events"`
	Items  map[string]*RecordItem    `json:"items"`
}

// Store is a mutex-guarded in-memory record store. All records cross the
// API boundary as deep clones; callers never share memory with the store.
type Store struct {
	mu    sync.RWMutex
	state storeState
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: storeState{
			events: make(map[string]*ClinicalEvent),
			items:  make(map[string]*RecordItem),
		},
		nowFn: time.Now,
	}
}

// SetClock overrides the store's time source for tests.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.nowFn = now
	}
}

func newLocalID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// Get returns the record with the given identifier, of either record type.
func (s *Store) Get(ctx context.Context, id string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if event, ok := s.state.events[id]; ok {
		return event.Clone(), true, nil
	}
	if item, ok := s.state.items[id]; ok {
		return item.Clone(), true, nil
	}
	return nil, false, nil
}

// GetEvent returns the clinical event with the given identifier.
func (s *Store) GetEvent(ctx context.Context, id string) (*ClinicalEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.state.events[id]
	if !ok {
		return nil, false, nil
	}
	return event.Clone(), true, nil
}

// GetItem returns the record item with the given identifier.
func (s *Store) GetItem(ctx context.Context, id string) (*RecordItem, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.state.items[id]
	if !ok {
		return nil, false, nil
	}
	return item.Clone(), true, nil
}

// Save persists a batch of records atomically: every record is validated
// before any is applied. New records are assigned identifiers and creation
// stamps; existing records have their update stamp refreshed.
func (s *Store) Save(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range records {
		if err := validate(record); err != nil {
			return err
		}
	}
	now := s.nowFn()
	for _, record := range records {
		clone := domain.CloneRecord(record)
		applyStamps(clone, now)
		switch r := clone.(type) {
		case *ClinicalEvent:
			s.state.events[r.ID] = r
		case *RecordItem:
			s.state.items[r.ID] = r
		default:
			return fmt.Errorf("unsupported record type %T", record)
		}
		// Reflect assigned identity back to the caller's copy.
		reflectStamps(record, clone)
	}
	return nil
}

func validate(record Record) error {
	switch r := record.(type) {
	case *ClinicalEvent:
		if r.Patient == "" {
			return errors.New("clinical event requires a patient")
		}
		if r.StartTime.IsZero() {
			return errors.New("clinical event requires a start time")
		}
		if r.EndTime != nil && r.EndTime.Before(r.StartTime) {
			return fmt.Errorf("clinical event %s ends before it starts", r.ID)
		}
	case *RecordItem:
		if r.Patient == "" {
			return fmt.Errorf("record item %s requires a patient", r.ID)
		}
		if r.Kind == "" {
			return fmt.Errorf("record item %s requires a kind", r.ID)
		}
	default:
		return fmt.Errorf("unsupported record type %T", record)
	}
	return nil
}

func applyStamps(record Record, now time.Time) {
	switch r := record.(type) {
	case *ClinicalEvent:
		stampBase(&r.Base, now)
	case *RecordItem:
		stampBase(&r.Base, now)
	}
}

func stampBase(b *domain.Base, now time.Time) {
	if b.ID == "" {
		b.ID = newLocalID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

func reflectStamps(dst, src Record) {
	switch d := dst.(type) {
	case *ClinicalEvent:
		d.Base = src.(*ClinicalEvent).Base
	case *RecordItem:
		d.Base = src.(*RecordItem).Base
	}
}

// Remove deletes a record. Removing an absent record is a no-op.
func (s *Store) Remove(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch record.(type) {
	case *ClinicalEvent:
		delete(s.state.events, record.RecordID())
	case *RecordItem:
		delete(s.state.items, record.RecordID())
	default:
		return fmt.Errorf("unsupported record type %T", record)
	}
	return nil
}

// QueryEvents returns the events matching the query, sorted by start time
// then identifier, ascending unless the query requests descending order.
// An event without an end time matches any EndsOnOrAfter bound.
func (s *Store) QueryEvents(ctx context.Context, q EventQuery) ([]*ClinicalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*ClinicalEvent
	for _, event := range s.state.events {
		if !matches(event, q) {
			continue
		}
		events = append(events, event.Clone())
	}
	sort.Slice(events, func(i, j int) bool {
		if q.Descending {
			return eventLess(events[j], events[i])
		}
		return eventLess(events[i], events[j])
	})
	if q.Limit > 0 && len(events) > q.Limit {
		events = events[:q.Limit]
	}
	return events, nil
}

func eventLess(a, b *ClinicalEvent) bool {
	if a.StartTime.Equal(b.StartTime) {
		return a.ID < b.ID
	}
	return a.StartTime.Before(b.StartTime)
}

func matches(event *ClinicalEvent, q EventQuery) bool {
	if q.Patient != "" && event.Patient != q.Patient {
		return false
	}
	if q.Status != "" && event.Status != q.Status {
		return false
	}
	if !q.StartsOnOrBefore.IsZero() && event.StartTime.After(q.StartsOnOrBefore) {
		return false
	}
	if !q.EndsOnOrAfter.IsZero() && event.StartTime.After(q.EndsOnOrAfter) &&
		event.EndTime != nil && event.EndTime.Before(q.EndsOnOrAfter) {
		return false
	}
	return true
}

// QueryUnlinkedItems returns up to limit record items lacking an inbound
// event edge, sorted ascending by start time then identifier. Addenda are
// excluded; they attach to events through their parent items.
func (s *Store) QueryUnlinkedItems(ctx context.Context, limit int) ([]*RecordItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []*RecordItem
	for _, item := range s.state.items {
		if item.Kind == domain.KindAddendum {
			continue
		}
		if _, linked := domain.LinkedEventRef(item); linked {
			continue
		}
		items = append(items, item.Clone())
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].StartTime.Equal(items[j].StartTime) {
			return items[i].ID < items[j].ID
		}
		return items[i].StartTime.Before(items[j].StartTime)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// ExportState returns a deep clone of the store contents for snapshotting.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Events: make(map[string]*ClinicalEvent, len(s.state.events)),
		Items:  make(map[string]*RecordItem, len(s.state.items)),
	}
	for id, event := range s.state.events {
		snap.Events[id] = event.Clone()
	}
	for id, item := range s.state.items {
		snap.Items[id] = item.Clone()
	}
	return snap
}

// ImportState replaces the store contents with the snapshot.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.events = make(map[string]*ClinicalEvent, len(snap.Events))
	s.state.items = make(map[string]*RecordItem, len(snap.Items))
	for id, event := range snap.Events {
		s.state.events[id] = event.Clone()
	}
	for id, item := range snap.Items {
		s.state.items[id] = item.Clone()
	}
}
