package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"vetcore/pkg/domain"
)

// newID generates a random record identifier. Identifiers are assigned at
// creation time so that link edges are stable before the first save.
func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// HistoryChanges tracks changes to patient histories across a batch of
// linking operations or a multi-step editing workflow (e.g. invoicing).
//
// It owns the per-batch event cache (events already touched, indexed by
// patient and kept sorted ascending by start time) and the dirty set of
// records pending save or removal. One instance must not be shared across
// concurrent batches.
type HistoryChanges struct {
	store    RecordStore
	author   *string
	location *string

	events          map[string]*ClinicalEvent
	eventsByPatient map[string][]*ClinicalEvent
	newEvents       map[string]struct{}

	toSave   map[string]Record
	toRemove map[string]Record
}

// NewHistoryChanges constructs a change tracker against the given store.
// Author and location, when non-nil, are attached to events created during
// the batch that do not already carry them.
func NewHistoryChanges(store RecordStore, author, location *string) *HistoryChanges {
	return &HistoryChanges{
		store:           store,
		author:          author,
		location:        location,
		events:          make(map[string]*ClinicalEvent),
		eventsByPatient: make(map[string][]*ClinicalEvent),
		newEvents:       make(map[string]struct{}),
		toSave:          make(map[string]Record),
		toRemove:        make(map[string]Record),
	}
}

// Event resolves an event by reference, consulting the batch cache before
// the store. A reference that no longer resolves yields (nil, false, nil).
func (c *HistoryChanges) Event(ctx context.Context, ref string) (*ClinicalEvent, bool, error) {
	if ref == "" {
		return nil, false, nil
	}
	if event, ok := c.events[ref]; ok {
		return event, true, nil
	}
	event, ok, err := c.store.GetEvent(ctx, ref)
	if err != nil {
		return nil, false, fmt.Errorf("resolve event %s: %w", ref, err)
	}
	if !ok {
		return nil, false, nil
	}
	c.register(event)
	return event, true, nil
}

// EventsFor returns the cached events for a patient, sorted ascending by
// start time. The returned slice is the cache's own; callers must not
// reorder it.
func (c *HistoryChanges) EventsFor(patient string) []*ClinicalEvent {
	return c.eventsByPatient[patient]
}

// AddEvent registers an event for tracking. A not-yet-persisted event is
// given the configured author and location defaults when unset, and is
// marked dirty for save.
func (c *HistoryChanges) AddEvent(event *ClinicalEvent) {
	if _, ok := c.events[event.ID]; ok {
		return
	}
	if event.IsNew() {
		c.newEvents[event.ID] = struct{}{}
		if c.author != nil && event.Author == nil {
			event.Author = c.author
		}
		if c.location != nil && event.Location == nil {
			event.Location = c.location
		}
		c.changed(event)
	}
	c.register(event)
}

// register indexes an event by reference and patient without marking it
// dirty.
func (c *HistoryChanges) register(event *ClinicalEvent) {
	c.events[event.ID] = event
	if event.Patient == "" {
		return
	}
	list := append(c.eventsByPatient[event.Patient], event)
	sortEvents(list)
	c.eventsByPatient[event.Patient] = list
}

// sortEvents orders events ascending by start time, then by identifier so
// ties are deterministic.
func sortEvents(events []*ClinicalEvent) {
	if len(events) > 1 {
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].StartTime.Equal(events[j].StartTime) {
				return events[i].ID < events[j].ID
			}
			return events[i].StartTime.Before(events[j].StartTime)
		})
	}
}

// IsNew reports whether an event added via AddEvent was unpersisted prior
// to Save being invoked.
func (c *HistoryChanges) IsNew(event *ClinicalEvent) bool {
	_, ok := c.newEvents[event.ID]
	return ok
}

// LinkedEvent resolves the event an item is attached to, or (nil, false,
// nil) when the item is unlinked or its event has been deleted.
func (c *HistoryChanges) LinkedEvent(ctx context.Context, item *RecordItem) (*ClinicalEvent, bool, error) {
	ref, ok := domain.LinkedEventRef(item)
	if !ok {
		return nil, false, nil
	}
	return c.Event(ctx, ref)
}

// HasRelationship reports whether the item carries an inbound event edge.
func (c *HistoryChanges) HasRelationship(item *RecordItem) bool {
	_, ok := domain.LinkedEventRef(item)
	return ok
}

// AddRelationship links an item to an event and marks both endpoints dirty.
// Charge items are linked through the charge edge kind.
func (c *HistoryChanges) AddRelationship(event *ClinicalEvent, item *RecordItem) {
	domain.Connect(event, item, domain.EventLinkKind(item))
	c.changed(event)
	c.changed(item)
}

// RemoveRelationship removes the edge between an event and an item. Both
// endpoints are marked dirty only when an edge actually existed.
func (c *HistoryChanges) RemoveRelationship(event *ClinicalEvent, item *RecordItem) {
	if domain.Disconnect(event, item, domain.EventLinkKind(item)) {
		c.changed(event)
		c.changed(item)
	}
}

// RemoveEventRelationship looks up the item's current inbound event edge
// and removes it. An item whose event no longer exists is left untouched;
// that is a valid outcome, not an error.
func (c *HistoryChanges) RemoveEventRelationship(ctx context.Context, item *RecordItem) error {
	event, ok, err := c.LinkedEvent(ctx, item)
	if err != nil {
		return err
	}
	if ok {
		c.RemoveRelationship(event, item)
	}
	return nil
}

// AddItemDocument attaches a document to a charge or record item and marks
// both dirty.
func (c *HistoryChanges) AddItemDocument(item, document *RecordItem) {
	domain.Connect(item, document, LinkItemDocument)
	c.changed(item)
	c.changed(document)
}

// RemoveItemDocument detaches a document from its item and queues the
// document for removal. The document is first saved with its relationships
// removed so that no stale back-reference survives between the save and
// the removal.
func (c *HistoryChanges) RemoveItemDocument(ctx context.Context, item, document *RecordItem) error {
	c.changed(item)
	c.changed(document)
	c.toRemove[document.ID] = document

	domain.Disconnect(item, document, LinkItemDocument)
	return c.RemoveEventRelationship(ctx, document)
}

// RemoveEvent queues a clinical event and all of its linked children for
// cascading removal, top-down through the link graph. Charge lines are
// detached but retained; financial records outlive the visit.
func (c *HistoryChanges) RemoveEvent(ctx context.Context, event *ClinicalEvent) error {
	c.AddEvent(event)
	c.toRemove[event.ID] = event

	for _, ref := range domain.TargetRefs(event, LinkEventCharge) {
		charge, ok, err := c.store.GetItem(ctx, ref)
		if err != nil {
			return fmt.Errorf("resolve charge %s: %w", ref, err)
		}
		if ok {
			c.RemoveRelationship(event, charge)
		}
	}

	visited := map[string]struct{}{}
	for _, ref := range domain.TargetRefs(event, LinkEventItem) {
		if err := c.removeItemTree(ctx, ref, visited); err != nil {
			return err
		}
	}
	return nil
}

// removeItemTree queues an item and its descendants (problem children,
// documents, addenda) for removal.
func (c *HistoryChanges) removeItemTree(ctx context.Context, ref string, visited map[string]struct{}) error {
	if _, ok := visited[ref]; ok {
		return nil
	}
	visited[ref] = struct{}{}

	item, ok, err := c.store.GetItem(ctx, ref)
	if err != nil {
		return fmt.Errorf("resolve item %s: %w", ref, err)
	}
	if !ok {
		return nil
	}
	c.toRemove[item.ID] = item
	delete(c.toSave, item.ID)

	for _, kind := range []LinkKind{LinkProblemItem, LinkItemDocument, LinkItemAddendum} {
		for _, child := range domain.TargetRefs(item, kind) {
			if err := c.removeItemTree(ctx, child, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

// Complete marks all tracked events not queued for removal as COMPLETED
// with the given end time.
func (c *HistoryChanges) Complete(endTime time.Time) {
	for _, event := range c.events {
		if _, removing := c.toRemove[event.ID]; removing {
			continue
		}
		event.Status = StatusCompleted
		end := endTime
		event.EndTime = &end
		c.changed(event)
	}
}

// PendingSaves returns the number of records queued for save.
func (c *HistoryChanges) PendingSaves() int { return len(c.toSave) }

// PendingRemovals returns the number of records queued for removal.
func (c *HistoryChanges) PendingRemovals() int { return len(c.toRemove) }

// Save flushes the batch, in strict order: dirty records first, then the
// records queued for removal are saved (persisting any edges already
// detached from them), then removed. A store error leaves the persisted
// state undefined from the caller's point of view; callers must not assume
// partial success.
func (c *HistoryChanges) Save(ctx context.Context) error {
	saves := make([]Record, 0, len(c.toSave))
	for _, id := range sortedKeys(c.toSave) {
		if _, removing := c.toRemove[id]; removing {
			continue
		}
		saves = append(saves, c.toSave[id])
	}
	if len(saves) > 0 {
		if err := c.store.Save(ctx, saves...); err != nil {
			return fmt.Errorf("save history changes: %w", err)
		}
	}
	if len(c.toRemove) > 0 {
		removals := make([]Record, 0, len(c.toRemove))
		for _, id := range sortedKeys(c.toRemove) {
			removals = append(removals, c.toRemove[id])
		}
		if err := c.store.Save(ctx, removals...); err != nil {
			return fmt.Errorf("save records pending removal: %w", err)
		}
		for _, record := range removals {
			if err := c.store.Remove(ctx, record); err != nil {
				return fmt.Errorf("remove record %s: %w", record.RecordID(), err)
			}
		}
	}
	c.toSave = make(map[string]Record)
	c.toRemove = make(map[string]Record)
	return nil
}

// changed flags a record as dirty.
func (c *HistoryChanges) changed(record Record) {
	c.toSave[record.RecordID()] = record
}

func sortedKeys(m map[string]Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
