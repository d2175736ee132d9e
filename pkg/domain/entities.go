// Package domain defines the persistent entities, link graph primitives, and
// record-store contracts used by vetcore.
package domain

import "time"

// RecordType identifies the type of record stored in the clinical domain.
type RecordType string

// Supported record type identifiers used in store buckets and references.
const (
	// RecordTypeEvent identifies a clinical event (visit) record.
	RecordTypeEvent RecordType = "clinical_event"
	// RecordTypeItem identifies a medical record item.
	RecordTypeItem RecordType = "record_item"
)

// EventStatus represents the lifecycle state of a clinical event.
type EventStatus string

// Clinical event statuses. An IN_PROGRESS event is an open visit; a COMPLETED
// event is closed and bounded by its start and end dates.
const (
	StatusInProgress EventStatus = "IN_PROGRESS"
	StatusCompleted  EventStatus = "COMPLETED"
)

// ItemKind enumerates the medical record item types that can be attached to a
// clinical event.
type ItemKind string

// Canonical item kinds recognised by the linking rules.
const (
	// KindNote identifies a free-form clinical note.
	KindNote ItemKind = "note"
	// KindMedication identifies a medication administration record.
	KindMedication ItemKind = "medication"
	// KindInvestigation identifies a lab order or investigation result.
	KindInvestigation ItemKind = "investigation"
	// KindProblem identifies a clinical problem, a container for its own items.
	KindProblem ItemKind = "problem"
	// KindDocument identifies an attached document.
	KindDocument ItemKind = "document"
	// KindCharge identifies an invoice charge line.
	KindCharge ItemKind = "charge"
	// KindAddendum identifies an addendum to a note or medication record.
	KindAddendum ItemKind = "addendum"
)

// Base contains common fields for all domain records. A record with a zero
// CreatedAt has not been persisted yet; stores stamp it on save.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordID returns the record identifier.
func (b Base) RecordID() string { return b.ID }

// IsNew reports whether the record has never been saved.
func (b Base) IsNew() bool { return b.CreatedAt.IsZero() }

// ClinicalEvent represents a single patient visit. Items are attached to it
// through typed links; its own fields are otherwise immutable once created,
// apart from status completion.
type ClinicalEvent struct {
	Base
	Patient   string      `json:"patient"`
	Clinician *string     `json:"clinician,omitempty"`
	Location  *string     `json:"location,omitempty"`
	Author    *string     `json:"author,omitempty"`
	Status    EventStatus `json:"status"`
	StartTime time.Time   `json:"start_time"`
	EndTime   *time.Time  `json:"end_time"`
	Links     []Link      `json:"links"`
}

// RecordItem is any clinical artifact that can be attached to a visit.
// A problem item is a container whose children are linked through
// problem-item edges.
type RecordItem struct {
	Base
	Kind       ItemKind  `json:"kind"`
	Patient    string    `json:"patient"`
	Clinician  *string   `json:"clinician,omitempty"`
	StartTime  time.Time `json:"start_time"`
	Note       string    `json:"note,omitempty"`
	FileName   string    `json:"file_name,omitempty"`
	ContentKey string    `json:"content_key,omitempty"`
	Links      []Link    `json:"links"`
}

// Record is implemented by all persistable clinical records.
type Record interface {
	RecordID() string
	RecordType() RecordType

	linksPtr() *[]Link
}

// RecordType identifies the event record type.
func (e *ClinicalEvent) RecordType() RecordType { return RecordTypeEvent }

// RecordType identifies the item record type.
func (i *RecordItem) RecordType() RecordType { return RecordTypeItem }

func (e *ClinicalEvent) linksPtr() *[]Link { return &e.Links }
func (i *RecordItem) linksPtr() *[]Link    { return &i.Links }

// Clone returns a deep copy of the event.
func (e *ClinicalEvent) Clone() *ClinicalEvent {
	cp := *e
	cp.Clinician = cloneStringPtr(e.Clinician)
	cp.Location = cloneStringPtr(e.Location)
	cp.Author = cloneStringPtr(e.Author)
	cp.EndTime = cloneTimePtr(e.EndTime)
	cp.Links = append([]Link(nil), e.Links...)
	return &cp
}

// Clone returns a deep copy of the item.
func (i *RecordItem) Clone() *RecordItem {
	cp := *i
	cp.Clinician = cloneStringPtr(i.Clinician)
	cp.Links = append([]Link(nil), i.Links...)
	return &cp
}

// CloneRecord copies a record preserving its concrete type.
func CloneRecord(r Record) Record {
	switch v := r.(type) {
	case *ClinicalEvent:
		return v.Clone()
	case *RecordItem:
		return v.Clone()
	}
	return r
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// StartDate returns the calendar date of the event's start time.
func (e *ClinicalEvent) StartDate() time.Time { return DateOf(e.StartTime) }

// EndDate returns the calendar date of the event's end time. A nil end time
// yields the start date, treating the event as a single-day visit.
func (e *ClinicalEvent) EndDate() time.Time {
	if e.EndTime == nil {
		return e.StartDate()
	}
	return DateOf(*e.EndTime)
}

// DateOf truncates a timestamp to its calendar date in the timestamp's
// location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the same calendar date at 23:59:59.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
