package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"vetcore/pkg/domain"
)

// Linker attaches record items to patient clinical events. It is the main
// entry point of the engine: callers hand it loose items and it finds,
// creates, and links the events they belong to.
//
// A Linker is safe for concurrent use, but concurrent batches touching the
// same patient and date may each create an event for that date; the store
// does not serialize selection against insertion.
type Linker struct {
	store    RecordStore
	selector *EventSelector
	author   *string
	location *string
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	nowFn    func() time.Time
}

// LinkerOption customizes a Linker.
type LinkerOption func(*Linker)

// WithLogger sets the logger used by linking operations.
func WithLogger(logger Logger) LinkerOption {
	return func(l *Linker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder for linking operations.
func WithMetrics(metrics MetricsRecorder) LinkerOption {
	return func(l *Linker) {
		if metrics != nil {
			l.metrics = metrics
		}
	}
}

// WithTracer sets the tracer for linking operations.
func WithTracer(tracer Tracer) LinkerOption {
	return func(l *Linker) {
		if tracer != nil {
			l.tracer = tracer
		}
	}
}

// WithAuthor sets the default author recorded on events the linker creates.
func WithAuthor(author string) LinkerOption {
	return func(l *Linker) { l.author = &author }
}

// WithLocation sets the default practice location recorded on events the
// linker creates.
func WithLocation(location string) LinkerOption {
	return func(l *Linker) { l.location = &location }
}

// WithClock overrides the linker's time source.
func WithClock(now func() time.Time) LinkerOption {
	return func(l *Linker) {
		if now != nil {
			l.nowFn = now
		}
	}
}

// NewLinker constructs a Linker over the given store.
func NewLinker(store RecordStore, opts ...LinkerOption) *Linker {
	l := &Linker{
		store:    store,
		selector: NewEventSelector(store),
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Changes returns a fresh change tracker carrying the linker's author and
// location defaults, for callers composing multi-step edits before a
// single flush.
func (l *Linker) Changes() *HistoryChanges {
	return NewHistoryChanges(l.store, l.author, l.location)
}

// AddToEvent links a single item to the event matching the timestamp,
// creating one if necessary, and flushes immediately. The resolved event
// is returned.
func (l *Linker) AddToEvent(ctx context.Context, item *RecordItem, timestamp time.Time) (*ClinicalEvent, error) {
	ctx, span := l.tracer.Start(ctx, "linker.add_to_event")
	start := l.nowFn()
	event, err := l.addToEvent(ctx, item, timestamp)
	l.metrics.Observe(ctx, "linker.add_to_event", err == nil, l.nowFn().Sub(start))
	span.End(err)
	return event, err
}

func (l *Linker) addToEvent(ctx context.Context, item *RecordItem, timestamp time.Time) (*ClinicalEvent, error) {
	changes := l.Changes()
	event, err := l.attach(ctx, changes, []*RecordItem{item}, timestamp)
	if err != nil {
		return nil, err
	}
	if err := changes.Save(ctx); err != nil {
		return nil, err
	}
	return event, nil
}

// AddToEvents links a batch of items, all sharing the same timestamp, to
// per-patient events. Items already linked to an event are left untouched.
// All changes flush in a single batch at the end.
func (l *Linker) AddToEvents(ctx context.Context, items []*RecordItem, timestamp time.Time) error {
	ctx, span := l.tracer.Start(ctx, "linker.add_to_events")
	start := l.nowFn()
	err := l.addToEvents(ctx, items, timestamp)
	l.metrics.Observe(ctx, "linker.add_to_events", err == nil, l.nowFn().Sub(start))
	span.End(err)
	return err
}

func (l *Linker) addToEvents(ctx context.Context, items []*RecordItem, timestamp time.Time) error {
	changes := l.Changes()
	byPatient := groupByPatient(items)
	for _, patient := range sortedPatients(byPatient) {
		unlinked := withoutLinked(byPatient[patient])
		if len(unlinked) == 0 {
			continue
		}
		if _, err := l.attach(ctx, changes, unlinked, timestamp); err != nil {
			return err
		}
	}
	if err := changes.Save(ctx); err != nil {
		return err
	}
	l.logger.Debug("linked items to events", "items", len(items), "patients", len(byPatient))
	return nil
}

// AddToHistoricalEvents links items carrying their own timestamps,
// bucketing each patient's items by calendar date and resolving one event
// per bucket. Used by backfills over historical data.
func (l *Linker) AddToHistoricalEvents(ctx context.Context, items []*RecordItem) error {
	ctx, span := l.tracer.Start(ctx, "linker.add_to_historical_events")
	start := l.nowFn()
	err := l.addToHistoricalEvents(ctx, items)
	l.metrics.Observe(ctx, "linker.add_to_historical_events", err == nil, l.nowFn().Sub(start))
	span.End(err)
	return err
}

func (l *Linker) addToHistoricalEvents(ctx context.Context, items []*RecordItem) error {
	changes := l.Changes()
	byPatient := groupByPatient(items)
	for _, patient := range sortedPatients(byPatient) {
		unlinked := withoutLinked(byPatient[patient])
		for len(unlinked) > 0 {
			date := domain.DateOf(unlinked[0].StartTime)
			var bucket []*RecordItem
			for _, item := range unlinked {
				if domain.DateOf(item.StartTime).Equal(date) {
					bucket = append(bucket, item)
				}
			}
			rest := unlinked[:0:0]
			for _, item := range unlinked {
				if !domain.DateOf(item.StartTime).Equal(date) {
					rest = append(rest, item)
				}
			}
			unlinked = rest
			if _, err := l.attach(ctx, changes, bucket, date); err != nil {
				return err
			}
		}
	}
	return changes.Save(ctx)
}

// attach resolves the event for one patient's items at the given timestamp
// and links every item to it. All items must belong to the same patient.
func (l *Linker) attach(ctx context.Context, changes *HistoryChanges, items []*RecordItem, timestamp time.Time) (*ClinicalEvent, error) {
	patient := items[0].Patient
	event, err := l.selector.EventForAddition(ctx, changes, patient, timestamp, firstClinician(items))
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		changes.AddRelationship(event, item)
	}
	return event, nil
}

// LinkRecords wires an item, and optionally a problem and an addendum,
// into an event's history graph. The event and item are required; problem
// and addendum may be nil. Kinds are validated up front: nothing is linked
// unless every argument is of an acceptable kind, and a persisted event
// that no longer resolves fails with domain.NotFoundError.
//
// An addendum attaches to the item; the item attaches to the problem when
// one is given, otherwise directly to the event; the problem and each of
// its current children attach to the event.
func (l *Linker) LinkRecords(ctx context.Context, event *ClinicalEvent, problem, item, addendum *RecordItem) error {
	ctx, span := l.tracer.Start(ctx, "linker.link_records")
	start := l.nowFn()
	err := l.linkRecords(ctx, event, problem, item, addendum)
	l.metrics.Observe(ctx, "linker.link_records", err == nil, l.nowFn().Sub(start))
	span.End(err)
	return err
}

func (l *Linker) linkRecords(ctx context.Context, event *ClinicalEvent, problem, item, addendum *RecordItem) error {
	if item.Kind == KindProblem {
		return &domain.InvalidKindError{Arg: "item", Kind: item.Kind}
	}
	if problem != nil && problem.Kind != KindProblem {
		return &domain.InvalidKindError{Arg: "problem", Kind: problem.Kind}
	}
	if addendum != nil {
		if addendum.Kind != KindAddendum {
			return &domain.InvalidKindError{Arg: "addendum", Kind: addendum.Kind}
		}
		if item.Kind != KindNote && item.Kind != KindMedication {
			return &domain.InvalidKindError{Arg: "item", Kind: item.Kind}
		}
	}

	if !event.IsNew() {
		_, ok, err := l.store.GetEvent(ctx, event.ID)
		if err != nil {
			return fmt.Errorf("resolve event %s: %w", event.ID, err)
		}
		if !ok {
			return &domain.NotFoundError{Type: domain.RecordTypeEvent, ID: event.ID}
		}
	}
	changes := l.Changes()
	changes.AddEvent(event)

	if addendum != nil {
		if domain.Connect(item, addendum, LinkItemAddendum) {
			changes.changed(item)
			changes.changed(addendum)
		}
	}
	if problem != nil {
		if domain.Connect(problem, item, LinkProblemItem) {
			changes.changed(problem)
			changes.changed(item)
		}
	}
	if !changes.HasRelationship(item) {
		changes.AddRelationship(event, item)
	}
	if problem != nil {
		if !changes.HasRelationship(problem) {
			changes.AddRelationship(event, problem)
		}
		if err := l.linkProblemChildren(ctx, changes, event, problem); err != nil {
			return err
		}
	}
	return changes.Save(ctx)
}

// linkProblemChildren attaches every child of a problem to the event, so
// notes filed under the problem show in the visit history.
func (l *Linker) linkProblemChildren(ctx context.Context, changes *HistoryChanges, event *ClinicalEvent, problem *RecordItem) error {
	for _, ref := range domain.TargetRefs(problem, LinkProblemItem) {
		child, ok, err := l.store.GetItem(ctx, ref)
		if err != nil {
			return fmt.Errorf("resolve problem child %s: %w", ref, err)
		}
		if !ok {
			continue
		}
		if !changes.HasRelationship(child) {
			changes.AddRelationship(event, child)
		}
	}
	return nil
}

// DeleteEvent removes an event and its linked history records, detaching
// but retaining charge lines, and flushes immediately.
func (l *Linker) DeleteEvent(ctx context.Context, event *ClinicalEvent) error {
	ctx, span := l.tracer.Start(ctx, "linker.delete_event")
	start := l.nowFn()
	err := l.deleteEvent(ctx, event)
	l.metrics.Observe(ctx, "linker.delete_event", err == nil, l.nowFn().Sub(start))
	span.End(err)
	return err
}

func (l *Linker) deleteEvent(ctx context.Context, event *ClinicalEvent) error {
	changes := l.Changes()
	if err := changes.RemoveEvent(ctx, event); err != nil {
		return err
	}
	return changes.Save(ctx)
}

// groupByPatient buckets items by patient reference, preserving each
// patient's input order.
func groupByPatient(items []*RecordItem) map[string][]*RecordItem {
	byPatient := make(map[string][]*RecordItem)
	for _, item := range items {
		byPatient[item.Patient] = append(byPatient[item.Patient], item)
	}
	return byPatient
}

func sortedPatients(byPatient map[string][]*RecordItem) []string {
	patients := make([]string, 0, len(byPatient))
	for patient := range byPatient {
		patients = append(patients, patient)
	}
	sort.Strings(patients)
	return patients
}

// withoutLinked filters out items already attached to an event.
func withoutLinked(items []*RecordItem) []*RecordItem {
	unlinked := items[:0:0]
	for _, item := range items {
		if _, ok := domain.LinkedEventRef(item); !ok {
			unlinked = append(unlinked, item)
		}
	}
	return unlinked
}

// firstClinician returns the first non-nil clinician among the items, used
// when a new event must be created for the batch.
func firstClinician(items []*RecordItem) *string {
	for _, item := range items {
		if item.Clinician != nil {
			return item.Clinician
		}
	}
	return nil
}
