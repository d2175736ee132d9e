package domain

import (
	"testing"
	"time"
)

func newTestEvent(id string) *ClinicalEvent {
	return &ClinicalEvent{
		Base:      Base{ID: id},
		Patient:   "patient-1",
		Status:    StatusCompleted,
		StartTime: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	}
}

func newTestItem(id string, kind ItemKind) *RecordItem {
	return &RecordItem{
		Base:      Base{ID: id},
		Kind:      kind,
		Patient:   "patient-1",
		StartTime: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestConnectAddsEdgeOnBothEndpoints(t *testing.T) {
	event := newTestEvent("event-1")
	item := newTestItem("item-1", KindNote)

	if !Connect(event, item, LinkEventItem) {
		t.Fatal("expected first Connect to add the edge")
	}
	if len(event.Links) != 1 || len(item.Links) != 1 {
		t.Fatalf("expected edge on both endpoints, got %d/%d", len(event.Links), len(item.Links))
	}
	if event.Links[0] != item.Links[0] {
		t.Fatalf("endpoints disagree: %+v vs %+v", event.Links[0], item.Links[0])
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	event := newTestEvent("event-1")
	item := newTestItem("item-1", KindNote)

	Connect(event, item, LinkEventItem)
	for i := 0; i < 3; i++ {
		if Connect(event, item, LinkEventItem) {
			t.Fatal("duplicate Connect reported a new edge")
		}
	}
	if len(event.Links) != 1 || len(item.Links) != 1 {
		t.Fatalf("duplicate edges added: %d/%d", len(event.Links), len(item.Links))
	}
}

func TestConnectDistinguishesKinds(t *testing.T) {
	event := newTestEvent("event-1")
	item := newTestItem("item-1", KindCharge)

	if !Connect(event, item, LinkEventCharge) {
		t.Fatal("expected charge edge to be added")
	}
	if Linked(event, item, LinkEventItem) {
		t.Error("charge edge reported as item edge")
	}
	if !Linked(event, item, LinkEventCharge) {
		t.Error("charge edge not found")
	}
}

func TestDisconnectRemovesBothSides(t *testing.T) {
	event := newTestEvent("event-1")
	item := newTestItem("item-1", KindNote)
	Connect(event, item, LinkEventItem)

	if !Disconnect(event, item, LinkEventItem) {
		t.Fatal("expected Disconnect to remove the edge")
	}
	if len(event.Links) != 0 || len(item.Links) != 0 {
		t.Fatalf("edge left behind: %d/%d", len(event.Links), len(item.Links))
	}
	if Disconnect(event, item, LinkEventItem) {
		t.Error("second Disconnect reported a removal")
	}
}

func TestLinkedEventRef(t *testing.T) {
	event := newTestEvent("event-1")
	note := newTestItem("item-1", KindNote)
	charge := newTestItem("item-2", KindCharge)

	if _, ok := LinkedEventRef(note); ok {
		t.Fatal("unlinked item reported an event")
	}
	Connect(event, note, LinkEventItem)
	Connect(event, charge, LinkEventCharge)

	if ref, ok := LinkedEventRef(note); !ok || ref != "event-1" {
		t.Errorf("note: got (%q, %v)", ref, ok)
	}
	if ref, ok := LinkedEventRef(charge); !ok || ref != "event-1" {
		t.Errorf("charge: got (%q, %v)", ref, ok)
	}
}

func TestLinkedEventRefIgnoresOutboundEdges(t *testing.T) {
	problem := newTestItem("problem-1", KindProblem)
	child := newTestItem("item-1", KindNote)
	Connect(problem, child, LinkProblemItem)

	if _, ok := LinkedEventRef(problem); ok {
		t.Error("outbound problem edge reported as inbound event link")
	}
	if ref, ok := LinkedSourceRef(child, LinkProblemItem); !ok || ref != "problem-1" {
		t.Errorf("child: got (%q, %v)", ref, ok)
	}
}

func TestTargetRefsPreservesInsertionOrder(t *testing.T) {
	event := newTestEvent("event-1")
	for _, id := range []string{"a", "b", "c"} {
		Connect(event, newTestItem(id, KindNote), LinkEventItem)
	}
	got := TargetRefs(event, LinkEventItem)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %d refs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ref %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestEventLinkKind(t *testing.T) {
	if EventLinkKind(newTestItem("i", KindCharge)) != LinkEventCharge {
		t.Error("charge item should use the charge edge kind")
	}
	if EventLinkKind(newTestItem("i", KindNote)) != LinkEventItem {
		t.Error("note item should use the item edge kind")
	}
}
