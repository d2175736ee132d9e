package domain

// LinkKind discriminates the typed edges of the record graph.
type LinkKind string

// Edge kinds. Each is backed by a (source, target, kind) triple held
// redundantly on both endpoints; at most one edge of a kind may exist
// between a given pair.
const (
	// LinkEventItem attaches a medical record item to a clinical event.
	LinkEventItem LinkKind = "event-item"
	// LinkEventCharge attaches an invoice charge line to a clinical event.
	LinkEventCharge LinkKind = "event-charge"
	// LinkProblemItem attaches a child item to a clinical problem.
	LinkProblemItem LinkKind = "problem-item"
	// LinkItemDocument attaches a document to a charge or record item.
	LinkItemDocument LinkKind = "item-document"
	// LinkItemAddendum attaches an addendum to a note or medication record.
	LinkItemAddendum LinkKind = "item-addendum"
)

// Link is a directed typed edge between two records. The same Link value is
// stored on both endpoints; Connect and Disconnect keep the two sides in
// step.
type Link struct {
	Kind   LinkKind `json:"kind"`
	Source string   `json:"source"`
	Target string   `json:"target"`
}

// EventLinkKind returns the edge kind used to attach an item to an event.
// Charge lines use a distinct kind from plain record items.
func EventLinkKind(item *RecordItem) LinkKind {
	if item.Kind == KindCharge {
		return LinkEventCharge
	}
	return LinkEventItem
}

// Connect adds a kind edge from source to target on both endpoints. It
// returns false without modifying either record when the edge already
// exists.
func Connect(source, target Record, kind LinkKind) bool {
	if Linked(source, target, kind) {
		return false
	}
	link := Link{Kind: kind, Source: source.RecordID(), Target: target.RecordID()}
	src := source.linksPtr()
	tgt := target.linksPtr()
	*src = append(*src, link)
	*tgt = append(*tgt, link)
	return true
}

// Disconnect removes the kind edge between source and target from both
// endpoints. Both sides must be updated together or the graph becomes
// inconsistent. It returns false when no such edge exists.
func Disconnect(source, target Record, kind LinkKind) bool {
	link := Link{Kind: kind, Source: source.RecordID(), Target: target.RecordID()}
	removedSrc := removeLink(source.linksPtr(), link)
	removedTgt := removeLink(target.linksPtr(), link)
	return removedSrc || removedTgt
}

// Linked reports whether a kind edge exists from source to target.
func Linked(source, target Record, kind LinkKind) bool {
	for _, l := range *source.linksPtr() {
		if l.Kind == kind && l.Source == source.RecordID() && l.Target == target.RecordID() {
			return true
		}
	}
	return false
}

// LinkedRef reports whether a kind edge exists from source to the record
// with the given identifier.
func LinkedRef(source Record, target string, kind LinkKind) bool {
	for _, l := range *source.linksPtr() {
		if l.Kind == kind && l.Source == source.RecordID() && l.Target == target {
			return true
		}
	}
	return false
}

// LinkedEventRef returns the identifier of the event at the source end of
// the item's inbound event-item or event-charge edge. The second return is
// false when the item is unlinked.
func LinkedEventRef(item *RecordItem) (string, bool) {
	for _, l := range item.Links {
		if (l.Kind == LinkEventItem || l.Kind == LinkEventCharge) && l.Target == item.ID {
			return l.Source, true
		}
	}
	return "", false
}

// LinkedSourceRef returns the identifier of the record at the source end of
// the item's inbound edge of the given kind, if any.
func LinkedSourceRef(item *RecordItem, kind LinkKind) (string, bool) {
	for _, l := range item.Links {
		if l.Kind == kind && l.Target == item.ID {
			return l.Source, true
		}
	}
	return "", false
}

// TargetRefs returns the identifiers at the target end of the record's
// outbound edges of the given kind, in insertion order.
func TargetRefs(r Record, kind LinkKind) []string {
	var out []string
	for _, l := range *r.linksPtr() {
		if l.Kind == kind && l.Source == r.RecordID() {
			out = append(out, l.Target)
		}
	}
	return out
}

func removeLink(links *[]Link, link Link) bool {
	for i, l := range *links {
		if l == link {
			*links = append((*links)[:i], (*links)[i+1:]...)
			return true
		}
	}
	return false
}
