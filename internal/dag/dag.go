// Package dag implements the event DAG frontier used for node sync.
// Every event names the set of precursor events it was derived from; a
// node's basis is the frontier of events it currently considers current.
// Two nodes that exchange bases converge on the same frontier.
package dag

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EventID orders events by (timestamp, content hash). The hash covers the
// timestamp and the ordered precursor hashes, so identity is derived from
// history rather than assigned.
type EventID struct {
	Timestamp int64
	Hash      [sha256.Size]byte
}

// NewEventID computes the ID for an event created now-at-ts from precursors.
// Precursors must be sorted; ID computation is deterministic.
func NewEventID(timestamp int64, precursors []EventID) EventID {
	h := sha256.New()

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(timestamp))
	h.Write(ts[:])

	for _, p := range precursors {
		h.Write(p.Hash[:])
	}

	var id EventID
	id.Timestamp = timestamp
	copy(id.Hash[:], h.Sum(nil))
	return id
}

// Compare orders IDs by timestamp, then hash.
func (id EventID) Compare(other EventID) int {
	switch {
	case id.Timestamp < other.Timestamp:
		return -1
	case id.Timestamp > other.Timestamp:
		return 1
	default:
		return bytes.Compare(id.Hash[:], other.Hash[:])
	}
}

// HexHash returns the hash as a lowercase hex string.
func (id EventID) HexHash() string {
	return hex.EncodeToString(id.Hash[:])
}

// String renders a short human-readable form: the trailing digits of the
// timestamp and hash.
func (id EventID) String() string {
	ts := fmt.Sprintf("%d", id.Timestamp)
	if len(ts) > 3 {
		ts = ts[len(ts)-3:]
	}
	hx := id.HexHash()
	return fmt.Sprintf("%s.%s", ts, hx[len(hx)-3:])
}

// Ref renders the ID as "timestamp:hexhash", the form used for storage
// and on the wire.
func (id EventID) Ref() string {
	return fmt.Sprintf("%d:%s", id.Timestamp, id.HexHash())
}

// ParseRef parses the "timestamp:hexhash" form produced by Ref.
func ParseRef(ref string) (EventID, error) {
	sep := strings.IndexByte(ref, ':')
	if sep <= 0 || sep == len(ref)-1 {
		return EventID{}, fmt.Errorf("malformed event ref %q", ref)
	}

	timestamp, err := strconv.ParseInt(ref[:sep], 10, 64)
	if err != nil {
		return EventID{}, fmt.Errorf("malformed event ref timestamp %q: %w", ref, err)
	}

	hash, err := hex.DecodeString(ref[sep+1:])
	if err != nil {
		return EventID{}, fmt.Errorf("malformed event ref hash %q: %w", ref, err)
	}
	if len(hash) != sha256.Size {
		return EventID{}, fmt.Errorf("event ref hash %q has wrong length", ref)
	}

	id := EventID{Timestamp: timestamp}
	copy(id.Hash[:], hash)
	return id, nil
}

// Event is a DAG node: an ID plus the sorted set of precursor IDs it
// supersedes.
type Event struct {
	ID         EventID
	Precursors []EventID
}

// NewEvent builds an event from its precursors at the given timestamp.
// The precursor slice is sorted in place.
func NewEvent(timestamp int64, precursors []EventID) Event {
	sortIDs(precursors)
	return Event{
		ID:         NewEventID(timestamp, precursors),
		Precursors: precursors,
	}
}

// Merge combines two events into one that supersedes both: latest
// timestamp, union of precursors, rehashed ID.
func (e Event) Merge(other Event) Event {
	ts := e.ID.Timestamp
	if other.ID.Timestamp > ts {
		ts = other.ID.Timestamp
	}

	union := unionIDs(e.Precursors, other.Precursors)
	return Event{
		ID:         NewEventID(ts, union),
		Precursors: union,
	}
}

// HasPrecursor reports whether id is among the event's precursors.
func (e Event) HasPrecursor(id EventID) bool {
	for _, p := range e.Precursors {
		if p == id {
			return true
		}
	}
	return false
}

// Basis is a node's current DAG frontier, kept sorted by event ID.
// It is not safe for concurrent use; callers serialize access.
type Basis struct {
	events []Event
}

// NewBasis returns an empty frontier.
func NewBasis() *Basis {
	return &Basis{}
}

// NewBasisWithSeed returns a frontier containing a single seed event.
func NewBasisWithSeed(seed Event) *Basis {
	b := NewBasis()
	b.Add(seed)
	return b
}

// Events returns a copy of the frontier in ID order.
func (b *Basis) Events() []Event {
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Len returns the number of frontier events.
func (b *Basis) Len() int {
	return len(b.events)
}

// NewEvent creates an event on this node from the given precursors and
// folds it into the frontier.
func (b *Basis) NewEvent(timestamp int64, precursors []EventID) Event {
	event := NewEvent(timestamp, precursors)
	b.Add(event)
	return event
}

// Add merges-or-inserts an event. If an existing frontier event already
// lists the incoming event's ID as a precursor, the two merge and the
// merged event replaces the original; otherwise the event joins the
// frontier as-is.
func (b *Basis) Add(event Event) {
	for i, existing := range b.events {
		if existing.HasPrecursor(event.ID) {
			merged := existing.Merge(event)
			b.removeAt(i)
			b.insert(merged)
			return
		}
		if event.HasPrecursor(existing.ID) {
			merged := event.Merge(existing)
			b.removeAt(i)
			b.insert(merged)
			return
		}
	}
	b.insert(event)
}

// Receive folds a batch of remote events into the frontier.
func (b *Basis) Receive(events []Event) {
	for _, e := range events {
		b.Add(e)
	}
}

// Equal reports whether two bases contain the same frontier events.
func (b *Basis) Equal(other *Basis) bool {
	if len(b.events) != len(other.events) {
		return false
	}
	for i := range b.events {
		if b.events[i].ID != other.events[i].ID {
			return false
		}
	}
	return true
}

func (b *Basis) insert(event Event) {
	idx := sort.Search(len(b.events), func(i int) bool {
		return b.events[i].ID.Compare(event.ID) >= 0
	})
	if idx < len(b.events) && b.events[idx].ID == event.ID {
		return // already present
	}
	b.events = append(b.events, Event{})
	copy(b.events[idx+1:], b.events[idx:])
	b.events[idx] = event
}

func (b *Basis) removeAt(i int) {
	b.events = append(b.events[:i], b.events[i+1:]...)
}

func sortIDs(ids []EventID) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Compare(ids[j]) < 0
	})
}

func unionIDs(a, b []EventID) []EventID {
	seen := make(map[EventID]struct{}, len(a)+len(b))
	out := make([]EventID, 0, len(a)+len(b))
	for _, id := range a {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out
}
