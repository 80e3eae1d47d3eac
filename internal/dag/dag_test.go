package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventID_Deterministic(t *testing.T) {
	root := NewEventID(100, nil)
	again := NewEventID(100, nil)
	assert.Equal(t, root, again, "same inputs must produce the same ID")

	child := NewEventID(200, []EventID{root})
	assert.NotEqual(t, root, child)
	assert.Equal(t, int64(200), child.Timestamp)

	// Different precursors at the same timestamp hash differently.
	other := NewEventID(200, nil)
	assert.NotEqual(t, child.Hash, other.Hash)
}

func TestEventID_Compare(t *testing.T) {
	early := NewEventID(100, nil)
	late := NewEventID(200, nil)

	assert.Equal(t, -1, early.Compare(late))
	assert.Equal(t, 1, late.Compare(early))
	assert.Equal(t, 0, early.Compare(early))

	// Same timestamp falls back to hash order, deterministically.
	a := NewEventID(300, nil)
	b := NewEventID(300, []EventID{early})
	assert.Equal(t, -a.Compare(b), b.Compare(a))
}

func TestEventID_RefRoundTrip(t *testing.T) {
	id := NewEventID(1700000000, []EventID{NewEventID(1, nil)})

	parsed, err := ParseRef(id.Ref())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseRef_Malformed(t *testing.T) {
	tests := []struct {
		name string
		ref  string
	}{
		{"empty", ""},
		{"no separator", "12345"},
		{"missing hash", "12345:"},
		{"missing timestamp", ":abcdef"},
		{"non-numeric timestamp", "abc:00"},
		{"non-hex hash", "123:zzzz"},
		{"short hash", "123:abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRef(tt.ref)
			assert.Error(t, err)
		})
	}
}

func TestEvent_Merge(t *testing.T) {
	p1 := NewEventID(10, nil)
	p2 := NewEventID(20, nil)

	a := NewEvent(100, []EventID{p1})
	b := NewEvent(200, []EventID{p2})

	merged := a.Merge(b)
	assert.Equal(t, int64(200), merged.ID.Timestamp, "merge keeps the later timestamp")
	assert.Len(t, merged.Precursors, 2)
	assert.True(t, merged.HasPrecursor(p1))
	assert.True(t, merged.HasPrecursor(p2))

	// Merge is symmetric.
	assert.Equal(t, merged.ID, b.Merge(a).ID)

	// Shared precursors are not duplicated.
	c := NewEvent(300, []EventID{p1, p2})
	assert.Len(t, a.Merge(c).Precursors, 2)
}

func TestBasis_AddInsertsConcurrentEvents(t *testing.T) {
	b := NewBasis()
	b.Add(NewEvent(100, nil))
	b.Add(NewEvent(200, nil))

	assert.Equal(t, 2, b.Len(), "events with disjoint histories stay separate")
}

func TestBasis_AddMergesSuccessor(t *testing.T) {
	b := NewBasis()
	seed := b.NewEvent(100, nil)
	require.Equal(t, 1, b.Len())

	// An event naming the frontier event as precursor supersedes it.
	next := NewEvent(200, []EventID{seed.ID})
	b.Add(next)

	assert.Equal(t, 1, b.Len())
	frontier := b.Events()[0]
	assert.True(t, frontier.HasPrecursor(seed.ID))
	assert.Equal(t, int64(200), frontier.ID.Timestamp)
}

func TestBasis_AddIgnoresDuplicate(t *testing.T) {
	b := NewBasis()
	e := NewEvent(100, nil)
	b.Add(e)
	b.Add(e)
	assert.Equal(t, 1, b.Len())
}

func TestBasis_ExchangeConverges(t *testing.T) {
	seed := NewEvent(1, nil)

	nodeA := NewBasisWithSeed(seed)
	nodeB := NewBasisWithSeed(seed)

	// Each node records local history on top of the shared seed.
	nodeA.NewEvent(100, []EventID{seed.ID})
	nodeB.NewEvent(200, []EventID{seed.ID})
	require.False(t, nodeA.Equal(nodeB))

	// A full exchange in both directions converges the frontiers.
	nodeA.Receive(nodeB.Events())
	nodeB.Receive(nodeA.Events())

	assert.True(t, nodeA.Equal(nodeB), "exchanged bases must converge")
}

func TestBasis_EventsReturnsCopy(t *testing.T) {
	b := NewBasis()
	b.NewEvent(100, nil)

	events := b.Events()
	events[0] = Event{}

	assert.NotEqual(t, Event{}, b.Events()[0], "mutating the copy must not affect the frontier")
}
