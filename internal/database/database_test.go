package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"hydra/internal/dag"
	"hydra/internal/models"
	"hydra/pkg/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDatabase(t *testing.T) *Database {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "hydra.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testLog(eventID string) *models.IngressLog {
	return &models.IngressLog{
		EventID:    eventID,
		CapturedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		RemoteAddr: "203.0.113.7",
		Method:     "POST",
		Host:       "example.test",
		Path:       "/hooks/deploy",
		Query:      map[string]string{"ref": "main"},
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(`{"ok":true}`),
	}
}

// insertSequence stores count logs with lexicographically increasing
// event IDs and returns those IDs in ascending order.
func insertSequence(t *testing.T, db *Database, count int) []string {
	t.Helper()

	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("01TEST%04d", i)
		require.NoError(t, db.InsertIngressLog(context.Background(), testLog(id)))
		ids = append(ids, id)
	}
	return ids
}

func TestDatabase_New_InvalidPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("../escape/hydra.db")
	assert.Error(t, err)
}

func TestDatabase_InsertAndFetchRoundTrip(t *testing.T) {
	db := setupTestDatabase(t)
	want := testLog("01TESTROUNDTRIP")

	require.NoError(t, db.InsertIngressLog(context.Background(), want))

	result, err := db.FetchIngressLogs(context.Background(), FetchQuery{
		Limit:     10,
		Direction: wire.Descending,
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	got := result.Items[0]
	assert.Equal(t, want.EventID, got.EventID)
	assert.WithinDuration(t, want.CapturedAt, got.CapturedAt, time.Second)
	assert.Equal(t, want.RemoteAddr, got.RemoteAddr)
	assert.Equal(t, want.Method, got.Method)
	assert.Equal(t, want.Host, got.Host)
	assert.Equal(t, want.Path, got.Path)
	assert.Equal(t, want.Query, got.Query)
	assert.Equal(t, want.Headers, got.Headers)
	assert.Equal(t, want.Body, got.Body)
	assert.False(t, result.MoreRecords)
}

func TestDatabase_FetchDescendingFirstPage(t *testing.T) {
	db := setupTestDatabase(t)
	ids := insertSequence(t, db, 5)

	result, err := db.FetchIngressLogs(context.Background(), FetchQuery{
		Limit:     2,
		Direction: wire.Descending,
	})
	require.NoError(t, err)

	require.Len(t, result.Items, 2)
	assert.Equal(t, ids[4], result.Items[0].EventID)
	assert.Equal(t, ids[3], result.Items[1].EventID)
	assert.True(t, result.MoreRecords)
}

func TestDatabase_FetchDescendingWithCursor(t *testing.T) {
	db := setupTestDatabase(t)
	ids := insertSequence(t, db, 5)

	// Continue past the second-newest entry; the cursor is exclusive.
	result, err := db.FetchIngressLogs(context.Background(), FetchQuery{
		Cursor:    ids[3],
		Limit:     2,
		Direction: wire.Descending,
	})
	require.NoError(t, err)

	require.Len(t, result.Items, 2)
	assert.Equal(t, ids[2], result.Items[0].EventID)
	assert.Equal(t, ids[1], result.Items[1].EventID)
	assert.True(t, result.MoreRecords)
}

func TestDatabase_FetchAscendingWithCursor(t *testing.T) {
	db := setupTestDatabase(t)
	ids := insertSequence(t, db, 5)

	result, err := db.FetchIngressLogs(context.Background(), FetchQuery{
		Cursor:    ids[1],
		Limit:     10,
		Direction: wire.Ascending,
	})
	require.NoError(t, err)

	require.Len(t, result.Items, 3)
	assert.Equal(t, ids[2], result.Items[0].EventID)
	assert.Equal(t, ids[4], result.Items[2].EventID)
	assert.False(t, result.MoreRecords)
}

func TestDatabase_FetchAscendingAtLastRecord(t *testing.T) {
	db := setupTestDatabase(t)
	ids := insertSequence(t, db, 3)

	// Nothing newer than the newest entry.
	result, err := db.FetchIngressLogs(context.Background(), FetchQuery{
		Cursor:    ids[2],
		Limit:     10,
		Direction: wire.Ascending,
	})
	require.NoError(t, err)

	assert.Empty(t, result.Items)
	assert.False(t, result.MoreRecords)
}

func TestDatabase_FetchDescendingAtFirstRecord(t *testing.T) {
	db := setupTestDatabase(t)
	ids := insertSequence(t, db, 3)

	// Nothing older than the oldest entry.
	result, err := db.FetchIngressLogs(context.Background(), FetchQuery{
		Cursor:    ids[0],
		Limit:     10,
		Direction: wire.Descending,
	})
	require.NoError(t, err)

	assert.Empty(t, result.Items)
	assert.False(t, result.MoreRecords)
}

func TestDatabase_FetchExactLimitBoundary(t *testing.T) {
	db := setupTestDatabase(t)
	insertSequence(t, db, 3)

	result, err := db.FetchIngressLogs(context.Background(), FetchQuery{
		Limit:     3,
		Direction: wire.Ascending,
	})
	require.NoError(t, err)

	assert.Len(t, result.Items, 3)
	assert.False(t, result.MoreRecords, "a page that exactly drains the table has no further records")
}

func TestDatabase_FetchRejectsInvalidQuery(t *testing.T) {
	db := setupTestDatabase(t)

	_, err := db.FetchIngressLogs(context.Background(), FetchQuery{Limit: 0, Direction: wire.Ascending})
	assert.Error(t, err)

	_, err = db.FetchIngressLogs(context.Background(), FetchQuery{Limit: 5, Direction: "sideways"})
	assert.Error(t, err)
}

func TestDatabase_BasisRoundTrip(t *testing.T) {
	db := setupTestDatabase(t)

	seed := dag.NewEvent(100, nil)
	child := dag.NewEvent(200, []dag.EventID{seed.ID})

	require.NoError(t, db.ReplaceBasis(context.Background(), []dag.Event{seed, child}))

	events, err := db.LoadBasis(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, seed.ID, events[0].ID)
	assert.Equal(t, child.ID, events[1].ID)
	require.Len(t, events[1].Precursors, 1)
	assert.Equal(t, seed.ID, events[1].Precursors[0])
}

func TestDatabase_ReplaceBasisOverwrites(t *testing.T) {
	db := setupTestDatabase(t)

	first := dag.NewEvent(100, nil)
	require.NoError(t, db.ReplaceBasis(context.Background(), []dag.Event{first}))

	second := dag.NewEvent(200, nil)
	require.NoError(t, db.ReplaceBasis(context.Background(), []dag.Event{second}))

	events, err := db.LoadBasis(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, second.ID, events[0].ID)
}

func TestDatabase_LoadBasisEmpty(t *testing.T) {
	db := setupTestDatabase(t)

	events, err := db.LoadBasis(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}
