package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/okzoomer/okzoomer/internal/zoom"
)

func newTestStore(t *testing.T) *RecordingStore {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := Open(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRecordingStore(db, logger)
}

func TestUpsertAndListUnresolved(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	recs := []zoom.Recording{
		{MeetingID: "meet-1", MeetingRoomID: "910001", Topic: "Lecture 1", Timestamp: "2026-08-30T10:00:00Z"},
		{MeetingID: "meet-2", MeetingRoomID: "910002", Topic: "Lecture 2", Timestamp: "2026-08-31T10:00:00Z"},
	}
	for _, rec := range recs {
		require.NoError(t, store.UpsertRecording(ctx, rec, "run-1"))
	}

	unresolved, err := store.ListUnresolved(ctx)
	require.NoError(t, err)
	assert.Len(t, unresolved, 2)

	require.NoError(t, store.SetShareLink(ctx, "meet-1", "https://berkeley.zoom.us/rec/share/abc"))

	unresolved, err = store.ListUnresolved(ctx)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "meet-2", unresolved[0].MeetingID)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpsertPreservesResolvedLink(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := zoom.Recording{MeetingID: "meet-1", Topic: "Lecture 1"}
	require.NoError(t, store.UpsertRecording(ctx, rec, "run-1"))
	require.NoError(t, store.SetShareLink(ctx, "meet-1", "https://berkeley.zoom.us/rec/share/abc"))

	// A later listing run refreshes metadata but must not clear the link.
	rec.Topic = "Lecture 1 (renamed)"
	require.NoError(t, store.UpsertRecording(ctx, rec, "run-2"))

	unresolved, err := store.ListUnresolved(ctx)
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Lecture 1 (renamed)", all[0].Topic)
	assert.Equal(t, "https://berkeley.zoom.us/rec/share/abc", all[0].ShareLink)
	assert.Equal(t, "run-2", all[0].RunID)
}

func TestUpsertRequiresMeetingID(t *testing.T) {
	store := newTestStore(t)
	err := store.UpsertRecording(context.Background(), zoom.Recording{}, "run-1")
	assert.Error(t, err)
}

func TestSetShareLinkUnknownRecording(t *testing.T) {
	store := newTestStore(t)
	err := store.SetShareLink(context.Background(), "nope", "link")
	assert.Error(t, err)
}
