package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velden/hubwatch/internal/health"
)

func snapshotJSON(generatedAt time.Time) string {
	return fmt.Sprintf(`{
		"generated_at": %q,
		"workflows": [
			{"id": "wf-1", "title": "Ship dashboard", "lane": "ops", "status": "in_progress", "agent": "agent:main"}
		],
		"agents": [
			{"session_key": "agent:main:r1", "run_id": "r1", "model": "m-1", "status": "active", "last_seen": %q}
		]
	}`, generatedAt.Format(time.RFC3339), generatedAt.Format(time.RFC3339))
}

func TestSnapshotMissingFile(t *testing.T) {
	st := newTestStore(t)
	hs := health.New()

	si := NewSnapshotIngestor(st, hs, filepath.Join(t.TempDir(), "nope.json"), time.Minute)
	si.Ingest()

	assert.Equal(t, health.CheckMissing, hs.Check(health.SourceSnapshot))
	view := hs.Snapshot(false)
	assert.Contains(t, view.Issues, health.IssueSnapshotMissing)

	// Previous data stays authoritative: nothing upserted, but a warning
	// event was recorded.
	ws, err := st.Workflows()
	require.NoError(t, err)
	assert.Empty(t, ws)
	events, err := st.Events(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "warning", events[0].Level)
}

func TestSnapshotFreshIngest(t *testing.T) {
	st := newTestStore(t)
	hs := health.New()
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, os.WriteFile(path, []byte(snapshotJSON(time.Now())), 0o644))

	NewSnapshotIngestor(st, hs, path, time.Minute).Ingest()

	assert.Equal(t, health.CheckOK, hs.Check(health.SourceSnapshot))

	ws, err := st.Workflows()
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, "Ship dashboard", ws[0].Title)

	as, err := st.Agents()
	require.NoError(t, err)
	require.Len(t, as, 1)
	assert.Equal(t, "agent:main:r1", as[0].SessionKey)

	view := hs.Snapshot(true)
	assert.False(t, view.Stale)
	assert.Contains(t, view.ActiveSources, health.SourceSnapshot)
	assert.NotContains(t, view.Issues, health.IssueSnapshotStale)
}

func TestSnapshotStaleness(t *testing.T) {
	st := newTestStore(t)
	hs := health.New()
	path := filepath.Join(t.TempDir(), "snap.json")

	// generated_at older than max age → stale.
	require.NoError(t, os.WriteFile(path, []byte(snapshotJSON(time.Now().Add(-10*time.Minute))), 0o644))
	si := NewSnapshotIngestor(st, hs, path, time.Minute)
	si.Ingest()

	assert.Equal(t, health.CheckStale, hs.Check(health.SourceSnapshot))
	view := hs.Snapshot(true)
	assert.True(t, view.Stale)
	assert.Contains(t, view.Issues, health.IssueSnapshotStale)

	// A fresh snapshot flips the check back to ok and clears the issue.
	require.NoError(t, os.WriteFile(path, []byte(snapshotJSON(time.Now())), 0o644))
	si.Ingest()

	assert.Equal(t, health.CheckOK, hs.Check(health.SourceSnapshot))
	view = hs.Snapshot(true)
	assert.False(t, view.Stale)
	assert.NotContains(t, view.Issues, health.IssueSnapshotStale)
}

func TestSnapshotParseError(t *testing.T) {
	st := newTestStore(t)
	hs := health.New()
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	NewSnapshotIngestor(st, hs, path, time.Minute).Ingest()

	assert.Equal(t, health.CheckError, hs.Check(health.SourceDB))
	view := hs.Snapshot(false)
	assert.Contains(t, view.Issues, health.IssueDBError)
	assert.Equal(t, "error", view.Status, "db error dominates the composite status")

	events, err := st.Events(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].Level)
}
