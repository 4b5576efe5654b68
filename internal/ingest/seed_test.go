package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velden/hubwatch/internal/models"
)

const backlogDoc = `# Hub backlog

## Wire up weather widget
Still in dev, half the API calls stubbed.

## Review alert thresholds
Waiting on review from ops.

## Migrate reminders store
done last sprint

## Fix sports scores cache
Blocked on upstream rate limits.

## Something new
`

func TestSeedFromBacklog(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	backlog := filepath.Join(dir, "BACKLOG.md")
	require.NoError(t, os.WriteFile(backlog, []byte(backlogDoc), 0o644))

	seeded, err := NewSeeder(st, backlog, true, 3, "").Seed()
	require.NoError(t, err)
	assert.True(t, seeded)

	ws, err := st.Workflows()
	require.NoError(t, err)
	require.Len(t, ws, 5)

	byTitle := make(map[string]models.WorkflowStatus, len(ws))
	for _, w := range ws {
		byTitle[w.Title] = w.Status
	}
	assert.Equal(t, models.WorkflowInProgress, byTitle["Wire up weather widget"])
	assert.Equal(t, models.WorkflowReview, byTitle["Review alert thresholds"])
	assert.Equal(t, models.WorkflowDone, byTitle["Migrate reminders store"])
	assert.Equal(t, models.WorkflowBlocked, byTitle["Fix sports scores cache"])
	assert.Equal(t, models.WorkflowPlanned, byTitle["Something new"])
}

func TestSeedDefaultsWhenBacklogAbsent(t *testing.T) {
	st := newTestStore(t)

	// Snapshot absent, backlog absent, minSeedItems = 3: the three
	// built-in defaults plus the synthetic agent must appear.
	seeded, err := NewSeeder(st, filepath.Join(t.TempDir(), "missing.md"), true, 3, "").Seed()
	require.NoError(t, err)
	assert.True(t, seeded)

	workflows, agents, _, err := st.Counts()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, workflows, int64(3))
	assert.GreaterOrEqual(t, agents, int64(1))

	as, err := st.Agents()
	require.NoError(t, err)
	require.Len(t, as, 1)
	assert.Equal(t, SyntheticAgentKey, as[0].SessionKey)
	assert.Equal(t, models.AgentActive, as[0].Status)
}

func TestSeedOperatorDefaults(t *testing.T) {
	st := newTestStore(t)

	custom := `[{"id":"ops:one","title":"Custom item","lane":"ops","status":"review"}]`
	seeded, err := NewSeeder(st, filepath.Join(t.TempDir(), "missing.md"), true, 1, custom).Seed()
	require.NoError(t, err)
	assert.True(t, seeded)

	ws, err := st.Workflows()
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, "Custom item", ws[0].Title)
	assert.Equal(t, models.WorkflowReview, ws[0].Status)
}

func TestSeedMalformedOperatorJSONFallsBack(t *testing.T) {
	st := newTestStore(t)

	seeded, err := NewSeeder(st, filepath.Join(t.TempDir(), "missing.md"), false, 3, "[not json").Seed()
	require.NoError(t, err)
	assert.True(t, seeded)

	ws, err := st.Workflows()
	require.NoError(t, err)
	assert.Len(t, ws, len(builtinWorkflows))
}

func TestSeedDisabledPolicies(t *testing.T) {
	st := newTestStore(t)

	// No backlog seeding, no min-seed policy: no workflows, but the
	// synthetic agent is still upserted.
	seeded, err := NewSeeder(st, "", false, 0, "").Seed()
	require.NoError(t, err)
	assert.False(t, seeded)

	workflows, agents, _, err := st.Counts()
	require.NoError(t, err)
	assert.Equal(t, int64(0), workflows)
	assert.Equal(t, int64(1), agents)
}

func TestParseBacklogSections(t *testing.T) {
	sections := parseBacklogSections("intro text\n## One\nbody a\n## Two\n\n##\n## Three\n")
	require.Len(t, sections, 3)
	assert.Equal(t, "One", sections[0].title)
	assert.Equal(t, "body a\n", sections[0].body)
	assert.Equal(t, "Two", sections[1].title)
	assert.Equal(t, "Three", sections[2].title)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "wire-up-weather-widget", slugify("Wire up weather widget"))
	assert.Equal(t, "fix-2-bugs", slugify("  Fix 2 bugs!  "))
}
