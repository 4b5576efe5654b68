package usage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velden/hubwatch/internal/models"
	"github.com/velden/hubwatch/internal/store"
)

func newTestAggregator(t *testing.T) (*Aggregator, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return New(st), st
}

func rec(ts time.Time, agent, provider, model string, total int64, errMsg string) models.UsageRecord {
	return models.UsageRecord{
		Timestamp:    ts,
		AgentID:      agent,
		SessionID:    agent + ":s",
		Provider:     provider,
		ModelName:    model,
		Role:         "assistant",
		InputTokens:  total / 2,
		OutputTokens: total - total/2,
		TotalTokens:  total,
		ErrorMessage: errMsg,
	}
}

func TestTotals(t *testing.T) {
	agg, st := newTestAggregator(t)
	now := time.Now()

	require.NoError(t, st.AppendUsage([]models.UsageRecord{
		rec(now.Add(-time.Hour), "agent:a", "anthropic", "m-1", 100, ""),
		rec(now.Add(-2*time.Hour), "agent:a", "anthropic", "m-1", 200, "rate limited"),
		rec(now.Add(-3*time.Hour), "agent:b", "openai", "m-2", 300, ""),
		// Outside the 24h window; must not count.
		rec(now.Add(-48*time.Hour), "agent:a", "anthropic", "m-1", 999, ""),
	}))

	w, err := ParseRange("24h", now)
	require.NoError(t, err)
	totals, err := agg.Totals(w)
	require.NoError(t, err)

	assert.Equal(t, int64(3), totals.Requests)
	assert.Equal(t, int64(600), totals.TotalTokens)
	assert.Equal(t, int64(1), totals.Errors)
	assert.InDelta(t, 1.0/3.0, totals.ErrorRate, 1e-9)
}

func TestTotalsEmptyWindow(t *testing.T) {
	agg, _ := newTestAggregator(t)

	w, err := ParseRange("24h", time.Now())
	require.NoError(t, err)
	totals, err := agg.Totals(w)
	require.NoError(t, err)

	assert.Equal(t, int64(0), totals.Requests)
	assert.Equal(t, float64(0), totals.ErrorRate, "error rate divides by max(requests,1)")
}

func TestAggregateConservation(t *testing.T) {
	agg, st := newTestAggregator(t)
	now := time.Now()

	require.NoError(t, st.AppendUsage([]models.UsageRecord{
		rec(now.Add(-time.Hour), "agent:a", "anthropic", "m-1", 120, ""),
		rec(now.Add(-time.Hour), "agent:a", "openai", "m-2", 80, ""),
		rec(now.Add(-time.Hour), "agent:b", "anthropic", "m-1", 50, ""),
		rec(now.Add(-time.Hour), "agent:c", "", "m-3", 30, ""),
	}))

	w, _ := ParseRange("24h", now)
	totals, err := agg.Totals(w)
	require.NoError(t, err)
	byAgent, err := agg.ByAgent(w)
	require.NoError(t, err)

	var sum int64
	for _, a := range byAgent {
		sum += a.TotalTokens
	}
	assert.Equal(t, totals.TotalTokens, sum, "per-agent totals must conserve the global total")
}

func TestByProviderUnknownSubstitution(t *testing.T) {
	agg, st := newTestAggregator(t)
	now := time.Now()

	require.NoError(t, st.AppendUsage([]models.UsageRecord{
		rec(now.Add(-time.Hour), "agent:a", "", "m-1", 40, ""),
		rec(now.Add(-time.Hour), "agent:a", "anthropic", "m-1", 60, ""),
	}))

	w, _ := ParseRange("24h", now)
	byProv, err := agg.ByProvider(w)
	require.NoError(t, err)
	require.Len(t, byProv, 2)

	providers := map[string]int64{}
	for _, p := range byProv {
		providers[p.Provider] = p.TotalTokens
	}
	assert.Equal(t, int64(40), providers["unknown"])
	assert.Equal(t, int64(60), providers["anthropic"])
}

func TestByAgentBreakdown(t *testing.T) {
	agg, st := newTestAggregator(t)
	now := time.Now()

	records := []models.UsageRecord{
		rec(now.Add(-time.Hour), "agent:a", "anthropic", "m-1", 100, ""),
		rec(now.Add(-time.Hour), "agent:a", "anthropic", "m-1", 100, ""),
		rec(now.Add(-time.Hour), "agent:a", "openai", "m-2", 100, ""),
		rec(now.Add(-time.Hour), "agent:a", "openai", "m-3", 101, ""),
	}
	require.NoError(t, st.AppendUsage(records))

	w, _ := ParseRange("24h", now)
	byAgent, err := agg.ByAgent(w)
	require.NoError(t, err)
	require.Len(t, byAgent, 1)

	a := byAgent[0]
	assert.Equal(t, int64(4), a.Requests)
	assert.Equal(t, int64(401), a.TotalTokens)
	assert.Equal(t, int64(100), a.AvgTokens, "average tokens per request is rounded")
	require.Len(t, a.TopModels, 3)
	assert.Equal(t, "m-1", a.TopModels[0], "most frequent model first")
	assert.InDelta(t, 0.5, a.ProviderShare["anthropic"], 1e-9)
	assert.InDelta(t, 0.5, a.ProviderShare["openai"], 1e-9)
}

func TestByModelErrorRate(t *testing.T) {
	agg, st := newTestAggregator(t)
	now := time.Now()

	require.NoError(t, st.AppendUsage([]models.UsageRecord{
		rec(now.Add(-time.Hour), "agent:a", "anthropic", "m-1", 100, ""),
		rec(now.Add(-time.Hour), "agent:a", "anthropic", "m-1", 100, "overloaded"),
		rec(now.Add(-time.Hour), "agent:a", "openai", "m-1", 100, ""),
	}))

	w, _ := ParseRange("24h", now)
	byModel, err := agg.ByModel(w)
	require.NoError(t, err)
	require.Len(t, byModel, 2, "same model under different providers is two groups")

	for _, m := range byModel {
		if m.Provider == "anthropic" {
			assert.Equal(t, int64(2), m.Requests)
			assert.InDelta(t, 0.5, m.ErrorRate, 1e-9)
		} else {
			assert.Equal(t, int64(1), m.Requests)
			assert.Equal(t, float64(0), m.ErrorRate)
		}
	}
}

func TestParseRange(t *testing.T) {
	now := time.Now()

	w, err := ParseRange("7d", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-7*24*time.Hour), w.Start)
	assert.Equal(t, now, w.End)

	w, err = ParseRange("", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), w.Start)

	_, err = ParseRange("1y", now)
	assert.Error(t, err)
}
