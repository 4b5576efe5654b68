// Package usage computes windowed aggregate views over parsed usage
// records. All aggregates are derived, read-only and recomputed from
// the record set filtered to the requested window — log volumes are
// small enough that recompute-on-query beats incremental maintenance.
package usage

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/velden/hubwatch/internal/models"
	"github.com/velden/hubwatch/internal/store"
)

// Window is a half-open [Start, End) time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// ParseRange resolves a named range ("24h", "7d", "30d") against now.
func ParseRange(name string, now time.Time) (Window, error) {
	var span time.Duration
	switch name {
	case "", "24h":
		span = 24 * time.Hour
	case "7d":
		span = 7 * 24 * time.Hour
	case "30d":
		span = 30 * 24 * time.Hour
	default:
		return Window{}, fmt.Errorf("unknown range %q (use 24h, 7d or 30d)", name)
	}
	return Window{Start: now.Add(-span), End: now}, nil
}

// Totals is the global usage summary for a window.
type Totals struct {
	Requests         int64   `json:"requests"`
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	CacheReadTokens  int64   `json:"cache_read_tokens"`
	CacheWriteTokens int64   `json:"cache_write_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	Errors           int64   `json:"errors"`
	ErrorRate        float64 `json:"error_rate"`
}

// ProviderUsage is the per-provider breakdown.
type ProviderUsage struct {
	Provider    string `json:"provider"`
	Requests    int64  `json:"requests"`
	TotalTokens int64  `json:"total_tokens"`
}

// AgentUsage is the per-agent breakdown.
type AgentUsage struct {
	AgentID          string             `json:"agent_id"`
	Requests         int64              `json:"requests"`
	InputTokens      int64              `json:"input_tokens"`
	OutputTokens     int64              `json:"output_tokens"`
	CacheReadTokens  int64              `json:"cache_read_tokens"`
	CacheWriteTokens int64              `json:"cache_write_tokens"`
	TotalTokens      int64              `json:"total_tokens"`
	AvgTokens        int64              `json:"avg_tokens_per_request"`
	TopModels        []string           `json:"top_models"`
	ProviderShare    map[string]float64 `json:"provider_share"`
}

// ModelUsage is the per-(model, provider) breakdown.
type ModelUsage struct {
	Model       string  `json:"model"`
	Provider    string  `json:"provider"`
	Requests    int64   `json:"requests"`
	TotalTokens int64   `json:"total_tokens"`
	Errors      int64   `json:"errors"`
	ErrorRate   float64 `json:"error_rate"`
}

// Aggregator derives usage views from the record store.
type Aggregator struct {
	store *store.Store
}

// New returns an Aggregator over the given store.
func New(st *store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// Totals computes the global summary for w.
func (a *Aggregator) Totals(w Window) (Totals, error) {
	records, err := a.store.RecordsInWindow(w.Start, w.End)
	if err != nil {
		return Totals{}, err
	}
	return computeTotals(records), nil
}

// ByProvider computes request and token counts grouped by provider.
// Records without a provider are grouped under "unknown".
func (a *Aggregator) ByProvider(w Window) ([]ProviderUsage, error) {
	records, err := a.store.RecordsInWindow(w.Start, w.End)
	if err != nil {
		return nil, err
	}

	byProv := make(map[string]*ProviderUsage)
	for _, r := range records {
		p := providerOf(r)
		u, ok := byProv[p]
		if !ok {
			u = &ProviderUsage{Provider: p}
			byProv[p] = u
		}
		u.Requests++
		u.TotalTokens += r.TotalTokens
	}

	out := make([]ProviderUsage, 0, len(byProv))
	for _, u := range byProv {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalTokens > out[j].TotalTokens })
	return out, nil
}

// ByAgent computes the per-agent breakdown, including each agent's top-3
// models by request frequency and per-provider request share.
func (a *Aggregator) ByAgent(w Window) ([]AgentUsage, error) {
	records, err := a.store.RecordsInWindow(w.Start, w.End)
	if err != nil {
		return nil, err
	}

	type agentAcc struct {
		AgentUsage
		models    map[string]int64
		providers map[string]int64
	}

	byAgent := make(map[string]*agentAcc)
	for _, r := range records {
		acc, ok := byAgent[r.AgentID]
		if !ok {
			acc = &agentAcc{
				AgentUsage: AgentUsage{AgentID: r.AgentID},
				models:     make(map[string]int64),
				providers:  make(map[string]int64),
			}
			byAgent[r.AgentID] = acc
		}
		acc.Requests++
		acc.InputTokens += r.InputTokens
		acc.OutputTokens += r.OutputTokens
		acc.CacheReadTokens += r.CacheReadTokens
		acc.CacheWriteTokens += r.CacheWriteTokens
		acc.TotalTokens += r.TotalTokens
		acc.models[r.ModelName]++
		acc.providers[providerOf(r)]++
	}

	out := make([]AgentUsage, 0, len(byAgent))
	for _, acc := range byAgent {
		u := acc.AgentUsage
		if u.Requests > 0 {
			u.AvgTokens = int64(math.Round(float64(u.TotalTokens) / float64(u.Requests)))
		}
		u.TopModels = topN(acc.models, 3)
		u.ProviderShare = make(map[string]float64, len(acc.providers))
		for p, n := range acc.providers {
			u.ProviderShare[p] = float64(n) / float64(u.Requests)
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalTokens > out[j].TotalTokens })
	return out, nil
}

// ByModel computes the breakdown grouped by (model, provider) pair.
func (a *Aggregator) ByModel(w Window) ([]ModelUsage, error) {
	records, err := a.store.RecordsInWindow(w.Start, w.End)
	if err != nil {
		return nil, err
	}

	type key struct{ model, provider string }
	byModel := make(map[key]*ModelUsage)
	for _, r := range records {
		k := key{r.ModelName, providerOf(r)}
		u, ok := byModel[k]
		if !ok {
			u = &ModelUsage{Model: k.model, Provider: k.provider}
			byModel[k] = u
		}
		u.Requests++
		u.TotalTokens += r.TotalTokens
		if r.ErrorMessage != "" {
			u.Errors++
		}
	}

	out := make([]ModelUsage, 0, len(byModel))
	for _, u := range byModel {
		u.ErrorRate = float64(u.Errors) / float64(max64(u.Requests, 1))
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Requests > out[j].Requests })
	return out, nil
}

func computeTotals(records []models.UsageRecord) Totals {
	var t Totals
	for _, r := range records {
		t.Requests++
		t.InputTokens += r.InputTokens
		t.OutputTokens += r.OutputTokens
		t.CacheReadTokens += r.CacheReadTokens
		t.CacheWriteTokens += r.CacheWriteTokens
		t.TotalTokens += r.TotalTokens
		if r.ErrorMessage != "" {
			t.Errors++
		}
	}
	t.ErrorRate = float64(t.Errors) / float64(max64(t.Requests, 1))
	return t
}

func providerOf(r models.UsageRecord) string {
	if r.Provider == "" {
		return "unknown"
	}
	return r.Provider
}

// topN returns the n highest-frequency keys, ties broken alphabetically
// for stable output.
func topN(counts map[string]int64, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
