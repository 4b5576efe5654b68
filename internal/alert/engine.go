// Package alert evaluates threshold rules against usage aggregates and
// records deduplicated alert events. Alerts are never auto-resolved
// when their triggering condition clears; clearing is an explicit
// operator action through the boundary API.
package alert

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/velden/hubwatch/internal/models"
	"github.com/velden/hubwatch/internal/store"
	"github.com/velden/hubwatch/internal/usage"
)

// RuleErrorRateSpike is the rule id for the trailing-hour error-rate rule.
const RuleErrorRateSpike = "error_rate_spike"

// limitWarnFraction: the provider rule fires at 90% of the daily limit,
// not at the limit itself.
const limitWarnFraction = 0.9

// Engine evaluates the built-in rule families. Rule parameters come
// from configuration and are read per evaluation; a provider without a
// configured limit simply has no rule.
type Engine struct {
	store     *store.Store
	agg       *usage.Aggregator
	limits    map[string]int64
	errorRate float64
	enabled   bool
}

// NewEngine builds an alert engine with the given per-provider daily
// token limits and error-rate threshold fraction.
func NewEngine(st *store.Store, agg *usage.Aggregator, limits map[string]int64, errorRate float64, enabled bool) *Engine {
	return &Engine{
		store:     st,
		agg:       agg,
		limits:    limits,
		errorRate: errorRate,
		enabled:   enabled,
	}
}

// Evaluate runs every rule against current aggregates and returns the
// number of alerts created. Callers invoke it after any parse pass that
// ingested at least one new record.
func (e *Engine) Evaluate(now time.Time) int {
	if !e.enabled {
		return 0
	}
	created := 0
	created += e.evalProviderLimits(now)
	created += e.evalErrorRate(now)
	return created
}

// evalProviderLimits fires provider_daily_limit_<provider> when the
// trailing-24h token sum reaches 90% of the configured daily limit.
// Dedup window: the current UTC day — once the day rolls over the rule
// may fire again even if the previous alert was never touched.
func (e *Engine) evalProviderLimits(now time.Time) int {
	if len(e.limits) == 0 {
		return 0
	}

	byProv, err := e.agg.ByProvider(usage.Window{Start: now.Add(-24 * time.Hour), End: now})
	if err != nil {
		log.Printf("[alert] provider aggregate: %v", err)
		return 0
	}
	used := make(map[string]int64, len(byProv))
	for _, p := range byProv {
		used[p.Provider] = p.TotalTokens
	}

	dayStart := now.UTC().Truncate(24 * time.Hour)
	created := 0
	for provider, limit := range e.limits {
		if limit <= 0 {
			continue
		}
		tokens := used[provider]
		if float64(tokens) < limitWarnFraction*float64(limit) {
			continue
		}

		ruleID := "provider_daily_limit_" + provider
		exists, err := e.store.OpenAlertExists(ruleID, dayStart)
		if err != nil {
			log.Printf("[alert] dedup check %s: %v", ruleID, err)
			continue
		}
		if exists {
			continue
		}

		pct := float64(tokens) / float64(limit) * 100
		details, _ := json.Marshal(map[string]any{
			"provider": provider,
			"used":     tokens,
			"limit":    limit,
			"pct":      pct,
		})
		if err := e.store.CreateAlert(models.AlertEvent{
			Severity: models.SeverityCritical,
			RuleID:   ruleID,
			Title:    fmt.Sprintf("%s daily token usage at %.0f%% of limit", provider, pct),
			Details:  string(details),
		}); err != nil {
			log.Printf("[alert] create %s: %v", ruleID, err)
			continue
		}
		log.Printf("[alert] fired %s (%d/%d tokens)", ruleID, tokens, limit)
		created++
	}
	return created
}

// evalErrorRate fires error_rate_spike when the trailing-hour error
// fraction exceeds the threshold. Dedup window: the current hour.
func (e *Engine) evalErrorRate(now time.Time) int {
	if e.errorRate <= 0 {
		return 0
	}

	totals, err := e.agg.Totals(usage.Window{Start: now.Add(-time.Hour), End: now})
	if err != nil {
		log.Printf("[alert] totals aggregate: %v", err)
		return 0
	}
	if totals.Requests == 0 || totals.ErrorRate <= e.errorRate {
		return 0
	}

	hourStart := now.UTC().Truncate(time.Hour)
	exists, err := e.store.OpenAlertExists(RuleErrorRateSpike, hourStart)
	if err != nil {
		log.Printf("[alert] dedup check %s: %v", RuleErrorRateSpike, err)
		return 0
	}
	if exists {
		return 0
	}

	details, _ := json.Marshal(map[string]any{
		"errors":    totals.Errors,
		"total":     totals.Requests,
		"threshold": e.errorRate,
	})
	if err := e.store.CreateAlert(models.AlertEvent{
		Severity: models.SeverityCritical,
		RuleID:   RuleErrorRateSpike,
		Title:    fmt.Sprintf("error rate %.0f%% over the last hour", totals.ErrorRate*100),
		Details:  string(details),
	}); err != nil {
		log.Printf("[alert] create %s: %v", RuleErrorRateSpike, err)
		return 0
	}
	log.Printf("[alert] fired %s (%d/%d requests)", RuleErrorRateSpike, totals.Errors, totals.Requests)
	return 1
}
