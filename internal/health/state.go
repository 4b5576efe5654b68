// Package health holds the process-wide runtime health state.
// The state is rebuilt from scratch on every process start — health
// reflects current reachability, not history — and is mutated only by
// ingestion/poll attempts through the accessor methods here.
package health

import (
	"sort"
	"sync"
	"time"
)

// CheckStatus is the per-source check result.
type CheckStatus string

const (
	CheckOK          CheckStatus = "ok"
	CheckError       CheckStatus = "error"
	CheckMissing     CheckStatus = "missing"
	CheckStale       CheckStatus = "stale"
	CheckUnreachable CheckStatus = "unreachable"
	CheckUnknown     CheckStatus = "unknown"
)

// Issue codes raised by ingestion attempts.
const (
	IssueSnapshotMissing    = "snapshot_missing"
	IssueSnapshotStale      = "snapshot_stale"
	IssueDBError            = "db_error"
	IssueCoolifyUnreachable = "coolify_unreachable"
	IssueDiskPressure       = "disk_pressure"
)

// Check source names.
const (
	SourceDB       = "db"
	SourceSnapshot = "snapshot"
	SourceCoolify  = "coolify"
	SourceHost     = "host"
)

// State is the single shared runtime health instance. It supports
// concurrent reads while any ingestion task mutates it; every update is
// atomic at the granularity of one field or one set add/remove.
type State struct {
	mu            sync.RWMutex
	generatedAt   time.Time
	stale         bool
	issues        map[string]struct{}
	checks        map[string]CheckStatus
	activeSources map[string]struct{}
	lastRefreshAt time.Time
}

// New returns an empty health state with every known check unknown.
func New() *State {
	return &State{
		issues: make(map[string]struct{}),
		checks: map[string]CheckStatus{
			SourceDB:       CheckUnknown,
			SourceSnapshot: CheckUnknown,
			SourceCoolify:  CheckUnknown,
			SourceHost:     CheckUnknown,
		},
		activeSources: make(map[string]struct{}),
	}
}

// SetCheck records the latest status for one source and bumps the
// refresh time.
func (s *State) SetCheck(source string, status CheckStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[source] = status
	s.lastRefreshAt = time.Now()
}

// Check returns the latest status recorded for one source.
func (s *State) Check(source string) CheckStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.checks[source]; ok {
		return st
	}
	return CheckUnknown
}

// RaiseIssue adds an issue code to the set.
func (s *State) RaiseIssue(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[code] = struct{}{}
}

// ClearIssue removes an issue code, if present.
func (s *State) ClearIssue(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.issues, code)
}

// MarkActive records that a source contributed data this process lifetime.
func (s *State) MarkActive(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeSources[source] = struct{}{}
}

// SetGenerated records the snapshot's self-reported generation time and
// whether it is stale relative to the configured max age.
func (s *State) SetGenerated(at time.Time, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generatedAt = at
	s.stale = stale
}

// View is a point-in-time copy of the health state for reporting.
type View struct {
	Status        string                 `json:"status"`
	Checks        map[string]CheckStatus `json:"checks"`
	Issues        []string               `json:"issues"`
	ActiveSources []string               `json:"active_sources"`
	Stale         bool                   `json:"stale"`
	GeneratedAt   time.Time              `json:"generated_at"`
	LastRefreshAt time.Time              `json:"last_refresh_at"`
}

// Snapshot returns a consistent copy of the state. usableData is the
// caller-supplied "usable data" signal (non-zero workflow, agent or
// event count) feeding the composite status.
func (s *State) Snapshot(usableData bool) View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	checks := make(map[string]CheckStatus, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	issues := make([]string, 0, len(s.issues))
	for code := range s.issues {
		issues = append(issues, code)
	}
	sources := make([]string, 0, len(s.activeSources))
	for src := range s.activeSources {
		sources = append(sources, src)
	}
	sort.Strings(issues)
	sort.Strings(sources)

	return View{
		Status:        s.compositeLocked(usableData),
		Checks:        checks,
		Issues:        issues,
		ActiveSources: sources,
		Stale:         s.stale,
		GeneratedAt:   s.generatedAt,
		LastRefreshAt: s.lastRefreshAt,
	}
}

// Composite derives the single ok/degraded/error status.
func (s *State) Composite(usableData bool) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compositeLocked(usableData)
}

// compositeLocked: error if the db check failed; degraded when there is
// no usable data and either issues are present or no source has
// contributed yet; ok otherwise. Caller must hold at least a read lock.
func (s *State) compositeLocked(usableData bool) string {
	if s.checks[SourceDB] == CheckError {
		return "error"
	}
	if !usableData && (len(s.issues) > 0 || len(s.activeSources) == 0) {
		return "degraded"
	}
	return "ok"
}
