package ingest

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/velden/hubwatch/internal/health"
	"github.com/velden/hubwatch/internal/models"
	"github.com/velden/hubwatch/internal/store"
)

// snapshotDoc is the JSON document produced by the agent runner.
type snapshotDoc struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Workflows   []snapshotWorkflow `json:"workflows"`
	Agents      []snapshotAgent    `json:"agents"`
}

type snapshotWorkflow struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Lane   string `json:"lane"`
	Status string `json:"status"`
	Agent  string `json:"agent"`
	Notes  string `json:"notes"`
}

type snapshotAgent struct {
	SessionKey     string    `json:"session_key"`
	RunID          string    `json:"run_id"`
	Model          string    `json:"model"`
	RuntimeSeconds float64   `json:"runtime_seconds"`
	Status         string    `json:"status"`
	LastSeen       time.Time `json:"last_seen"`
	CurrentTask    string    `json:"current_task"`
}

// SnapshotIngestor loads the workflow/agent snapshot file, upserts its
// contents and maintains the snapshot/db health checks.
type SnapshotIngestor struct {
	store  *store.Store
	state  *health.State
	path   string
	maxAge time.Duration
}

// NewSnapshotIngestor wires a snapshot ingestor for the given file path
// and staleness threshold.
func NewSnapshotIngestor(st *store.Store, hs *health.State, path string, maxAge time.Duration) *SnapshotIngestor {
	return &SnapshotIngestor{store: st, state: hs, path: path, maxAge: maxAge}
}

// Ingest runs one snapshot ingestion attempt. A missing file leaves the
// stored data authoritative and only flags the health state; any other
// failure is treated as transient and retried unconditionally on the
// next poll tick.
func (si *SnapshotIngestor) Ingest() {
	data, err := os.ReadFile(si.path)
	if err != nil {
		if os.IsNotExist(err) {
			si.state.SetCheck(health.SourceSnapshot, health.CheckMissing)
			si.state.RaiseIssue(health.IssueSnapshotMissing)
			if err := si.store.RecordEvent("warning", "snapshot", "snapshot file missing", si.path); err != nil {
				log.Printf("[snapshot] event write failed: %v", err)
			}
			return
		}
		si.fail(fmt.Errorf("reading snapshot: %w", err))
		return
	}

	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		si.fail(fmt.Errorf("decoding snapshot: %w", err))
		return
	}

	for _, w := range doc.Workflows {
		wf := models.Workflow{
			WorkflowID:      w.ID,
			Title:           w.Title,
			Lane:            w.Lane,
			Status:          models.WorkflowStatus(w.Status),
			AgentSessionKey: w.Agent,
			Notes:           w.Notes,
		}
		if err := si.store.UpsertWorkflow(wf); err != nil {
			si.fail(fmt.Errorf("upserting workflow %s: %w", w.ID, err))
			return
		}
	}

	for _, a := range doc.Agents {
		ag := models.Agent{
			SessionKey:     a.SessionKey,
			RunID:          a.RunID,
			AgentModel:     a.Model,
			RuntimeSeconds: a.RuntimeSeconds,
			Status:         models.AgentStatus(a.Status),
			LastSeen:       a.LastSeen,
			CurrentTask:    a.CurrentTask,
		}
		if err := si.store.UpsertAgent(ag); err != nil {
			si.fail(fmt.Errorf("upserting agent %s: %w", a.SessionKey, err))
			return
		}
	}

	stale := !doc.GeneratedAt.IsZero() && time.Since(doc.GeneratedAt) > si.maxAge
	if stale {
		si.state.SetCheck(health.SourceSnapshot, health.CheckStale)
		si.state.RaiseIssue(health.IssueSnapshotStale)
	} else {
		si.state.SetCheck(health.SourceSnapshot, health.CheckOK)
		si.state.ClearIssue(health.IssueSnapshotStale)
	}
	si.state.ClearIssue(health.IssueSnapshotMissing)
	si.state.ClearIssue(health.IssueDBError)
	si.state.SetCheck(health.SourceDB, health.CheckOK)
	si.state.SetGenerated(doc.GeneratedAt, stale)
	si.state.MarkActive(health.SourceSnapshot)

	log.Printf("[snapshot] ingested %d workflows, %d agents (stale=%v)",
		len(doc.Workflows), len(doc.Agents), stale)
}

// fail records a transient snapshot/storage fault in the health state
// and the event log.
func (si *SnapshotIngestor) fail(err error) {
	log.Printf("[snapshot] %v", err)
	si.state.SetCheck(health.SourceDB, health.CheckError)
	si.state.RaiseIssue(health.IssueDBError)
	if werr := si.store.RecordEvent("error", "snapshot", "snapshot ingestion failed", err.Error()); werr != nil {
		log.Printf("[snapshot] event write failed: %v", werr)
	}
}
