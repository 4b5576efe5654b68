// Package models defines GORM data models for hubwatch.
package models

import (
	"time"

	"gorm.io/gorm"
)

// WorkflowStatus is the kanban-style lifecycle state of a workflow item.
type WorkflowStatus string

const (
	WorkflowPlanned    WorkflowStatus = "planned"
	WorkflowInProgress WorkflowStatus = "in_progress"
	WorkflowBlocked    WorkflowStatus = "blocked"
	WorkflowReview     WorkflowStatus = "review"
	WorkflowDone       WorkflowStatus = "done"
)

// AgentStatus is the reported runtime state of an agent session.
type AgentStatus string

const (
	AgentActive  AgentStatus = "active"
	AgentIdle    AgentStatus = "idle"
	AgentWaiting AgentStatus = "waiting"
	AgentBlocked AgentStatus = "blocked"
	AgentDone    AgentStatus = "done"
	AgentOffline AgentStatus = "offline"
)

// Workflow is a tracked unit of work shown on the mission-control board.
// Rows arrive from snapshot ingestion or seed fallback and are upserted
// by WorkflowID; the core never deletes them.
type Workflow struct {
	gorm.Model

	// WorkflowID is the external identifier, stable across snapshots.
	WorkflowID string `gorm:"uniqueIndex;not null" json:"workflow_id"`
	Title      string `gorm:"not null" json:"title"`
	// Lane is the logical workflow / category the item belongs to.
	Lane            string         `gorm:"index;default:'general'" json:"lane"`
	Status          WorkflowStatus `gorm:"index;default:'planned'" json:"status"`
	AgentSessionKey string         `gorm:"index" json:"agent_session_key"`
	Notes           string         `json:"notes"`
}

// Agent is a live (or recently seen) agent session. SessionKey is the
// upsert key; deploy-status polling writes rows keyed "deploy:<name>".
type Agent struct {
	gorm.Model

	SessionKey     string      `gorm:"uniqueIndex;not null" json:"session_key"`
	RunID          string      `json:"run_id"`
	AgentModel     string      `gorm:"column:model" json:"model"`
	RuntimeSeconds float64     `json:"runtime_seconds"`
	Status         AgentStatus `gorm:"index;default:'offline'" json:"status"`
	LastSeen       time.Time   `json:"last_seen"`
	CurrentTask    string      `json:"current_task"`
}

// Event is one row of the append-only ingestion/health event log.
type Event struct {
	gorm.Model

	Level   string `gorm:"index;size:16" json:"level"` // info | warning | error
	Source  string `gorm:"index;size:32" json:"source"`
	Message string `json:"message"`
	Details string `gorm:"type:text" json:"details,omitempty"`
}
