// Package models defines GORM data models for hubwatch.
package models

import "gorm.io/gorm"

// AlertSeverity grades an alert event.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus is the lifecycle state of an alert event.
// Transitions: open → acked, open → resolved, acked → resolved.
// Alerts are never auto-resolved by re-evaluation.
type AlertStatus string

const (
	AlertOpen     AlertStatus = "open"
	AlertAcked    AlertStatus = "acked"
	AlertResolved AlertStatus = "resolved"
)

// AlertEvent is one recorded rule violation. The dedup index is
// RuleID + CreatedAt: the engine suppresses a second alert for the same
// rule while a non-resolved one exists inside the rule's time bucket.
type AlertEvent struct {
	gorm.Model

	Severity AlertSeverity `gorm:"size:16;not null" json:"severity"`
	RuleID   string        `gorm:"index;not null" json:"rule_id"`
	Title    string        `json:"title"`
	// Details holds rule-specific context as a JSON object string.
	Details string      `gorm:"type:text" json:"details"`
	Status  AlertStatus `gorm:"index;default:'open'" json:"status"`
}
