package store

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/velden/hubwatch/internal/models"
)

// Counts returns the workflow, agent and event row counts.
func (s *Store) Counts() (workflows, agents, events int64, err error) {
	if err = s.db.Model(&models.Workflow{}).Count(&workflows).Error; err != nil {
		return
	}
	if err = s.db.Model(&models.Agent{}).Count(&agents).Error; err != nil {
		return
	}
	err = s.db.Model(&models.Event{}).Count(&events).Error
	return
}

// HasUsableData reports whether any workflow, agent or event exists.
// This is the "usable data" input to the composite health status.
func (s *Store) HasUsableData() bool {
	w, a, e, err := s.Counts()
	if err != nil {
		return false
	}
	return w > 0 || a > 0 || e > 0
}

// RecordsInWindow returns all usage records with Timestamp in [start, end).
func (s *Store) RecordsInWindow(start, end time.Time) ([]models.UsageRecord, error) {
	var records []models.UsageRecord
	err := s.db.
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Order("timestamp asc").
		Find(&records).Error
	return records, err
}

// Workflows returns all workflow rows, most recently updated first.
func (s *Store) Workflows() ([]models.Workflow, error) {
	var ws []models.Workflow
	err := s.db.Order("updated_at desc").Find(&ws).Error
	return ws, err
}

// Agents returns all agent rows, most recently seen first.
func (s *Store) Agents() ([]models.Agent, error) {
	var as []models.Agent
	err := s.db.Order("last_seen desc").Find(&as).Error
	return as, err
}

// OpenAlertExists reports whether a non-resolved alert for ruleID was
// created at or after since. This is the alert dedup presence check:
// scope is "not resolved AND created within the window", so an alert
// can recur once its window rolls over even if never acknowledged.
func (s *Store) OpenAlertExists(ruleID string, since time.Time) (bool, error) {
	var n int64
	err := s.db.Model(&models.AlertEvent{}).
		Where("rule_id = ? AND status <> ? AND created_at >= ?", ruleID, models.AlertResolved, since).
		Count(&n).Error
	return n > 0, err
}

// CreateAlert persists a new alert event.
func (s *Store) CreateAlert(a models.AlertEvent) error {
	return s.db.Create(&a).Error
}

// Alerts returns alert events, newest first, optionally filtered by
// status. limit <= 0 defaults to 50.
func (s *Store) Alerts(status models.AlertStatus, limit int) ([]models.AlertEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.Model(&models.AlertEvent{}).Order("created_at desc").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var alerts []models.AlertEvent
	err := q.Find(&alerts).Error
	return alerts, err
}

// UpdateAlertStatus applies an ack or resolve action to an alert.
// Resolved alerts are terminal; acked alerts may still be resolved.
func (s *Store) UpdateAlertStatus(id uint, action string) error {
	var alert models.AlertEvent
	if err := s.db.First(&alert, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("alert %d not found", id)
		}
		return err
	}

	var next models.AlertStatus
	switch action {
	case "ack":
		next = models.AlertAcked
	case "resolve":
		next = models.AlertResolved
	default:
		return fmt.Errorf("unknown alert action %q (use 'ack' or 'resolve')", action)
	}

	if alert.Status == models.AlertResolved {
		return fmt.Errorf("alert %d is already resolved", id)
	}
	if alert.Status == models.AlertAcked && next == models.AlertAcked {
		return nil
	}

	return s.db.Model(&alert).Update("status", next).Error
}

// Events returns the newest event-log rows, newest first.
func (s *Store) Events(limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []models.Event
	err := s.db.Order("created_at desc").Limit(limit).Find(&events).Error
	return events, err
}
