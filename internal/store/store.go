// Package store manages the hubwatch database layer.
// It initializes GORM with SQLite and provides the upsert/query surface
// shared by snapshot ingestion, seed fallback, the log parser and the
// alert engine. All writers go through one *gorm.DB so SQLite sees a
// single serialized writer.
package store

import (
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/velden/hubwatch/internal/models"
)

// Store wraps the database handle. Components receive a *Store rather
// than a raw *gorm.DB so tests can run against isolated files.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path and runs AutoMigrate.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Workflow{},
		&models.Agent{},
		&models.Event{},
		&models.UsageRecord{},
		&models.ParserCursor{},
		&models.AlertEvent{},
	); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	log.Printf("[db] opened sqlite/%s", path)
	return &Store{db: db}, nil
}

// UpsertWorkflow creates or updates a workflow record by WorkflowID.
func (s *Store) UpsertWorkflow(w models.Workflow) error {
	var existing models.Workflow
	result := s.db.Where("workflow_id = ?", w.WorkflowID).First(&existing)

	if result.Error == gorm.ErrRecordNotFound {
		return s.db.Create(&w).Error
	} else if result.Error != nil {
		return result.Error
	}

	return s.db.Model(&existing).Updates(map[string]any{
		"title":             w.Title,
		"lane":              w.Lane,
		"status":            w.Status,
		"agent_session_key": w.AgentSessionKey,
		"notes":             w.Notes,
	}).Error
}

// UpsertAgent creates or updates an agent record by SessionKey.
// A zero UpdatedAt on the input defaults to the agent's LastSeen.
func (s *Store) UpsertAgent(a models.Agent) error {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.LastSeen
	}

	var existing models.Agent
	result := s.db.Where("session_key = ?", a.SessionKey).First(&existing)

	if result.Error == gorm.ErrRecordNotFound {
		return s.db.Create(&a).Error
	} else if result.Error != nil {
		return result.Error
	}

	return s.db.Model(&existing).Updates(map[string]any{
		"run_id":          a.RunID,
		"model":           a.AgentModel,
		"runtime_seconds": a.RuntimeSeconds,
		"status":          a.Status,
		"last_seen":       a.LastSeen,
		"current_task":    a.CurrentTask,
	}).Error
}

// AppendUsage persists a batch of parsed usage records.
func (s *Store) AppendUsage(records []models.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.Create(&records).Error
}

// Cursor returns the parser cursor for fileName, or a zero cursor when
// the file has never been scanned.
func (s *Store) Cursor(fileName string) (models.ParserCursor, error) {
	var cur models.ParserCursor
	err := s.db.Where("file_name = ?", fileName).First(&cur).Error
	if err == gorm.ErrRecordNotFound {
		return models.ParserCursor{FileName: fileName}, nil
	}
	return cur, err
}

// SaveCursor persists a parser cursor, creating or replacing the row
// for its file name.
func (s *Store) SaveCursor(cur models.ParserCursor) error {
	cur.UpdatedAt = time.Now()
	return s.db.Save(&cur).Error
}

// RecordEvent appends one row to the event log. Failures are returned
// but callers generally just log them — the event log is informational.
func (s *Store) RecordEvent(level, source, message, details string) error {
	return s.db.Create(&models.Event{
		Level:   level,
		Source:  source,
		Message: message,
		Details: details,
	}).Error
}
