// Package ingest implements the hubwatch ingestion subsystems: the
// session-log parser, the snapshot ingestor, the deploy-status poller,
// the seed fallback and the host stats check. Every entry point here
// converts its own failures into health-state updates or skipped units
// of work; nothing propagates an error across a scheduling boundary.
package ingest

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/velden/hubwatch/internal/models"
	"github.com/velden/hubwatch/internal/store"
)

// sessionLine is the wire format of one JSONL session-log line.
// Only lines carrying a usage block and a non-user role become records.
type sessionLine struct {
	TS         time.Time  `json:"ts"`
	Session    string     `json:"session"`
	Role       string     `json:"role"`
	Provider   string     `json:"provider"`
	Model      string     `json:"model"`
	Usage      *usageInfo `json:"usage"`
	StopReason string     `json:"stop_reason"`
	Error      string     `json:"error"`
}

type usageInfo struct {
	Input      int64 `json:"input"`
	Output     int64 `json:"output"`
	CacheRead  int64 `json:"cache_read"`
	CacheWrite int64 `json:"cache_write"`
}

// Parser performs cursor-based incremental ingestion of append-only
// session logs. Parsing is forward-only: a malformed line is skipped
// once and never revisited.
type Parser struct {
	store *store.Store
}

// NewParser returns a Parser backed by the given store.
func NewParser(st *store.Store) *Parser {
	return &Parser{store: st}
}

// ParseAll scans every *.jsonl file in sessionsDir and returns the
// number of newly ingested usage records. A file that cannot be read is
// logged and skipped; it does not abort the scan of other files.
// Calling ParseAll twice without file growth ingests nothing the second
// time and leaves every cursor unchanged.
func (p *Parser) ParseAll(sessionsDir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(sessionsDir, "*.jsonl"))
	if err != nil {
		return 0, err
	}

	total := 0
	for _, path := range paths {
		n, err := p.parseFile(path)
		if err != nil {
			log.Printf("[parser] skipping %s: %v", path, err)
			continue
		}
		total += n
	}
	return total, nil
}

// parseFile resumes from the persisted cursor, ingests qualifying lines
// and advances the cursor past every line it scanned — including blank
// and undecodable ones — so the offset never decreases.
func (p *Parser) parseFile(path string) (int, error) {
	name := filepath.Base(path)

	cur, err := p.store.Cursor(name)
	if err != nil {
		return 0, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	lines := strings.Split(string(data), "\n")

	offset := int(cur.LineOffset)
	lastIndex := offset - 1
	lastTS := cur.LastTimestamp
	scanned := false

	var records []models.UsageRecord
	for i, line := range lines {
		if i < offset {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		lastIndex = i
		scanned = true

		var entry sessionLine
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			// Forward-only: malformed lines are not fatal and not retried.
			continue
		}
		if !entry.TS.IsZero() {
			lastTS = entry.TS
		}
		if entry.Usage == nil || entry.Role == "user" {
			continue
		}

		u := entry.Usage
		records = append(records, models.UsageRecord{
			Timestamp:        entry.TS,
			AgentID:          models.DeriveAgentID(entry.Session),
			SessionID:        entry.Session,
			Provider:         entry.Provider,
			ModelName:        entry.Model,
			Role:             entry.Role,
			InputTokens:      u.Input,
			OutputTokens:     u.Output,
			CacheReadTokens:  u.CacheRead,
			CacheWriteTokens: u.CacheWrite,
			TotalTokens:      u.Input + u.Output + u.CacheRead + u.CacheWrite,
			StopReason:       entry.StopReason,
			ErrorMessage:     entry.Error,
			SourceFile:       name,
			SourceLine:       i,
		})
	}

	if err := p.store.AppendUsage(records); err != nil {
		return 0, err
	}

	if scanned || !lastTS.IsZero() {
		if err := p.store.SaveCursor(models.ParserCursor{
			FileName:      name,
			LineOffset:    int64(lastIndex + 1),
			LastTimestamp: lastTS,
		}); err != nil {
			return len(records), err
		}
	}

	if len(records) > 0 {
		log.Printf("[parser] %s: %d new records, cursor at %d", name, len(records), lastIndex+1)
	}
	return len(records), nil
}
