// Package models defines GORM data models for hubwatch.
package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// UsageRecord is one completed model invocation extracted from a session
// log line. Records are append-only: created once by the parser, never
// updated. SourceFile + SourceLine give provenance for deduplication.
type UsageRecord struct {
	gorm.Model

	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	// AgentID is derived from the session key ("agent:main:abc" → "agent:main").
	AgentID   string `gorm:"index" json:"agent_id"`
	SessionID string `gorm:"index" json:"session_id"`
	Provider  string `gorm:"index" json:"provider"`
	// ModelName uses an explicit column to avoid clashing with gorm.Model.
	ModelName string `gorm:"column:model;index" json:"model"`
	Role      string `gorm:"size:16" json:"role"`

	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens"`
	CacheWriteTokens int64 `json:"cache_write_tokens"`
	TotalTokens      int64 `json:"total_tokens"`

	StopReason   string `json:"stop_reason"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	SourceFile string `gorm:"index" json:"source_file"`
	SourceLine int    `json:"source_line"`
}

// ParserCursor is the per-file resumption point for incremental log
// parsing: the count of lines already scanned plus the last timestamp
// seen. LineOffset is monotonically non-decreasing per file.
type ParserCursor struct {
	FileName      string    `gorm:"primaryKey;size:512" json:"file_name"`
	LineOffset    int64     `gorm:"default:0" json:"line_offset"`
	LastTimestamp time.Time `json:"last_timestamp"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (ParserCursor) TableName() string {
	return "parser_cursors"
}

// DeriveAgentID reduces a session key to its agent identifier: the first
// two colon-delimited segments when the key is "agent:"-prefixed,
// otherwise the raw key unchanged.
func DeriveAgentID(sessionKey string) string {
	if strings.HasPrefix(sessionKey, "agent:") {
		parts := strings.SplitN(sessionKey, ":", 3)
		if len(parts) >= 2 {
			return parts[0] + ":" + parts[1]
		}
	}
	return sessionKey
}
