package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// RunKind identifies which engine operation a recorded run performed
type RunKind string

const (
	RunDedup      RunKind = "dedup"
	RunMerge      RunKind = "merge"
	RunCacheMatch RunKind = "cache_match"
)

// IsValid checks if the run kind value is valid
func (k RunKind) IsValid() bool {
	switch k {
	case RunDedup, RunMerge, RunCacheMatch:
		return true
	}
	return false
}

// Run is the orchestrator's record of one pipeline invocation. The engine itself
// keeps no state; runs exist so a reviewer can see what was dropped and why.
type Run struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Kind           RunKind         `json:"kind"`
	InputCount     int             `json:"input_count"`
	OutputCount    int             `json:"output_count"`
	DuplicateCount int             `json:"duplicate_count"` // duplicates dropped, tasks merged away, or cache matches
	OracleCalls    int             `json:"oracle_calls"`
	FailedOpen     bool            `json:"failed_open"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"` // engine result as JSON
	CreatedAt      time.Time       `json:"created_at"`
}

// Validate checks if the run has valid field values
func (r *Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if r.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if !r.Kind.IsValid() {
		return fmt.Errorf("invalid run kind: %q", r.Kind)
	}
	if r.InputCount < 0 || r.OutputCount < 0 || r.DuplicateCount < 0 || r.OracleCalls < 0 {
		return fmt.Errorf("run counts cannot be negative")
	}
	if len(r.Details) > 0 && !json.Valid(r.Details) {
		return fmt.Errorf("run details must be valid JSON")
	}
	return nil
}

// SnapshotInfo describes a user's cached tracker snapshot
type SnapshotInfo struct {
	UserID     string    `json:"user_id"`
	EntryCount int       `json:"entry_count"`
	SyncedAt   time.Time `json:"synced_at"`
}
