package deduplication

import (
	"fmt"

	"github.com/steveyegge/minutes/internal/types"
)

// DuplicateMatch records that the task at TaskIndex repeats an earlier task in the batch.
//
// After engine processing DuplicateOfIndex is always set, always lower than TaskIndex,
// and always names a canonical task (one that is not itself a duplicate).
type DuplicateMatch struct {
	TaskIndex        int    `json:"task_index"`
	DuplicateOfIndex *int   `json:"duplicate_of_index"`
	Reason           string `json:"reason"`
}

// DeduplicationResult represents the result of within-batch deduplication
type DeduplicationResult struct {
	// Duplicates lists every task dropped as a repeat, sorted by TaskIndex
	Duplicates []DuplicateMatch `json:"duplicates"`

	// UniqueTasks are the tasks to create, in their original order
	UniqueTasks []types.Task `json:"unique_tasks"`

	// TotalDuplicates always equals len(Duplicates)
	TotalDuplicates int `json:"total_duplicates"`

	// CandidatePairs are the lexical pairs that were sent for semantic review
	CandidatePairs []types.CandidatePair `json:"candidate_pairs"`

	// Statistics about the deduplication process
	Stats Stats `json:"stats"`
}

// Stats provides metrics about one engine operation
type Stats struct {
	// TotalTasks is the number of tasks in the input (flattened for merges)
	TotalTasks int `json:"total_tasks"`

	// ComparisonsMade is the number of pairwise title comparisons
	ComparisonsMade int `json:"comparisons_made"`

	// CandidateCount is the number of pairs above the lexical threshold
	CandidateCount int `json:"candidate_count"`

	// OracleCalls is the number of language-model requests made (0 or 1)
	OracleCalls int `json:"oracle_calls"`

	// FailedOpen is true when the oracle failed and the input passed through unchanged
	FailedOpen bool `json:"failed_open"`

	// FailureReason is the oracle error when FailedOpen is set
	FailureReason string `json:"failure_reason,omitempty"`

	// ProcessingTimeMs is the wall time of the operation in milliseconds
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// Validate checks if the deduplication result has valid values
func (r *DeduplicationResult) Validate() error {
	if r.TotalDuplicates != len(r.Duplicates) {
		return fmt.Errorf("total_duplicates (%d) does not match duplicates length (%d)",
			r.TotalDuplicates, len(r.Duplicates))
	}

	total := len(r.UniqueTasks) + len(r.Duplicates)
	if r.Stats.TotalTasks != total {
		return fmt.Errorf("stats.total_tasks (%d) does not match unique + duplicates (%d)",
			r.Stats.TotalTasks, total)
	}
	if r.Stats.CandidateCount != len(r.CandidatePairs) {
		return fmt.Errorf("stats.candidate_count (%d) does not match candidate_pairs length (%d)",
			r.Stats.CandidateCount, len(r.CandidatePairs))
	}
	if r.Stats.OracleCalls < 0 || r.Stats.OracleCalls > 1 {
		return fmt.Errorf("stats.oracle_calls must be 0 or 1 (got %d)", r.Stats.OracleCalls)
	}
	if r.Stats.FailedOpen && len(r.Duplicates) > 0 {
		return fmt.Errorf("failed-open result cannot report duplicates (got %d)", len(r.Duplicates))
	}

	duplicates := make(map[int]bool, len(r.Duplicates))
	for _, d := range r.Duplicates {
		if d.TaskIndex < 0 || d.TaskIndex >= total {
			return fmt.Errorf("duplicate has invalid task index %d (total: %d)", d.TaskIndex, total)
		}
		if duplicates[d.TaskIndex] {
			return fmt.Errorf("task index %d reported as duplicate more than once", d.TaskIndex)
		}
		duplicates[d.TaskIndex] = true

		if d.DuplicateOfIndex == nil {
			return fmt.Errorf("duplicate at index %d has no duplicate_of_index", d.TaskIndex)
		}
		if *d.DuplicateOfIndex < 0 || *d.DuplicateOfIndex >= d.TaskIndex {
			return fmt.Errorf("duplicate index %d must point at a lower index (got %d)",
				d.TaskIndex, *d.DuplicateOfIndex)
		}
		if d.Reason == "" {
			return fmt.Errorf("duplicate at index %d has no reason", d.TaskIndex)
		}
	}

	// Canonical targets are never duplicates themselves
	for _, d := range r.Duplicates {
		if duplicates[*d.DuplicateOfIndex] {
			return fmt.Errorf("duplicate index %d points at %d, which is itself a duplicate",
				d.TaskIndex, *d.DuplicateOfIndex)
		}
	}

	return nil
}

// CacheMatch is an advisory match between a batch task and an item already in the tracker
type CacheMatch struct {
	CandidateIndex int     `json:"candidate_index"`
	ExternalID     string  `json:"external_id"`
	Similarity     float64 `json:"similarity"`
}

// MergeGroup is a set of flattened indices consolidated into one task.
// PrimaryIndex is the lowest member and is where MergedTask appears in the output.
type MergeGroup struct {
	PrimaryIndex  int        `json:"primary_index"`
	MergedIndices []int      `json:"merged_indices"`
	MergedTask    types.Task `json:"merged_task"`
	Sources       []string   `json:"sources"`
	Reason        string     `json:"reason,omitempty"`
}

// MergeResult represents the result of consolidating several labeled batches
type MergeResult struct {
	// Tasks is the consolidated list in flattened order
	Tasks []types.Task `json:"tasks"`

	// Sources holds the batch label of each entry in Tasks; merged tasks carry the
	// distinct labels of their members joined with ", "
	Sources []string `json:"sources"`

	// Groups lists the applied merges, ordered by PrimaryIndex
	Groups []MergeGroup `json:"groups"`

	// CandidatePairs are the lexical pairs over the flattened list
	CandidatePairs []types.CandidatePair `json:"candidate_pairs"`

	Stats Stats `json:"stats"`
}

// Validate checks if the merge result has valid values
func (r *MergeResult) Validate() error {
	if len(r.Tasks) != len(r.Sources) {
		return fmt.Errorf("tasks length (%d) does not match sources length (%d)", len(r.Tasks), len(r.Sources))
	}
	if r.Stats.FailedOpen && len(r.Groups) > 0 {
		return fmt.Errorf("failed-open result cannot report merge groups (got %d)", len(r.Groups))
	}

	absorbed := 0
	claimed := make(map[int]bool)
	for _, g := range r.Groups {
		if len(g.MergedIndices) < 2 {
			return fmt.Errorf("merge group at %d has fewer than two members", g.PrimaryIndex)
		}
		for i, idx := range g.MergedIndices {
			if idx < 0 || idx >= r.Stats.TotalTasks {
				return fmt.Errorf("merge group at %d has invalid index %d (total: %d)",
					g.PrimaryIndex, idx, r.Stats.TotalTasks)
			}
			if claimed[idx] {
				return fmt.Errorf("index %d appears in more than one merge group", idx)
			}
			claimed[idx] = true
			if i > 0 && idx <= g.MergedIndices[i-1] {
				return fmt.Errorf("merge group at %d indices are not strictly increasing", g.PrimaryIndex)
			}
		}
		if g.PrimaryIndex != g.MergedIndices[0] {
			return fmt.Errorf("merge group primary %d is not its lowest member %d",
				g.PrimaryIndex, g.MergedIndices[0])
		}
		absorbed += len(g.MergedIndices) - 1
	}

	if want := r.Stats.TotalTasks - absorbed; len(r.Tasks) != want {
		return fmt.Errorf("tasks length (%d) does not match total minus merged (%d)", len(r.Tasks), want)
	}
	return nil
}
