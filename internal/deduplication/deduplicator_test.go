package deduplication

import (
	"strings"
	"testing"

	"github.com/steveyegge/minutes/internal/types"
)

// TestDeduplicationResultStatsValidation covers the stats cross-checks on results
func TestDeduplicationResultStatsValidation(t *testing.T) {
	tasks := []types.Task{{Title: "Schedule demo call"}, {Title: "Send follow-up email"}}

	tests := []struct {
		name        string
		result      DeduplicationResult
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid result with all unique",
			result: DeduplicationResult{
				UniqueTasks: tasks,
				Stats:       Stats{TotalTasks: 2},
			},
			expectError: false,
		},
		{
			name: "valid result with one duplicate",
			result: DeduplicationResult{
				Duplicates:      []DuplicateMatch{{TaskIndex: 2, DuplicateOfIndex: intPtr(0), Reason: "same call"}},
				UniqueTasks:     tasks,
				TotalDuplicates: 1,
				CandidatePairs:  []types.CandidatePair{{IndexA: 0, IndexB: 2}},
				Stats:           Stats{TotalTasks: 3, CandidateCount: 1, OracleCalls: 1},
			},
			expectError: false,
		},
		{
			name: "total tasks mismatch",
			result: DeduplicationResult{
				UniqueTasks: tasks,
				Stats:       Stats{TotalTasks: 3},
			},
			expectError: true,
			errorMsg:    "stats.total_tasks",
		},
		{
			name: "candidate count mismatch",
			result: DeduplicationResult{
				UniqueTasks:    tasks,
				CandidatePairs: []types.CandidatePair{{IndexA: 0, IndexB: 1}},
				Stats:          Stats{TotalTasks: 2},
			},
			expectError: true,
			errorMsg:    "stats.candidate_count",
		},
		{
			name: "more than one oracle call",
			result: DeduplicationResult{
				UniqueTasks: tasks,
				Stats:       Stats{TotalTasks: 2, OracleCalls: 2},
			},
			expectError: true,
			errorMsg:    "oracle_calls",
		},
		{
			name: "failed open with duplicates",
			result: DeduplicationResult{
				Duplicates:      []DuplicateMatch{{TaskIndex: 2, DuplicateOfIndex: intPtr(0), Reason: "same call"}},
				UniqueTasks:     tasks,
				TotalDuplicates: 1,
				Stats:           Stats{TotalTasks: 3, FailedOpen: true},
			},
			expectError: true,
			errorMsg:    "failed-open",
		},
		{
			name: "index reported twice",
			result: DeduplicationResult{
				Duplicates: []DuplicateMatch{
					{TaskIndex: 2, DuplicateOfIndex: intPtr(0), Reason: "a"},
					{TaskIndex: 2, DuplicateOfIndex: intPtr(1), Reason: "b"},
				},
				UniqueTasks:     []types.Task{{Title: "x"}, {Title: "y"}},
				TotalDuplicates: 2,
				Stats:           Stats{TotalTasks: 4},
			},
			expectError: true,
			errorMsg:    "more than once",
		},
		{
			name: "missing duplicate_of_index",
			result: DeduplicationResult{
				Duplicates:      []DuplicateMatch{{TaskIndex: 1, Reason: "a"}},
				UniqueTasks:     []types.Task{{Title: "x"}},
				TotalDuplicates: 1,
				Stats:           Stats{TotalTasks: 2},
			},
			expectError: true,
			errorMsg:    "no duplicate_of_index",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error containing %q, got nil", tt.errorMsg)
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestMergeResultValidation(t *testing.T) {
	merged := types.Task{Title: "Fix login bug", Priority: types.PriorityUrgent}
	other := types.Task{Title: "Plan Q3 offsite", Priority: types.PriorityLow}

	tests := []struct {
		name        string
		result      MergeResult
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid unmerged",
			result: MergeResult{
				Tasks:   []types.Task{merged, other},
				Sources: []string{"standup", "retro"},
				Stats:   Stats{TotalTasks: 2},
			},
			expectError: false,
		},
		{
			name: "valid merge",
			result: MergeResult{
				Tasks:   []types.Task{merged, other},
				Sources: []string{"standup, retro", "retro"},
				Groups:  []MergeGroup{{PrimaryIndex: 0, MergedIndices: []int{0, 2}, MergedTask: merged}},
				Stats:   Stats{TotalTasks: 3},
			},
			expectError: false,
		},
		{
			name: "sources length mismatch",
			result: MergeResult{
				Tasks:   []types.Task{merged},
				Sources: []string{"standup", "retro"},
				Stats:   Stats{TotalTasks: 1},
			},
			expectError: true,
			errorMsg:    "sources length",
		},
		{
			name: "failed open with groups",
			result: MergeResult{
				Tasks:   []types.Task{merged},
				Sources: []string{"standup, retro"},
				Groups:  []MergeGroup{{PrimaryIndex: 0, MergedIndices: []int{0, 1}}},
				Stats:   Stats{TotalTasks: 2, FailedOpen: true},
			},
			expectError: true,
			errorMsg:    "failed-open",
		},
		{
			name: "singleton group",
			result: MergeResult{
				Tasks:   []types.Task{merged},
				Sources: []string{"standup"},
				Groups:  []MergeGroup{{PrimaryIndex: 0, MergedIndices: []int{0}}},
				Stats:   Stats{TotalTasks: 1},
			},
			expectError: true,
			errorMsg:    "fewer than two",
		},
		{
			name: "overlapping groups",
			result: MergeResult{
				Tasks:   []types.Task{merged},
				Sources: []string{"a"},
				Groups: []MergeGroup{
					{PrimaryIndex: 0, MergedIndices: []int{0, 1}},
					{PrimaryIndex: 1, MergedIndices: []int{1, 2}},
				},
				Stats: Stats{TotalTasks: 3},
			},
			expectError: true,
			errorMsg:    "more than one merge group",
		},
		{
			name: "index out of range",
			result: MergeResult{
				Tasks:   []types.Task{merged},
				Sources: []string{"a"},
				Groups:  []MergeGroup{{PrimaryIndex: 0, MergedIndices: []int{0, 5}}},
				Stats:   Stats{TotalTasks: 2},
			},
			expectError: true,
			errorMsg:    "invalid index",
		},
		{
			name: "primary is not lowest member",
			result: MergeResult{
				Tasks:   []types.Task{merged},
				Sources: []string{"a"},
				Groups:  []MergeGroup{{PrimaryIndex: 1, MergedIndices: []int{0, 1}}},
				Stats:   Stats{TotalTasks: 2},
			},
			expectError: true,
			errorMsg:    "not its lowest member",
		},
		{
			name: "indices out of order",
			result: MergeResult{
				Tasks:   []types.Task{merged},
				Sources: []string{"a"},
				Groups:  []MergeGroup{{PrimaryIndex: 1, MergedIndices: []int{1, 0}}},
				Stats:   Stats{TotalTasks: 2},
			},
			expectError: true,
			errorMsg:    "strictly increasing",
		},
		{
			name: "task count ignores merge",
			result: MergeResult{
				Tasks:   []types.Task{merged, other, other},
				Sources: []string{"a", "b", "c"},
				Groups:  []MergeGroup{{PrimaryIndex: 0, MergedIndices: []int{0, 2}}},
				Stats:   Stats{TotalTasks: 3},
			},
			expectError: true,
			errorMsg:    "total minus merged",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error containing %q, got nil", tt.errorMsg)
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
