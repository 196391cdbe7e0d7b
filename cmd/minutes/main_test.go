package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/minutes/internal/deduplication"
	"github.com/steveyegge/minutes/internal/storage"
	"github.com/steveyegge/minutes/internal/types"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this title is too long", 10, "this ti..."},
		{"multi\nline   text", 20, "multi line text"},
		{"ünïcödé títle", 6, "ünï..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.in, tt.n), "truncate(%q, %d)", tt.in, tt.n)
	}
}

func TestRenderTable(t *testing.T) {
	assert.Empty(t, renderTable(nil, nil, nil))

	out := renderTable([]string{"#", "Task"}, [][]string{{"1", "Fix login bug"}, {"2"}}, []columnAlignment{alignRight})
	assert.Contains(t, out, "Fix login bug")
	assert.Contains(t, out, "#")
	assert.Less(t, strings.Index(out, "Fix login bug"), strings.LastIndex(out, "2"))
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		line     string
		wantKeep bool
		wantOK   bool
	}{
		{"y", true, true},
		{" YES ", true, true},
		{"n", false, true},
		{"No", false, true},
		{"", true, true},
		{"  ", true, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		keep, ok := parseAnswer(tt.line)
		assert.Equal(t, tt.wantKeep, keep, "keep for %q", tt.line)
		assert.Equal(t, tt.wantOK, ok, "ok for %q", tt.line)
	}
}

func TestReviewTasks(t *testing.T) {
	tasks := []types.Task{
		{Title: "Update onboarding docs"},
		{Title: "Book offsite venue"},
		{Title: "update onboarding doc"},
	}
	entries := []types.CacheEntry{
		{ExternalID: "TRK-1", Title: "Update onboarding doc"},
		{ExternalID: "TRK-3", Title: "Update the onboarding docs"},
	}
	matches := deduplication.MatchCache(tasks, entries, 0.75)
	require.NotEmpty(t, matches)

	t.Run("asks only about matched tasks", func(t *testing.T) {
		var asked []int
		kept, err := reviewTasks(tasks, entries, matches, func(index int, task types.Task, similar []trackerMatch) (bool, error) {
			asked = append(asked, index)
			require.NotEmpty(t, similar)
			assert.Equal(t, "TRK-1", similar[0].ExternalID)
			assert.Equal(t, "Update onboarding doc", similar[0].Title)
			return index == 0, nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 2}, asked)
		assert.Equal(t, []types.Task{tasks[0], tasks[1]}, kept)
	})

	t.Run("abort stops the review", func(t *testing.T) {
		kept, err := reviewTasks(tasks, entries, matches, func(int, types.Task, []trackerMatch) (bool, error) {
			return false, errReviewAborted
		})
		assert.True(t, errors.Is(err, errReviewAborted))
		assert.Nil(t, kept)
	})

	t.Run("no matches keeps everything", func(t *testing.T) {
		kept, err := reviewTasks(tasks, nil, nil, func(int, types.Task, []trackerMatch) (bool, error) {
			t.Fatal("should not ask")
			return false, nil
		})
		require.NoError(t, err)
		assert.Equal(t, tasks, kept)
	})
}

func TestNewRun(t *testing.T) {
	result := &deduplication.DeduplicationResult{
		UniqueTasks:     []types.Task{{Title: "a"}},
		TotalDuplicates: 1,
		Stats:           deduplication.Stats{OracleCalls: 1, FailedOpen: false},
	}
	run, err := newRun(types.RunDedup, "alice", 2, 1, 1, result.Stats, result)
	require.NoError(t, err)

	assert.Len(t, run.ID, 36)
	assert.Equal(t, "alice", run.UserID)
	assert.Equal(t, types.RunDedup, run.Kind)
	assert.Equal(t, 1, run.OracleCalls)
	assert.False(t, run.CreatedAt.IsZero())
	require.NoError(t, run.Validate())

	var decoded deduplication.DeduplicationResult
	require.NoError(t, json.Unmarshal(run.Details, &decoded))
	assert.Equal(t, 1, decoded.TotalDuplicates)

	other, err := newRun(types.RunDedup, "alice", 2, 1, 1, result.Stats, result)
	require.NoError(t, err)
	assert.NotEqual(t, run.ID, other.ID)
}

func TestRows(t *testing.T) {
	tasks := []types.Task{{Title: "Schedule demo call"}, {Title: "Schedule a demo call"}}
	zero := 0

	rows := dedupRows(tasks, []deduplication.DuplicateMatch{{TaskIndex: 1, DuplicateOfIndex: &zero, Reason: "same call"}})
	assert.Equal(t, [][]string{{"1", "Schedule a demo call", "0", "Schedule demo call", "same call"}}, rows)

	entries := []types.CacheEntry{{ExternalID: "TRK-7", Title: "Schedule demo call"}}
	rows = matchRows(tasks, entries, []deduplication.CacheMatch{{CandidateIndex: 1, ExternalID: "TRK-7", Similarity: 0.9}})
	assert.Equal(t, [][]string{{"1", "Schedule a demo call", "TRK-7", "Schedule demo call", "0.90"}}, rows)

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows = runRows([]*types.Run{{
		ID: "0b6f3c1e-8a7d-4f43-9a55-1c9e2b7d4f10", Kind: types.RunMerge, CreatedAt: created,
		InputCount: 4, OutputCount: 3, DuplicateCount: 1, FailedOpen: true, FailureReason: "timeout",
	}})
	require.Len(t, rows, 1)
	assert.Equal(t, "0b6f3c1e", rows[0][0])
	assert.Equal(t, "merge", rows[0][1])
	assert.Equal(t, []string{"4", "3", "1", "0", "yes: timeout"}, rows[0][3:])

	assert.Equal(t, "0, 2, 5", joinInts([]int{0, 2, 5}))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "-", formatDue(nil))
	due := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-01", formatDue(&due))

	assert.Equal(t, "just now", formatAge(10*time.Second))
	assert.Equal(t, "5m ago", formatAge(5*time.Minute))
	assert.Equal(t, "3h ago", formatAge(3*time.Hour))
	assert.Equal(t, "3d ago", formatAge(72*time.Hour))
}

// TestCommands drives the CLI end to end on batches that need no language model
func TestCommands(t *testing.T) {
	for _, key := range []string{"MINUTES_DB", "MINUTES_USER", "MINUTES_PROVIDER", "MINUTES_MODEL", "MINUTES_BASE_URL",
		"MINUTES_DEDUP_CANDIDATE_THRESHOLD", "MINUTES_DEDUP_CACHE_THRESHOLD", "MINUTES_DEDUP_PARALLEL_MIN", "MINUTES_DEDUP_TIMEOUT_SECS"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "minutes.db")
	trackerFile := filepath.Join(dir, "tracker.json")
	tasksFile := filepath.Join(dir, "tasks.yaml")
	require.NoError(t, os.WriteFile(trackerFile, []byte(`[
  {"external_id": "TRK-1", "title": "Update onboarding doc"},
  {"external_id": "TRK-2", "title": "Plan holiday party"}
]`), 0o644))
	require.NoError(t, os.WriteFile(tasksFile, []byte("- title: Book offsite venue\n- title: Email the vendor\n"), 0o644))

	execute := func(args ...string) {
		t.Helper()
		rootCmd.SetArgs(append([]string{"--config", filepath.Join(dir, "absent.yaml"), "--db", dbPath, "--user", "alice"}, args...))
		require.NoError(t, rootCmd.Execute())
	}

	execute("cache", "sync", trackerFile)
	execute("dedup", tasksFile, "--record", "--json")

	ctx := context.Background()
	store, err := storage.NewStorage(ctx, &storage.Config{Path: dbPath})
	require.NoError(t, err)
	defer store.Close()

	entries, err := store.GetSnapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []types.CacheEntry{
		{ExternalID: "TRK-1", Title: "Update onboarding doc"},
		{ExternalID: "TRK-2", Title: "Plan holiday party"},
	}, entries)

	runs, err := store.ListRuns(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.RunDedup, runs[0].Kind)
	assert.Equal(t, 2, runs[0].InputCount)
	assert.Equal(t, 2, runs[0].OutputCount)
	assert.Zero(t, runs[0].OracleCalls)
	assert.False(t, runs[0].FailedOpen)

	_, err = os.Stat(storage.SnapshotLockPath(dbPath, "alice"))
	assert.NoError(t, err, "sync leaves its lock file beside the database")
}
