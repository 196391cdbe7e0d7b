package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/minutes/internal/types"
)

var sampleTasks = []types.Task{
	{Title: "Schedule demo call", Description: "With the Acme team", Priority: types.PriorityHigh},
	{Title: "Schedule a demo call", Description: "Acme wants a demo\nnext week", Priority: types.PriorityNormal},
	{Title: "Update pricing page", Priority: types.PriorityLow},
}

var samplePairs = []types.CandidatePair{{IndexA: 0, IndexB: 1}}

func TestConfirmDuplicates_NoPairsNoCall(t *testing.T) {
	fc := &fakeCompleter{}
	sup := newTestSupervisor(t, fc)

	verdicts, err := sup.ConfirmDuplicates(context.Background(), sampleTasks, nil)
	require.NoError(t, err)
	assert.Nil(t, verdicts)

	verdicts, err = sup.ConfirmDuplicates(context.Background(), nil, samplePairs)
	require.NoError(t, err)
	assert.Nil(t, verdicts)
	assert.Equal(t, 0, fc.calls())
}

func TestConfirmDuplicates_Parsing(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantErr   bool
		wantCount int
	}{
		{
			name:      "plain",
			response:  `{"duplicates": [{"task_index": 1, "duplicate_of_index": 0, "reason": "same call"}]}`,
			wantCount: 1,
		},
		{
			name:      "fenced with null entry",
			response:  "```json\n{\"duplicates\": [{\"task_index\": 0, \"duplicate_of_index\": null, \"reason\": \"\"}, {\"task_index\": 1, \"duplicate_of_index\": 0, \"reason\": \"same\"}]}\n```",
			wantCount: 2,
		},
		{
			name:      "empty list",
			response:  `{"duplicates": []}`,
			wantCount: 0,
		},
		{
			name:      "bad entries skipped",
			response:  `{"duplicates": [{"task_index": "one"}, {"task_index": 1, "duplicate_of_index": 0}]}`,
			wantCount: 1,
		},
		{
			name:      "payload followed by prose with braces",
			response:  "{\"duplicates\":[{\"task_index\":1,\"duplicate_of_index\":0,\"reason\":\"same email\"}]}\n\nNote: I left task {2} alone since it is about {billing}.",
			wantCount: 1,
		},
		{
			name:      "bracketed indices before payload",
			response:  "Tasks [0] and [1] match:\n{\"duplicates\": [{\"task_index\": 1, \"duplicate_of_index\": 0}]}",
			wantCount: 1,
		},
		{name: "prose", response: "These look like duplicates to me.", wantErr: true},
		{name: "missing field", response: `{"verdicts": []}`, wantErr: true},
		{name: "field not a list", response: `{"duplicates": {"task_index": 1}}`, wantErr: true},
		{name: "null field", response: `{"duplicates": null}`, wantErr: true},
		{name: "empty response", response: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCompleter{responses: []string{tt.response}}
			sup := newTestSupervisor(t, fc)

			verdicts, err := sup.ConfirmDuplicates(context.Background(), sampleTasks, samplePairs)
			assert.Equal(t, 1, fc.calls())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Len(t, verdicts, tt.wantCount)
		})
	}
}

func TestConfirmDuplicates_TransportError(t *testing.T) {
	boom := errors.New("connection reset by peer")
	fc := &fakeCompleter{err: boom}
	sup := newTestSupervisor(t, fc)

	_, err := sup.ConfirmDuplicates(context.Background(), sampleTasks, samplePairs)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrMalformedResponse)
}

func TestBuildDuplicateConfirmationPrompt(t *testing.T) {
	prompt := buildDuplicateConfirmationPrompt(sampleTasks, samplePairs)

	assert.Contains(t, prompt, "[0] Title: Schedule demo call")
	assert.Contains(t, prompt, "[1] Title: Schedule a demo call")
	assert.Contains(t, prompt, "Priority: high")
	assert.Contains(t, prompt, "Description: Acme wants a demo next week")
	assert.Contains(t, prompt, "- [0] and [1]")
	assert.Contains(t, prompt, `"duplicate_of_index"`)
}

func TestConsolidateDuplicates(t *testing.T) {
	tasks := []types.SourcedTask{
		{Source: "standup", Task: types.Task{Title: "Fix login bug", Priority: types.PriorityHigh}},
		{Source: "retro", Task: types.Task{Title: "Fix the login bug", Priority: types.PriorityUrgent}},
	}

	t.Run("no pairs no call", func(t *testing.T) {
		fc := &fakeCompleter{}
		sup := newTestSupervisor(t, fc)
		proposals, err := sup.ConsolidateDuplicates(context.Background(), tasks, nil)
		require.NoError(t, err)
		assert.Nil(t, proposals)
		assert.Equal(t, 0, fc.calls())
	})

	t.Run("parses groups", func(t *testing.T) {
		fc := &fakeCompleter{responses: []string{`Sure!
{"groups": [{"indices": [0, 1], "merged_task": {"title": "Fix login bug", "description": "Raised in standup and retro", "priority": "urgent"}, "reason": "same bug"}]}`}}
		sup := newTestSupervisor(t, fc)

		proposals, err := sup.ConsolidateDuplicates(context.Background(), tasks, samplePairs)
		require.NoError(t, err)
		require.Len(t, proposals, 1)
		assert.Equal(t, []int{0, 1}, proposals[0].Indices)
		assert.Equal(t, "Fix login bug", proposals[0].MergedTask.Title)
		assert.Equal(t, "urgent", proposals[0].MergedTask.Priority)
		assert.Equal(t, "same bug", proposals[0].Reason)

		require.Len(t, fc.prompts, 1)
		assert.Contains(t, fc.prompts[0], "[1] Source: retro")
		assert.Contains(t, fc.prompts[0], "- [0] and [1]")
	})

	t.Run("malformed", func(t *testing.T) {
		fc := &fakeCompleter{responses: []string{`{"merged": []}`}}
		sup := newTestSupervisor(t, fc)
		_, err := sup.ConsolidateDuplicates(context.Background(), tasks, samplePairs)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}
