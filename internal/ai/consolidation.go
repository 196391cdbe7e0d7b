package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/steveyegge/minutes/internal/types"
)

// MergeProposal is one duplicate group the model wants consolidated, with the
// task it synthesized to replace the group.
type MergeProposal struct {
	Indices    []int        `json:"indices"`
	MergedTask ProposedTask `json:"merged_task"`
	Reason     string       `json:"reason"`
}

// ProposedTask is the model's consolidated task. Priority is free text and is
// validated by the caller.
type ProposedTask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

type consolidationResponse struct {
	Groups json.RawMessage `json:"groups"`
}

// ConsolidateDuplicates asks the model to group duplicate tasks drawn from several
// source batches and to write one consolidated task per group.
//
// Returns an error wrapping ErrMalformedResponse when the response has no usable
// "groups" list. Callers are expected to fail open on any error.
func (s *Supervisor) ConsolidateDuplicates(ctx context.Context, tasks []types.SourcedTask, pairs []types.CandidatePair) ([]MergeProposal, error) {
	if len(tasks) == 0 || len(pairs) == 0 {
		return nil, nil
	}

	prompt := buildConsolidationPrompt(tasks, pairs)

	// Merged descriptions are longer than verdicts
	maxTokens := clampTokens(len(pairs)*300+600, 1500, 8000)

	responseText, err := s.CallAI(ctx, prompt, "merge_consolidation", maxTokens)
	if err != nil {
		return nil, err
	}

	parseResult := Parse[consolidationResponse](responseText, ParseOptions{
		Context: "merge consolidation response",
		Logger:  s.logger,
	})
	if !parseResult.Success {
		return nil, fmt.Errorf("%w: %s (response tail: %s)",
			ErrMalformedResponse, parseResult.Error, truncateTail(responseText, 200))
	}
	if !IsJSONList(parseResult.Data.Groups) {
		return nil, fmt.Errorf("%w: \"groups\" field missing or not a list", ErrMalformedResponse)
	}

	proposals, skipped, err := DecodeList[MergeProposal](parseResult.Data.Groups)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if skipped > 0 {
		s.logger.Debug("ai: skipped undecodable merge groups", "skipped", skipped)
	}
	return proposals, nil
}

// buildConsolidationPrompt lists every sourced task and the candidate pairs
func buildConsolidationPrompt(tasks []types.SourcedTask, pairs []types.CandidatePair) string {
	var b strings.Builder

	b.WriteString(`You are consolidating action items extracted from several meetings. The same action is often raised in more than one meeting and must be filed only once.

TASKS (with the meeting each came from):
`)
	for i, task := range tasks {
		fmt.Fprintf(&b, `
[%d] Source: %s
    Title: %s
    Priority: %s
    Description: %s
`, i, oneLine(task.Source), oneLine(task.Title), task.Priority, oneLine(task.Description))
	}

	b.WriteString(`
CANDIDATE PAIRS (titles are lexically similar; focus your review here):
`)
	for _, p := range pairs {
		fmt.Fprintf(&b, "- [%d] and [%d]\n", p.IndexA, p.IndexB)
	}

	b.WriteString(`
TASK:
Group tasks that describe the SAME underlying action, and write ONE consolidated task per group.

IMPORTANT GUIDELINES:
1. Judge SEMANTIC EQUIVALENCE of the action, not literal wording
2. Each index may appear in at most one group; each group needs at least two indices
3. Leave unique tasks out of the output entirely
4. The merged title should be the clearest phrasing of the action
5. The merged description must combine the details from EVERY source in the group, naming the meetings where useful
6. The merged priority must be one of: urgent, high, normal, low (use the most urgent of the group unless the details say otherwise)

OUTPUT FORMAT (JSON only, no markdown):
{
  "groups": [
    {
      "indices": [0, 3],
      "merged_task": {
        "title": "Consolidated title",
        "description": "Combined description drawing on all sources",
        "priority": "high"
      },
      "reason": "Brief explanation of why these are the same action"
    }
  ]
}

If nothing should be merged, respond with {"groups": []}.

IMPORTANT: Respond with ONLY raw JSON. Do NOT wrap it in markdown code fences.`)

	return b.String()
}
