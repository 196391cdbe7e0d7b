package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/steveyegge/minutes/internal/types"
)

// ErrMalformedResponse is returned when model output has no usable structured payload
var ErrMalformedResponse = errors.New("malformed model response")

// DuplicateVerdict is one entry of the model's duplicate judgement.
// DuplicateOfIndex is nil for tasks the model considers first occurrences.
type DuplicateVerdict struct {
	TaskIndex        int    `json:"task_index"`
	DuplicateOfIndex *int   `json:"duplicate_of_index"`
	Reason           string `json:"reason"`
}

// duplicateConfirmationResponse keeps the list raw so a missing or non-list
// "duplicates" field can be told apart from an empty one.
type duplicateConfirmationResponse struct {
	Duplicates json.RawMessage `json:"duplicates"`
}

// ConfirmDuplicates asks the model which of the candidate pairs are genuine duplicates.
//
// The whole batch goes out in a single request: every task with its index, title,
// description and priority, plus the lexical candidate pairs as hints. The model
// judges semantic equivalence of the action and names the lowest index of each group
// as the canonical task.
//
// Returns an error wrapping ErrMalformedResponse when the response has no JSON
// payload, does not parse, or lacks a "duplicates" list. Callers are expected to fail
// open on any error.
func (s *Supervisor) ConfirmDuplicates(ctx context.Context, tasks []types.Task, pairs []types.CandidatePair) ([]DuplicateVerdict, error) {
	if len(tasks) == 0 || len(pairs) == 0 {
		return nil, nil
	}

	prompt := buildDuplicateConfirmationPrompt(tasks, pairs)

	// Each verdict needs ~80 tokens, plus overhead
	maxTokens := clampTokens(len(pairs)*120+400, 1000, 4000)

	responseText, err := s.CallAI(ctx, prompt, "duplicate_confirmation", maxTokens)
	if err != nil {
		return nil, err
	}

	return parseDuplicateVerdicts(responseText, s)
}

func parseDuplicateVerdicts(responseText string, s *Supervisor) ([]DuplicateVerdict, error) {
	parseResult := Parse[duplicateConfirmationResponse](responseText, ParseOptions{
		Context: "duplicate confirmation response",
		Logger:  s.logger,
	})
	if !parseResult.Success {
		return nil, fmt.Errorf("%w: %s (response tail: %s)",
			ErrMalformedResponse, parseResult.Error, truncateTail(responseText, 200))
	}

	raw := parseResult.Data.Duplicates
	if !IsJSONList(raw) {
		return nil, fmt.Errorf("%w: \"duplicates\" field missing or not a list", ErrMalformedResponse)
	}

	verdicts, skipped, err := DecodeList[DuplicateVerdict](raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if skipped > 0 {
		s.logger.Debug("ai: skipped undecodable duplicate verdicts", "skipped", skipped)
	}
	return verdicts, nil
}

// buildDuplicateConfirmationPrompt lists every task and the candidate pairs
func buildDuplicateConfirmationPrompt(tasks []types.Task, pairs []types.CandidatePair) string {
	var b strings.Builder

	b.WriteString(`You are reviewing action items extracted from meeting transcripts before they are filed in a task tracker. Some items may describe the same underlying action.

TASKS:
`)
	for i, task := range tasks {
		fmt.Fprintf(&b, `
[%d] Title: %s
    Priority: %s
    Description: %s
`, i, oneLine(task.Title), task.Priority, oneLine(task.Description))
	}

	b.WriteString(`
CANDIDATE PAIRS (titles are lexically similar; focus your review here):
`)
	for _, p := range pairs {
		fmt.Fprintf(&b, "- [%d] and [%d]\n", p.IndexA, p.IndexB)
	}

	b.WriteString(`
TASK:
Decide which tasks are duplicates of an earlier task in the list.

IMPORTANT GUIDELINES:
1. Judge SEMANTIC EQUIVALENCE of the action, not literal wording
2. Two tasks are duplicates if completing one would complete the other
3. Different wording, priority or level of detail does NOT by itself make tasks different
4. Tasks that share a topic but require different actions are NOT duplicates
5. "duplicate_of_index" must ALWAYS be the FIRST (lowest-index) occurrence of the action
6. Never point a duplicate at another duplicate; point every member of a group at its first occurrence
7. First occurrences are not duplicates: leave them out, or give them "duplicate_of_index": null

EXAMPLES OF DUPLICATES:
- "Send follow-up email to vendor" vs "Email the vendor a follow-up"
- "Schedule demo call" vs "Set up a call to demo the product"

EXAMPLES OF NON-DUPLICATES:
- "Draft Q3 budget" vs "Review Q3 budget"
- "Book room for offsite" vs "Plan offsite agenda"

OUTPUT FORMAT (JSON only, no markdown):
{
  "duplicates": [
    {
      "task_index": 1,
      "duplicate_of_index": 0,
      "reason": "Brief explanation of why both describe the same action"
    }
  ]
}

If there are no duplicates, respond with {"duplicates": []}.

IMPORTANT: Respond with ONLY raw JSON. Do NOT wrap it in markdown code fences.`)

	return b.String()
}
