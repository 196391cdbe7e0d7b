package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLength is the longest title a Task may carry
const MaxTitleLength = 500

// Task represents a candidate action item extracted from a meeting transcript.
//
// A Task is an immutable value once extracted. Its position within a batch is its
// identity: every downstream record refers to tasks by batch index, never by value.
type Task struct {
	Title       string     `json:"title" yaml:"title" toml:"title"`
	Description string     `json:"description" yaml:"description" toml:"description"`
	Priority    Priority   `json:"priority" yaml:"priority" toml:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty" toml:"due_date,omitempty"`
}

// DateLayout is the date-only form accepted for due dates alongside RFC3339
const DateLayout = "2006-01-02"

// UnmarshalJSON accepts due dates as either RFC3339 timestamps or plain dates
// ("2025-06-01", taken as midnight UTC).
func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task
	var raw struct {
		plain
		DueDate *string `json:"due_date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Task(raw.plain)
	t.DueDate = nil
	if raw.DueDate != nil && strings.TrimSpace(*raw.DueDate) != "" {
		due, err := ParseDueDate(*raw.DueDate)
		if err != nil {
			return err
		}
		t.DueDate = &due
	}
	return nil
}

// ParseDueDate parses an RFC3339 timestamp or a YYYY-MM-DD date
func ParseDueDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if due, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return due, nil
	}
	due, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q (want YYYY-MM-DD or RFC3339)", s)
	}
	return due, nil
}

// Validate checks if the task has valid field values
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if n := utf8.RuneCountInString(t.Title); n > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, n)
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %q", t.Priority)
	}
	return nil
}

// Priority represents how urgent an action item is
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// IsValid checks if the priority value is valid
func (p Priority) IsValid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Rank orders priorities from most urgent (0) to least urgent (3).
// Invalid priorities rank after low.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// ParsePriority converts free text into a Priority, ignoring case and surrounding space
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("unknown priority %q (want urgent, high, normal or low)", s)
	}
	return p, nil
}

// MostUrgent returns the most urgent valid priority among ps.
// Returns PriorityNormal when none are valid.
func MostUrgent(ps ...Priority) Priority {
	best := Priority("")
	for _, p := range ps {
		if !p.IsValid() {
			continue
		}
		if best == "" || p.Rank() < best.Rank() {
			best = p
		}
	}
	if best == "" {
		return PriorityNormal
	}
	return best
}

// CandidatePair is an unordered pair of batch positions whose titles were lexically
// similar enough to warrant semantic review. IndexA is always lower than IndexB.
type CandidatePair struct {
	IndexA int `json:"index_a"`
	IndexB int `json:"index_b"`
}

// String renders the pair as "(a,b)"
func (p CandidatePair) String() string {
	return fmt.Sprintf("(%d,%d)", p.IndexA, p.IndexB)
}

// CacheEntry is a snapshot of an item already present in the external task tracker.
// Entries are supplied by the caller; the dedup engine never owns them.
type CacheEntry struct {
	ExternalID string `json:"external_id" yaml:"external_id" toml:"external_id"`
	Title      string `json:"title" yaml:"title" toml:"title"`
}

// SourcedTask is a Task together with the label of the batch it came from
// (typically the meeting it was extracted from).
type SourcedTask struct {
	Source string `json:"source"`
	Task
}

// UnmarshalJSON decodes the embedded Task with its due date handling and keeps Source
func (s *SourcedTask) UnmarshalJSON(data []byte) error {
	var src struct {
		Source string `json:"source"`
	}
	if err := json.Unmarshal(data, &src); err != nil {
		return err
	}
	if err := s.Task.UnmarshalJSON(data); err != nil {
		return err
	}
	s.Source = src.Source
	return nil
}

// LabeledBatch is one source batch of tasks, e.g. all items from one meeting
type LabeledBatch struct {
	Label string `json:"label" yaml:"label" toml:"label"`
	Tasks []Task `json:"tasks" yaml:"tasks" toml:"tasks"`
}

// Flatten concatenates batches in order, keeping each task's source label.
// The resulting index of a task is its identity for merge resolution.
func Flatten(batches []LabeledBatch) []SourcedTask {
	n := 0
	for _, b := range batches {
		n += len(b.Tasks)
	}
	out := make([]SourcedTask, 0, n)
	for _, b := range batches {
		for _, t := range b.Tasks {
			out = append(out, SourcedTask{Source: b.Label, Task: t})
		}
	}
	return out
}

// Titles returns the titles of tasks in batch order
func Titles(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].Title
	}
	return out
}
