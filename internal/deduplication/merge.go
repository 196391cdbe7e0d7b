package deduplication

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/steveyegge/minutes/internal/ai"
	"github.com/steveyegge/minutes/internal/types"
)

// MergeBatches consolidates duplicate tasks raised across several labeled batches
// (typically one batch per meeting) into single tasks.
//
// Batches are flattened in order and the flattened position of each task is its
// identity. If no titles are lexically close the flattened list is returned without an
// oracle call. Otherwise one consolidation request groups duplicates and synthesizes a
// merged task per group, which replaces the group at its lowest index. Any oracle
// failure returns the flattened list with no merges.
func (e *Engine) MergeBatches(ctx context.Context, batches []types.LabeledBatch) *MergeResult {
	startTime := time.Now()
	flat := types.Flatten(batches)
	n := len(flat)

	result := &MergeResult{
		Tasks:          make([]types.Task, n),
		Sources:        make([]string, n),
		Groups:         []MergeGroup{},
		CandidatePairs: []types.CandidatePair{},
		Stats: Stats{
			TotalTasks:      n,
			ComparisonsMade: n * (n - 1) / 2,
		},
	}
	titles := make([]string, n)
	for i, st := range flat {
		result.Tasks[i] = st.Task
		result.Sources[i] = st.Source
		titles[i] = st.Title
	}
	defer func() {
		result.Stats.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	}()

	if pairs := candidatePairs(titles, e.config.CandidateThreshold, e.config.ParallelCompareMin); pairs != nil {
		result.CandidatePairs = pairs
	}
	result.Stats.CandidateCount = len(result.CandidatePairs)
	if len(result.CandidatePairs) == 0 {
		e.logger.Debug("dedup: no cross-batch candidate pairs, skipping oracle",
			"batches", len(batches), "tasks", n)
		return result
	}

	callCtx, cancel := e.oracleContext(ctx)
	defer cancel()

	result.Stats.OracleCalls = 1
	proposals, err := e.oracle.ConsolidateDuplicates(callCtx, flat, result.CandidatePairs)
	if err != nil {
		e.logger.Warn("dedup: merge consolidation failed, returning batches unmerged",
			"error", err, "batches", len(batches), "tasks", n)
		result.Stats.FailedOpen = true
		result.Stats.FailureReason = err.Error()
		return result
	}

	result.Groups = e.sanitizeGroups(flat, proposals)
	if len(result.Groups) == 0 {
		return result
	}

	byPrimary := make(map[int]*MergeGroup, len(result.Groups))
	absorbed := make(map[int]bool)
	for i := range result.Groups {
		g := &result.Groups[i]
		byPrimary[g.PrimaryIndex] = g
		for _, idx := range g.MergedIndices[1:] {
			absorbed[idx] = true
		}
	}

	tasks := make([]types.Task, 0, n-len(absorbed))
	sources := make([]string, 0, n-len(absorbed))
	for i, st := range flat {
		if g, ok := byPrimary[i]; ok {
			tasks = append(tasks, g.MergedTask)
			sources = append(sources, strings.Join(g.Sources, ", "))
			continue
		}
		if absorbed[i] {
			continue
		}
		tasks = append(tasks, st.Task)
		sources = append(sources, st.Source)
	}
	result.Tasks = tasks
	result.Sources = sources

	e.logger.Debug("dedup: merge complete",
		"batches", len(batches),
		"tasks_in", n,
		"tasks_out", len(tasks),
		"groups", len(result.Groups))
	return result
}

// sanitizeGroups turns model proposals into well-formed, disjoint merge groups.
// Out-of-range and repeated indices are dropped, an index claimed by an earlier group
// is dropped from later ones, and groups left with fewer than two members are ignored.
// An ignored group's task passes through unchanged; its proposed rewrite is discarded.
func (e *Engine) sanitizeGroups(flat []types.SourcedTask, proposals []ai.MergeProposal) []MergeGroup {
	n := len(flat)
	claimed := make(map[int]bool)
	groups := []MergeGroup{}

	for gi, p := range proposals {
		seen := make(map[int]bool, len(p.Indices))
		members := make([]int, 0, len(p.Indices))
		for _, idx := range p.Indices {
			if idx < 0 || idx >= n || seen[idx] || claimed[idx] {
				continue
			}
			seen[idx] = true
			members = append(members, idx)
		}
		if len(members) < 2 {
			e.logger.Debug("dedup: ignoring merge group with fewer than two usable indices",
				"group", gi, "indices", fmt.Sprint(p.Indices))
			continue
		}
		slices.Sort(members)
		for _, idx := range members {
			claimed[idx] = true
		}

		groups = append(groups, MergeGroup{
			PrimaryIndex:  members[0],
			MergedIndices: members,
			MergedTask:    buildMergedTask(flat, members, p.MergedTask),
			Sources:       distinctSources(flat, members),
			Reason:        strings.TrimSpace(p.Reason),
		})
	}

	slices.SortFunc(groups, func(a, b MergeGroup) int { return a.PrimaryIndex - b.PrimaryIndex })
	return groups
}

// buildMergedTask applies fallbacks to the model's proposal: the primary member's
// title, the members' labeled descriptions, the most urgent member priority, and the
// earliest member due date.
func buildMergedTask(flat []types.SourcedTask, members []int, proposed ai.ProposedTask) types.Task {
	primary := flat[members[0]]

	title := strings.TrimSpace(proposed.Title)
	if title == "" || utf8.RuneCountInString(title) > types.MaxTitleLength {
		title = primary.Title
	}

	description := strings.TrimSpace(proposed.Description)
	if description == "" {
		var parts []string
		for _, idx := range members {
			if d := strings.TrimSpace(flat[idx].Description); d != "" {
				parts = append(parts, fmt.Sprintf("[%s] %s", flat[idx].Source, d))
			}
		}
		description = strings.Join(parts, "\n\n")
	}

	priority, err := types.ParsePriority(proposed.Priority)
	if err != nil {
		memberPriorities := make([]types.Priority, len(members))
		for i, idx := range members {
			memberPriorities[i] = flat[idx].Priority
		}
		priority = types.MostUrgent(memberPriorities...)
	}

	var due *time.Time
	for _, idx := range members {
		if d := flat[idx].DueDate; d != nil && (due == nil || d.Before(*due)) {
			due = d
		}
	}

	return types.Task{
		Title:       title,
		Description: description,
		Priority:    priority,
		DueDate:     due,
	}
}

func distinctSources(flat []types.SourcedTask, members []int) []string {
	var out []string
	for _, idx := range members {
		if src := flat[idx].Source; !slices.Contains(out, src) {
			out = append(out, src)
		}
	}
	return out
}
