package deduplication

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/steveyegge/minutes/internal/ai"
	"github.com/steveyegge/minutes/internal/types"
)

// defaultReason fills in verdicts the model returned without an explanation
const defaultReason = "confirmed duplicate"

// Oracle is the semantic equivalence judge behind the engine. *ai.Supervisor
// implements it; tests substitute stubs.
type Oracle interface {
	ConfirmDuplicates(ctx context.Context, tasks []types.Task, pairs []types.CandidatePair) ([]ai.DuplicateVerdict, error)
	ConsolidateDuplicates(ctx context.Context, tasks []types.SourcedTask, pairs []types.CandidatePair) ([]ai.MergeProposal, error)
}

// providerOracle resolves the supervisor on first use, so a batch with no candidate
// pairs never constructs a client and a missing API key only fails open.
type providerOracle struct {
	provider *ai.Provider
}

// OracleFromProvider adapts a lazy ai.Provider into an Oracle
func OracleFromProvider(p *ai.Provider) Oracle {
	return providerOracle{provider: p}
}

func (o providerOracle) ConfirmDuplicates(ctx context.Context, tasks []types.Task, pairs []types.CandidatePair) ([]ai.DuplicateVerdict, error) {
	sup, err := o.provider.Supervisor()
	if err != nil {
		return nil, err
	}
	return sup.ConfirmDuplicates(ctx, tasks, pairs)
}

func (o providerOracle) ConsolidateDuplicates(ctx context.Context, tasks []types.SourcedTask, pairs []types.CandidatePair) ([]ai.MergeProposal, error) {
	sup, err := o.provider.Supervisor()
	if err != nil {
		return nil, err
	}
	return sup.ConsolidateDuplicates(ctx, tasks, pairs)
}

// Engine runs the duplicate-detection pipeline: lexical pre-filter, semantic
// confirmation, cache matching and cross-batch merging.
//
// Engine holds no per-call state and is safe for concurrent use. Its operations never
// return errors: any oracle failure degrades to treating every task as unique.
type Engine struct {
	oracle Oracle
	config Config
	logger *slog.Logger
}

// NewEngine creates a deduplication engine
func NewEngine(oracle Oracle, config Config) (*Engine, error) {
	if oracle == nil {
		return nil, fmt.Errorf("oracle cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Engine{
		oracle: oracle,
		config: config,
		logger: config.logger(),
	}, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.config
}

// DeduplicateBatch removes tasks that repeat an earlier task in the same batch.
//
// Titles are compared pairwise; pairs above CandidateThreshold go to the oracle in a
// single request. With no candidate pairs the oracle is not called and every task is
// unique. Verdicts are collapsed so each duplicate points directly at the lowest index
// of its group.
func (e *Engine) DeduplicateBatch(ctx context.Context, tasks []types.Task) *DeduplicationResult {
	startTime := time.Now()
	n := len(tasks)

	result := &DeduplicationResult{
		Duplicates:     []DuplicateMatch{},
		UniqueTasks:    slices.Clone(tasks),
		CandidatePairs: []types.CandidatePair{},
		Stats: Stats{
			TotalTasks:      n,
			ComparisonsMade: n * (n - 1) / 2,
		},
	}
	if result.UniqueTasks == nil {
		result.UniqueTasks = []types.Task{}
	}
	defer func() {
		result.Stats.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	}()

	if pairs := candidatePairs(types.Titles(tasks), e.config.CandidateThreshold, e.config.ParallelCompareMin); pairs != nil {
		result.CandidatePairs = pairs
	}
	result.Stats.CandidateCount = len(result.CandidatePairs)
	if len(result.CandidatePairs) == 0 {
		e.logger.Debug("dedup: no candidate pairs, skipping oracle", "tasks", n)
		return result
	}

	callCtx, cancel := e.oracleContext(ctx)
	defer cancel()

	result.Stats.OracleCalls = 1
	verdicts, err := e.oracle.ConfirmDuplicates(callCtx, tasks, result.CandidatePairs)
	if err != nil {
		e.logger.Warn("dedup: duplicate confirmation failed, treating all tasks as unique",
			"error", err, "tasks", n, "candidate_pairs", len(result.CandidatePairs))
		result.Stats.FailedOpen = true
		result.Stats.FailureReason = err.Error()
		return result
	}

	result.Duplicates = e.collapseVerdicts(n, verdicts)
	result.TotalDuplicates = len(result.Duplicates)

	if result.TotalDuplicates > 0 {
		marked := make(map[int]bool, len(result.Duplicates))
		for _, d := range result.Duplicates {
			marked[d.TaskIndex] = true
		}
		unique := make([]types.Task, 0, n-len(marked))
		for i, task := range tasks {
			if !marked[i] {
				unique = append(unique, task)
			}
		}
		result.UniqueTasks = unique
	}

	e.logger.Debug("dedup: batch complete",
		"tasks", n,
		"candidate_pairs", len(result.CandidatePairs),
		"duplicates", result.TotalDuplicates)
	return result
}

// collapseVerdicts drops unusable verdicts and resolves the rest through union-find,
// so chains (2->1->0) and reversed verdicts (0->1) both end at the lowest index.
func (e *Engine) collapseVerdicts(n int, verdicts []ai.DuplicateVerdict) []DuplicateMatch {
	uf := newUnionFind(n)
	reasons := make(map[int]string)

	for _, v := range verdicts {
		if v.DuplicateOfIndex == nil {
			continue // first occurrence
		}
		a, b := v.TaskIndex, *v.DuplicateOfIndex
		if a < 0 || a >= n || b < 0 || b >= n {
			e.logger.Debug("dedup: ignoring out-of-range verdict",
				"task_index", a, "duplicate_of_index", b, "tasks", n)
			continue
		}
		if a == b {
			continue
		}
		uf.union(a, b)

		dup := max(a, b)
		if _, ok := reasons[dup]; !ok {
			if reason := strings.TrimSpace(v.Reason); reason != "" {
				reasons[dup] = reason
			}
		}
	}

	matches := []DuplicateMatch{}
	for i := 0; i < n; i++ {
		root := uf.find(i)
		if root == i {
			continue
		}
		reason, ok := reasons[i]
		if !ok {
			reason = defaultReason
		}
		matches = append(matches, DuplicateMatch{
			TaskIndex:        i,
			DuplicateOfIndex: &root,
			Reason:           reason,
		})
	}
	return matches
}

func (e *Engine) oracleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.OracleTimeout > 0 {
		return context.WithTimeout(ctx, e.config.OracleTimeout)
	}
	return context.WithCancel(ctx)
}
