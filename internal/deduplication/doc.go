// Package deduplication detects and consolidates duplicate action items extracted
// from meeting transcripts.
//
// # Overview
//
// The same action item is often raised several times in one meeting, in several
// meetings, or after it was already filed in the tracker. The engine keeps it from
// being created twice.
//
// # Architecture
//
// The pipeline is layered from cheap to expensive:
//
//  1. Similarity: a pure lexical score in [0, 1] (containment ratio or normalized
//     edit distance)
//  2. CandidatePairs: every title pair above CandidateThreshold (0.6). This filter
//     favors recall; a pair excluded here is never reconsidered
//  3. DeduplicateBatch: one oracle request confirms which candidate pairs describe the
//     same action, naming the earliest task of each group as canonical
//  4. MatchCache: advisory matches against a snapshot of tracker items, at the
//     stricter CacheMatchThreshold (0.75) and without an oracle
//  5. MergeBatches: duplicates across labeled batches are consolidated into one
//     synthesized task per group
//
// # Oracle
//
// The Oracle interface is implemented by *ai.Supervisor. Callers construct one
// ai.Provider per process and pass OracleFromProvider(p) to NewEngine, so the model
// client is built lazily and at most once. Each engine operation makes at most one
// oracle request and makes none when there are no candidate pairs.
//
// # Usage
//
//	provider := ai.NewProvider(ai.Config{Client: ai.ClientConfig{Provider: "anthropic"}})
//	engine, err := deduplication.NewEngine(deduplication.OracleFromProvider(provider),
//	    deduplication.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//
//	result := engine.DeduplicateBatch(ctx, tasks)
//	for _, d := range result.Duplicates {
//	    log.Printf("task %d duplicates %d: %s", d.TaskIndex, *d.DuplicateOfIndex, d.Reason)
//	}
//	create(result.UniqueTasks)
//
// # Error Handling
//
// Engine operations never return errors. Network failures, authentication errors,
// rate limits, an open circuit breaker, timeouts and malformed model output all degrade
// to the conservative result: every task unique, nothing merged. Stats.FailedOpen and
// Stats.FailureReason record that this happened, and a WARN is logged.
//
// Verdicts are sanitized before use. Out-of-range and self-referencing verdicts are
// dropped, and the rest are collapsed with union-find so that chains (2->1->0) and
// reversed verdicts (0->1) both resolve to the lowest index of the group.
//
// # Concurrency
//
// An Engine holds no per-call state and may be shared. Pairwise comparison of large
// batches (ParallelCompareMin and above) runs across goroutines with deterministic
// output order; oracle requests are never fanned out.
package deduplication
