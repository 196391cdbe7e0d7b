package deduplication

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/minutes/internal/types"
)

// CandidatePairs returns every pair (i, j), i < j, whose titles score above threshold,
// sorted by (i, j). Batches with fewer than two tasks yield no pairs.
func CandidatePairs(tasks []types.Task, threshold float64) []types.CandidatePair {
	return candidatePairs(types.Titles(tasks), threshold, DefaultConfig().ParallelCompareMin)
}

// candidatePairs compares each title against every later title. At parallelMin titles
// and above, rows of the comparison triangle run concurrently; each row writes only its
// own slot so the concatenated output matches the sequential order.
func candidatePairs(titles []string, threshold float64, parallelMin int) []types.CandidatePair {
	n := len(titles)
	if n <= 1 {
		return nil
	}

	rows := make([][]types.CandidatePair, n-1)
	compareRow := func(i int) {
		for j := i + 1; j < n; j++ {
			if Similarity(titles[i], titles[j]) > threshold {
				rows[i] = append(rows[i], types.CandidatePair{IndexA: i, IndexB: j})
			}
		}
	}

	if n < parallelMin {
		for i := range rows {
			compareRow(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i := range rows {
			g.Go(func() error {
				compareRow(i)
				return nil
			})
		}
		_ = g.Wait() // rows never fail
	}

	var pairs []types.CandidatePair
	for _, row := range rows {
		pairs = append(pairs, row...)
	}
	return pairs
}
