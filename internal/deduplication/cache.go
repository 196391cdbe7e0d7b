package deduplication

import (
	"github.com/steveyegge/minutes/internal/types"
)

// MatchCache reports batch tasks whose titles score above the engine's
// CacheMatchThreshold against items already in the tracker.
//
// Matches are advisory: no task is removed and no oracle call is made.
func (e *Engine) MatchCache(tasks []types.Task, cache []types.CacheEntry) []CacheMatch {
	matches := MatchCache(tasks, cache, e.config.CacheMatchThreshold)
	e.logger.Debug("dedup: cache match complete",
		"tasks", len(tasks), "cache_entries", len(cache), "matches", len(matches))
	return matches
}

// MatchCache returns every (task, entry) pair with title similarity above threshold,
// ordered by task index and then by cache order.
func MatchCache(tasks []types.Task, cache []types.CacheEntry, threshold float64) []CacheMatch {
	matches := []CacheMatch{}
	for i, task := range tasks {
		for _, entry := range cache {
			if score := Similarity(task.Title, entry.Title); score > threshold {
				matches = append(matches, CacheMatch{
					CandidateIndex: i,
					ExternalID:     entry.ExternalID,
					Similarity:     score,
				})
			}
		}
	}
	return matches
}
