package quiz

import (
	"sort"

	"quiz-attempt-service/internal/domain"
)

// Rank reduces raw submissions to one best attempt per user and orders them.
// Better means: higher score, then shorter duration, then earlier submission,
// then user id, so the output never depends on input order.
func Rank(entries []domain.LeaderboardEntry) []domain.RankedEntry {
	best := make(map[string]domain.LeaderboardEntry, len(entries))
	for _, entry := range entries {
		current, ok := best[entry.UserID]
		if !ok || better(entry, current) {
			best[entry.UserID] = entry
		}
	}

	candidates := make([]domain.LeaderboardEntry, 0, len(best))
	for _, entry := range best {
		candidates = append(candidates, entry)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return better(candidates[i], candidates[j])
	})

	ranked := make([]domain.RankedEntry, len(candidates))
	for i, entry := range candidates {
		ranked[i] = domain.RankedEntry{LeaderboardEntry: entry, Rank: i}
	}
	return ranked
}

func better(a, b domain.LeaderboardEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.DurationSeconds != b.DurationSeconds {
		return a.DurationSeconds < b.DurationSeconds
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.UserID < b.UserID
}
