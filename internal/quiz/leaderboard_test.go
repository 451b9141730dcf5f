package quiz

import (
	"testing"
	"time"

	"quiz-attempt-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(user string, score, duration int, at time.Time) domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		UserID:          user,
		Username:        "user " + user,
		QuizID:          "quiz-1",
		Score:           score,
		DurationSeconds: duration,
		CreatedAt:       at,
	}
}

func TestRankBestAttemptPerUser(t *testing.T) {
	base := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	ranked := Rank([]domain.LeaderboardEntry{
		entry("A", 80, 120, base),
		entry("A", 90, 200, base.Add(time.Minute)),
		entry("B", 90, 150, base.Add(2*time.Minute)),
	})

	require.Len(t, ranked, 2)
	assert.Equal(t, "B", ranked[0].UserID)
	assert.Equal(t, 0, ranked[0].Rank)
	assert.Equal(t, 150, ranked[0].DurationSeconds)
	assert.Equal(t, "A", ranked[1].UserID)
	assert.Equal(t, 1, ranked[1].Rank)
	assert.Equal(t, 90, ranked[1].Score)
	assert.Equal(t, 200, ranked[1].DurationSeconds)
}

func TestRankEmpty(t *testing.T) {
	ranked := Rank(nil)
	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)
}

func TestRankTieBreaksByTimestampRegardlessOfOrder(t *testing.T) {
	base := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	early := entry("A", 70, 100, base)
	late := entry("A", 70, 100, base.Add(time.Hour))
	other := entry("B", 70, 100, base.Add(time.Minute))

	forward := Rank([]domain.LeaderboardEntry{early, late, other})
	backward := Rank([]domain.LeaderboardEntry{other, late, early})

	assert.Equal(t, forward, backward)
	require.Len(t, forward, 2)
	assert.Equal(t, "A", forward[0].UserID)
	assert.True(t, forward[0].CreatedAt.Equal(base))
	assert.Equal(t, "B", forward[1].UserID)
}

func TestRankNeverRepeatsUsers(t *testing.T) {
	base := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	var entries []domain.LeaderboardEntry
	users := []string{"u1", "u2", "u3", "u4"}
	for i := 0; i < 40; i++ {
		entries = append(entries, entry(users[i%len(users)], (i*37)%101, (i*13)%300, base.Add(time.Duration(i)*time.Second)))
	}

	ranked := Rank(entries)
	require.Len(t, ranked, len(users))
	seen := map[string]bool{}
	for i, r := range ranked {
		assert.False(t, seen[r.UserID], "duplicate user %s", r.UserID)
		seen[r.UserID] = true
		assert.Equal(t, i, r.Rank)
		if i > 0 {
			prev := ranked[i-1]
			assert.True(t, prev.Score > r.Score ||
				(prev.Score == r.Score && prev.DurationSeconds <= r.DurationSeconds))
		}
	}
}
