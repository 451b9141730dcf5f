package memory

import (
	"context"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"
)

// LeaderboardCache holds ranked boards until the TTL passes or a new result
// invalidates them.
type LeaderboardCache struct {
	ttl   time.Duration
	clock func() time.Time

	mu     sync.RWMutex
	boards map[string]cachedBoard
}

type cachedBoard struct {
	board     domain.Leaderboard
	expiresAt time.Time
}

func NewLeaderboardCache(ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		ttl:    ttl,
		clock:  time.Now,
		boards: make(map[string]cachedBoard),
	}
}

func (c *LeaderboardCache) GetLeaderboard(_ context.Context, quizID string) (domain.Leaderboard, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.boards[quizID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Leaderboard{}, false, nil
	}
	return entry.board, true, nil
}

func (c *LeaderboardCache) SetLeaderboard(_ context.Context, board domain.Leaderboard) error {
	if c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boards[board.QuizID] = cachedBoard{board: board, expiresAt: c.clock().Add(c.ttl)}
	return nil
}

func (c *LeaderboardCache) InvalidateLeaderboard(_ context.Context, quizID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.boards, quizID)
	return nil
}
