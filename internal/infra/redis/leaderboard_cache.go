package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"quiz-attempt-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// LeaderboardCache stores ranked boards as JSON under quiz:{quizID}:leaderboard.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func (c *LeaderboardCache) GetLeaderboard(ctx context.Context, quizID string) (domain.Leaderboard, bool, error) {
	raw, err := c.client.Get(ctx, c.key(quizID)).Bytes()
	if isMiss(err) {
		return domain.Leaderboard{}, false, nil
	}
	if err != nil {
		return domain.Leaderboard{}, false, fmt.Errorf("get leaderboard: %w", err)
	}
	var board domain.Leaderboard
	if err := json.Unmarshal(raw, &board); err != nil {
		return domain.Leaderboard{}, false, fmt.Errorf("decode leaderboard: %w", err)
	}
	return board, true, nil
}

func (c *LeaderboardCache) SetLeaderboard(ctx context.Context, board domain.Leaderboard) error {
	if c.ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("encode leaderboard: %w", err)
	}
	return c.client.Set(ctx, c.key(board.QuizID), raw, c.ttl).Err()
}

func (c *LeaderboardCache) InvalidateLeaderboard(ctx context.Context, quizID string) error {
	return c.client.Del(ctx, c.key(quizID)).Err()
}

func (c *LeaderboardCache) key(quizID string) string {
	return "quiz:" + quizID + ":leaderboard"
}
