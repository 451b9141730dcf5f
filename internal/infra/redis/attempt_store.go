package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"quiz-attempt-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// AttemptStore is a Redis-aware implementation of app.AttemptRepository.
// Notes:
//   - Sessions hold a live countdown, so the attempts themselves stay in a
//     local map owned by this instance.
//   - Redis carries a liveness marker per attempt (HSET attempt:{id} quiz user)
//     so other instances and operators can see who is mid-quiz.
//   - The marker expires on its own if the process dies before cleanup.
type AttemptStore struct {
	client    *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
	log       *slog.Logger
	mu        sync.RWMutex
	attempts  map[string]*app.Attempt
}

func NewAttemptStore(client *redis.Client, ttl time.Duration, log *slog.Logger) *AttemptStore {
	return &AttemptStore{
		client:    client,
		ttl:       ttl,
		opTimeout: 2 * time.Second,
		log:       log,
		attempts:  make(map[string]*app.Attempt),
	}
}

func (s *AttemptStore) Put(attempt *app.Attempt) {
	s.mu.Lock()
	s.attempts[attempt.ID] = attempt
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(attempt.ID), "quiz", attempt.QuizID, "user", attempt.UserID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(attempt.ID), s.ttl)
	}
	pipe.SAdd(ctx, s.quizKey(attempt.QuizID), attempt.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		// The local attempt still runs; only the shared marker is missing.
		s.log.Warn("redis attempt marker write failed", "attempt", attempt.ID, "quiz", attempt.QuizID, "err", err)
	}
}

func (s *AttemptStore) Get(attemptID string) (*app.Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	return attempt, ok
}

func (s *AttemptStore) Delete(attemptID string) {
	s.mu.Lock()
	attempt, ok := s.attempts[attemptID]
	delete(s.attempts, attemptID)
	s.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(attemptID))
	pipe.SRem(ctx, s.quizKey(attempt.QuizID), attemptID)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("redis attempt marker delete failed", "attempt", attemptID, "quiz", attempt.QuizID, "err", err)
	}
}

// ActiveForQuiz counts attempts in progress for a quiz across instances.
func (s *AttemptStore) ActiveForQuiz(ctx context.Context, quizID string) (int64, error) {
	return s.client.SCard(ctx, s.quizKey(quizID)).Result()
}

func (s *AttemptStore) key(attemptID string) string {
	return "quiz:attempt:" + attemptID
}

func (s *AttemptStore) quizKey(quizID string) string {
	return "quiz:" + quizID + ":attempts"
}
