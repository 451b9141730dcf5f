package memory

import (
	"context"
	"sync"

	"quiz-attempt-service/internal/app"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]*app.Attempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]*app.Attempt),
	}
}

func (s *AttemptStore) Put(attempt *app.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.ID] = attempt
}

func (s *AttemptStore) Get(attemptID string) (*app.Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	return attempt, ok
}

func (s *AttemptStore) Delete(attemptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, attemptID)
}

// ActiveForQuiz counts running attempts for a quiz.
func (s *AttemptStore) ActiveForQuiz(_ context.Context, quizID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, attempt := range s.attempts {
		if attempt.QuizID == quizID {
			n++
		}
	}
	return n, nil
}
