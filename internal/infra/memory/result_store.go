package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-attempt-service/internal/domain"
)

// ResultStore keeps results in process; used when no database is configured.
type ResultStore struct {
	mu      sync.RWMutex
	records []domain.ResultRecord
}

func NewResultStore() *ResultStore {
	return &ResultStore{}
}

func (s *ResultStore) SaveResult(_ context.Context, record domain.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *ResultStore) ListByQuiz(_ context.Context, quizID string) ([]domain.ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ResultRecord, 0)
	for _, record := range s.records {
		if record.QuizID == quizID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *ResultStore) ListByUser(_ context.Context, userID string, limit int) ([]domain.ResultRecord, error) {
	s.mu.RLock()
	out := make([]domain.ResultRecord, 0)
	for _, record := range s.records {
		if record.UserID == userID {
			out = append(out, record)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
