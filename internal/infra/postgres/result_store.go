package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"quiz-attempt-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const resultColumns = `id, user_id, username, quiz_id, quiz_title, score, correct_count,
	total_questions, elapsed_seconds, completion_type, outcomes, completed_at, created_at`

// ResultStore persists finished attempts in the quiz_results table.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) SaveResult(ctx context.Context, record domain.ResultRecord) error {
	outcomes, err := json.Marshal(record.Result.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quiz_results (`+resultColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		record.ID,
		record.UserID,
		record.Username,
		record.QuizID,
		record.QuizTitle,
		record.Result.Score,
		record.Result.CorrectCount,
		record.Result.TotalQuestions,
		record.Result.ElapsedSeconds,
		string(record.Result.CompletionType),
		outcomes,
		record.Result.CompletedAt,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *ResultStore) ListByQuiz(ctx context.Context, quizID string) ([]domain.ResultRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM quiz_results WHERE quiz_id=$1 ORDER BY created_at`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list results by quiz: %w", err)
	}
	return scanResults(rows)
}

// ListByUser returns a user's results newest first; limit <= 0 returns all.
func (s *ResultStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.ResultRecord, error) {
	query := `SELECT ` + resultColumns + ` FROM quiz_results WHERE user_id=$1 ORDER BY created_at DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results by user: %w", err)
	}
	return scanResults(rows)
}

func scanResults(rows pgx.Rows) ([]domain.ResultRecord, error) {
	defer rows.Close()

	out := make([]domain.ResultRecord, 0)
	for rows.Next() {
		var (
			record     domain.ResultRecord
			completion string
			outcomes   []byte
		)
		err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.Username,
			&record.QuizID,
			&record.QuizTitle,
			&record.Result.Score,
			&record.Result.CorrectCount,
			&record.Result.TotalQuestions,
			&record.Result.ElapsedSeconds,
			&completion,
			&outcomes,
			&record.Result.CompletedAt,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if len(outcomes) > 0 {
			if err := json.Unmarshal(outcomes, &record.Result.Outcomes); err != nil {
				return nil, fmt.Errorf("unmarshal outcomes: %w", err)
			}
		}
		record.Result.QuizID = record.QuizID
		record.Result.CompletionType = domain.CompletionType(completion)
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}
