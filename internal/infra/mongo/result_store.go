package mongo

import (
	"context"
	"fmt"

	"quiz-attempt-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ResultStore keeps one document per finished attempt.
type ResultStore struct {
	col *mongo.Collection
}

func NewResultStore(db *mongo.Database) *ResultStore {
	return &ResultStore{col: db.Collection(resultsCollection)}
}

func (s *ResultStore) SaveResult(ctx context.Context, record domain.ResultRecord) error {
	if _, err := s.col.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *ResultStore) ListByQuiz(ctx context.Context, quizID string) ([]domain.ResultRecord, error) {
	return s.find(ctx, bson.M{"quiz_id": quizID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (s *ResultStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.ResultRecord, error) {
	return s.find(ctx, bson.M{"user_id": userID}, userHistoryOptions(limit))
}

func (s *ResultStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.ResultRecord, error) {
	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find results: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]domain.ResultRecord, 0)
	for cur.Next(ctx) {
		var record domain.ResultRecord
		if err := cur.Decode(&record); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, record)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

// userHistoryOptions sorts newest first and applies limit when positive.
func userHistoryOptions(limit int) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}
