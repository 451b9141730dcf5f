package mongo

import (
	"context"
	"errors"
	"fmt"

	"quiz-attempt-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// QuizLoader reads quiz documents, questions embedded, from MongoDB.
type QuizLoader struct {
	col *mongo.Collection
}

func NewQuizLoader(db *mongo.Database) *QuizLoader {
	return &QuizLoader{col: db.Collection(quizzesCollection)}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := l.col.FindOne(ctx, bson.M{"_id": quizID}).Decode(&quiz)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	return quiz, nil
}

// SaveQuiz validates and upserts a quiz document.
func (l *QuizLoader) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return fmt.Errorf("quiz %s: %w", quiz.ID, err)
	}
	_, err := l.col.ReplaceOne(ctx, bson.M{"_id": quiz.ID}, quiz, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}
	return nil
}

// ListQuizzes implements app.QuizCatalog, ordered by id.
func (l *QuizLoader) ListQuizzes(ctx context.Context, topicID string) ([]domain.QuizSummary, error) {
	cur, err := l.col.Find(ctx, topicFilter(topicID), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]domain.QuizSummary, 0)
	for cur.Next(ctx) {
		var quiz domain.Quiz
		if err := cur.Decode(&quiz); err != nil {
			return nil, fmt.Errorf("decode quiz: %w", err)
		}
		out = append(out, quiz.Summary())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate quizzes: %w", err)
	}
	return out, nil
}

func topicFilter(topicID string) bson.M {
	if topicID == "" {
		return bson.M{}
	}
	return bson.M{"topic_id": topicID}
}
