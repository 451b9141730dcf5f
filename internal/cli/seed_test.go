package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"quiz-attempt-service/internal/domain"
)

type recordingWriter struct {
	saved []string
	fail  error
}

func (w *recordingWriter) SaveQuiz(_ context.Context, quiz domain.Quiz) error {
	if w.fail != nil {
		return w.fail
	}
	w.saved = append(w.saved, quiz.ID)
	return nil
}

func TestReadQuizFileShipsValidQuizzes(t *testing.T) {
	quizzes, err := readQuizFile(filepath.Join("..", "..", "config", "quizzes.json"))
	if err != nil {
		t.Fatalf("read bundled quizzes: %v", err)
	}
	if len(quizzes) != 2 || quizzes[1].TopicID != "geography" {
		t.Fatalf("unexpected quizzes %+v", quizzes)
	}
}

func TestReadQuizFileRejectsInvalidQuiz(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizzes.json")
	data := `[{"id":"bad","title":"Bad","timeLimitMinutes":0,"questions":[{"id":"q1","prompt":"?","options":["a","b","c","d"],"correctOption":0}]}]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := readQuizFile(path); !errors.Is(err, domain.ErrData) {
		t.Fatalf("expected data error, got %v", err)
	}
}

func TestSeedQuizzesWritesEachQuiz(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	writer := &recordingWriter{}
	b := &backends{quizWriter: writer}

	n, err := seedQuizzes(context.Background(), b, []domain.Quiz{{ID: "a"}, {ID: "b"}}, log)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 seeded, got %d (%v)", n, err)
	}
	if len(writer.saved) != 2 || writer.saved[0] != "a" {
		t.Fatalf("unexpected writes %v", writer.saved)
	}

	if _, err := seedQuizzes(context.Background(), &backends{}, []domain.Quiz{{ID: "a"}}, log); !errors.Is(err, errNoQuizStore) {
		t.Fatalf("expected missing store error, got %v", err)
	}
}
