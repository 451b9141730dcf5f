package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

func TestSubmitEndToEnd(t *testing.T) {
	ctx := context.Background()
	service, results, _ := newTestService()

	attempt, err := service.StartAttempt(ctx, "quiz-1", "u1", "Alice", app.AttemptHooks{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	for i, option := range []int{0, 1, 2, 0} {
		if _, err := service.GoToQuestion(ctx, attempt.ID, i); err != nil {
			t.Fatalf("goto %d: %v", i, err)
		}
		if _, err := service.SelectAnswer(ctx, attempt.ID, option); err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
	}

	record, err := service.Submit(ctx, attempt.ID, false)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if record.Result.Score != 75 || record.Result.CorrectCount != 3 || record.Result.TotalQuestions != 4 {
		t.Fatalf("expected 75/3/4, got %+v", record.Result)
	}
	if record.UserID != "u1" || record.Username != "Alice" || record.QuizTitle != "Colors" {
		t.Fatalf("unexpected record identity %+v", record)
	}

	stored, _ := results.ListByQuiz(ctx, "quiz-1")
	if len(stored) != 1 {
		t.Fatalf("expected one stored result, got %d", len(stored))
	}
	if _, err := service.View(ctx, attempt.ID); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected finished attempt to be dropped, got %v", err)
	}
}

func TestSubmitIncompleteNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	service, results, _ := newTestService()

	attempt, _ := service.StartAttempt(ctx, "quiz-1", "u1", "Alice", app.AttemptHooks{})
	_, _ = service.SelectAnswer(ctx, attempt.ID, 0)

	_, err := service.Submit(ctx, attempt.ID, false)
	var confirm *domain.ConfirmationRequiredError
	if !errors.As(err, &confirm) || confirm.Unanswered != 3 {
		t.Fatalf("expected confirmation for 3 unanswered, got %v", err)
	}
	if stored, _ := results.ListByQuiz(ctx, "quiz-1"); len(stored) != 0 {
		t.Fatalf("nothing should be stored before confirmation")
	}

	record, err := service.Submit(ctx, attempt.ID, true)
	if err != nil {
		t.Fatalf("confirmed submit: %v", err)
	}
	if record.Result.Score != 25 {
		t.Fatalf("expected 25, got %d", record.Result.Score)
	}
	if _, err := service.Submit(ctx, attempt.ID, true); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected second submit to fail, got %v", err)
	}
}

func TestTimeoutPersistsResult(t *testing.T) {
	ctx := context.Background()
	service, results, publisher := newTestService()

	var completed []domain.ResultRecord
	attempt, err := service.StartAttempt(ctx, "quiz-1", "u1", "Alice", app.AttemptHooks{
		OnComplete: func(r domain.ResultRecord) { completed = append(completed, r) },
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	for i := 0; i < 60; i++ {
		if _, err := service.Tick(ctx, attempt.ID); err != nil && !errors.Is(err, domain.ErrAttemptNotFound) {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	if len(completed) != 1 {
		t.Fatalf("expected one completion, got %d", len(completed))
	}
	if completed[0].Result.ElapsedSeconds != 60 || completed[0].Result.CompletionType != domain.CompletionTimeout {
		t.Fatalf("unexpected timeout result %+v", completed[0].Result)
	}
	stored, _ := results.ListByQuiz(ctx, "quiz-1")
	if len(stored) != 1 {
		t.Fatalf("expected timeout result stored, got %d", len(stored))
	}
	if attempt.Session.Status() != domain.StatusCompleted {
		t.Fatalf("expected completed session, got %s", attempt.Session.Status())
	}
	if _, err := attempt.Session.Submit(true); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state after timeout, got %v", err)
	}
	if publisher.count(app.ResultCreatedEvent) != 1 {
		t.Fatalf("expected one published result event")
	}
}

func TestLeaderboardKeepsBestAttempt(t *testing.T) {
	ctx := context.Background()
	service, results, _ := newTestService()
	base := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

	seed := []domain.ResultRecord{
		{ID: "r1", UserID: "A", Username: "Alice", QuizID: "quiz-1", Result: domain.Result{Score: 80, ElapsedSeconds: 120}, CreatedAt: base},
		{ID: "r2", UserID: "A", Username: "Alice", QuizID: "quiz-1", Result: domain.Result{Score: 90, ElapsedSeconds: 200}, CreatedAt: base.Add(time.Minute)},
		{ID: "r3", UserID: "B", Username: "Bob", QuizID: "quiz-1", Result: domain.Result{Score: 90, ElapsedSeconds: 150}, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range seed {
		_ = results.SaveResult(ctx, r)
	}

	board, err := service.Leaderboard(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(board.Entries))
	}
	if board.Entries[0].UserID != "B" || board.Entries[1].UserID != "A" || board.Entries[1].DurationSeconds != 200 {
		t.Fatalf("unexpected ranking %+v", board.Entries)
	}

	if _, err := service.Leaderboard(ctx, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	ch, cancel, err := service.SubscribeLeaderboard(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	initial := <-ch
	if len(initial.Entries) != 0 {
		t.Fatalf("expected empty initial board, got %+v", initial.Entries)
	}

	attempt, _ := service.StartAttempt(ctx, "quiz-1", "u1", "Alice", app.AttemptHooks{})
	if _, err := service.Submit(ctx, attempt.ID, true); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	select {
	case update := <-ch:
		if len(update.Entries) != 1 || update.Entries[0].UserID != "u1" {
			t.Fatalf("expected u1 on the board, got %+v", update.Entries)
		}
	case <-time.After(time.Second):
		t.Fatalf("no leaderboard update received")
	}
}

func TestLeaderboardCacheInvalidatedOnSubmit(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	board, _ := service.Leaderboard(ctx, "quiz-1")
	if len(board.Entries) != 0 {
		t.Fatalf("expected empty board")
	}
	attempt, _ := service.StartAttempt(ctx, "quiz-1", "u1", "Alice", app.AttemptHooks{})
	if _, err := service.Submit(ctx, attempt.ID, true); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	board, _ = service.Leaderboard(ctx, "quiz-1")
	if len(board.Entries) != 1 {
		t.Fatalf("expected cached board to be refreshed, got %+v", board.Entries)
	}
}

func TestAbandonDropsAttempt(t *testing.T) {
	ctx := context.Background()
	service, results, _ := newTestService()

	attempt, _ := service.StartAttempt(ctx, "quiz-1", "u1", "Alice", app.AttemptHooks{})
	if err := service.Abandon(ctx, attempt.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if attempt.Session.Status() != domain.StatusAbandoned {
		t.Fatalf("expected abandoned, got %s", attempt.Session.Status())
	}
	if _, err := service.SelectAnswer(ctx, attempt.ID, 1); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt gone, got %v", err)
	}
	if stored, _ := results.ListByQuiz(ctx, "quiz-1"); len(stored) != 0 {
		t.Fatalf("abandoned attempts must not store results")
	}
}

func TestStartAttemptUnknownQuiz(t *testing.T) {
	service, _, _ := newTestService()
	_, err := service.StartAttempt(context.Background(), "quiz-unknown", "u1", "Alice", app.AttemptHooks{})
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
	if !app.IsContractError(err) {
		t.Fatalf("expected contract error classification")
	}
}

func TestUserHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	service, _, _ := newTestService(app.WithClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	}))

	for i := 0; i < 3; i++ {
		attempt, _ := service.StartAttempt(ctx, "quiz-1", "u1", "Alice", app.AttemptHooks{})
		if _, err := service.Submit(ctx, attempt.ID, true); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	history, err := service.UserHistory(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || !history[0].CreatedAt.After(history[1].CreatedAt) {
		t.Fatalf("expected two newest results, got %+v", history)
	}
}

// failingResults fails the first n saves, then delegates.
type failingResults struct {
	*memory.ResultStore
	mu       sync.Mutex
	failures int
}

func (r *failingResults) SaveResult(ctx context.Context, record domain.ResultRecord) error {
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return errors.New("db down")
	}
	r.mu.Unlock()
	return r.ResultStore.SaveResult(ctx, record)
}

func TestSubmitRetriesAfterSaveFailure(t *testing.T) {
	ctx := context.Background()
	results := &failingResults{ResultStore: memory.NewResultStore(), failures: 1}
	service, publisher := newServiceWithResults(results)

	attempt, _ := service.StartAttempt(ctx, "quiz-1", "u1", "Alice", app.AttemptHooks{})
	_, _ = service.SelectAnswer(ctx, attempt.ID, 0)

	if _, err := service.Submit(ctx, attempt.ID, true); err == nil {
		t.Fatalf("expected first submit to surface the save error")
	}
	if publisher.count(app.ResultCreatedEvent) != 0 {
		t.Fatalf("nothing should be published before the result is stored")
	}

	record, err := service.Submit(ctx, attempt.ID, false)
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if record.Result.Score != 25 || record.Result.CompletionType != domain.CompletionSubmitted {
		t.Fatalf("expected the original result to be saved, got %+v", record.Result)
	}
	stored, _ := results.ListByQuiz(ctx, "quiz-1")
	if len(stored) != 1 || stored[0].ID != record.ID {
		t.Fatalf("expected exactly one stored result, got %+v", stored)
	}
	if _, err := service.Submit(ctx, attempt.ID, true); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt dropped after save, got %v", err)
	}
}

func TestTimeoutSaveFailureKeepsResult(t *testing.T) {
	ctx := context.Background()
	results := &failingResults{ResultStore: memory.NewResultStore(), failures: 1}
	service, _ := newServiceWithResults(results)

	attempt, _ := service.StartAttempt(ctx, "quiz-1", "u1", "Alice", app.AttemptHooks{})
	for i := 0; i < 60; i++ {
		_, _ = service.Tick(ctx, attempt.ID)
	}
	if stored, _ := results.ListByQuiz(ctx, "quiz-1"); len(stored) != 0 {
		t.Fatalf("expected the timeout save to have failed")
	}

	record, err := service.Submit(ctx, attempt.ID, false)
	if err != nil {
		t.Fatalf("submit after failed timeout save: %v", err)
	}
	if record.Result.CompletionType != domain.CompletionTimeout || record.Result.ElapsedSeconds != 60 {
		t.Fatalf("expected the timeout result, got %+v", record.Result)
	}
	if stored, _ := results.ListByQuiz(ctx, "quiz-1"); len(stored) != 1 {
		t.Fatalf("expected timeout result stored on retry, got %d", len(stored))
	}
}

// racingResults completes another attempt while a leaderboard read is in flight.
type racingResults struct {
	*memory.ResultStore
	duringList func()
}

func (r *racingResults) ListByQuiz(ctx context.Context, quizID string) ([]domain.ResultRecord, error) {
	rows, err := r.ResultStore.ListByQuiz(ctx, quizID)
	if hook := r.duringList; hook != nil {
		r.duringList = nil
		hook()
	}
	return rows, err
}

func TestLeaderboardNotCachedFromStaleRead(t *testing.T) {
	ctx := context.Background()
	results := &racingResults{ResultStore: memory.NewResultStore()}
	service, _ := newServiceWithResults(results)

	results.duringList = func() {
		attempt, err := service.StartAttempt(ctx, "quiz-1", "u1", "Alice", app.AttemptHooks{})
		if err != nil {
			t.Errorf("start: %v", err)
			return
		}
		if _, err := service.Submit(ctx, attempt.ID, true); err != nil {
			t.Errorf("submit: %v", err)
		}
	}

	stale, err := service.Leaderboard(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(stale.Entries) != 0 {
		t.Fatalf("expected the in-flight read to miss the new result, got %+v", stale.Entries)
	}

	fresh, err := service.Leaderboard(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(fresh.Entries) != 1 || fresh.Entries[0].UserID != "u1" {
		t.Fatalf("expected the stale board not to be cached, got %+v", fresh.Entries)
	}
}

func TestStatsCountsRunningAttempts(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	_, _ = service.StartAttempt(ctx, "quiz-1", "u1", "Alice", app.AttemptHooks{})
	done, _ := service.StartAttempt(ctx, "quiz-1", "u2", "Bob", app.AttemptHooks{})
	if _, err := service.Submit(ctx, done.ID, true); err != nil {
		t.Fatalf("submit: %v", err)
	}

	stats, err := service.Stats(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ActiveAttempts != 1 || stats.Participants != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if _, err := service.Stats(ctx, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string]int
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[routingKey]++
	return nil
}

func (p *recordingPublisher) count(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[routingKey]
}

func newTestService(opts ...app.ServiceOption) (*app.AttemptService, *memory.ResultStore, *recordingPublisher) {
	results := memory.NewResultStore()
	service, publisher := newServiceWithResults(results, opts...)
	return service, results, publisher
}

func newServiceWithResults(results app.ResultRepository, opts ...app.ServiceOption) (*app.AttemptService, *recordingPublisher) {
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID:               "quiz-1",
			Title:            "Colors",
			TimeLimitMinutes: 1,
			Questions: []domain.Question{
				{ID: "q1", Prompt: "Sky?", Options: []string{"blue", "red", "green", "black"}, CorrectOption: 0},
				{ID: "q2", Prompt: "Blood?", Options: []string{"blue", "red", "green", "black"}, CorrectOption: 1},
				{ID: "q3", Prompt: "Grass?", Options: []string{"blue", "red", "green", "black"}, CorrectOption: 2},
				{ID: "q4", Prompt: "Night?", Options: []string{"blue", "red", "green", "black"}, CorrectOption: 3},
			},
		},
	}), 5*time.Minute)
	publisher := &recordingPublisher{events: make(map[string]int)}
	base := []app.ServiceOption{
		app.WithTickInterval(0),
		app.WithLeaderboardCache(memory.NewLeaderboardCache(time.Minute)),
		app.WithEventPublisher(publisher),
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	service := app.NewAttemptService(quizRepo, memory.NewAttemptStore(), results, append(base, opts...)...)
	return service, publisher
}
