package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/quiz"
	"github.com/google/uuid"
)

// ResultCreatedEvent is the routing key published for every persisted result.
const ResultCreatedEvent = "quiz.result.created"

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AttemptRepository tracks attempts that are still running (in-memory, Redis, etc).
type AttemptRepository interface {
	Put(attempt *Attempt)
	Get(attemptID string) (*Attempt, bool)
	Delete(attemptID string)
	ActiveForQuiz(ctx context.Context, quizID string) (int64, error)
}

// QuizCatalog lists the quizzes a client can pick from.
type QuizCatalog interface {
	// ListQuizzes filters by topic when topicID is non-empty.
	ListQuizzes(ctx context.Context, topicID string) ([]domain.QuizSummary, error)
}

// ResultRepository persists finished attempts.
type ResultRepository interface {
	SaveResult(ctx context.Context, record domain.ResultRecord) error
	ListByQuiz(ctx context.Context, quizID string) ([]domain.ResultRecord, error)
	// ListByUser returns newest first; limit <= 0 means no limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.ResultRecord, error)
}

// LeaderboardCache keeps ranked boards between result submissions.
type LeaderboardCache interface {
	GetLeaderboard(ctx context.Context, quizID string) (domain.Leaderboard, bool, error)
	SetLeaderboard(ctx context.Context, board domain.Leaderboard) error
	InvalidateLeaderboard(ctx context.Context, quizID string) error
}

// EventPublisher fans out domain events to other services.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Attempt binds a running session to the user taking it.
type Attempt struct {
	ID        string
	QuizID    string
	QuizTitle string
	UserID    string
	Username  string
	StartedAt time.Time
	Session   *quiz.Session

	// persistMu guards record: a completed attempt is saved exactly once,
	// however many times saving is retried.
	persistMu sync.Mutex
	record    *domain.ResultRecord
	recordID  string
}

// AttemptHooks lets a transport observe an attempt it did not drive, such as
// countdown ticks and a timeout completion.
type AttemptHooks struct {
	OnTick     func(remaining int)
	OnComplete func(domain.ResultRecord)
}

// AttemptService contains the quiz-taking and leaderboard use cases.
type AttemptService struct {
	quizzes  QuizRepository
	attempts AttemptRepository
	results  ResultRepository
	boards   LeaderboardCache
	catalog  QuizCatalog
	events   EventPublisher
	log      *slog.Logger

	tickInterval   time.Duration
	persistTimeout time.Duration
	now            func() time.Time
	newID          func() string

	hub *leaderboardHub

	// boardMu orders cache writes against invalidations; boardGen counts
	// results saved per quiz so a board ranked from older rows is not cached.
	boardMu  sync.Mutex
	boardGen map[string]uint64
}

// ServiceOption configures an AttemptService.
type ServiceOption func(*AttemptService)

func WithLeaderboardCache(cache LeaderboardCache) ServiceOption {
	return func(s *AttemptService) { s.boards = cache }
}

func WithQuizCatalog(catalog QuizCatalog) ServiceOption {
	return func(s *AttemptService) { s.catalog = catalog }
}

func WithEventPublisher(p EventPublisher) ServiceOption {
	return func(s *AttemptService) { s.events = p }
}

func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *AttemptService) { s.log = log }
}

// WithTickInterval sets the countdown period of new attempts; zero means the
// caller drives the countdown through Tick.
func WithTickInterval(d time.Duration) ServiceOption {
	return func(s *AttemptService) { s.tickInterval = d }
}

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *AttemptService) { s.now = now }
}

func NewAttemptService(quizzes QuizRepository, attempts AttemptRepository, results ResultRepository, opts ...ServiceOption) *AttemptService {
	s := &AttemptService{
		quizzes:        quizzes,
		attempts:       attempts,
		results:        results,
		log:            slog.Default(),
		tickInterval:   time.Second,
		persistTimeout: 10 * time.Second,
		now:            time.Now,
		newID:          func() string { return uuid.NewString() },
		hub:            newLeaderboardHub(),
		boardGen:       make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartAttempt loads the quiz and starts a timed attempt for the user.
func (s *AttemptService) StartAttempt(ctx context.Context, quizID, userID, username string, hooks AttemptHooks) (*Attempt, error) {
	q, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	attempt := &Attempt{
		ID:        s.newID(),
		QuizID:    q.ID,
		QuizTitle: q.Title,
		UserID:    userID,
		Username:  username,
		StartedAt: s.now().UTC(),
	}
	session, err := quiz.NewSession(q,
		quiz.WithTickInterval(s.tickInterval),
		quiz.WithClock(s.now),
		quiz.OnTick(hooks.OnTick),
		quiz.OnComplete(func(result domain.Result) {
			// Submit persists its own results; only timeouts arrive unattended.
			if result.CompletionType != domain.CompletionTimeout {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
			defer cancel()
			record, err := s.complete(ctx, attempt, result)
			if err != nil {
				// The attempt stays registered; a later Submit saves it.
				s.log.Error("persist timed out attempt", "attempt", attempt.ID, "quiz", attempt.QuizID, "err", err)
				return
			}
			if hooks.OnComplete != nil {
				hooks.OnComplete(record)
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	attempt.Session = session

	s.attempts.Put(attempt)
	if err := session.Start(); err != nil {
		s.attempts.Delete(attempt.ID)
		return nil, err
	}
	s.log.Info("attempt started", "attempt", attempt.ID, "quiz", q.ID, "user", userID)
	return attempt, nil
}

// SelectAnswer toggles an option on the attempt's current question.
func (s *AttemptService) SelectAnswer(_ context.Context, attemptID string, option int) (quiz.View, error) {
	return s.mutate(attemptID, func(session *quiz.Session) error {
		return session.SelectAnswer(option)
	})
}

func (s *AttemptService) GoToQuestion(_ context.Context, attemptID string, index int) (quiz.View, error) {
	return s.mutate(attemptID, func(session *quiz.Session) error {
		return session.GoToQuestion(index)
	})
}

func (s *AttemptService) Next(_ context.Context, attemptID string) (quiz.View, error) {
	return s.mutate(attemptID, (*quiz.Session).Next)
}

func (s *AttemptService) Previous(_ context.Context, attemptID string) (quiz.View, error) {
	return s.mutate(attemptID, (*quiz.Session).Previous)
}

// Tick advances a manually driven countdown by one second.
func (s *AttemptService) Tick(_ context.Context, attemptID string) (quiz.View, error) {
	return s.mutate(attemptID, func(session *quiz.Session) error {
		session.Tick()
		return nil
	})
}

// Submit finalizes an attempt and persists its result. An unconfirmed submit
// with unanswered questions returns *domain.ConfirmationRequiredError.
// An attempt that completed but failed to save is saved again.
func (s *AttemptService) Submit(ctx context.Context, attemptID string, confirmed bool) (domain.ResultRecord, error) {
	attempt, ok := s.attempts.Get(attemptID)
	if !ok {
		return domain.ResultRecord{}, domain.ErrAttemptNotFound
	}
	if result, done := attempt.Session.Result(); done {
		return s.complete(ctx, attempt, result)
	}
	result, err := attempt.Session.Submit(confirmed)
	if err != nil {
		return domain.ResultRecord{}, err
	}
	return s.complete(ctx, attempt, result)
}

// Abandon drops an attempt without recording a result.
func (s *AttemptService) Abandon(_ context.Context, attemptID string) error {
	attempt, ok := s.attempts.Get(attemptID)
	if !ok {
		return domain.ErrAttemptNotFound
	}
	s.attempts.Delete(attemptID)
	if err := attempt.Session.Abandon(); err != nil {
		return err
	}
	s.log.Info("attempt abandoned", "attempt", attemptID, "quiz", attempt.QuizID, "user", attempt.UserID)
	return nil
}

// View returns the current state of a running attempt.
func (s *AttemptService) View(_ context.Context, attemptID string) (quiz.View, error) {
	attempt, ok := s.attempts.Get(attemptID)
	if !ok {
		return quiz.View{}, domain.ErrAttemptNotFound
	}
	return attempt.Session.Snapshot(), nil
}

// Leaderboard ranks every user's best result for a quiz.
func (s *AttemptService) Leaderboard(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	if s.boards != nil {
		board, ok, err := s.boards.GetLeaderboard(ctx, quizID)
		if err != nil {
			s.log.Warn("leaderboard cache read failed", "quiz", quizID, "err", err)
		} else if ok {
			return board, nil
		}
	}

	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.Leaderboard{}, err
	}
	gen := s.generation(quizID)
	board, err := s.rankQuiz(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	if s.boards != nil {
		s.boardMu.Lock()
		if s.boardGen[quizID] == gen {
			if err := s.boards.SetLeaderboard(ctx, board); err != nil {
				s.log.Warn("leaderboard cache write failed", "quiz", quizID, "err", err)
			}
		}
		s.boardMu.Unlock()
	}
	return board, nil
}

// ListQuizzes returns the catalogue, optionally narrowed to one topic.
func (s *AttemptService) ListQuizzes(ctx context.Context, topicID string) ([]domain.QuizSummary, error) {
	if s.catalog == nil {
		return []domain.QuizSummary{}, nil
	}
	return s.catalog.ListQuizzes(ctx, topicID)
}

// Stats reports live and finished activity for a quiz.
func (s *AttemptService) Stats(ctx context.Context, quizID string) (domain.QuizStats, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.QuizStats{}, err
	}
	active, err := s.attempts.ActiveForQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizStats{}, err
	}
	board, err := s.Leaderboard(ctx, quizID)
	if err != nil {
		return domain.QuizStats{}, err
	}
	return domain.QuizStats{
		QuizID:         quizID,
		ActiveAttempts: active,
		Participants:   len(board.Entries),
	}, nil
}

// SubscribeLeaderboard returns a channel that receives the ranked board now and
// after every new result for the quiz. The caller must invoke the returned
// cancel function to avoid leaks.
func (s *AttemptService) SubscribeLeaderboard(ctx context.Context, quizID string) (<-chan domain.Leaderboard, func(), error) {
	board, err := s.Leaderboard(ctx, quizID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.subscribe(quizID, board)
	return ch, cancel, nil
}

// UserHistory lists a user's results, newest first.
func (s *AttemptService) UserHistory(ctx context.Context, userID string, limit int) ([]domain.ResultRecord, error) {
	return s.results.ListByUser(ctx, userID, limit)
}

func (s *AttemptService) mutate(attemptID string, op func(*quiz.Session) error) (quiz.View, error) {
	attempt, ok := s.attempts.Get(attemptID)
	if !ok {
		return quiz.View{}, domain.ErrAttemptNotFound
	}
	if err := op(attempt.Session); err != nil {
		return quiz.View{}, err
	}
	return attempt.Session.Snapshot(), nil
}

// complete persists a finished attempt and refreshes everything derived from
// results. The attempt is only dropped once the result is stored.
func (s *AttemptService) complete(ctx context.Context, attempt *Attempt, result domain.Result) (domain.ResultRecord, error) {
	attempt.persistMu.Lock()
	defer attempt.persistMu.Unlock()
	if attempt.record != nil {
		return *attempt.record, nil
	}
	if attempt.recordID == "" {
		attempt.recordID = s.newID()
	}

	record := domain.ResultRecord{
		ID:        attempt.recordID,
		UserID:    attempt.UserID,
		Username:  attempt.Username,
		QuizID:    attempt.QuizID,
		QuizTitle: attempt.QuizTitle,
		Result:    result,
		CreatedAt: result.CompletedAt,
	}
	if err := s.results.SaveResult(ctx, record); err != nil {
		return domain.ResultRecord{}, fmt.Errorf("save result for attempt %s: %w", attempt.ID, err)
	}
	attempt.record = &record
	s.attempts.Delete(attempt.ID)
	s.log.Info("attempt completed",
		"attempt", attempt.ID,
		"quiz", attempt.QuizID,
		"user", attempt.UserID,
		"score", result.Score,
		"elapsed", result.ElapsedSeconds,
		"completion", result.CompletionType,
	)

	s.boardMu.Lock()
	s.boardGen[attempt.QuizID]++
	if s.boards != nil {
		if err := s.boards.InvalidateLeaderboard(ctx, attempt.QuizID); err != nil {
			s.log.Warn("leaderboard cache invalidate failed", "quiz", attempt.QuizID, "err", err)
		}
	}
	s.boardMu.Unlock()
	if s.events != nil {
		if err := s.events.Publish(ctx, ResultCreatedEvent, record); err != nil {
			s.log.Warn("publish result event failed", "result", record.ID, "err", err)
		}
	}
	if s.hub.watched(attempt.QuizID) {
		board, err := s.rankQuiz(ctx, attempt.QuizID)
		if err != nil {
			s.log.Warn("refresh leaderboard failed", "quiz", attempt.QuizID, "err", err)
		} else {
			s.hub.broadcast(board)
		}
	}
	return record, nil
}

func (s *AttemptService) generation(quizID string) uint64 {
	s.boardMu.Lock()
	defer s.boardMu.Unlock()
	return s.boardGen[quizID]
}

func (s *AttemptService) rankQuiz(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	records, err := s.results.ListByQuiz(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	entries := make([]domain.LeaderboardEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, record.LeaderboardEntry())
	}
	return domain.Leaderboard{
		QuizID:    quizID,
		Entries:   quiz.Rank(entries),
		UpdatedAt: s.now().UTC(),
	}, nil
}

// IsContractError reports whether err is a caller mistake rather than an
// infrastructure failure.
func IsContractError(err error) bool {
	return errors.Is(err, domain.ErrInvalidState) ||
		errors.Is(err, domain.ErrOutOfRange) ||
		errors.Is(err, domain.ErrData) ||
		errors.Is(err, domain.ErrConfirmationRequired) ||
		errors.Is(err, domain.ErrAttemptNotFound) ||
		errors.Is(err, domain.ErrQuizNotFound)
}
