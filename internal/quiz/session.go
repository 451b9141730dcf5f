package quiz

import (
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"
)

// Session is one user's attempt at a quiz: not_started -> in_progress ->
// completed (or abandoned). Mutating calls are expected from a single control
// flow; the only concurrent caller is the timer, and the in_progress ->
// completed transition is claimed under mu so a result is built exactly once.
type Session struct {
	quiz     domain.Quiz
	now      func() time.Time
	interval time.Duration
	onTick   func(remaining int)
	onDone   func(domain.Result)

	timer *Timer
	done  chan struct{}

	mu        sync.Mutex
	status    domain.Status
	tracker   *AnswerTracker
	cursor    int
	initial   int
	remaining int
	result    *domain.Result
}

// Option configures a Session.
type Option func(*Session)

// WithTickInterval sets the countdown period. Zero leaves ticking to Tick calls.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) { s.interval = d }
}

// WithClock allows deterministic completion timestamps in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// OnTick registers a callback receiving remaining seconds after every tick.
func OnTick(fn func(remaining int)) Option {
	return func(s *Session) { s.onTick = fn }
}

// OnComplete registers a callback receiving the result once the attempt completes,
// whether by submit or by timeout. It runs without the session lock held.
func OnComplete(fn func(domain.Result)) Option {
	return func(s *Session) { s.onDone = fn }
}

func NewSession(quiz domain.Quiz, opts ...Option) (*Session, error) {
	if err := quiz.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		quiz:     cloneQuiz(quiz),
		now:      time.Now,
		interval: time.Second,
		done:     make(chan struct{}),
		status:   domain.StatusNotStarted,
		tracker:  NewAnswerTracker(len(quiz.Questions)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.timer = NewTimer(
		WithInterval(s.interval),
		WithTickHook(s.handleTick),
		WithExpireHook(s.handleExpire),
	)
	return s, nil
}

// Start begins the attempt and arms the countdown.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusNotStarted {
		return &domain.InvalidStateError{Op: "start", Status: s.status}
	}
	s.tracker = NewAnswerTracker(len(s.quiz.Questions))
	s.cursor = 0
	s.initial = s.quiz.TimeLimitSeconds()
	s.remaining = s.initial
	s.status = domain.StatusInProgress
	return s.timer.Start(s.initial)
}

// SelectAnswer applies option to the question under the cursor. Selecting the
// current option again clears it.
func (s *Session) SelectAnswer(option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireInProgress("select answer"); err != nil {
		return err
	}
	return s.tracker.Select(s.cursor, option)
}

func (s *Session) GoToQuestion(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireInProgress("go to question"); err != nil {
		return err
	}
	if index < 0 || index >= len(s.quiz.Questions) {
		return &domain.OutOfRangeError{Field: "question", Index: index, Limit: len(s.quiz.Questions)}
	}
	s.cursor = index
	return nil
}

// Next moves the cursor forward; it stays put on the last question.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireInProgress("next"); err != nil {
		return err
	}
	if s.cursor < len(s.quiz.Questions)-1 {
		s.cursor++
	}
	return nil
}

// Previous moves the cursor back; it stays put on the first question.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireInProgress("previous"); err != nil {
		return err
	}
	if s.cursor > 0 {
		s.cursor--
	}
	return nil
}

// Tick advances the countdown by one second. Reaching zero submits the attempt
// as a timeout. Outside in_progress it does nothing.
func (s *Session) Tick() {
	s.timer.Tick()
}

// Submit finalizes the attempt. Without confirmation an attempt with
// unanswered questions is not finalized; a *domain.ConfirmationRequiredError
// carries the unanswered count and the attempt stays in progress.
func (s *Session) Submit(confirmed bool) (domain.Result, error) {
	s.mu.Lock()
	if err := s.requireInProgress("submit"); err != nil {
		s.mu.Unlock()
		return domain.Result{}, err
	}
	total := len(s.quiz.Questions)
	if answered := s.tracker.AnsweredCount(); !confirmed && answered < total {
		s.mu.Unlock()
		return domain.Result{}, &domain.ConfirmationRequiredError{Unanswered: total - answered}
	}
	result, err := s.finalizeLocked(domain.CompletionSubmitted)
	s.mu.Unlock()
	if err != nil {
		return domain.Result{}, err
	}

	s.notifyDone(result)
	return result, nil
}

// Abandon ends the attempt without a result and releases the countdown.
func (s *Session) Abandon() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusCompleted || s.status == domain.StatusAbandoned {
		return &domain.InvalidStateError{Op: "abandon", Status: s.status}
	}
	s.status = domain.StatusAbandoned
	s.timer.Stop()
	close(s.done)
	return nil
}

func (s *Session) handleTick(remaining int) {
	s.mu.Lock()
	active := s.status == domain.StatusInProgress
	if active {
		s.remaining = remaining
	}
	s.mu.Unlock()

	if active && s.onTick != nil {
		s.onTick(remaining)
	}
}

func (s *Session) handleExpire() {
	s.mu.Lock()
	if s.status != domain.StatusInProgress {
		// a manual submit won the race
		s.mu.Unlock()
		return
	}
	s.remaining = 0
	result, err := s.finalizeLocked(domain.CompletionTimeout)
	s.mu.Unlock()
	if err != nil {
		return
	}
	s.notifyDone(result)
}

// finalizeLocked claims the completion transition. Callers hold mu and have
// checked the status is in_progress.
func (s *Session) finalizeLocked(how domain.CompletionType) (domain.Result, error) {
	card, err := Score(s.quiz, s.tracker.Snapshot())
	if err != nil {
		return domain.Result{}, err
	}
	// A tick may have decremented the timer while its hook waits on mu.
	s.remaining = s.timer.Remaining()
	result := domain.Result{
		QuizID:         s.quiz.ID,
		Score:          card.Score,
		CorrectCount:   card.CorrectCount,
		TotalQuestions: card.TotalQuestions,
		ElapsedSeconds: s.initial - s.remaining,
		Outcomes:       card.Outcomes,
		CompletionType: how,
		CompletedAt:    s.now().UTC(),
	}
	s.status = domain.StatusCompleted
	s.result = &result
	s.timer.Stop()
	close(s.done)
	return result, nil
}

func (s *Session) notifyDone(result domain.Result) {
	if s.onDone != nil {
		s.onDone(result)
	}
}

func (s *Session) requireInProgress(op string) error {
	if s.status != domain.StatusInProgress {
		return &domain.InvalidStateError{Op: op, Status: s.status}
	}
	return nil
}

func (s *Session) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Session) RemainingSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Answers returns a copy of the current selections.
func (s *Session) Answers() Answers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Snapshot()
}

// Result returns the finalized result once the attempt is completed.
func (s *Session) Result() (domain.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return domain.Result{}, false
	}
	return *s.result, true
}

// Done is closed when the attempt completes or is abandoned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Quiz() domain.Quiz {
	return s.quiz
}

// QuestionView is a question without its answer key.
type QuestionView struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// View is what a client renders for the current state of an attempt.
type View struct {
	QuizID           string        `json:"quizId"`
	Title            string        `json:"title"`
	Status           domain.Status `json:"status"`
	Cursor           int           `json:"cursor"`
	TotalQuestions   int           `json:"totalQuestions"`
	Question         QuestionView  `json:"question"`
	SelectedOption   int           `json:"selectedOption"`
	AnsweredCount    int           `json:"answeredCount"`
	RemainingSeconds int           `json:"remainingSeconds"`
}

func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	question := s.quiz.Questions[s.cursor]
	selected, ok := s.tracker.Get(s.cursor)
	if !ok {
		selected = domain.Unanswered
	}
	return View{
		QuizID:         s.quiz.ID,
		Title:          s.quiz.Title,
		Status:         s.status,
		Cursor:         s.cursor,
		TotalQuestions: len(s.quiz.Questions),
		Question: QuestionView{
			ID:      question.ID,
			Prompt:  question.Prompt,
			Options: append([]string(nil), question.Options...),
		},
		SelectedOption:   selected,
		AnsweredCount:    s.tracker.AnsweredCount(),
		RemainingSeconds: s.remaining,
	}
}

func cloneQuiz(q domain.Quiz) domain.Quiz {
	out := q
	out.Questions = make([]domain.Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		out.Questions[i] = question
	}
	return out
}
