package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// OptionCount is the number of options every question carries.
	OptionCount = 4
	// Unanswered marks a question without a selected option.
	Unanswered = -1

	MinTimeLimitMinutes = 1
	MaxTimeLimitMinutes = 120
)

// Status is the lifecycle state of a quiz attempt.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	// StatusAbandoned is terminal: the user left before submitting, no result is kept.
	StatusAbandoned Status = "abandoned"
)

// CompletionType records how an attempt reached completion.
type CompletionType string

const (
	CompletionSubmitted CompletionType = "submitted"
	CompletionTimeout   CompletionType = "timeout"
)

// Question models an MCQ question with exactly four options and one correct option.
type Question struct {
	ID            string   `json:"id" bson:"id"`
	Prompt        string   `json:"prompt" bson:"prompt"`
	Options       []string `json:"options" bson:"options"`
	CorrectOption int      `json:"correctOption" bson:"correct_option"`
}

// Quiz is a timed collection of questions.
type Quiz struct {
	ID               string     `json:"id" bson:"_id"`
	Title            string     `json:"title" bson:"title"`
	TopicID          string     `json:"topicId,omitempty" bson:"topic_id,omitempty"`
	TimeLimitMinutes int        `json:"timeLimitMinutes" bson:"time_limit_minutes"`
	Questions        []Question `json:"questions" bson:"questions"`
}

// TimeLimitSeconds is the countdown an attempt starts from.
func (q Quiz) TimeLimitSeconds() int {
	return q.TimeLimitMinutes * 60
}

// Summary is the catalogue view of a quiz; it carries no questions.
func (q Quiz) Summary() QuizSummary {
	return QuizSummary{
		ID:               q.ID,
		Title:            q.Title,
		TopicID:          q.TopicID,
		TimeLimitMinutes: q.TimeLimitMinutes,
		QuestionCount:    len(q.Questions),
	}
}

// QuizSummary is what a quiz picker lists.
type QuizSummary struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	TopicID          string `json:"topicId,omitempty"`
	TimeLimitMinutes int    `json:"timeLimitMinutes"`
	QuestionCount    int    `json:"questionCount"`
}

// Validate checks the preconditions a session cannot proceed without.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return &DataError{Reason: fmt.Sprintf("quiz %q has no questions", q.ID)}
	}
	if q.TimeLimitMinutes < MinTimeLimitMinutes || q.TimeLimitMinutes > MaxTimeLimitMinutes {
		return &DataError{Reason: fmt.Sprintf("quiz %q time limit %d outside %d..%d minutes",
			q.ID, q.TimeLimitMinutes, MinTimeLimitMinutes, MaxTimeLimitMinutes)}
	}
	for i, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks the option layout and the answer key.
func (q Question) Validate() error {
	if len(q.Options) != OptionCount {
		return &DataError{Reason: fmt.Sprintf("question %q has %d options, want %d", q.ID, len(q.Options), OptionCount)}
	}
	for i, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return &DataError{Reason: fmt.Sprintf("question %q option %d is empty", q.ID, i)}
		}
	}
	if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
		return &DataError{Reason: fmt.Sprintf("question %q correct option %d out of range", q.ID, q.CorrectOption)}
	}
	return nil
}

// QuestionOutcome is the per-question part of a result.
type QuestionOutcome struct {
	QuestionID     string `json:"questionId" bson:"question_id"`
	SelectedOption int    `json:"selectedOption" bson:"selected_option"`
	Correct        bool   `json:"correct" bson:"correct"`
}

// Answered reports whether an option was selected.
func (o QuestionOutcome) Answered() bool {
	return o.SelectedOption != Unanswered
}

// Result is the finalized outcome of one completed attempt.
type Result struct {
	QuizID         string            `json:"quizId" bson:"quiz_id"`
	Score          int               `json:"score" bson:"score"`
	CorrectCount   int               `json:"correctCount" bson:"correct_count"`
	TotalQuestions int               `json:"totalQuestions" bson:"total_questions"`
	ElapsedSeconds int               `json:"elapsedSeconds" bson:"elapsed_seconds"`
	Outcomes       []QuestionOutcome `json:"outcomes" bson:"outcomes"`
	CompletionType CompletionType    `json:"completionType" bson:"completion_type"`
	CompletedAt    time.Time         `json:"completedAt" bson:"completed_at"`
}

// ResultRecord is a result as persisted for a user.
type ResultRecord struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"userId" bson:"user_id"`
	Username  string    `json:"username" bson:"username"`
	QuizID    string    `json:"quizId" bson:"quiz_id"`
	QuizTitle string    `json:"quizTitle" bson:"quiz_title"`
	Result    Result    `json:"result" bson:"result"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// LeaderboardEntry projects the fields ranking needs.
func (r ResultRecord) LeaderboardEntry() LeaderboardEntry {
	return LeaderboardEntry{
		UserID:          r.UserID,
		Username:        r.Username,
		QuizID:          r.QuizID,
		Score:           r.Result.Score,
		DurationSeconds: r.Result.ElapsedSeconds,
		CreatedAt:       r.CreatedAt,
	}
}

// LeaderboardEntry is one persisted submission as seen by the ranking.
type LeaderboardEntry struct {
	UserID          string    `json:"userId"`
	Username        string    `json:"username"`
	QuizID          string    `json:"quizId"`
	Score           int       `json:"score"`
	DurationSeconds int       `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
}

// RankedEntry is a user's best attempt with its 0-based position.
type RankedEntry struct {
	LeaderboardEntry
	Rank int `json:"rank"`
}

// Leaderboard captures the ordered ranking for a quiz.
type Leaderboard struct {
	QuizID    string        `json:"quizId"`
	Entries   []RankedEntry `json:"entries"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// QuizStats counts attempts in flight and users on the leaderboard.
type QuizStats struct {
	QuizID         string `json:"quizId"`
	ActiveAttempts int64  `json:"activeAttempts"`
	Participants   int    `json:"participants"`
}
