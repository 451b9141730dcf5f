package quiz

import (
	"fmt"

	"quiz-attempt-service/internal/domain"
)

// Scorecard is the outcome of grading an answer set against a quiz.
type Scorecard struct {
	Score          int
	CorrectCount   int
	TotalQuestions int
	Outcomes       []domain.QuestionOutcome
}

// Score grades answers against the quiz's answer key. Unanswered questions are
// never correct. The score is the percentage of correct answers rounded half-up.
func Score(quiz domain.Quiz, answers Answers) (Scorecard, error) {
	total := len(quiz.Questions)
	if total == 0 {
		return Scorecard{}, &domain.DataError{Reason: fmt.Sprintf("quiz %q has no questions", quiz.ID)}
	}

	outcomes := make([]domain.QuestionOutcome, total)
	correct := 0
	for i, question := range quiz.Questions {
		outcome := domain.QuestionOutcome{QuestionID: question.ID, SelectedOption: domain.Unanswered}
		if option, ok := answers[i]; ok {
			outcome.SelectedOption = option
			outcome.Correct = option == question.CorrectOption
		}
		if outcome.Correct {
			correct++
		}
		outcomes[i] = outcome
	}

	return Scorecard{
		Score:          Percentage(correct, total),
		CorrectCount:   correct,
		TotalQuestions: total,
		Outcomes:       outcomes,
	}, nil
}

// Percentage computes round-half-up(correct*100/total) in integer arithmetic.
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*correct + total) / (2 * total)
}
