package quiz

import "quiz-attempt-service/internal/domain"

// Answers maps a question index to the selected option index.
type Answers map[int]int

// AnswerTracker records one attempt's selections. Out-of-range indices are
// rejected with *domain.OutOfRangeError and never clamped.
type AnswerTracker struct {
	questionCount int
	selected      Answers
}

func NewAnswerTracker(questionCount int) *AnswerTracker {
	return &AnswerTracker{
		questionCount: questionCount,
		selected:      make(Answers, questionCount),
	}
}

// Select sets the option for a question. Selecting the option already chosen
// clears the question instead.
func (t *AnswerTracker) Select(question, option int) error {
	if question < 0 || question >= t.questionCount {
		return &domain.OutOfRangeError{Field: "question", Index: question, Limit: t.questionCount}
	}
	if option < 0 || option >= domain.OptionCount {
		return &domain.OutOfRangeError{Field: "option", Index: option, Limit: domain.OptionCount}
	}
	if current, ok := t.selected[question]; ok && current == option {
		delete(t.selected, question)
		return nil
	}
	t.selected[question] = option
	return nil
}

// Get returns the selected option, or false when the question is unanswered.
func (t *AnswerTracker) Get(question int) (int, bool) {
	option, ok := t.selected[question]
	return option, ok
}

func (t *AnswerTracker) AnsweredCount() int {
	return len(t.selected)
}

// Snapshot returns a copy safe to hand to scoring.
func (t *AnswerTracker) Snapshot() Answers {
	out := make(Answers, len(t.selected))
	for q, opt := range t.selected {
		out[q] = opt
	}
	return out
}
