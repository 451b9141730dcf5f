package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState matches every *InvalidStateError.
	ErrInvalidState = errors.New("invalid attempt state")
	// ErrOutOfRange matches every *OutOfRangeError.
	ErrOutOfRange = errors.New("index out of range")
	// ErrData matches every *DataError.
	ErrData = errors.New("invalid quiz data")
	// ErrConfirmationRequired matches every *ConfirmationRequiredError.
	ErrConfirmationRequired = errors.New("submission needs confirmation")

	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound is returned when an attempt id is unknown or already finished.
	ErrAttemptNotFound = errors.New("attempt not found")
)

// InvalidStateError reports an operation invoked in a status that forbids it.
type InvalidStateError struct {
	Op     string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s not allowed while %s", e.Op, e.Status)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// OutOfRangeError reports a question or option index outside [0, Limit).
type OutOfRangeError struct {
	Field string
	Index int
	Limit int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s %d out of range [0, %d)", e.Field, e.Index, e.Limit)
}

func (e *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }

// DataError reports malformed quiz data.
type DataError struct {
	Reason string
}

func (e *DataError) Error() string {
	return "invalid quiz data: " + e.Reason
}

func (e *DataError) Is(target error) bool { return target == ErrData }

// ConfirmationRequiredError is returned by an unconfirmed submit while questions
// are still unanswered. The attempt stays in progress.
type ConfirmationRequiredError struct {
	Unanswered int
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("%d question(s) unanswered, confirm to submit", e.Unanswered)
}

func (e *ConfirmationRequiredError) Is(target error) bool { return target == ErrConfirmationRequired }
