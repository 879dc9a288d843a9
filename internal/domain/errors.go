package domain

import "errors"

var (
	// ErrAssessmentNotFound indicates the assessment id does not resolve.
	ErrAssessmentNotFound = errors.New("assessment not found")
	// ErrEmptyAssessment is returned when an assessment has no questions to serve.
	ErrEmptyAssessment = errors.New("assessment has no questions")
	// ErrResultNotFound is returned when a user has no stored result for an assessment.
	ErrResultNotFound = errors.New("assessment result not found")
	// ErrUnauthenticated means no identity was presented.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrPersistence wraps failures talking to the result or assessment store.
	ErrPersistence = errors.New("persistence failure")
	// ErrAttemptNotFound is returned when no live attempt exists for a user.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptActive is returned when the user's attempt is running on another instance.
	ErrAttemptActive = errors.New("attempt already running elsewhere")
	// ErrNoSelection is returned when submitting before choosing an option.
	ErrNoSelection = errors.New("no answer selected")
	// ErrOptionNotFound indicates a selected option is not offered for the current question.
	ErrOptionNotFound = errors.New("option not found")
	// ErrAnswerClosed is returned for answer events outside an active question.
	ErrAnswerClosed = errors.New("question is not accepting answers")
	// ErrInvalidQuestion is returned by authoring-time validation.
	ErrInvalidQuestion = errors.New("invalid question")
)
