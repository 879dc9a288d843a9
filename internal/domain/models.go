package domain

import (
	"fmt"
	"time"
)

// Identity is the current user as resolved by an identity provider.
type Identity struct {
	UserID      string `json:"userId"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Question is a multiple-choice question with exactly one correct answer.
type Question struct {
	Text          string   `json:"text"`
	CorrectAnswer string   `json:"correctAnswer"`
	Distractors   []string `json:"distractors"`
}

// Validate rejects questions that would render ambiguously. A distractor equal
// to the correct answer would show up twice once options are shuffled.
func (q Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("%w: empty question text", ErrInvalidQuestion)
	}
	if q.CorrectAnswer == "" {
		return fmt.Errorf("%w: empty correct answer for %q", ErrInvalidQuestion, q.Text)
	}
	seen := make(map[string]struct{}, len(q.Distractors))
	for _, d := range q.Distractors {
		if d == "" {
			return fmt.Errorf("%w: empty distractor for %q", ErrInvalidQuestion, q.Text)
		}
		if d == q.CorrectAnswer {
			return fmt.Errorf("%w: correct answer %q repeated as distractor", ErrInvalidQuestion, d)
		}
		if _, dup := seen[d]; dup {
			return fmt.Errorf("%w: duplicate distractor %q", ErrInvalidQuestion, d)
		}
		seen[d] = struct{}{}
	}
	return nil
}

// Options returns the correct answer followed by the distractors, in authoring order.
func (q Question) Options() []string {
	opts := make([]string, 0, 1+len(q.Distractors))
	opts = append(opts, q.CorrectAnswer)
	return append(opts, q.Distractors...)
}

// Assessment is an ordered set of questions. Question order defines the
// index used throughout an attempt.
type Assessment struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Summary is the listing view of an assessment.
func (a Assessment) Summary() AssessmentSummary {
	return AssessmentSummary{
		ID:            a.ID,
		Title:         a.Title,
		QuestionCount: len(a.Questions),
		CreatedAt:     a.CreatedAt,
	}
}

// AssessmentSummary is a listing row.
type AssessmentSummary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	QuestionCount int       `json:"questionCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AssessmentResult is the persisted outcome of one completed attempt.
// Answers has one slot per question; unanswered slots are empty strings.
type AssessmentResult struct {
	ID             string    `json:"id"`
	AssessmentID   string    `json:"assessmentId"`
	UserID         string    `json:"userId"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	CompletedAt    time.Time `json:"completedAt"`
	Answers        []string  `json:"answers"`
}

// ReviewItem pairs one question with the answer recorded for it.
type ReviewItem struct {
	Index         int      `json:"index"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Answer        string   `json:"answer"`
	Correct       bool     `json:"correct"`
}

// ResultReview is a stored result joined with its assessment content.
type ResultReview struct {
	Result     AssessmentResult `json:"result"`
	Title      string           `json:"title"`
	Percentage float64          `json:"percentage"`
	Items      []ReviewItem     `json:"items"`
}
