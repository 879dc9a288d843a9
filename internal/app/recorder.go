package app

import (
	"context"
	"fmt"
	"log"

	"assessment-service/internal/domain"
	"github.com/google/uuid"
)

// ResultRecorder assembles and persists the final result of an attempt.
type ResultRecorder struct {
	results ResultRepository
	clock   Clock
	newID   func() string
}

func NewResultRecorder(results ResultRepository, clock Clock) *ResultRecorder {
	return &ResultRecorder{results: results, clock: clock, newID: uuid.NewString}
}

// Build creates the result record. The answers slice is copied.
func (r *ResultRecorder) Build(assessmentID, userID string, score int, answers []string) domain.AssessmentResult {
	recorded := make([]string, len(answers))
	copy(recorded, answers)
	return domain.AssessmentResult{
		ID:             r.newID(),
		AssessmentID:   assessmentID,
		UserID:         userID,
		Score:          score,
		TotalQuestions: len(answers),
		CompletedAt:    r.clock.Now().UTC(),
		Answers:        recorded,
	}
}

// Record persists the result and returns the id the store assigned.
func (r *ResultRecorder) Record(ctx context.Context, result domain.AssessmentResult) (string, error) {
	id, err := r.results.CreateResult(ctx, result)
	if err != nil {
		log.Printf("record result for assessment %s user %s: %v", result.AssessmentID, result.UserID, err)
		return "", fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return id, nil
}
