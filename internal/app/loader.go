package app

import (
	"context"
	"fmt"
	"log"

	"assessment-service/internal/domain"
)

// AssessmentRepository loads assessment content (from cache/backing store).
type AssessmentRepository interface {
	GetAssessment(ctx context.Context, assessmentID string) (domain.Assessment, error)
	ListAssessments(ctx context.Context) ([]domain.AssessmentSummary, error)
}

// ResultRepository persists completed attempts.
type ResultRepository interface {
	FindResults(ctx context.Context, assessmentID, userID string) ([]domain.AssessmentResult, error)
	DeleteResult(ctx context.Context, resultID string) error
	CreateResult(ctx context.Context, result domain.AssessmentResult) (string, error)
}

// SessionLoader resolves everything an attempt needs before its first question.
type SessionLoader struct {
	assessments AssessmentRepository
	results     ResultRepository
}

func NewSessionLoader(assessments AssessmentRepository, results ResultRepository) *SessionLoader {
	return &SessionLoader{assessments: assessments, results: results}
}

// Load fetches the assessment and, on retake, purges the user's prior results.
// Purge failures are logged and do not fail the load.
func (l *SessionLoader) Load(ctx context.Context, assessmentID string, user domain.Identity, isRetake bool) (domain.Assessment, error) {
	if user.UserID == "" {
		return domain.Assessment{}, domain.ErrUnauthenticated
	}

	assessment, err := l.assessments.GetAssessment(ctx, assessmentID)
	if err != nil {
		return domain.Assessment{}, err
	}
	if len(assessment.Questions) == 0 {
		return domain.Assessment{}, fmt.Errorf("%w: %s", domain.ErrEmptyAssessment, assessmentID)
	}

	if isRetake {
		l.purge(ctx, assessmentID, user.UserID)
	}
	return assessment, nil
}

func (l *SessionLoader) purge(ctx context.Context, assessmentID, userID string) {
	prior, err := l.results.FindResults(ctx, assessmentID, userID)
	if err != nil {
		log.Printf("retake: find results for assessment %s user %s: %v", assessmentID, userID, err)
		return
	}
	for _, result := range prior {
		if err := l.results.DeleteResult(ctx, result.ID); err != nil {
			log.Printf("retake: delete result %s: %v", result.ID, err)
		}
	}
}
