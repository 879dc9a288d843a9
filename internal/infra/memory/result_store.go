package memory

import (
	"context"
	"sort"
	"sync"

	"assessment-service/internal/domain"
	"github.com/google/uuid"
)

// ResultStore is an in-memory implementation of app.ResultRepository.
// Creating a result for a (assessment, user) pair that already has one
// replaces it.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]domain.AssessmentResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]domain.AssessmentResult)}
}

func (s *ResultStore) FindResults(_ context.Context, assessmentID, userID string) ([]domain.AssessmentResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found []domain.AssessmentResult
	for _, r := range s.results {
		if r.AssessmentID == assessmentID && r.UserID == userID {
			found = append(found, cloneResult(r))
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CompletedAt.Before(found[j].CompletedAt) })
	return found, nil
}

func (s *ResultStore) DeleteResult(_ context.Context, resultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[resultID]; !ok {
		return domain.ErrResultNotFound
	}
	delete(s.results, resultID)
	return nil
}

func (s *ResultStore) CreateResult(_ context.Context, result domain.AssessmentResult) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	for id, existing := range s.results {
		if existing.AssessmentID == result.AssessmentID && existing.UserID == result.UserID {
			delete(s.results, id)
		}
	}
	s.results[result.ID] = cloneResult(result)
	return result.ID, nil
}

// Seed inserts a result as-is, bypassing the one-per-user replacement.
func (s *ResultStore) Seed(result domain.AssessmentResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.ID] = cloneResult(result)
}

func cloneResult(r domain.AssessmentResult) domain.AssessmentResult {
	answers := make([]string, len(r.Answers))
	copy(answers, r.Answers)
	r.Answers = answers
	return r
}
