package app

import (
	"context"
	"log"
	"sort"

	"assessment-service/internal/domain"
)

// AttemptRegistry abstracts where live attempts are tracked (in-memory, Redis, etc).
// At most one attempt is live per key.
type AttemptRegistry interface {
	// Register stores the attempt and returns the one it displaced, if any.
	Register(key string, attempt *Attempt) *Attempt
	Get(key string) (*Attempt, bool)
	// Release removes the entry only if it still points at attempt.
	Release(key string, attempt *Attempt)
}

// LivenessChecker is implemented by registries shared between instances.
// Active reports whether any instance holds a live attempt for key.
type LivenessChecker interface {
	Active(ctx context.Context, key string) (bool, error)
}

// AttemptService contains the assessment-taking use cases.
type AttemptService struct {
	assessments AssessmentRepository
	results     ResultRepository
	attempts    AttemptRegistry
	loader      *SessionLoader
	recorder    *ResultRecorder
	shuffler    *Shuffler
	clock       Clock
	timing      Timing
}

// Option customizes an AttemptService.
type Option func(*AttemptService)

// WithClock replaces the system clock, used by tests for virtual time.
func WithClock(clock Clock) Option {
	return func(s *AttemptService) { s.clock = clock }
}

func WithTiming(timing Timing) Option {
	return func(s *AttemptService) { s.timing = timing }
}

func WithShuffler(shuffler *Shuffler) Option {
	return func(s *AttemptService) { s.shuffler = shuffler }
}

func NewAttemptService(assessments AssessmentRepository, results ResultRepository, attempts AttemptRegistry, opts ...Option) *AttemptService {
	s := &AttemptService{
		assessments: assessments,
		results:     results,
		attempts:    attempts,
		clock:       SystemClock(),
		timing:      DefaultTiming(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.shuffler == nil {
		s.shuffler = NewShuffler()
	}
	s.timing = s.timing.withDefaults()
	s.loader = NewSessionLoader(assessments, results)
	s.recorder = NewResultRecorder(results, s.clock)
	return s
}

// Start loads the assessment for user and returns an attempt positioned on
// the first question. A previous live attempt by the same user at the same
// assessment on this instance is closed before loading, and its result write
// is allowed to finish so a retake purge sees it. An attempt live on another
// instance fails the start with ErrAttemptActive.
func (s *AttemptService) Start(ctx context.Context, assessmentID string, user domain.Identity, isRetake bool) (*Attempt, error) {
	key := AttemptKey(assessmentID, user.UserID)
	if previous, ok := s.attempts.Get(key); ok {
		s.attempts.Release(key, previous)
		if err := closeAndDrain(ctx, previous); err != nil {
			return nil, err
		}
	} else if user.UserID != "" {
		if err := s.checkRemote(ctx, key); err != nil {
			return nil, err
		}
	}

	attempt := NewAttempt(s.clock, s.timing, s.shuffler, s.recorder)
	if err := attempt.Begin(ctx, s.loader, assessmentID, user, isRetake); err != nil {
		attempt.Close()
		return nil, err
	}
	if previous := s.attempts.Register(attempt.Key(), attempt); previous != nil && previous != attempt {
		previous.Close()
	}
	return attempt, nil
}

func (s *AttemptService) checkRemote(ctx context.Context, key string) error {
	checker, ok := s.attempts.(LivenessChecker)
	if !ok {
		return nil
	}
	active, err := checker.Active(ctx, key)
	if err != nil {
		// best-effort
		log.Printf("attempt liveness check %s: %v", key, err)
		return nil
	}
	if active {
		return domain.ErrAttemptActive
	}
	return nil
}

// closeAndDrain closes attempt and, when it already completed, waits for its
// in-flight result write.
func closeAndDrain(ctx context.Context, attempt *Attempt) error {
	attempt.Close()
	if attempt.Snapshot().Phase != PhaseCompleted {
		return nil
	}
	select {
	case <-attempt.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attempt returns the live attempt of a user at an assessment.
func (s *AttemptService) Attempt(assessmentID, userID string) (*Attempt, error) {
	attempt, ok := s.attempts.Get(AttemptKey(assessmentID, userID))
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

// Leave tears the attempt down and drops it from the registry.
func (s *AttemptService) Leave(_ context.Context, attempt *Attempt) {
	s.attempts.Release(attempt.Key(), attempt)
	attempt.Close()
}

// ListAssessments returns the listing, newest first.
func (s *AttemptService) ListAssessments(ctx context.Context) ([]domain.AssessmentSummary, error) {
	list, err := s.assessments.ListAssessments(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

// Review joins the user's stored result with the assessment content.
// ErrResultNotFound tells the caller the user has not completed it yet.
func (s *AttemptService) Review(ctx context.Context, assessmentID, userID string) (domain.ResultReview, error) {
	if userID == "" {
		return domain.ResultReview{}, domain.ErrUnauthenticated
	}
	results, err := s.results.FindResults(ctx, assessmentID, userID)
	if err != nil {
		return domain.ResultReview{}, err
	}
	if len(results) == 0 {
		return domain.ResultReview{}, domain.ErrResultNotFound
	}
	latest := results[0]
	for _, r := range results[1:] {
		if r.CompletedAt.After(latest.CompletedAt) {
			latest = r
		}
	}

	assessment, err := s.assessments.GetAssessment(ctx, assessmentID)
	if err != nil {
		return domain.ResultReview{}, err
	}
	return buildReview(assessment, latest), nil
}

func buildReview(assessment domain.Assessment, result domain.AssessmentResult) domain.ResultReview {
	items := make([]domain.ReviewItem, 0, len(assessment.Questions))
	for i, q := range assessment.Questions {
		answer := ""
		if i < len(result.Answers) {
			answer = result.Answers[i]
		}
		items = append(items, domain.ReviewItem{
			Index:         i,
			Question:      q.Text,
			Options:       q.Options(),
			CorrectAnswer: q.CorrectAnswer,
			Answer:        answer,
			Correct:       answer != "" && answer == q.CorrectAnswer,
		})
	}

	var pct float64
	if result.TotalQuestions > 0 {
		pct = float64(result.Score) / float64(result.TotalQuestions) * 100
	}
	return domain.ResultReview{
		Result:     result,
		Title:      assessment.Title,
		Percentage: pct,
		Items:      items,
	}
}
