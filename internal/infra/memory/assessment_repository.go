package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"assessment-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// AssessmentLoader fetches assessments from a backing store (e.g., document DB).
type AssessmentLoader interface {
	LoadAssessment(ctx context.Context, assessmentID string) (domain.Assessment, error)
	ListAssessments(ctx context.Context) ([]domain.AssessmentSummary, error)
}

// AssessmentRepository caches assessments with TTL to avoid repeated DB hits.
// Listings are not cached.
type AssessmentRepository struct {
	loader AssessmentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedAssessment
}

type cachedAssessment struct {
	assessment domain.Assessment
	expiresAt  time.Time
}

func NewAssessmentRepository(loader AssessmentLoader, ttl time.Duration) *AssessmentRepository {
	return &AssessmentRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedAssessment),
	}
}

func (r *AssessmentRepository) GetAssessment(ctx context.Context, assessmentID string) (domain.Assessment, error) {
	if a, ok := r.cached(assessmentID); ok {
		return a, nil
	}

	result, err, _ := r.sf.Do(assessmentID, func() (interface{}, error) {
		if a, ok := r.cached(assessmentID); ok {
			return a, nil
		}

		assessment, err := r.loader.LoadAssessment(ctx, assessmentID)
		if err != nil {
			return domain.Assessment{}, err
		}

		r.mu.Lock()
		r.cache[assessmentID] = cachedAssessment{
			assessment: assessment,
			expiresAt:  r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return assessment, nil
	})
	if err != nil {
		return domain.Assessment{}, err
	}
	return result.(domain.Assessment), nil
}

func (r *AssessmentRepository) ListAssessments(ctx context.Context) ([]domain.AssessmentSummary, error) {
	return r.loader.ListAssessments(ctx)
}

// Invalidate drops a cached assessment.
func (r *AssessmentRepository) Invalidate(assessmentID string) {
	r.mu.Lock()
	delete(r.cache, assessmentID)
	r.mu.Unlock()
}

func (r *AssessmentRepository) cached(assessmentID string) (domain.Assessment, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[assessmentID]; ok && entry.expiresAt.After(now) {
		return entry.assessment, true
	}
	return domain.Assessment{}, false
}

func (r *AssessmentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticAssessmentLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticAssessmentLoader struct {
	mu          sync.RWMutex
	assessments map[string]domain.Assessment
}

func NewStaticAssessmentLoader(assessments map[string]domain.Assessment) *StaticAssessmentLoader {
	copied := make(map[string]domain.Assessment, len(assessments))
	for id, a := range assessments {
		copied[id] = a
	}
	return &StaticAssessmentLoader{assessments: copied}
}

func (l *StaticAssessmentLoader) LoadAssessment(_ context.Context, assessmentID string) (domain.Assessment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if a, ok := l.assessments[assessmentID]; ok {
		return a, nil
	}
	return domain.Assessment{}, domain.ErrAssessmentNotFound
}

func (l *StaticAssessmentLoader) ListAssessments(_ context.Context) ([]domain.AssessmentSummary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	list := make([]domain.AssessmentSummary, 0, len(l.assessments))
	for _, a := range l.assessments {
		list = append(list, a.Summary())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// SaveAssessment inserts or replaces an assessment.
func (l *StaticAssessmentLoader) SaveAssessment(_ context.Context, assessment domain.Assessment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.assessments[assessment.ID] = assessment
	return nil
}
