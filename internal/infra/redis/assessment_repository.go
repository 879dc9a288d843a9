package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"assessment-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// AssessmentLoader fetches assessments from a backing store (e.g., document DB).
type AssessmentLoader interface {
	LoadAssessment(ctx context.Context, assessmentID string) (domain.Assessment, error)
	ListAssessments(ctx context.Context) ([]domain.AssessmentSummary, error)
}

// AssessmentRepository caches full assessments in Redis and falls back to a
// loader on cache miss. Assessments are stored as JSON under
// assessment:{assessmentID}. Attempts need every question, option and the
// correct answer, so nothing is trimmed from the cached form.
type AssessmentRepository struct {
	client *redis.Client
	loader AssessmentLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewAssessmentRepository(client *redis.Client, loader AssessmentLoader, ttl time.Duration) *AssessmentRepository {
	return &AssessmentRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *AssessmentRepository) GetAssessment(ctx context.Context, assessmentID string) (domain.Assessment, error) {
	key := r.key(assessmentID)

	if a, ok := r.fromCache(ctx, key); ok {
		return a, nil
	}

	result, err, _ := r.sf.Do(assessmentID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if a, ok := r.fromCache(ctx, key); ok {
			return a, nil
		}

		assessment, err := r.loader.LoadAssessment(ctx, assessmentID)
		if err != nil {
			return domain.Assessment{}, err
		}

		raw, err := json.Marshal(assessment)
		if err != nil {
			return assessment, nil
		}
		if err := r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err(); err != nil {
			log.Printf("cache assessment %s: %v", assessmentID, err)
		}
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

// Invalidate drops the cached copy of an assessment.
func (r *AssessmentRepository) Invalidate(ctx context.Context, assessmentID string) error {
	return r.client.Del(ctx, r.key(assessmentID)).Err()
}

func (r *AssessmentRepository) fromCache(ctx context.Context, key string) (domain.Assessment, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("read cached assessment %s: %v", key, err)
		}
		return domain.Assessment{}, false
	}
	var a domain.Assessment
	if err := json.Unmarshal(raw, &a); err != nil {
		return domain.Assessment{}, false
	}
	return a, true
}

func (r *AssessmentRepository) key(assessmentID string) string {
	return "assessment:" + assessmentID
}

func (r *AssessmentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
