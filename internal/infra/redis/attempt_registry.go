package redis

import (
	"context"
	"log"
	"sync"
	"time"

	"assessment-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// AttemptRegistry is a Redis-aware implementation of app.AttemptRegistry.
// Notes:
//   - Attempts hold live timers, so the attempts themselves stay in a local
//     map on the instance that owns the connection.
//   - Redis carries a liveness marker per attempt key so other instances can
//     tell a user already has an attempt running. The marker's expiry is
//     pushed out on every transition of the attempt, so it only lapses once
//     the owning instance stops driving it.
type AttemptRegistry struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	attempts map[string]*app.Attempt
	cancels  map[string]func()
}

func NewAttemptRegistry(client *redis.Client, ttl time.Duration) *AttemptRegistry {
	return &AttemptRegistry{
		client:   client,
		ttl:      ttl,
		attempts: make(map[string]*app.Attempt),
		cancels:  make(map[string]func()),
	}
}

func (r *AttemptRegistry) Register(key string, attempt *app.Attempt) *app.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.attempts[key]
	if cancel, ok := r.cancels[key]; ok {
		cancel()
	}
	r.attempts[key] = attempt
	// best-effort liveness marker
	if err := r.client.Set(context.Background(), r.key(key), "1", r.ttl).Err(); err != nil {
		log.Printf("attempt registry: set marker %s: %v", key, err)
	}

	updates, cancel := attempt.Subscribe()
	r.cancels[key] = cancel
	go r.refresh(key, updates)
	return previous
}

func (r *AttemptRegistry) Get(key string) (*app.Attempt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attempt, ok := r.attempts[key]
	return attempt, ok
}

func (r *AttemptRegistry) Release(key string, attempt *app.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.attempts[key]
	if !ok || current != attempt {
		return
	}
	delete(r.attempts, key)
	if cancel, ok := r.cancels[key]; ok {
		cancel()
		delete(r.cancels, key)
	}
	_ = r.client.Del(context.Background(), r.key(key)).Err()
}

// Active reports whether any instance holds a live attempt for key.
func (r *AttemptRegistry) Active(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// refresh extends the marker after every transition until the subscription
// is canceled or the attempt is closed. EXPIRE never recreates a deleted key.
func (r *AttemptRegistry) refresh(key string, updates <-chan app.Snapshot) {
	for range updates {
		if err := r.client.Expire(context.Background(), r.key(key), r.ttl).Err(); err != nil {
			log.Printf("attempt registry: refresh marker %s: %v", key, err)
		}
	}
}

func (r *AttemptRegistry) key(key string) string {
	return "attempt:live:" + key
}
