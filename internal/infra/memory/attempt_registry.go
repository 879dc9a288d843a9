package memory

import (
	"sync"

	"assessment-service/internal/app"
)

// AttemptRegistry is an in-memory implementation of app.AttemptRegistry.
type AttemptRegistry struct {
	mu       sync.RWMutex
	attempts map[string]*app.Attempt
}

func NewAttemptRegistry() *AttemptRegistry {
	return &AttemptRegistry{
		attempts: make(map[string]*app.Attempt),
	}
}

func (r *AttemptRegistry) Register(key string, attempt *app.Attempt) *app.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.attempts[key]
	r.attempts[key] = attempt
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
	if current, ok := r.attempts[key]; ok && current == attempt {
		delete(r.attempts, key)
	}
}
