package app

import (
	"math/rand"
	"sync"
	"time"

	"assessment-service/internal/domain"
)

// Shuffler orders answer options for display. It is safe for concurrent use.
type Shuffler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewShuffler() *Shuffler {
	return NewShufflerWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewShufflerWithSource is used by tests that need a reproducible order.
func NewShufflerWithSource(src rand.Source) *Shuffler {
	return &Shuffler{rnd: rand.New(src)}
}

// Options returns the correct answer and every distractor exactly once, in
// uniformly random order. Each call draws a fresh permutation.
func (s *Shuffler) Options(q domain.Question) []string {
	opts := q.Options()

	s.mu.Lock()
	defer s.mu.Unlock()
	// Fisher-Yates
	for i := len(opts) - 1; i > 0; i-- {
		j := s.rnd.Intn(i + 1)
		opts[i], opts[j] = opts[j], opts[i]
	}
	return opts
}
