package dispatch

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSet keeps one circuit breaker per provider. A tripped breaker
// short-circuits dispatches into failed results without touching the
// network, which protects a struggling provider from bulk-test storms.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewBreakerSet() *BreakerSet {
	return &BreakerSet{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (s *BreakerSet) get(provider string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[provider]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        provider,
			MaxRequests: 3,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
		})
		s.breakers[provider] = cb
	}
	return cb
}
