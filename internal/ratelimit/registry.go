package ratelimit

import (
	"sync"
	"time"
)

// Registry hands out one limiter per key. Message-send limiting is scoped
// per authenticated session, shared across whatever tickets that session
// has open, so the key is the user id.
type Registry struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	limiters map[string]*Limiter
}

func NewRegistry(max int, window time.Duration) *Registry {
	return &Registry{max: max, window: window, limiters: make(map[string]*Limiter)}
}

func (r *Registry) Get(key string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		l = New(r.max, r.window)
		r.limiters[key] = l
	}
	return l
}
