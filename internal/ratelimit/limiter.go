// Package ratelimit implements a sliding-window request gate. It is a
// client-side safeguard: the cap is exact over a trailing window, and a
// timestamp recorded at T stays in the window until exactly T+window.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// Message sends are capped at 10 per minute per session.
	MessageMax    = 10
	MessageWindow = time.Minute
)

type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

func New(max int, window time.Duration) *Limiter {
	return &Limiter{max: max, window: window, now: time.Now}
}

// NewMessageLimiter returns the limiter used for message sends.
func NewMessageLimiter() *Limiter {
	return New(MessageMax, MessageWindow)
}

// purge drops timestamps that have aged out. Stamps are appended in order,
// so dropping from the front is sufficient. Callers must hold mu.
func (l *Limiter) purge(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && l.stamps[i].Before(cutoff) {
		i++
	}
	l.stamps = l.stamps[i:]
}

func (l *Limiter) CanMakeRequest() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purge(l.now())
	return len(l.stamps) < l.max
}

func (l *Limiter) RecordRequest() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamps = append(l.stamps, l.now())
}

// CheckAndRecord is the atomic check+record step: it records the request
// and returns true only if the cap has not been reached.
func (l *Limiter) CheckAndRecord() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.purge(now)
	if len(l.stamps) >= l.max {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

func (l *Limiter) RemainingRequests() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purge(l.now())
	if n := l.max - len(l.stamps); n > 0 {
		return n
	}
	return 0
}

// ResetTime reports how long until the oldest recorded timestamp exits the
// window, or zero when nothing is recorded.
func (l *Limiter) ResetTime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.purge(now)
	if len(l.stamps) == 0 {
		return 0
	}
	if d := l.stamps[0].Add(l.window).Sub(now); d > 0 {
		return d
	}
	return 0
}
