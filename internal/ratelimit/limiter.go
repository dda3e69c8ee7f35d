package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type window struct {
	start time.Time
	count int
}

// Limiter is a fixed-window admission controller keyed by identity.
// State is in-memory only; counters reset on process restart, which is
// an accepted trade-off for this service.
type Limiter struct {
	mu       sync.Mutex
	capacity int
	interval time.Duration
	windows  map[string]*window

	now func() time.Time
}

func NewLimiter(capacity int, interval time.Duration) *Limiter {
	if capacity <= 0 {
		capacity = 100
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Limiter{
		capacity: capacity,
		interval: interval,
		windows:  make(map[string]*window),
		now:      time.Now,
	}
}

// Admit records one request for identity and reports whether it is
// within the current window's capacity. The elapsed-check and increment
// happen under one lock, so concurrent calls for the same identity
// cannot double-start a window.
func (l *Limiter) Admit(identity string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identity]
	if !ok || now.Sub(w.start) >= l.interval {
		l.windows[identity] = &window{start: now, count: 1}
		return Decision{Allowed: true, Remaining: l.capacity - 1}
	}

	w.count++
	if w.count <= l.capacity {
		return Decision{Allowed: true, Remaining: l.capacity - w.count}
	}
	return Decision{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: w.start.Add(l.interval).Sub(now),
	}
}
