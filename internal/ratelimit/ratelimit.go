// Package ratelimit bounds outbound API concurrency to a fixed budget
// per interval. Unlike golang.org/x/time/rate it pairs Acquire with an
// explicit Release: a released slot is handed straight to the oldest
// waiter instead of going back into the token count, so waiters are
// served in FIFO order.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type waiter struct {
	ch chan struct{}
}

// Limiter is a refillable token budget with a FIFO wait queue. One
// Limiter instance is shared per target API host.
type Limiter struct {
	mu         sync.Mutex
	tokens     int
	capacity   int
	perToken   time.Duration // interval / capacity
	lastRefill time.Time
	queue      []*waiter

	nowFn func() time.Time
}

// New creates a limiter allowing perInterval acquisitions per interval.
func New(perInterval int, interval time.Duration) *Limiter {
	if perInterval < 1 {
		perInterval = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Limiter{
		tokens:     perInterval,
		capacity:   perInterval,
		perToken:   interval / time.Duration(perInterval),
		lastRefill: time.Now(),
		nowFn:      time.Now,
	}
}

// refill adds tokens proportionally to elapsed time, capped at capacity.
// Callers must hold mu.
func (l *Limiter) refill() {
	now := l.nowFn()
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= l.perToken {
		return
	}
	add := int(elapsed / l.perToken)
	l.tokens += add
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.lastRefill = now
}

// Acquire consumes a slot, waiting in FIFO order when none is free.
// It returns ctx.Err() if the context ends first.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.refill()
	if l.tokens > 0 {
		l.tokens--
		l.mu.Unlock()
		return nil
	}
	w := &waiter{ch: make(chan struct{})}
	l.queue = append(l.queue, w)
	l.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, q := range l.queue {
			if q == w {
				l.queue = append(l.queue[:i], l.queue[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// The slot was granted while the context was firing; pass it on
		// so it is not lost.
		l.Release()
		return ctx.Err()
	}
}

// Release returns a slot. The oldest waiter, if any, receives it
// directly; otherwise the token count grows up to capacity.
func (l *Limiter) Release() {
	l.mu.Lock()
	if len(l.queue) > 0 {
		w := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		close(w.ch)
		return
	}
	if l.tokens < l.capacity {
		l.tokens++
	}
	l.mu.Unlock()
}

// Waiting reports the current queue length.
func (l *Limiter) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Available reports the current token count.
func (l *Limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}
