package core

// limiter.go bounds how many uploads and provider calls run at once. Work
// that cannot get a slot within the configured wait fails with ErrBusy.
// WaitForDrain lets shutdown wait for in-flight work.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when no slot frees up before the wait expires.
var ErrBusy = errors.New("too many uploads in progress, please try again later")

const (
	// DefaultMaxConcurrent is the default number of slots.
	DefaultMaxConcurrent = 5

	// DefaultMaxWait is how long Acquire waits for a slot.
	DefaultMaxWait = 30 * time.Second
)

// drainPoll is how often WaitForDrain checks for idle.
const drainPoll = 50 * time.Millisecond

// Limiter is a weighted semaphore over heavy session work, with every
// holder taking a weight of one.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int
	active   atomic.Int64
	maxWait  time.Duration
}

// NewLimiter allows at most maxConcurrent holders. Zero values pick the
// defaults.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		capacity: maxConcurrent,
		maxWait:  maxWait,
	}
}

// Acquire takes a slot, waiting up to the limiter's max wait. The caller
// must Release a slot it acquired.
func (l *Limiter) Acquire(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(wctx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
	l.active.Add(1)
	return nil
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// Do runs fn while holding a slot.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// Active returns the number of held slots.
func (l *Limiter) Active() int { return int(l.active.Load()) }

// Capacity returns the total number of slots.
func (l *Limiter) Capacity() int { return l.capacity }

// Available returns the number of free slots.
func (l *Limiter) Available() int { return l.Capacity() - l.Active() }

// WaitForDrain blocks until no slot is held or ctx ends.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	if l.Active() == 0 {
		return nil
	}
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.Active() == 0 {
				return nil
			}
		}
	}
}

// LimiterStatus is a point-in-time view of a Limiter.
type LimiterStatus struct {
	Active    int `json:"active"`
	Available int `json:"available"`
	Capacity  int `json:"capacity"`
}

// Status reports current usage.
func (l *Limiter) Status() LimiterStatus {
	active := l.Active()
	return LimiterStatus{
		Active:    active,
		Available: l.capacity - active,
		Capacity:  l.capacity,
	}
}
