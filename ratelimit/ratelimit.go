// Package ratelimit throttles stress workers to a shared operation rate.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Limiter is a token bucket shared by every worker of a run. A nil Limiter
// never throttles.
type Limiter struct {
	mu       sync.Mutex
	rate     float64
	burst    float64
	tokens   float64
	lastFill time.Time
	waited   time.Duration
	now      func() time.Time
}

// Status describes the limiter's bucket at one instant.
type Status struct {
	Rate      float64
	Burst     float64
	Remaining float64
	Waited    time.Duration
}

// New returns a limiter admitting rate operations per second with bursts of
// up to burst operations. A non-positive rate disables limiting and returns
// nil; a non-positive burst defaults to one second's worth of tokens.
func New(rate float64, burst int) *Limiter {
	if rate <= 0 {
		return nil
	}
	b := float64(burst)
	if b <= 0 {
		b = math.Max(rate, 1)
	}
	l := &Limiter{rate: rate, burst: b, tokens: b, now: time.Now}
	l.lastFill = l.now()
	return l
}

// TryAcquire takes a token if one is available without waiting.
func (l *Limiter) TryAcquire() bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		l.refillLocked()
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		delay := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
		delay = max(delay, time.Millisecond)
		l.waited += delay
		l.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (l *Limiter) refillLocked() {
	now := l.now()
	elapsed := now.Sub(l.lastFill)
	l.lastFill = now
	if elapsed <= 0 {
		return
	}
	l.tokens = math.Min(l.burst, l.tokens+elapsed.Seconds()*l.rate)
}

// Status reports the current bucket state.
func (l *Limiter) Status() Status {
	if l == nil {
		return Status{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	return Status{Rate: l.rate, Burst: l.burst, Remaining: l.tokens, Waited: l.waited}
}
