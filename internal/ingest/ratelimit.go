package ingest

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter bounds outbound calls to the ingest source with a shared
// windowed budget, plus a small randomized pause between calls so the
// coordinator never bursts the remote service even when the budget allows.
//
// One limiter belongs to exactly one coordinator run at a time; its state is
// never shared across concurrent runs or looked up globally.
type RateLimiter struct {
	limiter  *rate.Limiter
	minPause time.Duration
	maxPause time.Duration
}

// NewRateLimiter builds a limiter allowing at most maxCalls per window.
// minPause..maxPause bounds the extra randomized inter-call delay; this
// delay is independent of, and additive to, any backoff the caller applies.
func NewRateLimiter(maxCalls int, window time.Duration, minPause, maxPause time.Duration) *RateLimiter {
	if maxCalls < 1 {
		maxCalls = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if maxPause < minPause {
		maxPause = minPause
	}
	return &RateLimiter{
		limiter:  rate.NewLimiter(rate.Every(window/time.Duration(maxCalls)), 1),
		minPause: minPause,
		maxPause: maxPause,
	}
}

// Wait blocks until the budget permits the next call, then applies the
// jittered inter-call pause. Returns early with the context's error when
// cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	pause := r.minPause
	if span := r.maxPause - r.minPause; span > 0 {
		pause += rand.N(span)
	}
	if pause <= 0 {
		return nil
	}

	timer := time.NewTimer(pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
