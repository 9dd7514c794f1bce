// Package backoff holds the retry policy shared by the queue requeue path and
// the batch inline retry loop.
package backoff

import (
	"context"
	"time"
)

// Policy is a capped exponential backoff with a bounded attempt count.
type Policy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// Default is base 1s, cap 5s, three attempts.
func Default() Policy {
	return Policy{Base: time.Second, Cap: 5 * time.Second, MaxAttempts: 3}
}

// WithMaxAttempts returns a copy limited to n attempts, never exceeding the
// receiver's own bound.
func (p Policy) WithMaxAttempts(n int) Policy {
	if n > 0 && (p.MaxAttempts <= 0 || n < p.MaxAttempts) {
		p.MaxAttempts = n
	}
	return p
}

// Delay returns the wait before the attempt following attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.Base <= 0 {
		return 0
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.Cap > 0 && d >= p.Cap {
			return p.Cap
		}
	}
	if p.Cap > 0 && d > p.Cap {
		return p.Cap
	}
	return d
}

// ShouldRetry reports whether another attempt is allowed after attempt
// attempts have been made.
func (p Policy) ShouldRetry(attempt int) bool {
	limit := p.MaxAttempts
	if limit <= 0 {
		limit = 1
	}
	return attempt < limit
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
