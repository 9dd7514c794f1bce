// Package ratelimit implements sliding-window admission control. The same
// algorithm backs the advisory limiter in the HTTP middleware (in-process
// store) and the enforced per-user and global ceilings in the submission
// gateway (Redis store shared by every API replica).
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	// Count is the number of admitted events inside the window after the check.
	Count   int
	Ceiling int
	// RetryAfter is the time until the oldest counted event leaves the window.
	// Zero when Allowed.
	RetryAfter time.Duration
}

// Store atomically prunes, counts and conditionally records an event for key.
type Store interface {
	Record(ctx context.Context, key string, now time.Time, ceiling int, window time.Duration) (Decision, error)
}

// MultiStore admits an event into several windows at once: the event is
// recorded in every key or in none. rejected is the index of the first key
// that was full, or -1.
type MultiStore interface {
	RecordAll(ctx context.Context, keys []string, ceilings []int, now time.Time, window time.Duration) (d Decision, rejected int, err error)
}

// Check is one window of a combined admission.
type Check struct {
	Subject string
	Ceiling int
}

// Limiter evaluates sliding windows against a Store.
type Limiter struct {
	store  Store
	prefix string
	now    func() time.Time
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithPrefix namespaces subject keys, e.g. "rl:enforced:".
func WithPrefix(prefix string) Option {
	return func(l *Limiter) { l.prefix = prefix }
}

// New builds a limiter over store.
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{store: store, prefix: "rl:", now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckAndRecord admits and records an event for subject when fewer than
// ceiling events were admitted within the trailing window.
func (l *Limiter) CheckAndRecord(ctx context.Context, subject string, ceiling int, window time.Duration) (Decision, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Decision{}, errors.New("ratelimit: subject is required")
	}
	if ceiling <= 0 || window <= 0 {
		return Decision{}, fmt.Errorf("ratelimit: invalid ceiling %d or window %s", ceiling, window)
	}
	d, err := l.store.Record(ctx, l.prefix+subject, l.now(), ceiling, window)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: record %s: %w", subject, err)
	}
	d.Ceiling = ceiling
	return d, nil
}

// CheckAndRecordAll admits an event only when every check has room, so a
// rejection by one window never consumes capacity in another. It returns the
// subject of the rejecting check. Stores without MultiStore fall back to
// checking in order.
func (l *Limiter) CheckAndRecordAll(ctx context.Context, window time.Duration, checks ...Check) (Decision, string, error) {
	if window <= 0 {
		return Decision{}, "", fmt.Errorf("ratelimit: invalid window %s", window)
	}
	multi, ok := l.store.(MultiStore)
	if !ok {
		for _, c := range checks {
			d, err := l.CheckAndRecord(ctx, c.Subject, c.Ceiling, window)
			if err != nil || !d.Allowed {
				return d, c.Subject, err
			}
		}
		return Decision{Allowed: true}, "", nil
	}
	keys := make([]string, len(checks))
	ceilings := make([]int, len(checks))
	for i, c := range checks {
		subject := strings.TrimSpace(c.Subject)
		if subject == "" || c.Ceiling <= 0 {
			return Decision{}, "", fmt.Errorf("ratelimit: invalid check %q/%d", c.Subject, c.Ceiling)
		}
		keys[i] = l.prefix + subject
		ceilings[i] = c.Ceiling
	}
	if len(keys) == 0 {
		return Decision{Allowed: true}, "", nil
	}
	d, rejected, err := multi.RecordAll(ctx, keys, ceilings, l.now(), window)
	if err != nil {
		return Decision{}, "", fmt.Errorf("ratelimit: record %v: %w", keys, err)
	}
	if rejected >= 0 && rejected < len(checks) {
		d.Ceiling = checks[rejected].Ceiling
		return d, checks[rejected].Subject, nil
	}
	return d, "", nil
}

// UserSubject names the per-user window.
func UserSubject(userID string) string { return "user:" + userID }

// GlobalSubject names the window shared by all users.
const GlobalSubject = "global"
