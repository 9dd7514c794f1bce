package ratelimit

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCeilingPlusOneRejectsExactlyOnce(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(NewMemoryStore(), WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.CheckAndRecord(ctx, "user:1", 5, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("call %d rejected", i+1)
		}
		clock.Advance(time.Millisecond)
	}

	d, err := l.CheckAndRecord(ctx, "user:1", 5, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatalf("sixth call admitted")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("retryAfter out of range: %s", d.RetryAfter)
	}
	if d.RetryAfter < 59*time.Second {
		t.Fatalf("expected retryAfter close to 60s, got %s", d.RetryAfter)
	}

	clock.Advance(d.RetryAfter)
	d, err = l.CheckAndRecord(ctx, "user:1", 5, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected admission after retryAfter elapsed")
	}
}

func TestSubjectsAreIndependent(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()
	if d, _ := l.CheckAndRecord(ctx, "a", 1, time.Minute); !d.Allowed {
		t.Fatalf("a rejected")
	}
	if d, _ := l.CheckAndRecord(ctx, "b", 1, time.Minute); !d.Allowed {
		t.Fatalf("b rejected")
	}
	if d, _ := l.CheckAndRecord(ctx, "a", 1, time.Minute); d.Allowed {
		t.Fatalf("a admitted twice")
	}
}

func TestConcurrentCallersNeverExceedCeiling(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.CheckAndRecord(ctx, GlobalSubject, 10, time.Minute)
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 10 {
		t.Fatalf("expected 10 admissions, got %d", allowed)
	}
}

func TestInvalidArguments(t *testing.T) {
	l := New(NewMemoryStore())
	if _, err := l.CheckAndRecord(context.Background(), " ", 1, time.Second); err == nil {
		t.Fatalf("expected error for empty subject")
	}
	if _, err := l.CheckAndRecord(context.Background(), "x", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero ceiling")
	}
}

type failingStore struct{}

func (failingStore) Record(context.Context, string, time.Time, int, time.Duration) (Decision, error) {
	return Decision{}, errors.New("store down")
}

func TestStoreErrorsPropagate(t *testing.T) {
	l := New(failingStore{})
	if _, err := l.CheckAndRecord(context.Background(), "x", 1, time.Second); err == nil {
		t.Fatalf("expected store error")
	}
}

func TestCheckAndRecordAllIsAllOrNothing(t *testing.T) {
	store := NewMemoryStore()
	l := New(store)
	ctx := context.Background()
	checks := []Check{{Subject: "user:u1", Ceiling: 5}, {Subject: "global", Ceiling: 1}}

	d, subject, err := l.CheckAndRecordAll(ctx, time.Minute, checks...)
	if err != nil || !d.Allowed || subject != "" {
		t.Fatalf("first = %+v %q %v", d, subject, err)
	}
	d, subject, err = l.CheckAndRecordAll(ctx, time.Minute, checks...)
	if err != nil || d.Allowed || subject != "global" || d.RetryAfter <= 0 || d.Ceiling != 1 {
		t.Fatalf("second = %+v %q %v", d, subject, err)
	}
	if got := len(store.events["rl:user:u1"]); got != 1 {
		t.Fatalf("rejected event recorded in user window: %d", got)
	}
}

func TestSweepDropsIdleKeys(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(100, 0)
	store.Record(context.Background(), "k", now, 1, time.Second)
	store.Sweep(now.Add(2*time.Second), time.Second)
	if len(store.events) != 0 {
		t.Fatalf("expected sweep to drop idle key")
	}
}

func TestRedisStoreSlidingWindow(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	clock := &fakeClock{now: time.Now()}
	l := New(NewRedisStore(client), WithClock(clock.Now), WithPrefix("rl:test:"))
	subject := uuid.NewString()
	ctx := context.Background()
	defer client.Del(ctx, "rl:test:"+subject)

	for i := 0; i < 5; i++ {
		d, err := l.CheckAndRecord(ctx, subject, 5, time.Minute)
		if err != nil || !d.Allowed {
			t.Fatalf("call %d: allowed=%v err=%v", i+1, d.Allowed, err)
		}
		clock.Advance(time.Millisecond)
	}
	d, err := l.CheckAndRecord(ctx, subject, 5, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed || d.RetryAfter <= 0 {
		t.Fatalf("expected rejection with positive retryAfter, got %+v", d)
	}
	clock.Advance(d.RetryAfter)
	d, err = l.CheckAndRecord(ctx, subject, 5, time.Minute)
	if err != nil || !d.Allowed {
		t.Fatalf("expected admission after retryAfter: %+v %v", d, err)
	}
}
