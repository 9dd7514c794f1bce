package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"jewelshot/internal/adapter/memstore"
	"jewelshot/internal/domain"
	"jewelshot/internal/ledger"
)

func TestSelectorHonoursWeightsPerCycle(t *testing.T) {
	s := NewSelector(DefaultWeights)
	counts := map[domain.Lane]int{}
	for i := 0; i < 100; i++ {
		counts[s.Next()]++
	}
	if counts[domain.LaneInteractive] != 60 || counts[domain.LaneBatch] != 30 || counts[domain.LaneLow] != 10 {
		t.Fatalf("unexpected distribution %v", counts)
	}
}

func TestSelectorNeverStarvesLowLane(t *testing.T) {
	s := NewSelector(DefaultWeights)
	for cycle := 0; cycle < 5; cycle++ {
		seen := false
		for i := 0; i < 10; i++ {
			if s.Next() == domain.LaneLow {
				seen = true
			}
		}
		if !seen {
			t.Fatalf("low lane skipped in cycle %d", cycle)
		}
	}
}

func TestParseWeights(t *testing.T) {
	w, err := ParseWeights("interactive=8, low=2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w[domain.LaneInteractive] != 8 || w[domain.LaneBatch] != 1 || w[domain.LaneLow] != 2 {
		t.Fatalf("unexpected weights %v", w)
	}
	for _, bad := range []string{"interactive", "urgent=3", "batch=0", "low=x"} {
		if _, err := ParseWeights(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if w, _ := ParseWeights(""); w[domain.LaneInteractive] != 6 {
		t.Fatalf("expected defaults for empty input")
	}
}

func newQueue(store *memstore.Store) *Queue {
	return New(store, NewSelector(DefaultWeights), time.Minute, zerolog.Nop())
}

func TestDequeueFallsBackToNonEmptyLane(t *testing.T) {
	store := memstore.New()
	q := newQueue(store)
	ctx := context.Background()
	if err := q.Enqueue(ctx, &domain.Job{Kind: domain.OpEdit, UserID: "u1", Lane: domain.LaneLow}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := q.Dequeue(ctx, "w1")
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job.Lane != domain.LaneLow || job.Status != domain.JobStatusActive || job.Attempts != 1 {
		t.Fatalf("unexpected job %+v", job)
	}
	if _, err := q.Dequeue(ctx, "w1"); !errors.Is(err, domain.ErrNoJob) {
		t.Fatalf("expected ErrNoJob, got %v", err)
	}
}

func TestLaneIsFIFO(t *testing.T) {
	store := memstore.New()
	q := newQueue(store)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		job := &domain.Job{Kind: domain.OpEdit, UserID: "u1", Lane: domain.LaneBatch}
		q.Enqueue(ctx, job)
		ids = append(ids, job.ID)
	}
	for i, want := range ids {
		job, err := q.Dequeue(ctx, "w1")
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if job.ID != want {
			t.Fatalf("dequeue %d: got %s want %s", i, job.ID, want)
		}
	}
}

func TestExpiredLeaseIsRedelivered(t *testing.T) {
	store := memstore.New()
	base := time.Unix(1_700_000_000, 0)
	now := base
	store.SetClock(func() time.Time { return now })
	q := newQueue(store)
	ctx := context.Background()
	job := &domain.Job{Kind: domain.OpEdit, UserID: "u1"}
	q.Enqueue(ctx, job)

	first, err := q.Dequeue(ctx, "w1")
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	janitor := NewJanitor(store, ledger.NewService(store, nil, 0, zerolog.Nop()), 3, zerolog.Nop())
	janitor.now = func() time.Time { return base.Add(30 * time.Second) }
	if n, _ := janitor.RunOnce(ctx); n != 0 {
		t.Fatalf("lease released early")
	}
	janitor.now = func() time.Time { return base.Add(2 * time.Minute) }
	if n, _ := janitor.RunOnce(ctx); n != 1 {
		t.Fatalf("expected one released lease, got %d", n)
	}

	now = base.Add(2 * time.Minute)
	second, err := q.Dequeue(ctx, "w2")
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if second.ID != first.ID || second.Attempts != 2 {
		t.Fatalf("unexpected redelivery %+v", second)
	}
	if ok, _ := store.Complete(ctx, first.ID, "w1", domain.GenerationResult{URL: "x"}); ok {
		t.Fatalf("stale worker must not complete a redelivered job")
	}
	if ok, _ := store.Complete(ctx, first.ID, "w2", domain.GenerationResult{URL: "x"}); !ok {
		t.Fatalf("lease holder must complete the job")
	}
}

func TestCrashLoopingJobFailsAndIsRefunded(t *testing.T) {
	store := memstore.New()
	now := time.Unix(1_700_000_000, 0)
	store.SetClock(func() time.Time { return now })
	led := ledger.NewService(store, nil, 0, zerolog.Nop())
	ctx := context.Background()
	if _, err := led.Grant(ctx, "u1", 5); err != nil {
		t.Fatalf("grant: %v", err)
	}
	resID, err := led.Reserve(ctx, "u1", 1, domain.OpEdit)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	q := newQueue(store)
	job := &domain.Job{Kind: domain.OpEdit, UserID: "u1", ReservationID: resID, Cost: 1}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	janitor := NewJanitor(store, led, 3, zerolog.Nop())
	janitor.now = func() time.Time { return now }
	deliveries := 0
	for cycle := 0; cycle < 10; cycle++ {
		if _, err := q.Dequeue(ctx, "w1"); errors.Is(err, domain.ErrNoJob) {
			break
		} else if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		deliveries++
		// The worker dies holding the lease.
		now = now.Add(2 * time.Minute)
		if _, err := janitor.RunOnce(ctx); err != nil {
			t.Fatalf("janitor: %v", err)
		}
	}

	if deliveries != 3 {
		t.Fatalf("delivered %d times, want 3", deliveries)
	}
	stored, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != domain.JobStatusFailed || stored.Attempts != 3 || stored.ErrorMessage == "" {
		t.Fatalf("job = %+v", stored)
	}
	acct, _ := led.Balance(ctx, "u1")
	if acct.Balance != 5 || acct.Reserved != 0 {
		t.Fatalf("account = %+v", acct)
	}
}

func TestSignalWakesWaiter(t *testing.T) {
	q := newQueue(memstore.New())
	q.Signal()
	q.Signal()
	done := make(chan struct{})
	go func() {
		q.Wait(context.Background(), time.Hour)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Wait did not return after Signal")
	}
}
