package submission

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"jewelshot/internal/adapter/memstore"
	"jewelshot/internal/domain"
	"jewelshot/internal/ledger"
	"jewelshot/internal/ratelimit"
)

var validPayload = json.RawMessage(`{"image_url":"https://cdn.example.com/ring.jpg"}`)

func newGateway(t *testing.T, limits Limits, store ratelimit.Store) (*Gateway, *memstore.Store, *ledger.Service) {
	t.Helper()
	mem := memstore.New()
	led := ledger.NewService(mem, nil, 0, zerolog.Nop())
	if store == nil {
		store = ratelimit.NewMemoryStore()
	}
	if limits.Window == 0 {
		limits.Window = time.Minute
	}
	return NewGateway(ratelimit.New(store), limits, led, mem, zerolog.Nop()), mem, led
}

func grant(t *testing.T, led *ledger.Service, user string, amount int64) {
	t.Helper()
	if _, err := led.Grant(context.Background(), user, amount); err != nil {
		t.Fatalf("grant: %v", err)
	}
}

func queued(t *testing.T, mem *memstore.Store) int {
	t.Helper()
	depths, err := mem.LaneDepths(context.Background())
	if err != nil {
		t.Fatalf("depths: %v", err)
	}
	total := 0
	for _, n := range depths {
		total += n
	}
	return total
}

func TestSubmitReservesAndEnqueues(t *testing.T) {
	gw, mem, led := newGateway(t, Limits{PerUser: 5, Global: 10}, nil)
	grant(t, led, "u1", 10)

	job, err := gw.Submit(context.Background(), Request{UserID: "u1", Kind: domain.OpUpscale, Payload: validPayload, Lane: domain.LaneBatch, Country: "ID"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	stored, err := mem.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != domain.JobStatusQueued || stored.Lane != domain.LaneBatch || stored.OriginCountry != "ID" {
		t.Fatalf("stored job = %+v", stored)
	}
	res := mem.Reservations("u1")
	if len(res) != 1 || res[0].ID != stored.ReservationID || res[0].Amount != 2 {
		t.Fatalf("reservations = %+v", res)
	}
}

func TestSubmitRateLimitedPerUser(t *testing.T) {
	gw, mem, led := newGateway(t, Limits{PerUser: 2, Global: 100}, nil)
	grant(t, led, "u1", 10)
	grant(t, led, "u2", 10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := gw.Submit(ctx, Request{UserID: "u1", Kind: domain.OpEdit, Payload: json.RawMessage(`{"image_url":"https://a/b.png","prompt":"x"}`)}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	_, err := gw.Submit(ctx, Request{UserID: "u1", Kind: domain.OpUpscale, Payload: validPayload})
	var rl *domain.RateLimitError
	if !errors.As(err, &rl) || !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if rl.RetryAfter <= 0 || rl.RetryAfterSeconds() > 60 {
		t.Fatalf("retry after = %s", rl.RetryAfter)
	}
	if len(mem.Reservations("u1")) != 2 {
		t.Fatalf("rejected submission reserved credit")
	}
	if _, err := gw.Submit(ctx, Request{UserID: "u2", Kind: domain.OpUpscale, Payload: validPayload}); err != nil {
		t.Fatalf("other user limited: %v", err)
	}
}

func TestSubmitGlobalCeiling(t *testing.T) {
	gw, _, led := newGateway(t, Limits{PerUser: 10, Global: 3}, nil)
	ctx := context.Background()
	for _, u := range []string{"a", "b", "c", "d"} {
		grant(t, led, u, 10)
	}
	for _, u := range []string{"a", "b", "c"} {
		if _, err := gw.Submit(ctx, Request{UserID: u, Kind: domain.OpUpscale, Payload: validPayload}); err != nil {
			t.Fatalf("submit %s: %v", u, err)
		}
	}
	_, err := gw.Submit(ctx, Request{UserID: "d", Kind: domain.OpUpscale, Payload: validPayload})
	var rl *domain.RateLimitError
	if !errors.As(err, &rl) || rl.Subject != ratelimit.GlobalSubject {
		t.Fatalf("expected global rate limit, got %v", err)
	}
}

func TestRejectionConsumesNoOtherWindow(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	gw, _, led := newGateway(t, Limits{PerUser: 1, Global: 2}, store)
	ctx := context.Background()
	for _, u := range []string{"a", "b", "c"} {
		grant(t, led, u, 10)
	}

	if _, err := gw.Submit(ctx, Request{UserID: "a", Kind: domain.OpUpscale, Payload: validPayload}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	var rl *domain.RateLimitError
	_, err := gw.Submit(ctx, Request{UserID: "a", Kind: domain.OpUpscale, Payload: validPayload})
	if !errors.As(err, &rl) || rl.Subject != ratelimit.UserSubject("a") {
		t.Fatalf("expected per-user rejection, got %v", err)
	}
	// The per-user rejection left the global slot for b.
	if _, err := gw.Submit(ctx, Request{UserID: "b", Kind: domain.OpUpscale, Payload: validPayload}); err != nil {
		t.Fatalf("b submit: %v", err)
	}
	_, err = gw.Submit(ctx, Request{UserID: "c", Kind: domain.OpUpscale, Payload: validPayload})
	if !errors.As(err, &rl) || rl.Subject != ratelimit.GlobalSubject {
		t.Fatalf("expected global rejection, got %v", err)
	}

	d, err := ratelimit.New(store).CheckAndRecord(ctx, ratelimit.UserSubject("c"), 1, time.Minute)
	if err != nil || !d.Allowed || d.Count != 1 {
		t.Fatalf("global rejection consumed c's window: %+v, %v", d, err)
	}
}

func TestSubmitInsufficientCredit(t *testing.T) {
	gw, mem, led := newGateway(t, Limits{PerUser: 5, Global: 10}, nil)
	grant(t, led, "u1", 4)

	_, err := gw.Submit(context.Background(), Request{UserID: "u1", Kind: domain.OpVideo, Payload: json.RawMessage(`{"image_url":"https://a/b.png","prompt":"spin"}`)})
	var ic *domain.InsufficientCreditError
	if !errors.As(err, &ic) {
		t.Fatalf("expected insufficient credit, got %v", err)
	}
	if ic.Required != 5 || ic.Available != 4 {
		t.Fatalf("error = %+v", ic)
	}
	if queued(t, mem) != 0 {
		t.Fatalf("job enqueued without credit")
	}
}

func TestEnqueueFailureRefundsReservation(t *testing.T) {
	gw, mem, led := newGateway(t, Limits{PerUser: 5, Global: 10}, nil)
	grant(t, led, "u1", 10)
	mem.FailNext("Enqueue", errors.New("db down"))

	if _, err := gw.Submit(context.Background(), Request{UserID: "u1", Kind: domain.OpUpscale, Payload: validPayload}); err == nil {
		t.Fatalf("expected enqueue error")
	}
	res := mem.Reservations("u1")
	if len(res) != 1 || res[0].State != domain.ReservationRefunded {
		t.Fatalf("reservations = %+v", res)
	}
	acct, _ := led.Balance(context.Background(), "u1")
	if acct.Reserved != 0 || acct.Balance != 10 {
		t.Fatalf("account = %+v", acct)
	}
}

func TestInvalidRequestConsumesNothing(t *testing.T) {
	gw, mem, led := newGateway(t, Limits{PerUser: 1, Global: 10}, nil)
	grant(t, led, "u1", 10)
	ctx := context.Background()

	_, err := gw.Submit(ctx, Request{UserID: "u1", Kind: domain.OpInpaint, Payload: validPayload})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if _, err := gw.Submit(ctx, Request{UserID: "", Kind: domain.OpUpscale, Payload: validPayload}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := gw.Submit(ctx, Request{UserID: "u1", Kind: domain.OpUpscale, Payload: validPayload}); err != nil {
		t.Fatalf("valid submit after rejection: %v", err)
	}
	if len(mem.Reservations("u1")) != 1 {
		t.Fatalf("unexpected reservations")
	}
}

type brokenStore struct{}

func (brokenStore) Record(context.Context, string, time.Time, int, time.Duration) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis: connection refused")
}

func TestLimiterErrorFailsClosed(t *testing.T) {
	gw, mem, led := newGateway(t, Limits{PerUser: 5, Global: 10}, brokenStore{})
	grant(t, led, "u1", 10)

	_, err := gw.Submit(context.Background(), Request{UserID: "u1", Kind: domain.OpUpscale, Payload: validPayload})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable when limiter is down, got %v", err)
	}
	if len(mem.Reservations("u1")) != 0 || queued(t, mem) != 0 {
		t.Fatalf("work admitted while limiter unavailable")
	}
}

func TestConcurrentSubmitsNeverOverdraw(t *testing.T) {
	gw, mem, led := newGateway(t, Limits{PerUser: 10, Global: 10}, nil)
	grant(t, led, "u1", 3)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gw.Submit(context.Background(), Request{UserID: "u1", Kind: domain.OpUpscale, Payload: validPayload})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
			} else if errors.Is(err, domain.ErrInsufficientCredit) {
				rejected++
			}
		}()
	}
	wg.Wait()
	if accepted != 1 || rejected != 1 {
		t.Fatalf("accepted = %d rejected = %d", accepted, rejected)
	}
	if queued(t, mem) != 1 {
		t.Fatalf("queued = %d", queued(t, mem))
	}
}
