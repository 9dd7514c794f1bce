package credentials

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"jewelshot/internal/adapter/memstore"
	"jewelshot/internal/domain"
)

func newPool(t *testing.T, keys ...string) (*Pool, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	pool := NewPool(store, 0, zerolog.Nop())
	if _, err := pool.Seed(context.Background(), keys); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return pool, store
}

func TestAcquireRotatesRoundRobin(t *testing.T) {
	pool, _ := newPool(t, "k1", "k2", "k3")
	var got []string
	for i := 0; i < 6; i++ {
		c, err := pool.Acquire()
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		got = append(got, c.Key)
	}
	if strings.Join(got, ",") != "k1,k2,k3,k1,k2,k3" {
		t.Fatalf("unexpected rotation %v", got)
	}
}

func TestUnhealthyCredentialIsSkippedUntilReset(t *testing.T) {
	pool, _ := newPool(t, "k1", "k2")
	ctx := context.Background()
	first, _ := pool.Acquire()
	if err := pool.MarkUnhealthy(ctx, first.ID, "status 401"); err != nil {
		t.Fatalf("mark unhealthy: %v", err)
	}
	for i := 0; i < 5; i++ {
		c, err := pool.Acquire()
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if c.ID == first.ID {
			t.Fatalf("unhealthy credential returned on call %d", i)
		}
	}
	// A refresh must not resurrect it either.
	if err := pool.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for i := 0; i < 3; i++ {
		if c, _ := pool.Acquire(); c.ID == first.ID {
			t.Fatalf("unhealthy credential returned after refresh")
		}
	}
	if err := pool.Reset(ctx, first.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	seen := false
	for i := 0; i < 2; i++ {
		if c, _ := pool.Acquire(); c.ID == first.ID {
			seen = true
		}
	}
	if !seen {
		t.Fatalf("reset credential never returned")
	}
}

func TestAcquireFailsWhenAllUnhealthy(t *testing.T) {
	pool, _ := newPool(t, "k1")
	c, _ := pool.Acquire()
	pool.MarkUnhealthy(context.Background(), c.ID, "status 403")
	if _, err := pool.Acquire(); !errors.Is(err, domain.ErrCredentialUnavailable) {
		t.Fatalf("expected ErrCredentialUnavailable, got %v", err)
	}
}

func TestEmptyPoolIsUnavailable(t *testing.T) {
	pool := NewPool(memstore.New(), 0, zerolog.Nop())
	if _, err := pool.Acquire(); !errors.Is(err, domain.ErrCredentialUnavailable) {
		t.Fatalf("expected ErrCredentialUnavailable, got %v", err)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	pool, store := newPool(t, "k1", "k2")
	added, err := pool.Seed(context.Background(), []string{"k1", "k2", "k3"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected one new credential, got %d", added)
	}
	creds, _ := store.ListCredentials(context.Background())
	if len(creds) != 3 {
		t.Fatalf("expected 3 stored credentials, got %d", len(creds))
	}
}

func TestSnapshotHidesKeys(t *testing.T) {
	pool, _ := newPool(t, "sk-abcdef")
	for _, c := range pool.Snapshot() {
		if strings.Contains(c.Key, "abcdef") {
			t.Fatalf("snapshot leaked key material: %q", c.Key)
		}
	}
}

func TestThrottleUnknownCredential(t *testing.T) {
	pool, _ := newPool(t, "k1")
	if err := pool.Throttle(context.Background(), "missing"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
