package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"jewelshot/internal/domain"
)

type entry struct {
	cred    domain.Credential
	limiter *rate.Limiter
}

// Pool rotates over provider credentials round robin. Unhealthy entries are
// skipped until an operator resets them; there is no automatic expiry.
type Pool struct {
	mu      sync.Mutex
	repo    domain.CredentialRepository
	entries []*entry
	cursor  int
	rps     rate.Limit
	burst   int
	logger  zerolog.Logger
}

// NewPool builds an empty pool. rps bounds outbound calls per credential; zero
// disables throttling.
func NewPool(repo domain.CredentialRepository, rps float64, logger zerolog.Logger) *Pool {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &Pool{repo: repo, rps: limit, burst: burst, logger: logger}
}

// Refresh reloads credentials from the repository, keeping the rotation
// cursor and per-credential throttles of entries that still exist.
func (p *Pool) Refresh(ctx context.Context) error {
	creds, err := p.repo.ListCredentials(ctx)
	if err != nil {
		return fmt.Errorf("list credentials: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	known := make(map[string]*entry, len(p.entries))
	for _, e := range p.entries {
		known[e.cred.ID] = e
	}
	entries := make([]*entry, 0, len(creds))
	healthy := 0
	for _, c := range creds {
		e, ok := known[c.ID]
		if !ok {
			e = &entry{limiter: rate.NewLimiter(p.rps, p.burst)}
		}
		e.cred = c
		if c.Healthy {
			healthy++
		}
		entries = append(entries, e)
	}
	p.entries = entries
	if p.cursor >= len(entries) {
		p.cursor = 0
	}
	p.logger.Debug().Int("total", len(entries)).Int("healthy", healthy).Msg("credentials: pool refreshed")
	return nil
}

// Seed adds keys that are not stored yet. Used to bootstrap from the
// environment.
func (p *Pool) Seed(ctx context.Context, keys []string) (int, error) {
	existing, err := p.repo.ListCredentials(ctx)
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c.Key] = true
	}
	added := 0
	for i, key := range keys {
		if key == "" || have[key] {
			continue
		}
		cred := &domain.Credential{Label: fmt.Sprintf("env-%d", i+1), Key: key}
		if err := p.repo.AddCredential(ctx, cred); err != nil {
			return added, err
		}
		have[key] = true
		added++
		p.logger.Info().Str("credential_id", cred.ID).Str("key", domain.KeyFingerprint(key)).Msg("credentials: seeded")
	}
	if added > 0 {
		return added, p.Refresh(ctx)
	}
	return 0, nil
}

// Acquire returns the next healthy credential after the cursor.
func (p *Pool) Acquire() (domain.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.entries)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		e := p.entries[idx]
		if !e.cred.Healthy {
			continue
		}
		p.cursor = (idx + 1) % n
		now := time.Now().UTC()
		e.cred.LastUsedAt = &now
		return e.cred, nil
	}
	return domain.Credential{}, domain.ErrCredentialUnavailable
}

// Throttle blocks until the credential's outbound budget admits one call.
func (p *Pool) Throttle(ctx context.Context, credentialID string) error {
	p.mu.Lock()
	var limiter *rate.Limiter
	for _, e := range p.entries {
		if e.cred.ID == credentialID {
			limiter = e.limiter
			break
		}
	}
	p.mu.Unlock()
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// Touch records usage in the repository.
func (p *Pool) Touch(ctx context.Context, credentialID string) {
	if err := p.repo.TouchCredential(ctx, credentialID, time.Now().UTC()); err != nil {
		p.logger.Warn().Err(err).Str("credential_id", credentialID).Msg("credentials: touch failed")
	}
}

// MarkUnhealthy removes the credential from rotation locally and persists
// the flag so other processes skip it after their next refresh.
func (p *Pool) MarkUnhealthy(ctx context.Context, credentialID, reason string) error {
	p.mu.Lock()
	var key string
	for _, e := range p.entries {
		if e.cred.ID == credentialID {
			e.cred.Healthy = false
			e.cred.LastError = reason
			key = e.cred.Key
		}
	}
	p.mu.Unlock()
	p.logger.Warn().
		Str("credential_id", credentialID).
		Str("key", domain.KeyFingerprint(key)).
		Str("reason", reason).
		Msg("credentials: marked unhealthy")
	return p.repo.MarkUnhealthy(ctx, credentialID, reason)
}

// Reset returns a credential to rotation. Operator action only.
func (p *Pool) Reset(ctx context.Context, credentialID string) error {
	ok, err := p.repo.ResetCredential(ctx, credentialID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	p.mu.Lock()
	for _, e := range p.entries {
		if e.cred.ID == credentialID {
			e.cred.Healthy = true
			e.cred.LastError = ""
		}
	}
	p.mu.Unlock()
	p.logger.Info().Str("credential_id", credentialID).Msg("credentials: reset")
	return nil
}

// Snapshot lists credentials with key material removed.
func (p *Pool) Snapshot() []domain.Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Credential, 0, len(p.entries))
	for _, e := range p.entries {
		c := e.cred
		c.Key = domain.KeyFingerprint(c.Key)
		out = append(out, c)
	}
	return out
}

// RunRefresh reloads the pool every interval so operator resets propagate.
func (p *Pool) RunRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error().Err(err).Msg("credentials: refresh failed")
			}
		}
	}
}
