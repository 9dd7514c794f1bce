package ledger

import (
	"context"
	"errors"
	"time"

	"jewelshot/internal/domain"
)

// Reaper refunds reservations whose owning job or batch unit is gone or no
// longer in flight, so crashed work never strands credit.
type Reaper struct {
	ledger *Service
	repo   domain.CreditRepository
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func NewReaper(ledger *Service, repo domain.CreditRepository, ttl time.Duration) *Reaper {
	return &Reaper{ledger: ledger, repo: repo, ttl: ttl, batch: 100, now: time.Now}
}

// RunOnce refunds one page of stale reservations and returns how many were
// refunded.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	stale, err := r.repo.StaleReservations(ctx, r.now().Add(-r.ttl), r.batch)
	if err != nil {
		return 0, err
	}
	refunded := 0
	for _, res := range stale {
		err := r.ledger.Refund(ctx, res.ID)
		switch {
		case err == nil:
			refunded++
			r.ledger.logger.Warn().
				Str("reservation_id", res.ID).
				Str("user_id", res.UserID).
				Int64("amount", res.Amount).
				Msg("ledger: reaped stale reservation")
		case errors.Is(err, domain.ErrAlreadyResolved):
		default:
			return refunded, err
		}
	}
	return refunded, nil
}

// Run calls RunOnce every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.ledger.logger.Error().Err(err).Msg("ledger: reaper pass failed")
			}
		}
	}
}
