package batch

import (
	"context"
	"time"
)

// Reaper fails units stuck in processing, for example after the caller's
// process crashed mid-step, and refunds their reservations.
type Reaper struct {
	orch *Orchestrator
	ttl  time.Duration
	now  func() time.Time
}

func NewReaper(orch *Orchestrator, ttl time.Duration) *Reaper {
	return &Reaper{orch: orch, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	stale, err := r.orch.repo.StaleUnits(ctx, r.now().Add(-r.ttl), 100)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for i := range stale {
		unit := stale[i]
		ok, err := r.orch.repo.FailUnit(ctx, unit.ID, "processing timed out")
		if err != nil {
			return reaped, err
		}
		if !ok {
			continue
		}
		reaped++
		if unit.ReservationID != "" {
			if err := r.orch.ledger.Settle(ctx, unit.ReservationID, false); err != nil {
				r.orch.logger.Error().Err(err).Str("unit_id", unit.ID).Msg("batch: refund stale unit failed")
			}
		}
		project, err := r.orch.repo.IncrementCounters(ctx, unit.BatchID, 0, 1)
		if err != nil {
			return reaped, err
		}
		r.orch.logger.Warn().Str("batch_id", unit.BatchID).Str("unit_id", unit.ID).Msg("batch: reaped stale unit")
		if project.Finished() {
			r.orch.finish(ctx, project)
		}
	}
	return reaped, nil
}

func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.orch.logger.Error().Err(err).Msg("batch: reaper pass failed")
			}
		}
	}
}
