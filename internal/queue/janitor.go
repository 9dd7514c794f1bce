package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"jewelshot/internal/domain"
)

// Settler resolves credit reservations exactly once.
type Settler interface {
	Settle(ctx context.Context, reservationID string, confirm bool) error
}

// Janitor returns jobs with expired leases to their lane. A job whose lease
// expired on its last allowed attempt is failed and refunded instead, so a
// job that keeps crashing its worker cannot circulate forever.
type Janitor struct {
	repo        domain.JobRepository
	ledger      Settler
	maxAttempts int
	logger      zerolog.Logger
	now         func() time.Time
}

func NewJanitor(repo domain.JobRepository, ledger Settler, maxAttempts int, logger zerolog.Logger) *Janitor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Janitor{repo: repo, ledger: ledger, maxAttempts: maxAttempts, logger: logger, now: time.Now}
}

// RunOnce fails exhausted jobs, then releases the remaining expired leases.
// It reports how many jobs went back to their lane.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	now := j.now()
	exhausted, err := j.repo.FailExhausted(ctx, now, j.maxAttempts, exhaustedMessage)
	if err != nil {
		return 0, err
	}
	for _, job := range exhausted {
		j.logger.Warn().Str("job_id", job.ID).Str("user_id", job.UserID).Int("attempts", job.Attempts).Msg("queue: lease expired on last attempt, job failed")
		if job.ReservationID == "" {
			continue
		}
		if err := j.ledger.Settle(ctx, job.ReservationID, false); err != nil {
			j.logger.Error().Err(err).Str("job_id", job.ID).Str("reservation_id", job.ReservationID).Msg("queue: refund exhausted job failed")
		}
	}

	n, err := j.repo.ReleaseExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.logger.Warn().Int64("released", n).Msg("queue: released expired leases")
	}
	return n, nil
}

const exhaustedMessage = "worker lease expired on the final attempt"

func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error().Err(err).Msg("queue: janitor pass failed")
			}
		}
	}
}
