// Package queue implements the durable priority lanes consumed by workers.
// Jobs live in Postgres; a worker leases a job for a visibility timeout and
// an expired lease makes the job visible again (at-least-once delivery).
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"jewelshot/internal/domain"
)

type Queue struct {
	repo     domain.JobRepository
	selector *Selector
	lease    time.Duration
	logger   zerolog.Logger
	wake     chan struct{}
}

func New(repo domain.JobRepository, selector *Selector, lease time.Duration, logger zerolog.Logger) *Queue {
	return &Queue{
		repo:     repo,
		selector: selector,
		lease:    lease,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// Lease is the visibility timeout applied to claimed jobs.
func (q *Queue) Lease() time.Duration { return q.lease }

func (q *Queue) Enqueue(ctx context.Context, job *domain.Job) error {
	if job.Lane == "" {
		job.Lane = domain.LaneInteractive
	}
	if err := q.repo.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	q.logger.Info().Str("job_id", job.ID).Str("lane", string(job.Lane)).Str("kind", string(job.Kind)).Msg("queue: job enqueued")
	q.Signal()
	return nil
}

// Dequeue leases the next job using weighted lane selection. Returns
// domain.ErrNoJob when every lane is empty.
func (q *Queue) Dequeue(ctx context.Context, workerID string) (*domain.Job, error) {
	for _, lane := range q.selector.Order() {
		job, err := q.repo.ClaimNext(ctx, lane, workerID, q.lease)
		if errors.Is(err, domain.ErrNoJob) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("claim from %s: %w", lane, err)
		}
		return job, nil
	}
	return nil, domain.ErrNoJob
}

// Signal wakes one idle worker. Never blocks.
func (q *Queue) Signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Wait blocks until Signal is called, poll elapses or ctx is done.
func (q *Queue) Wait(ctx context.Context, poll time.Duration) {
	timer := time.NewTimer(poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-q.wake:
	case <-timer.C:
	}
}

func (q *Queue) Depths(ctx context.Context) (map[domain.Lane]int, error) {
	return q.repo.LaneDepths(ctx)
}
