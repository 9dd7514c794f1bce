package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"jewelshot/internal/domain"
)

// Source yields leased jobs.
type Source interface {
	Dequeue(ctx context.Context, workerID string) (*domain.Job, error)
	Wait(ctx context.Context, poll time.Duration)
}

// WorkerPool runs a fixed number of dequeue loops. Concurrency is the
// backpressure bound: a worker leases its next job only after the previous
// one finished.
type WorkerPool struct {
	source      Source
	router      *Router
	name        string
	concurrency int
	poll        time.Duration
	logger      zerolog.Logger
}

func NewWorkerPool(source Source, router *Router, name string, concurrency int, poll time.Duration, logger zerolog.Logger) *WorkerPool {
	if concurrency < 1 {
		concurrency = 1
	}
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &WorkerPool{source: source, router: router, name: name, concurrency: concurrency, poll: poll, logger: logger}
}

// Run blocks until ctx is cancelled. In-flight jobs finish with a detached
// context so a shutdown does not abandon a provider call halfway.
func (p *WorkerPool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		workerID := fmt.Sprintf("%s-%d", p.name, i)
		g.Go(func() error {
			p.loop(gctx, workerID)
			return nil
		})
	}
	p.logger.Info().Int("concurrency", p.concurrency).Msg("worker: started")
	err := g.Wait()
	p.logger.Info().Msg("worker: stopped")
	return err
}

func (p *WorkerPool) loop(ctx context.Context, workerID string) {
	for ctx.Err() == nil {
		job, err := p.source.Dequeue(ctx, workerID)
		if err != nil {
			if !errors.Is(err, domain.ErrNoJob) && ctx.Err() == nil {
				p.logger.Error().Err(err).Str("worker_id", workerID).Msg("worker: dequeue failed")
			}
			p.source.Wait(ctx, p.poll)
			continue
		}
		p.logger.Info().Str("job_id", job.ID).Str("worker_id", workerID).Str("lane", string(job.Lane)).Msg("worker: picked job")
		p.router.Process(context.WithoutCancel(ctx), job, workerID)
	}
}
