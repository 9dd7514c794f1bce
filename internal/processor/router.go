package processor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"jewelshot/internal/backoff"
	"jewelshot/internal/domain"
)

// Settler resolves credit reservations exactly once.
type Settler interface {
	Settle(ctx context.Context, reservationID string, confirm bool) error
}

// Router processes leased jobs. Every state transition is conditional on the
// worker still holding the lease, and the reservation is settled only after
// the winning transition, so redelivered jobs cannot double-charge.
type Router struct {
	jobs     domain.JobRepository
	ledger   Settler
	executor *Executor
	policy   backoff.Policy
	logger   zerolog.Logger
	now      func() time.Time
}

func NewRouter(jobs domain.JobRepository, ledger Settler, executor *Executor, policy backoff.Policy, logger zerolog.Logger) *Router {
	return &Router{
		jobs:     jobs,
		ledger:   ledger,
		executor: executor,
		policy:   policy,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Process runs one attempt of job on behalf of workerID.
func (r *Router) Process(ctx context.Context, job *domain.Job, workerID string) domain.Outcome {
	log := r.logger.With().Str("job_id", job.ID).Str("kind", string(job.Kind)).Int("attempt", job.Attempts).Logger()
	if job.Status.IsTerminal() {
		return storedOutcome(job)
	}

	req, err := DecodeRequest(job.Payload)
	var result domain.GenerationResult
	if err == nil {
		result, err = r.executor.Execute(ctx, job.Kind, req, job.ID)
	}
	if err == nil {
		return r.complete(ctx, log, job, workerID, result)
	}

	if domain.IsRetryable(err) && r.policy.ShouldRetry(job.Attempts) {
		delay := r.policy.Delay(job.Attempts)
		ok, reqErr := r.jobs.Requeue(ctx, job.ID, workerID, r.now().Add(delay), err.Error())
		switch {
		case reqErr != nil:
			log.Error().Err(reqErr).Msg("processor: requeue failed")
		case !ok:
			log.Warn().Msg("processor: lease lost before requeue")
		default:
			log.Warn().Err(err).Dur("delay", delay).Msg("processor: transient failure, requeued")
		}
		return domain.Outcome{Success: false, Error: err.Error()}
	}
	return r.fail(ctx, log, job, workerID, err)
}

func (r *Router) complete(ctx context.Context, log zerolog.Logger, job *domain.Job, workerID string, result domain.GenerationResult) domain.Outcome {
	ok, err := r.jobs.Complete(ctx, job.ID, workerID, result)
	if err != nil {
		perr := &domain.PersistenceError{Result: result, Err: err}
		log.Error().Err(perr).Str("result_url", result.URL).Msg("processor: result not persisted")
		return domain.Outcome{Success: true, Data: &result, Error: perr.Error(), Unsaved: true}
	}
	if !ok {
		log.Warn().Msg("processor: lease lost before completion")
		return domain.Outcome{Success: true, Data: &result}
	}
	if err := r.ledger.Settle(ctx, job.ReservationID, true); err != nil {
		log.Error().Err(err).Str("reservation_id", job.ReservationID).Msg("processor: confirm reservation failed")
	}
	log.Info().Str("result_url", result.URL).Msg("processor: job completed")
	return domain.Outcome{Success: true, Data: &result}
}

func (r *Router) fail(ctx context.Context, log zerolog.Logger, job *domain.Job, workerID string, cause error) domain.Outcome {
	ok, err := r.jobs.Fail(ctx, job.ID, workerID, cause.Error())
	switch {
	case err != nil:
		log.Error().Err(err).Msg("processor: mark failed")
	case !ok:
		log.Warn().Msg("processor: lease lost before failure")
	default:
		if err := r.ledger.Settle(ctx, job.ReservationID, false); err != nil {
			log.Error().Err(err).Str("reservation_id", job.ReservationID).Msg("processor: refund reservation failed")
		}
		log.Warn().Err(cause).Msg("processor: job failed")
	}
	return domain.Outcome{Success: false, Error: cause.Error()}
}

func storedOutcome(job *domain.Job) domain.Outcome {
	if job.Status == domain.JobStatusCompleted {
		return domain.Outcome{Success: true, Data: &domain.GenerationResult{URL: job.ResultURL, Width: job.ResultWidth, Height: job.ResultHeight}}
	}
	return domain.Outcome{Success: false, Error: job.ErrorMessage}
}
