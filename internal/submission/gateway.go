// Package submission admits operation requests: it enforces the server-side
// rate limits, reserves credit and enqueues a durable job.
package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"jewelshot/internal/domain"
	"jewelshot/internal/processor"
	"jewelshot/internal/ratelimit"
)

// Ledger is the subset of the credit ledger the gateway needs.
type Ledger interface {
	Reserve(ctx context.Context, userID string, amount int64, kind domain.OperationKind) (string, error)
	Refund(ctx context.Context, reservationID string) error
}

// Enqueuer persists a job into its lane.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *domain.Job) error
}

// Limits are the enforced ceilings, shared by every API process.
type Limits struct {
	PerUser int
	Global  int
	Window  time.Duration
}

type Request struct {
	UserID  string
	Kind    domain.OperationKind
	Payload json.RawMessage
	Lane    domain.Lane
	Country string
}

type Gateway struct {
	limiter *ratelimit.Limiter
	limits  Limits
	ledger  Ledger
	queue   Enqueuer
	logger  zerolog.Logger
}

func NewGateway(limiter *ratelimit.Limiter, limits Limits, ledger Ledger, queue Enqueuer, logger zerolog.Logger) *Gateway {
	return &Gateway{limiter: limiter, limits: limits, ledger: ledger, queue: queue, logger: logger}
}

// Submit validates req, then rate limits, reserves and enqueues, in that
// order. The returned job is queued; processing happens asynchronously.
func (g *Gateway) Submit(ctx context.Context, req Request) (*domain.Job, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	lane := req.Lane
	if lane == "" {
		lane = domain.LaneInteractive
	}
	decoded, err := processor.DecodeRequest(req.Payload)
	if err != nil {
		return nil, err
	}
	if _, err := processor.Build(req.Kind, decoded); err != nil {
		return nil, err
	}

	if err := g.admit(ctx, userID); err != nil {
		return nil, err
	}

	cost := req.Kind.Cost()
	reservationID, err := g.ledger.Reserve(ctx, userID, cost, req.Kind)
	if err != nil {
		return nil, err
	}

	job := &domain.Job{
		ID:            uuid.NewString(),
		Kind:          req.Kind,
		UserID:        userID,
		Lane:          lane,
		Payload:       req.Payload,
		ReservationID: reservationID,
		Cost:          cost,
		OriginCountry: req.Country,
	}
	if err := g.queue.Enqueue(ctx, job); err != nil {
		if refundErr := g.ledger.Refund(context.WithoutCancel(ctx), reservationID); refundErr != nil {
			g.logger.Error().Err(refundErr).Str("reservation_id", reservationID).Msg("submission: refund after enqueue failure failed")
		}
		return nil, fmt.Errorf("submit job: %w", err)
	}
	return job, nil
}

// admit records the submission in the per-user and global windows together,
// so a rejection by either leaves both untouched. It fails closed: a limiter
// that cannot answer rejects the request.
func (g *Gateway) admit(ctx context.Context, userID string) error {
	var checks []ratelimit.Check
	if g.limits.PerUser > 0 {
		checks = append(checks, ratelimit.Check{Subject: ratelimit.UserSubject(userID), Ceiling: g.limits.PerUser})
	}
	if g.limits.Global > 0 {
		checks = append(checks, ratelimit.Check{Subject: ratelimit.GlobalSubject, Ceiling: g.limits.Global})
	}
	if len(checks) == 0 {
		return nil
	}
	decision, subject, err := g.limiter.CheckAndRecordAll(ctx, g.limits.Window, checks...)
	if err != nil {
		g.logger.Error().Err(err).Str("user_id", userID).Msg("submission: rate limiter unavailable")
		return fmt.Errorf("%w: rate limiter: %v", domain.ErrUnavailable, err)
	}
	if !decision.Allowed {
		return &domain.RateLimitError{Subject: subject, RetryAfter: decision.RetryAfter}
	}
	return nil
}
