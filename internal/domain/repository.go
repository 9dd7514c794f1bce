package domain

import (
	"context"
	"time"
)

// JobRepository persists jobs and implements lease-based lane consumption.
// Transitions out of active are conditional on the caller still holding the
// lease, so a worker whose lease expired cannot overwrite a redelivered job.
type JobRepository interface {
	Enqueue(ctx context.Context, job *Job) error
	// ClaimNext leases the oldest available job of lane and bumps its attempt
	// count. Returns ErrNoJob when the lane is empty.
	ClaimNext(ctx context.Context, lane Lane, workerID string, lease time.Duration) (*Job, error)
	Complete(ctx context.Context, jobID, workerID string, result GenerationResult) (bool, error)
	Fail(ctx context.Context, jobID, workerID, message string) (bool, error)
	Requeue(ctx context.Context, jobID, workerID string, availableAt time.Time, message string) (bool, error)
	GetJob(ctx context.Context, jobID string) (*Job, error)
	ReleaseExpired(ctx context.Context, now time.Time) (int64, error)
	// FailExhausted fails jobs whose lease expired on their last allowed
	// attempt and returns them.
	FailExhausted(ctx context.Context, now time.Time, maxAttempts int, message string) ([]Job, error)
	LaneDepths(ctx context.Context) (map[Lane]int, error)
}

// Resolution reports the outcome of a confirm or refund call. Applied is false
// when the reservation had already been resolved.
type Resolution struct {
	Reservation Reservation
	Account     CreditAccount
	Applied     bool
}

// CreditRepository owns credit accounts and reservations. Every balance
// mutation is a single conditional statement.
type CreditRepository interface {
	// Reserve records res and raises the account's reserved amount only when
	// balance - reserved >= res.Amount. The returned account reflects the state
	// after the attempt.
	Reserve(ctx context.Context, res *Reservation) (CreditAccount, bool, error)
	Confirm(ctx context.Context, reservationID string) (Resolution, error)
	Refund(ctx context.Context, reservationID string) (Resolution, error)
	Account(ctx context.Context, userID string) (CreditAccount, error)
	Grant(ctx context.Context, userID string, amount, threshold int64) (CreditAccount, error)
	// MarkNotified raises the account's notified level; it reports false when
	// the level was already at or above level.
	MarkNotified(ctx context.Context, userID string, level LowBalanceLevel) (bool, error)
	// StaleReservations lists unresolved reservations created before cutoff
	// that are not attached to a queued or active job or a processing unit.
	StaleReservations(ctx context.Context, cutoff time.Time, limit int) ([]Reservation, error)
}

// BatchRepository persists batch projects and their units.
type BatchRepository interface {
	CreateProject(ctx context.Context, project *BatchProject, units []BatchImage) error
	GetProject(ctx context.Context, batchID string) (*BatchProject, error)
	// ClaimNextPending moves the oldest pending unit to processing. Concurrent
	// callers never receive the same unit. Returns ErrNoPendingUnit when none
	// remain.
	ClaimNextPending(ctx context.Context, batchID string) (*BatchImage, error)
	AttachReservation(ctx context.Context, unitID, reservationID string) error
	ReleaseUnit(ctx context.Context, unitID string) (bool, error)
	CompleteUnit(ctx context.Context, unitID, resultURL, label string) (bool, error)
	FailUnit(ctx context.Context, unitID, message string) (bool, error)
	IncrementCounters(ctx context.Context, batchID string, completed, failed int) (*BatchProject, error)
	// MarkCompleted flips a finished batch to completed. Only the first caller
	// observes true.
	MarkCompleted(ctx context.Context, batchID string) (bool, error)
	ListUnits(ctx context.Context, batchID string) ([]BatchImage, error)
	StaleUnits(ctx context.Context, claimedBefore time.Time, limit int) ([]BatchImage, error)
}

// CredentialRepository stores upstream credentials.
type CredentialRepository interface {
	ListCredentials(ctx context.Context) ([]Credential, error)
	AddCredential(ctx context.Context, cred *Credential) error
	MarkUnhealthy(ctx context.Context, credentialID, reason string) error
	ResetCredential(ctx context.Context, credentialID string) (bool, error)
	TouchCredential(ctx context.Context, credentialID string, at time.Time) error
}
