package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jewelshot/internal/domain"
	"jewelshot/internal/infra"
	"jewelshot/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on the jobs table.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Enqueue inserts a queued job and notifies listening workers.
func (r *JobRepositoryPG) Enqueue(ctx context.Context, job *domain.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	payload := []byte(job.Payload)
	if len(payload) == 0 {
		payload = nil
	}
	row := r.sql.QueryRow(ctx, sqlinline.QJobEnqueue,
		job.ID,
		string(job.Kind),
		job.UserID,
		string(job.Lane),
		payload,
		job.ReservationID,
		job.Cost,
		job.OriginCountry,
	)
	if err := row.Scan(&job.AvailableAt, &job.CreatedAt); err != nil {
		return err
	}
	job.Status = domain.JobStatusQueued
	job.UpdatedAt = job.CreatedAt
	return nil
}

// ClaimNext leases the oldest ready job of the lane.
func (r *JobRepositoryPG) ClaimNext(ctx context.Context, lane domain.Lane, workerID string, lease time.Duration) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QJobClaimNext, string(lane), workerID, lease.Seconds()))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNoJob
		}
		return nil, err
	}
	return job, nil
}

func (r *JobRepositoryPG) Complete(ctx context.Context, jobID, workerID string, result domain.GenerationResult) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QJobComplete, jobID, workerID, result.URL, result.Width, result.Height)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *JobRepositoryPG) Fail(ctx context.Context, jobID, workerID, message string) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QJobFail, jobID, workerID, message)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *JobRepositoryPG) Requeue(ctx context.Context, jobID, workerID string, availableAt time.Time, message string) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QJobRequeue, jobID, workerID, availableAt, message)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetJob fetches a job by its identifier.
func (r *JobRepositoryPG) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QJobGet, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *JobRepositoryPG) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QJobReleaseExpired, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FailExhausted fails expired leases that already used their last attempt
// and returns them so their reservations can be refunded.
func (r *JobRepositoryPG) FailExhausted(ctx context.Context, now time.Time, maxAttempts int, message string) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QJobFailExhausted, now, maxAttempts, message)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exhausted job: %w", err)
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func (r *JobRepositoryPG) LaneDepths(ctx context.Context) (map[domain.Lane]int, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QJobLaneDepths)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	depths := make(map[domain.Lane]int)
	for _, lane := range domain.Lanes() {
		depths[lane] = 0
	}
	for rows.Next() {
		var (
			lane  string
			count int
		)
		if err := rows.Scan(&lane, &count); err != nil {
			return nil, fmt.Errorf("scan lane depth: %w", err)
		}
		depths[domain.Lane(lane)] = count
	}
	return depths, rows.Err()
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
