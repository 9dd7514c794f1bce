package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"jewelshot/internal/domain"
)

func (s *Store) Enqueue(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("Enqueue"); err != nil {
		return err
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := s.now()
	job.Status = domain.JobStatusQueued
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.AvailableAt.IsZero() {
		job.AvailableAt = now
	}
	job.UpdatedAt = now
	cp := *job
	s.jobs[job.ID] = &cp
	s.nextSeq(job.ID)
	return nil
}

func (s *Store) ClaimNext(_ context.Context, lane domain.Lane, workerID string, lease time.Duration) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ClaimNext"); err != nil {
		return nil, err
	}
	now := s.now()
	var picked *domain.Job
	for _, job := range s.jobs {
		if job.Lane != lane || job.Status != domain.JobStatusQueued || job.AvailableAt.After(now) {
			continue
		}
		if picked == nil || s.order[job.ID] < s.order[picked.ID] {
			picked = job
		}
	}
	if picked == nil {
		return nil, domain.ErrNoJob
	}
	expires := now.Add(lease)
	picked.Status = domain.JobStatusActive
	picked.Attempts++
	picked.LeaseOwner = workerID
	picked.LeaseExpiresAt = &expires
	picked.UpdatedAt = now
	cp := *picked
	return &cp, nil
}

func (s *Store) leased(jobID, workerID string) *domain.Job {
	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.JobStatusActive || job.LeaseOwner != workerID {
		return nil
	}
	return job
}

func (s *Store) Complete(_ context.Context, jobID, workerID string, result domain.GenerationResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("Complete"); err != nil {
		return false, err
	}
	job := s.leased(jobID, workerID)
	if job == nil {
		return false, nil
	}
	job.Status = domain.JobStatusCompleted
	job.ResultURL = result.URL
	job.ResultWidth = result.Width
	job.ResultHeight = result.Height
	job.ErrorMessage = ""
	job.LeaseOwner = ""
	job.LeaseExpiresAt = nil
	job.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) Fail(_ context.Context, jobID, workerID, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("Fail"); err != nil {
		return false, err
	}
	job := s.leased(jobID, workerID)
	if job == nil {
		return false, nil
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = message
	job.LeaseOwner = ""
	job.LeaseExpiresAt = nil
	job.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) Requeue(_ context.Context, jobID, workerID string, availableAt time.Time, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("Requeue"); err != nil {
		return false, err
	}
	job := s.leased(jobID, workerID)
	if job == nil {
		return false, nil
	}
	job.Status = domain.JobStatusQueued
	job.AvailableAt = availableAt
	job.ErrorMessage = message
	job.LeaseOwner = ""
	job.LeaseExpiresAt = nil
	job.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *Store) ReleaseExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, job := range s.jobs {
		if job.Status != domain.JobStatusActive || job.LeaseExpiresAt == nil || job.LeaseExpiresAt.After(now) {
			continue
		}
		job.Status = domain.JobStatusQueued
		job.LeaseOwner = ""
		job.LeaseExpiresAt = nil
		job.AvailableAt = now
		job.UpdatedAt = now
		n++
	}
	return n, nil
}

func (s *Store) FailExhausted(_ context.Context, now time.Time, maxAttempts int, message string) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, job := range s.jobs {
		if job.Status != domain.JobStatusActive || job.LeaseExpiresAt == nil || job.LeaseExpiresAt.After(now) || job.Attempts < maxAttempts {
			continue
		}
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = message
		job.LeaseOwner = ""
		job.LeaseExpiresAt = nil
		job.UpdatedAt = now
		out = append(out, *job)
	}
	return out, nil
}

func (s *Store) LaneDepths(_ context.Context) (map[domain.Lane]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	depths := make(map[domain.Lane]int)
	for _, lane := range domain.Lanes() {
		depths[lane] = 0
	}
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusQueued {
			depths[job.Lane]++
		}
	}
	return depths, nil
}
