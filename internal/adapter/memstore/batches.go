package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"jewelshot/internal/domain"
)

func (s *Store) CreateProject(_ context.Context, project *domain.BatchProject, units []domain.BatchImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateProject"); err != nil {
		return err
	}
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	now := s.now()
	project.TotalCount = len(units)
	project.Status = domain.BatchStatusProcessing
	project.CreatedAt = now
	project.UpdatedAt = now
	cp := *project
	s.projects[project.ID] = &cp
	for i := range units {
		unit := units[i]
		if unit.ID == "" {
			unit.ID = uuid.NewString()
		}
		unit.BatchID = project.ID
		unit.UserID = project.UserID
		unit.Status = domain.UnitStatusPending
		unit.CreatedAt = now
		s.units[unit.ID] = &unit
		s.nextSeq(unit.ID)
		units[i] = unit
	}
	return nil
}

func (s *Store) GetProject(_ context.Context, batchID string) (*domain.BatchProject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[batchID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ClaimNextPending(_ context.Context, batchID string) (*domain.BatchImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ClaimNextPending"); err != nil {
		return nil, err
	}
	var picked *domain.BatchImage
	for _, unit := range s.units {
		if unit.BatchID != batchID || unit.Status != domain.UnitStatusPending {
			continue
		}
		if picked == nil || s.order[unit.ID] < s.order[picked.ID] {
			picked = unit
		}
	}
	if picked == nil {
		return nil, domain.ErrNoPendingUnit
	}
	now := s.now()
	picked.Status = domain.UnitStatusProcessing
	picked.ClaimedAt = &now
	cp := *picked
	return &cp, nil
}

func (s *Store) AttachReservation(_ context.Context, unitID, reservationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("AttachReservation"); err != nil {
		return err
	}
	unit, ok := s.units[unitID]
	if !ok {
		return domain.ErrNotFound
	}
	unit.ReservationID = reservationID
	return nil
}

func (s *Store) ReleaseUnit(_ context.Context, unitID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unit, ok := s.units[unitID]
	if !ok || unit.Status != domain.UnitStatusProcessing {
		return false, nil
	}
	unit.Status = domain.UnitStatusPending
	unit.ClaimedAt = nil
	unit.ReservationID = ""
	return true, nil
}

func (s *Store) CompleteUnit(_ context.Context, unitID, resultURL, label string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CompleteUnit"); err != nil {
		return false, err
	}
	unit, ok := s.units[unitID]
	if !ok || unit.Status != domain.UnitStatusProcessing {
		return false, nil
	}
	now := s.now()
	unit.Status = domain.UnitStatusCompleted
	unit.ResultURL = resultURL
	unit.Label = label
	unit.CompletedAt = &now
	return true, nil
}

func (s *Store) FailUnit(_ context.Context, unitID, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("FailUnit"); err != nil {
		return false, err
	}
	unit, ok := s.units[unitID]
	if !ok || unit.Status != domain.UnitStatusProcessing {
		return false, nil
	}
	now := s.now()
	unit.Status = domain.UnitStatusFailed
	unit.ErrorMessage = message
	unit.CompletedAt = &now
	return true, nil
}

func (s *Store) IncrementCounters(_ context.Context, batchID string, completed, failed int) (*domain.BatchProject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[batchID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p.CompletedCount += completed
	p.FailedCount += failed
	p.UpdatedAt = s.now()
	cp := *p
	return &cp, nil
}

func (s *Store) MarkCompleted(_ context.Context, batchID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[batchID]
	if !ok || p.Status != domain.BatchStatusProcessing || !p.Finished() {
		return false, nil
	}
	now := s.now()
	p.Status = domain.BatchStatusCompleted
	p.NotifiedAt = &now
	p.UpdatedAt = now
	return true, nil
}

func (s *Store) ListUnits(_ context.Context, batchID string) ([]domain.BatchImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BatchImage
	for _, unit := range s.units {
		if unit.BatchID == batchID {
			out = append(out, *unit)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i].ID] < s.order[out[j].ID] })
	return out, nil
}

func (s *Store) StaleUnits(_ context.Context, claimedBefore time.Time, limit int) ([]domain.BatchImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BatchImage
	for _, unit := range s.units {
		if unit.Status == domain.UnitStatusProcessing && unit.ClaimedAt != nil && unit.ClaimedAt.Before(claimedBefore) {
			out = append(out, *unit)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i].ID] < s.order[out[j].ID] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
