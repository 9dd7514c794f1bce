package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"jewelshot/internal/domain"
)

func (s *Store) account(userID string) *domain.CreditAccount {
	acct, ok := s.accounts[userID]
	if !ok {
		acct = &domain.CreditAccount{UserID: userID}
		s.accounts[userID] = acct
	}
	return acct
}

func (s *Store) Reserve(_ context.Context, res *domain.Reservation) (domain.CreditAccount, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("Reserve"); err != nil {
		return domain.CreditAccount{}, false, err
	}
	acct := s.account(res.UserID)
	if acct.Balance-acct.Reserved < res.Amount {
		return *acct, false, nil
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	now := s.now()
	res.State = domain.ReservationReserved
	res.CreatedAt = now
	acct.Reserved += res.Amount
	acct.UpdatedAt = now
	cp := *res
	s.reservations[res.ID] = &cp
	return *acct, true, nil
}

func (s *Store) resolve(method, reservationID string, to domain.ReservationState) (domain.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(method); err != nil {
		return domain.Resolution{}, err
	}
	res, ok := s.reservations[reservationID]
	if !ok {
		return domain.Resolution{}, domain.ErrNotFound
	}
	acct := s.account(res.UserID)
	if res.State != domain.ReservationReserved {
		return domain.Resolution{Reservation: *res, Account: *acct}, nil
	}
	now := s.now()
	res.State = to
	res.ResolvedAt = &now
	acct.Reserved -= res.Amount
	if to == domain.ReservationConfirmed {
		acct.Balance -= res.Amount
	}
	acct.UpdatedAt = now
	return domain.Resolution{Reservation: *res, Account: *acct, Applied: true}, nil
}

func (s *Store) Confirm(_ context.Context, reservationID string) (domain.Resolution, error) {
	return s.resolve("Confirm", reservationID, domain.ReservationConfirmed)
}

func (s *Store) Refund(_ context.Context, reservationID string) (domain.Resolution, error) {
	return s.resolve("Refund", reservationID, domain.ReservationRefunded)
}

func (s *Store) Account(_ context.Context, userID string) (domain.CreditAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok := s.accounts[userID]; ok {
		return *acct, nil
	}
	return domain.CreditAccount{UserID: userID}, nil
}

func (s *Store) Grant(_ context.Context, userID string, amount, threshold int64) (domain.CreditAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.account(userID)
	acct.Balance += amount
	acct.LifetimeGranted += amount
	if acct.Balance >= threshold {
		acct.NotifiedLevel = domain.LowBalanceNone
	}
	acct.UpdatedAt = s.now()
	return *acct, nil
}

func (s *Store) MarkNotified(_ context.Context, userID string, level domain.LowBalanceLevel) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.account(userID)
	if acct.NotifiedLevel >= level {
		return false, nil
	}
	acct.NotifiedLevel = level
	return true, nil
}

func (s *Store) StaleReservations(_ context.Context, cutoff time.Time, limit int) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inFlight := make(map[string]bool)
	for _, job := range s.jobs {
		if job.ReservationID != "" && !job.Status.IsTerminal() {
			inFlight[job.ReservationID] = true
		}
	}
	for _, unit := range s.units {
		if unit.ReservationID != "" && unit.Status == domain.UnitStatusProcessing {
			inFlight[unit.ReservationID] = true
		}
	}
	var out []domain.Reservation
	for _, res := range s.reservations {
		if res.State != domain.ReservationReserved || !res.CreatedAt.Before(cutoff) || inFlight[res.ID] {
			continue
		}
		out = append(out, *res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Reservations returns every reservation of userID. Test helper.
func (s *Store) Reservations(userID string) []domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, res := range s.reservations {
		if res.UserID == userID {
			out = append(out, *res)
		}
	}
	return out
}
