// Package memstore is an in-process implementation of the domain
// repositories. Every method runs under one mutex so the conditional updates
// behave like the single-statement SQL used by the Postgres repositories.
package memstore

import (
	"sync"
	"time"

	"jewelshot/internal/domain"
)

// Store implements domain.JobRepository, domain.CreditRepository,
// domain.BatchRepository and domain.CredentialRepository.
type Store struct {
	mu  sync.Mutex
	now func() time.Time
	seq int64

	jobs         map[string]*domain.Job
	accounts     map[string]*domain.CreditAccount
	reservations map[string]*domain.Reservation
	projects     map[string]*domain.BatchProject
	units        map[string]*domain.BatchImage
	credentials  []*domain.Credential
	order        map[string]int64

	faults map[string]error
}

func New() *Store {
	return &Store{
		now:          time.Now,
		jobs:         make(map[string]*domain.Job),
		accounts:     make(map[string]*domain.CreditAccount),
		reservations: make(map[string]*domain.Reservation),
		projects:     make(map[string]*domain.BatchProject),
		units:        make(map[string]*domain.BatchImage),
		order:        make(map[string]int64),
		faults:       make(map[string]error),
	}
}

// SetClock overrides the time source used for leases and timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// FailNext makes the next call of the named method return err.
func (s *Store) FailNext(method string, err error) {
	s.mu.Lock()
	s.faults[method] = err
	s.mu.Unlock()
}

// fault must be called with mu held.
func (s *Store) fault(method string) error {
	err, ok := s.faults[method]
	if !ok {
		return nil
	}
	delete(s.faults, method)
	return err
}

func (s *Store) nextSeq(id string) {
	s.seq++
	s.order[id] = s.seq
}

var (
	_ domain.JobRepository        = (*Store)(nil)
	_ domain.CreditRepository     = (*Store)(nil)
	_ domain.BatchRepository      = (*Store)(nil)
	_ domain.CredentialRepository = (*Store)(nil)
)
