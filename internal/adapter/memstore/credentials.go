package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"jewelshot/internal/domain"
)

func (s *Store) ListCredentials(_ context.Context) ([]domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListCredentials"); err != nil {
		return nil, err
	}
	out := make([]domain.Credential, 0, len(s.credentials))
	for _, c := range s.credentials {
		out = append(out, *c)
	}
	return out, nil
}

func (s *Store) AddCredential(_ context.Context, cred *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	cred.Healthy = true
	cred.CreatedAt = s.now()
	cp := *cred
	s.credentials = append(s.credentials, &cp)
	return nil
}

func (s *Store) findCredential(id string) *domain.Credential {
	for _, c := range s.credentials {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Store) MarkUnhealthy(_ context.Context, credentialID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findCredential(credentialID)
	if c == nil {
		return domain.ErrNotFound
	}
	c.Healthy = false
	c.LastError = reason
	return nil
}

func (s *Store) ResetCredential(_ context.Context, credentialID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findCredential(credentialID)
	if c == nil {
		return false, nil
	}
	c.Healthy = true
	c.LastError = ""
	return true, nil
}

func (s *Store) TouchCredential(_ context.Context, credentialID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.findCredential(credentialID); c != nil {
		c.LastUsedAt = &at
	}
	return nil
}
