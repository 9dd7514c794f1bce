package credentials

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"jewelshot/internal/domain"
	"jewelshot/internal/infra"
	"jewelshot/internal/sqlinline"
)

// Store persists provider credentials in provider_credentials.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) ListCredentials(ctx context.Context) ([]domain.Credential, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QCredentialList)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Credential
	for rows.Next() {
		var c domain.Credential
		if err := rows.Scan(&c.ID, &c.Label, &c.Key, &c.Healthy, &c.LastError, &c.LastUsedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Key = strings.TrimSpace(c.Key)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) AddCredential(ctx context.Context, cred *domain.Credential) error {
	cred.Key = strings.TrimSpace(cred.Key)
	if cred.Key == "" {
		return errors.New("credential key is required")
	}
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	row := s.sql.QueryRow(ctx, sqlinline.QCredentialInsert, cred.ID, cred.Label, cred.Key)
	if err := row.Scan(&cred.CreatedAt); err != nil {
		return err
	}
	cred.Healthy = true
	return nil
}

func (s *Store) MarkUnhealthy(ctx context.Context, credentialID, reason string) error {
	tag, err := s.sql.Exec(ctx, sqlinline.QCredentialMarkUnhealthy, credentialID, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) ResetCredential(ctx context.Context, credentialID string) (bool, error) {
	tag, err := s.sql.Exec(ctx, sqlinline.QCredentialReset, credentialID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) TouchCredential(ctx context.Context, credentialID string, at time.Time) error {
	_, err := s.sql.Exec(ctx, sqlinline.QCredentialTouch, credentialID, at)
	return err
}

var _ domain.CredentialRepository = (*Store)(nil)
