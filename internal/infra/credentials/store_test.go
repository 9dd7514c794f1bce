package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"jewelshot/internal/domain"
)

type stubExecutor struct {
	tag  pgconn.CommandTag
	err  error
	exec struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return s.tag, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.exec.query = query
	s.exec.args = args
	return stubRow{err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	err error
}

func (r stubRow) Scan(dest ...any) error {
	return r.err
}

func TestAddCredential(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	cred := &domain.Credential{Label: "primary", Key: " secret "}
	if err := store.AddCredential(context.Background(), cred); err != nil {
		t.Fatalf("AddCredential error: %v", err)
	}
	if len(exec.exec.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[2].(string); !ok || v != "secret" {
		t.Fatalf("expected trimmed secret argument, got %T %v", exec.exec.args[2], exec.exec.args[2])
	}
	if cred.ID == "" || !cred.Healthy {
		t.Fatalf("expected id and healthy flag, got %+v", cred)
	}
}

func TestAddCredentialEmpty(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.AddCredential(context.Background(), &domain.Credential{Key: " "}); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestMarkUnhealthyUnknown(t *testing.T) {
	store := NewStore(&stubExecutor{tag: pgconn.NewCommandTag("UPDATE 0")})
	if err := store.MarkUnhealthy(context.Background(), "id", "401"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResetCredential(t *testing.T) {
	exec := &stubExecutor{tag: pgconn.NewCommandTag("UPDATE 1")}
	store := NewStore(exec)
	ok, err := store.ResetCredential(context.Background(), "id")
	if err != nil || !ok {
		t.Fatalf("expected reset, got %v %v", ok, err)
	}
}
