// Package db owns the schema. Migrations are embedded SQL files applied in
// lexical order, each inside its own transaction.
package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// TxStarter is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Migration struct {
	Version string
	SQL     string
}

// Migrations lists the embedded migrations in apply order.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		raw, err := migrationFiles.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), SQL: string(raw)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies every migration not yet recorded in schema_migrations and
// returns the versions it applied.
func Migrate(ctx context.Context, db TxStarter, logger zerolog.Logger) ([]string, error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, m := range migrations {
		done, err := apply(ctx, db, m)
		if err != nil {
			return applied, fmt.Errorf("migration %s: %w", m.Version, err)
		}
		if done {
			logger.Info().Str("version", m.Version).Msg("db: migration applied")
			applied = append(applied, m.Version)
		}
	}
	return applied, nil
}

func apply(ctx context.Context, db TxStarter, m Migration) (bool, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `create table if not exists schema_migrations (
    version    text primary key,
    applied_at timestamptz not null default now()
)`); err != nil {
		return false, err
	}
	// Serialises concurrent migrators.
	if _, err := tx.Exec(ctx, `lock table schema_migrations in exclusive mode`); err != nil {
		return false, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, `select exists(select 1 from schema_migrations where version = $1)`, m.Version).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `insert into schema_migrations (version) values ($1)`, m.Version); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}
