package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    name       TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migration is one SQL file.
type Migration struct {
	Name string
	SQL  string
}

// LoadMigrations reads the *.sql files at the root of fsys in name order.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("platform/db: read migrations: %w", err)
	}
	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("platform/db: read %s: %w", entry.Name(), err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, Migration{Name: entry.Name(), SQL: string(data)})
	}
	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Pending filters out migrations whose names were already applied.
func Pending(all []Migration, applied []string) []Migration {
	var out []Migration
	for _, m := range all {
		if !slices.Contains(applied, m.Name) {
			out = append(out, m)
		}
	}
	return out
}

// Migrate applies pending migrations from fsys, each in its own transaction,
// and returns the names it applied.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]string, error) {
	all, err := LoadMigrations(fsys)
	if err != nil {
		return nil, err
	}
	err = WithTx(ctx, pool, MigrationLock, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, migrationsTable)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("platform/db: create schema_migrations: %w", err)
	}
	rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("platform/db: list migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("platform/db: list migrations: %w", err)
	}

	var done []string
	for _, m := range Pending(all, applied) {
		ran := false
		err := WithTx(ctx, pool, MigrationLock, func(tx pgx.Tx) error {
			// another process may have applied it while we waited for the lock
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, m.Name).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return nil
			}
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name); err != nil {
				return err
			}
			ran = true
			return nil
		})
		if err != nil {
			return done, fmt.Errorf("platform/db: apply %s: %w", m.Name, err)
		}
		if ran {
			done = append(done, m.Name)
		}
	}
	return done, nil
}
