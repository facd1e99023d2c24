package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MigrationLock is the advisory lock key held while schema changes run, so
// the server and worker can start together.
const MigrationLock int64 = 0x726573756d61696c

// WithTx runs fn inside a read-committed transaction. A non-zero lockKey is
// taken with pg_advisory_xact_lock before fn runs and released on commit or
// rollback.
func WithTx(ctx context.Context, pool *pgxpool.Pool, lockKey int64, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if lockKey != 0 {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
			return fmt.Errorf("platform/db: advisory lock: %w", err)
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}
