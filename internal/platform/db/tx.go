package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
// The transaction is rolled back on error or panic and committed otherwise.
//
// Under RepeatableRead, a transaction that blocks on another's row lock fails
// with SQLSTATE 40001 (serialization_failure) once the winner commits, instead
// of re-reading the updated row. Callers relying on a FOR UPDATE read followed
// by a status-predicate UPDATE must treat 40001 as retryable; on retry the
// re-read observes the committed state and the domain guard answers (for
// example ErrAlreadyConverted on a converted quote).
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
