/**
 * @description
 * This file implements Store on top of a pgx connection pool. Every query method
 * lives on the queries type, which runs against either the pool or a transaction.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver, transactions and error codes.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db dbtx
}

// PostgresStore is the PostgreSQL implementation of Store and OutboxRepository.
type PostgresStore struct {
	*queries
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new instance of PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{queries: &queries{db: pool}, pool: pool}
}

// InTx runs fn in a read-committed transaction. Preconditions inside fn are
// protected by explicit row locks, not by the isolation level.
func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// mapError converts constraint violations into domain errors. Anything else is
// returned unchanged.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505", "23P01", "23514": // unique, exclusion, check
		if mapped, ok := ConstraintError(pgErr.ConstraintName); ok {
			return mapped
		}
		log.Printf("level=warn component=store msg=\"unmapped constraint violation\" constraint=%s code=%s", pgErr.ConstraintName, pgErr.Code)
	}
	return err
}

func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
