package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrNotFound      = errors.New("store: record not found")
	ErrDuplicate     = errors.New("store: duplicate record")
	ErrReferenced    = errors.New("store: record is referenced or references a missing record")
	ErrSerialization = errors.New("store: concurrent update conflict")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs statements against either the pool or an open transaction.
type Queries struct {
	db DBTX
}

type Store struct {
	*Queries
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{
		Queries: &Queries{db: db},
		db:      db,
	}
}

// RunAtomic executes fn inside a single read-committed transaction. The
// transaction commits only when fn returns nil; any error, panic or context
// cancellation rolls every statement back.
func (s *Store) RunAtomic(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback()

	if err := fn(&Queries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

// mapError translates PostgreSQL error codes into store sentinels, keeping
// the driver error in the chain.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w (%s): %w", ErrDuplicate, pqErr.Constraint, err)
		case "23503":
			return fmt.Errorf("%w (%s): %w", ErrReferenced, pqErr.Constraint, err)
		case "40001", "40P01":
			return fmt.Errorf("%w: %w", ErrSerialization, err)
		}
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}
