package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Querier is the statement surface shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Scope is what repositories run statements on: the store itself, or an
// open transaction.
type Scope struct {
	Conn Querier
	tx   *sql.Tx
}

// InTx reports whether the scope is a transaction.
func (s *Scope) InTx() bool {
	return s.tx != nil
}

// WithScope returns ctx carrying a non-transactional scope over db.
func (db *DB) WithScope(ctx context.Context) context.Context {
	return SetScope(ctx, &Scope{Conn: db.DB})
}

// WithTx runs fn with a transaction scope in its context. The transaction
// commits if fn returns nil and rolls back otherwise, including on panic.
// Nested calls reuse the outer transaction.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if scope, ok := GetScope(ctx); ok && scope.InTx() {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(SetScope(ctx, &Scope{Conn: tx, tx: tx})); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
