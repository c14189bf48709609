package repositories

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrNotFound is returned when a specific record is not found.
	ErrNotFound = errors.New("requested record not found")

	// ErrDatabaseError is returned for unexpected database errors.
	// It can be used to wrap more specific driver errors.
	ErrDatabaseError = errors.New("database error")

	// ErrDuplicateKey is returned when an insert/update violates a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key value violates unique constraint")

	// ErrNoRowsAffected is returned when a guarded UPDATE matched no rows:
	// either the status compare-and-swap or a quantity guard failed because a
	// concurrent transition got there first. Callers decide whether that means
	// a retryable conflict or a shortfall branch.
	ErrNoRowsAffected = errors.New("guarded update matched no rows")
)

// SQLExecutor defines an interface satisfied by both *sql.DB and *sql.Tx.
// Repository write methods take it so the same code runs inside a
// service-managed transaction or against the pool directly.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}
