package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tamannathakur/Invora/internal/repositories"
)

// TxManager runs a function inside a single database transaction. Every
// workflow transition is one atomic unit: if the function returns an error
// (including a failed ledger append) the whole transaction rolls back and no
// store is left partially mutated.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(executor repositories.SQLExecutor) error) error
}

type sqlTxManager struct {
	db *sql.DB
}

// NewTxManager creates a TxManager over a *sql.DB.
func NewTxManager(db *sql.DB) TxManager {
	return &sqlTxManager{db: db}
}

func (m *sqlTxManager) WithinTx(ctx context.Context, fn func(executor repositories.SQLExecutor) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start database transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit database transaction: %w", err)
	}
	return nil
}
