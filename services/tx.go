package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dosada05/ladder-system/repositories"
)

// TxRunner runs a function inside one transaction. The recalculation's final
// commit goes through this so ratings, snapshots and history land atomically.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error
}

type sqlTxRunner struct {
	db *sql.DB
}

func NewSQLTxRunner(db *sql.DB) TxRunner {
	return &sqlTxRunner{db: db}
}

func (r *sqlTxRunner) RunInTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed (%v) after: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
