package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type transactor struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewTransactor returns a Transactor that binds a pgx transaction to the
// context. Nested calls join the outer transaction.
func NewTransactor(pool *pgxpool.Pool, logger *zap.Logger) repository.Transactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &transactor{pool: pool, logger: logger}
}

func (t *transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			t.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
