package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"libradesk/internal/apperr"
)

// Tx is one unit of work. Every exit path that is not an explicit Commit
// must end in Rollback.
type Tx struct {
	*sqlx.Tx
}

// Begin starts a transaction bound to ctx; cancelling ctx rolls it back.
func (d *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Transient("begin transaction", err)
	}
	return &Tx{Tx: tx}, nil
}

func (t *Tx) Commit() error {
	if err := t.Tx.Commit(); err != nil {
		return apperr.Transient("commit transaction", err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a finished one is a no-op.
func (t *Tx) Rollback() error {
	if err := t.Tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return apperr.Transient("rollback transaction", err)
	}
	return nil
}

// RunInTx runs fn inside a transaction: COMMIT when fn returns nil,
// ROLLBACK on error or panic.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	tx, err := d.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}
