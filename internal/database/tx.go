package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx is an open transaction on one reserved connection. Statements run on
// the same connection in order. A Tx is not safe for concurrent use.
//
// A Tx that is neither committed nor rolled back holds its connection, so
// always pair Begin with a deferred Rollback; Rollback after Commit is a
// no-op.
type Tx struct {
	tx       pgx.Tx
	classify func(error) error
}

// Begin opens a transaction on ex, which may be a *Pool or a *Tx. Beginning
// on a *Tx creates a savepoint that commits or rolls back on its own.
func Begin(ctx context.Context, ex Executor) (*Tx, error) {
	return ex.Begin(ctx)
}

// WithTx runs fn inside a transaction on ex. The transaction commits when
// fn returns nil and rolls back when it returns an error or panics.
func WithTx(ctx context.Context, ex Executor, fn func(*Tx) error) error {
	tx, err := ex.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

// Exec runs sql inside the transaction.
func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	return tag, t.classify(err)
}

// Query runs sql inside the transaction. The returned rows classify
// errors from Scan and Err, and must be closed before the next statement.
func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rs, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, t.classify(err)
	}
	return &rows{Rows: rs, classify: t.classify}, nil
}

// QueryRow runs sql expecting at most one row. A missing row surfaces from
// Scan as sqlerr.RowNotFound.
func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &row{row: t.tx.QueryRow(ctx, sql, args...), classify: t.classify}
}

// Begin starts a savepoint inside t.
func (t *Tx) Begin(ctx context.Context) (*Tx, error) {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return nil, t.classify(err)
	}
	return &Tx{tx: sp, classify: t.classify}, nil
}

// Commit makes the transaction's changes durable. A deferred constraint
// that fails here is classified like any other statement error.
func (t *Tx) Commit(ctx context.Context) error {
	return t.classify(t.tx.Commit(ctx))
}

// Rollback discards the transaction's changes and releases its connection.
// It returns nil if the transaction is already closed.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return t.classify(err)
}
