package database

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// withTx stores an open transaction in the context so nested repository calls
// join the same unit of work.
func withTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction carried by the context, if any.
func TxFromContext(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx, ok
}

// Ext returns the executor for the current context: the enclosing transaction
// when one is open, otherwise the bare connection pool. Repositories should
// run every query through this so they transparently participate in the
// caller's unit of work.
func (db *DB) Ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db.DB
}

// RunInTx executes fn inside a single database transaction carried via the
// context. If the context already carries a transaction, fn joins it and
// commit/rollback stay with the outermost caller.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return fn(withTx(ctx, tx))
	})
}
