// Package uow makes one transaction implicitly visible to every repository
// call inside a logical unit of work. The handle rides on the context for
// the extent of the RunInTransaction callback; repositories re-check the
// context on every statement instead of capturing the answer once, since
// the same repository instance serves transactional and plain calls.
package uow

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
)

type txContextKey struct{}

// RunInTransaction opens a transaction on db, binds it to the context for
// the duration of fn, and commits when fn returns nil. If fn returns an
// error the transaction rolls back and the error propagates unchanged.
// Nesting joins the already-bound transaction rather than opening a second
// one.
func RunInTransaction(ctx context.Context, db *bun.DB, fn func(ctx context.Context) error) error {
	if _, ok := fromContext(ctx); ok {
		return fn(ctx)
	}
	return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txContextKey{}, tx))
	})
}

// Conn returns the transaction bound to ctx if one is active, else the
// ambient handle. Repositories call this before every statement.
func Conn(ctx context.Context, fallback bun.IDB) bun.IDB {
	if tx, ok := fromContext(ctx); ok {
		return tx
	}
	return fallback
}

// InTransaction reports whether a transaction is bound to ctx.
func InTransaction(ctx context.Context) bool {
	_, ok := fromContext(ctx)
	return ok
}

func fromContext(ctx context.Context) (bun.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(bun.Tx)
	return tx, ok
}
