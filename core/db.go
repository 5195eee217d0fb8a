package core

import (
	"context"
	"database/sql"
)

type (
	// DBExecutor is satisfied by *sql.DB and *sql.Tx.
	DBExecutor interface {
		Exec(query string, args ...interface{}) (sql.Result, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		Query(query string, args ...interface{}) (*sql.Rows, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRow(query string, args ...interface{}) *sql.Row
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	// TxRunner runs fn inside a single transaction: fn's error (or panic) rolls everything back.
	// Repositories receive the transaction through their optional `exec` argument.
	TxRunner interface {
		RunInTx(ctx context.Context, fn func(exec DBExecutor) error) error
	}
)

type detachedContext struct {
	context.Context
	values context.Context
}

// Detach returns a context carrying ctx's values but none of its deadline or cancellation.
func Detach(ctx context.Context) context.Context {
	return detachedContext{Context: context.Background(), values: ctx}
}

func (c detachedContext) Value(key interface{}) interface{} {
	return c.values.Value(key)
}
