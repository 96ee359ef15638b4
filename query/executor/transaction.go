package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TxBeginner is implemented by *sql.DB and *sql.Conn.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// SnapshotFunc runs executions inside one read-only transaction.
type SnapshotFunc func(tx *Executor) error

// Snapshot runs fn with an executor bound to a read-only transaction, so
// several executions (and the data and count statements of each) observe
// the same database state. The transaction is always rolled back.
//
// Statements run sequentially on the transaction; prepared statements and
// the result cache are bypassed.
func (e *Executor) Snapshot(ctx context.Context, opts *sql.TxOptions, fn SnapshotFunc) (err error) {
	beginner, ok := e.db.(TxBeginner)
	if !ok {
		return errors.New("executor: database does not support transactions")
	}
	if opts == nil {
		opts = &sql.TxOptions{ReadOnly: true}
	}

	tx, err := beginner.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && err == nil {
			err = fmt.Errorf("end snapshot: %w", rbErr)
		}
	}()

	child := *e
	child.db = tx
	child.sequential = true
	child.stmts = nil
	child.results = nil
	child.middlewares = append([]Middleware(nil), e.middlewares...)
	return fn(&child)
}
