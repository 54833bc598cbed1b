package dbutil

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog"
)

// Tx is a transaction that speaks the ? placeholder style regardless of
// dialect, and that may be rolled back after it has been committed.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
	done    bool
}

func Begin(ctx context.Context, db *sql.DB, dialect Dialect, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, dialect: dialect}, nil
}

// Rollback abandons the transaction unless it already finished.  Meant for
// defer.
func (t *Tx) Rollback(ctx context.Context) {
	if t.done {
		return
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("rollback failed")
	}
}

func (t *Tx) Commit() error {
	t.done = true
	return t.tx.Commit()
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

// ExecCount runs query and returns how many rows it touched.
func (t *Tx) ExecCount(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := t.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
