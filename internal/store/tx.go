package store

import (
	"context"
	"database/sql"
)

// Tx is a transaction that rebinds placeholders for its dialect and tags
// constraint failures with ErrSchemaViolation.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
}

// Dialect returns the engine flavour of the transaction.
func (t *Tx) Dialect() Dialect { return t.dialect }

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, Rebind(t.dialect, query), args...)
	return res, classify(err)
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, Rebind(t.dialect, query), args...)
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, Rebind(t.dialect, query), args...)
}

// ExecAll runs statements in order, stopping at the first failure.
func (t *Tx) ExecAll(ctx context.Context, stmts ...string) error {
	for _, s := range stmts {
		if _, err := t.Exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Prepare compiles a statement bound to the transaction.
func (t *Tx) Prepare(ctx context.Context, query string) (*Stmt, error) {
	st, err := t.tx.PrepareContext(ctx, Rebind(t.dialect, query))
	if err != nil {
		return nil, err
	}
	return &Stmt{st: st}, nil
}

// Stmt is a prepared statement whose Exec errors are classified.
type Stmt struct {
	st *sql.Stmt
}

func (s *Stmt) Exec(ctx context.Context, args ...any) (sql.Result, error) {
	res, err := s.st.ExecContext(ctx, args...)
	return res, classify(err)
}

func (s *Stmt) QueryRow(ctx context.Context, args ...any) *sql.Row {
	return s.st.QueryRowContext(ctx, args...)
}

func (s *Stmt) Close() error { return s.st.Close() }
