package orm

import (
	"context"
	"database/sql"

	"relmap/internal/shared"
)

// SQLDriver адаптирует *sql.DB (SQLite через modernc.org/sqlite и любой
// другой database/sql драйвер) к контракту Driver.
type SQLDriver struct {
	db *sql.DB
}

// NewSQLDriver оборачивает открытое подключение database/sql.
func NewSQLDriver(db *sql.DB) *SQLDriver {
	return &SQLDriver{db: db}
}

// DB возвращает нижележащее подключение.
func (d *SQLDriver) DB() *sql.DB { return d.db }

func (d *SQLDriver) ExecContext(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, shared.FromDB(err)
	}
	return sqlResult(res), nil
}

func (d *SQLDriver) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, shared.FromDB(err)
	}
	return rows, nil
}

func (d *SQLDriver) BeginTx(ctx context.Context) (TxExecutor, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, shared.FromDB(err)
	}
	return &sqlTxExecutor{tx: tx}, nil
}

type sqlTxExecutor struct {
	tx *sql.Tx
}

func (t *sqlTxExecutor) ExecContext(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, shared.FromDB(err)
	}
	return sqlResult(res), nil
}

func (t *sqlTxExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, shared.FromDB(err)
	}
	return rows, nil
}

func (t *sqlTxExecutor) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return shared.FromDB(err)
	}
	return nil
}

func (t *sqlTxExecutor) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return shared.FromDB(err)
	}
	return nil
}

func sqlResult(res sql.Result) Result {
	r := Result{}
	if id, err := res.LastInsertId(); err == nil {
		r.LastInsertID = id
		r.HasLastInsertID = true
	}
	if n, err := res.RowsAffected(); err == nil {
		r.RowsAffected = n
	}
	return r
}
