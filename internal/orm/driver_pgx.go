package orm

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"relmap/internal/shared"
)

// PgxDriver адаптирует pgxpool.Pool к контракту Driver.
// LastInsertID недоступен по протоколу PostgreSQL; сгенерированные
// ключи получают через RETURNING (диалект сообщает о поддержке).
type PgxDriver struct {
	pool *pgxpool.Pool
}

// NewPgxDriver оборачивает пул подключений pgx.
func NewPgxDriver(pool *pgxpool.Pool) *PgxDriver {
	return &PgxDriver{pool: pool}
}

// Pool возвращает нижележащий пул.
func (d *PgxDriver) Pool() *pgxpool.Pool { return d.pool }

func (d *PgxDriver) ExecContext(ctx context.Context, query string, args ...any) (Result, error) {
	tag, err := d.pool.Exec(ctx, query, args...)
	if err != nil {
		return Result{}, shared.FromDB(err)
	}
	return Result{RowsAffected: tag.RowsAffected()}, nil
}

func (d *PgxDriver) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.FromDB(err)
	}
	return pgxRows{rows: rows}, nil
}

func (d *PgxDriver) BeginTx(ctx context.Context) (TxExecutor, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, shared.FromDB(err)
	}
	return &pgxTxExecutor{tx: tx}, nil
}

type pgxTxExecutor struct {
	tx pgx.Tx
}

func (t *pgxTxExecutor) ExecContext(ctx context.Context, query string, args ...any) (Result, error) {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return Result{}, shared.FromDB(err)
	}
	return Result{RowsAffected: tag.RowsAffected()}, nil
}

func (t *pgxTxExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.FromDB(err)
	}
	return pgxRows{rows: rows}, nil
}

func (t *pgxTxExecutor) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return shared.FromDB(err)
	}
	return nil
}

func (t *pgxTxExecutor) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return shared.FromDB(err)
	}
	return nil
}

// pgxRows приводит pgx.Rows к общему интерфейсу: Close у pgx не
// возвращает ошибку, итоговая ошибка доступна через Err.
type pgxRows struct {
	rows pgx.Rows
}

func (r pgxRows) Next() bool { return r.rows.Next() }
func (r pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r pgxRows) Err() error { return r.rows.Err() }

func (r pgxRows) Close() error {
	r.rows.Close()
	return nil
}
