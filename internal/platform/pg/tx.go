package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txKey — ключ контекста для активной транзакции.
type txKey struct{}

// Querier — общий интерфейс выполнения запросов для пула и транзакции.
// Код, принимающий Querier, не зависит от того, идёт ли запрос в
// транзакции.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ Querier = (*pgxpool.Pool)(nil)
	_ Querier = (pgx.Tx)(nil)
)

// TxRunner выполняет функции внутри транзакции с гарантированным
// коммитом при успехе и откатом при ошибке.
type TxRunner struct {
	Pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner поверх пула подключений.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{Pool: pool}
}

// WithinTx выполняет fn в транзакции с опциями по умолчанию. Транзакция
// кладётся в контекст и доступна внутри fn через PgxTx или GetQuerier.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return pgx.BeginFunc(ctx, r.Pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// WithinTxWithOptions выполняет fn в транзакции с заданным уровнем
// изоляции и режимом доступа.
func (r *TxRunner) WithinTxWithOptions(ctx context.Context, txOptions pgx.TxOptions, fn func(ctx context.Context) error) error {
	return pgx.BeginTxFunc(ctx, r.Pool, txOptions, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// PgxTx достаёт активную транзакцию из контекста. Второе значение
// сообщает, была ли она там.
func PgxTx(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// GetQuerier возвращает транзакцию из контекста, если она там есть,
// иначе пул.
func (r *TxRunner) GetQuerier(ctx context.Context) Querier {
	if tx, ok := PgxTx(ctx); ok {
		return tx
	}
	return r.Pool
}
