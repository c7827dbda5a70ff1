package orm

import (
	"context"
)

// Result — результат выполнения DML-запроса. LastInsertID доступен
// только у драйверов, возвращающих его (SQLite); для PostgreSQL
// сгенерированный ключ получают через RETURNING.
type Result struct {
	LastInsertID    int64
	HasLastInsertID bool
	RowsAffected    int64
}

// Rows — минимальный итератор по строкам результата, общий для
// database/sql и pgx.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// Executor выполняет SQL-запросы. Реализуется и подключением
// (пулом), и открытой транзакцией, поэтому код запросов не зависит
// от того, где он выполняется.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// TxExecutor — исполнитель внутри открытой транзакции.
type TxExecutor interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner открывает транзакции. Реализуется адаптерами драйверов.
type Beginner interface {
	BeginTx(ctx context.Context) (TxExecutor, error)
}

// Driver — полный контракт адаптера драйвера: выполнение запросов
// вне транзакции и открытие транзакций.
type Driver interface {
	Executor
	Beginner
}
