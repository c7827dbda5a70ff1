package orm

import (
	"context"
	"log/slog"
	"time"
)

// Engine связывает драйвер, диалект и реестр метаданных. Все запросы
// сессий проходят через Engine; при включённом echo каждый запрос
// логируется с аргументами и длительностью.
type Engine struct {
	driver  Driver
	dialect Dialect
	meta    *Metadata
	log     *slog.Logger
	echo    bool
}

// EngineOption настраивает Engine при создании.
type EngineOption func(*Engine)

// WithLogger задаёт логгер для echo-вывода SQL.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// WithEcho включает логирование каждого SQL-запроса.
func WithEcho(echo bool) EngineOption {
	return func(e *Engine) { e.echo = echo }
}

// WithMetadata задаёт реестр таблиц вместо создаваемого по умолчанию.
func WithMetadata(m *Metadata) EngineOption {
	return func(e *Engine) { e.meta = m }
}

// NewEngine создаёт Engine поверх адаптера драйвера.
func NewEngine(driver Driver, dialect Dialect, opts ...EngineOption) *Engine {
	e := &Engine{
		driver:  driver,
		dialect: dialect,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.meta == nil {
		e.meta = NewMetadata()
	}
	return e
}

// Dialect возвращает диалект движка.
func (e *Engine) Dialect() Dialect { return e.dialect }

// Metadata возвращает реестр таблиц движка.
func (e *Engine) Metadata() *Metadata { return e.meta }

// Register регистрирует сущность в реестре движка.
func (e *Engine) Register(entities ...Entity) error {
	for _, ent := range entities {
		if _, err := e.meta.Register(ent); err != nil {
			return err
		}
	}
	return nil
}

// CreateAll создаёт все зарегистрированные таблицы.
func (e *Engine) CreateAll(ctx context.Context) error {
	return e.meta.CreateAll(ctx, e, e.dialect)
}

// DropAll удаляет все зарегистрированные таблицы.
func (e *Engine) DropAll(ctx context.Context) error {
	return e.meta.DropAll(ctx, e, e.dialect)
}

// ExecContext выполняет запрос вне транзакции с echo-логированием.
func (e *Engine) ExecContext(ctx context.Context, query string, args ...any) (Result, error) {
	start := time.Now()
	res, err := e.driver.ExecContext(ctx, query, args...)
	e.echoQuery(ctx, query, args, start, err)
	return res, err
}

// QueryContext выполняет выборку вне транзакции с echo-логированием.
func (e *Engine) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	start := time.Now()
	rows, err := e.driver.QueryContext(ctx, query, args...)
	e.echoQuery(ctx, query, args, start, err)
	return rows, err
}

// BeginTx открывает транзакцию; её исполнитель сохраняет echo-логирование.
func (e *Engine) BeginTx(ctx context.Context) (TxExecutor, error) {
	tx, err := e.driver.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	if e.echo {
		e.log.DebugContext(ctx, "BEGIN")
	}
	return &echoTxExecutor{tx: tx, engine: e}, nil
}

func (e *Engine) echoQuery(ctx context.Context, query string, args []any, start time.Time, err error) {
	if !e.echo {
		return
	}
	attrs := []any{
		slog.String("sql", query),
		slog.Any("args", args),
		slog.Duration("took", time.Since(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		e.log.WarnContext(ctx, "query failed", attrs...)
		return
	}
	e.log.DebugContext(ctx, "query", attrs...)
}

type echoTxExecutor struct {
	tx     TxExecutor
	engine *Engine
}

func (t *echoTxExecutor) ExecContext(ctx context.Context, query string, args ...any) (Result, error) {
	start := time.Now()
	res, err := t.tx.ExecContext(ctx, query, args...)
	t.engine.echoQuery(ctx, query, args, start, err)
	return res, err
}

func (t *echoTxExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	start := time.Now()
	rows, err := t.tx.QueryContext(ctx, query, args...)
	t.engine.echoQuery(ctx, query, args, start, err)
	return rows, err
}

func (t *echoTxExecutor) Commit(ctx context.Context) error {
	if t.engine.echo {
		t.engine.log.DebugContext(ctx, "COMMIT")
	}
	return t.tx.Commit(ctx)
}

func (t *echoTxExecutor) Rollback(ctx context.Context) error {
	if t.engine.echo {
		t.engine.log.DebugContext(ctx, "ROLLBACK")
	}
	return t.tx.Rollback(ctx)
}
