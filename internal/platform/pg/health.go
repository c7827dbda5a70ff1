package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"relmap/pkg/retry"
)

// HealthCheckOptions содержит опции для ожидания доступности БД.
type HealthCheckOptions struct {
	// MaxRetries - максимальное количество попыток
	MaxRetries int
	// InitialInterval - начальная задержка между попытками
	InitialInterval time.Duration
	// MaxInterval - максимальная задержка между попытками
	MaxInterval time.Duration
	// PingTimeout - таймаут для каждой попытки ping
	PingTimeout time.Duration
}

// DefaultHealthCheckOptions возвращает опции по умолчанию для проверки здоровья БД.
func DefaultHealthCheckOptions() HealthCheckOptions {
	return HealthCheckOptions{
		MaxRetries:      10,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		PingTimeout:     5 * time.Second,
	}
}

// WaitForDB ожидает доступности базы данных с экспоненциальной задержкой
// между попытками. Возвращает nil при успешном подключении или ошибку
// при исчерпании попыток либо отмене контекста.
func WaitForDB(ctx context.Context, dsn string, opts HealthCheckOptions) error {
	cfg := retry.Config{
		MaxAttempts:    opts.MaxRetries,
		InitialDelay:   opts.InitialInterval,
		MaxDelay:       opts.MaxInterval,
		Multiplier:     2.0,
		JitterStrategy: retry.JitterNone,
	}

	// Любая ошибка пинга считается повторяемой: БД просто ещё не поднялась
	return retry.DoWithRetryable(ctx, cfg, func(ctx context.Context) error {
		return pingDatabase(ctx, dsn, opts.PingTimeout)
	}, func(err error) bool { return err != nil })
}

// WaitForDBSimple - упрощенная версия WaitForDB с параметрами по умолчанию.
// Ожидает доступности БД до общего таймаута.
func WaitForDBSimple(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := DefaultHealthCheckOptions()
	opts.MaxRetries = int(timeout/opts.InitialInterval) + 1

	return WaitForDB(ctx, dsn, opts)
}

// HealthCheck выполняет разовую проверку доступности БД.
// Возвращает nil если БД доступна, иначе ошибку с деталями.
func HealthCheck(ctx context.Context, dsn string) error {
	return pingDatabase(ctx, dsn, 5*time.Second)
}

// HealthCheckPool выполняет проверку здоровья существующего пула подключений.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pool ping failed: %w", err)
	}

	// Дополнительная проверка: выполняем простой запрос
	var result int
	err := pool.QueryRow(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("simple query failed: %w", err)
	}

	if result != 1 {
		return fmt.Errorf("unexpected query result: got %d, want 1", result)
	}

	return nil
}

// pingDatabase выполняет пинг БД с созданием временного подключения.
func pingDatabase(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	return nil
}

// DBStats содержит статистику подключений к БД.
type DBStats struct {
	MaxConns     int32         // Максимальное количество подключений
	OpenConns    int32         // Текущее количество открытых подключений
	InUse        int32         // Количество подключений в использовании
	Idle         int32         // Количество простаивающих подключений
	WaitCount    int64         // Количество ожиданий подключения
	WaitDuration time.Duration // Общее время ожидания
}

// GetPoolStats возвращает статистику пула подключений.
func GetPoolStats(pool *pgxpool.Pool) DBStats {
	if pool == nil {
		return DBStats{}
	}

	stats := pool.Stat()

	return DBStats{
		MaxConns:     stats.MaxConns(),
		OpenConns:    stats.TotalConns(),
		InUse:        stats.AcquiredConns(),
		Idle:         stats.IdleConns(),
		WaitCount:    stats.EmptyAcquireCount(),
		WaitDuration: stats.AcquireDuration(),
	}
}

// IsHealthy проверяет, здоров ли пул на основе его статистики.
// Возвращает true если пул работает нормально, false если есть проблемы.
func IsHealthy(stats DBStats) bool {
	if stats.MaxConns == 0 {
		return false // Пул не настроен
	}

	if stats.OpenConns == 0 {
		return false // Нет открытых подключений
	}

	// Проверяем, что не все подключения заняты (оставляем запас)
	utilizationPercent := float64(stats.InUse) / float64(stats.MaxConns) * 100
	if utilizationPercent > 90 {
		return false // Слишком высокая нагрузка
	}

	return true
}
