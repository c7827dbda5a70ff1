package scheduler

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"relmap/internal/shared"
)

// Обслуживание базы данных: периодический ping соединений, публикация
// статистики пула и фоновая оптимизация SQLite. Задачи регистрируются
// приложением при старте.

// PingJob возвращает задачу, проверяющую доступность базы.
func PingJob(ping func(ctx context.Context) error) JobFunc {
	return func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return shared.Wrap(err, "database ping")
		}
		return nil
	}
}

// SQLStatsJob возвращает задачу, логирующую статистику пула database/sql.
func SQLStatsJob(db *sql.DB, logger *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		stats := db.Stats()
		logger.InfoContext(ctx, "sql pool stats",
			slog.Int("open", stats.OpenConnections),
			slog.Int("in_use", stats.InUse),
			slog.Int("idle", stats.Idle),
			slog.Int64("wait_count", stats.WaitCount),
			slog.Duration("wait_duration", stats.WaitDuration),
		)
		return nil
	}
}

// PgxStatsJob возвращает задачу, логирующую статистику пула pgx.
func PgxStatsJob(pool *pgxpool.Pool, logger *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		stat := pool.Stat()
		logger.InfoContext(ctx, "pgx pool stats",
			slog.Int("total_conns", int(stat.TotalConns())),
			slog.Int("acquired_conns", int(stat.AcquiredConns())),
			slog.Int("idle_conns", int(stat.IdleConns())),
			slog.Int64("acquire_count", stat.AcquireCount()),
			slog.Duration("acquire_duration", stat.AcquireDuration()),
		)
		return nil
	}
}

// SQLiteOptimizeJob возвращает задачу фоновой оптимизации SQLite:
// PRAGMA optimize и усечение WAL-журнала.
func SQLiteOptimizeJob(db *sql.DB) JobFunc {
	return func(ctx context.Context) error {
		if _, err := db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
			return shared.Wrap(err, "pragma optimize")
		}
		if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			return shared.Wrap(err, "wal checkpoint")
		}
		return nil
	}
}

// RegisterMaintenance регистрирует стандартный набор задач обслуживания.
func RegisterMaintenance(s *Scheduler, jobs map[string]JobFunc, interval time.Duration) error {
	schedule := "@every " + interval.String()
	for name, job := range jobs {
		_, err := s.AddJobWithOptions(schedule, job, JobOptions{
			Name:          name,
			Timeout:       30 * time.Second,
			OverlapPolicy: SkipIfRunning,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
