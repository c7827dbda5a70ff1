package app

import (
	"context"
	"log/slog"
	"time"

	"relmap/internal/adapter/httpapi"
	"relmap/internal/adapter/scheduler"
	"relmap/internal/orm"
	"relmap/internal/platform/pg"
	"relmap/internal/platform/sqlite"
	"relmap/internal/shared"
)

const dbWaitTimeout = 30 * time.Second

// backend bundles everything driver-specific: the ORM driver adapter,
// the dialect, health and stats probes and the maintenance job set.
type backend struct {
	driver      orm.Driver
	dialect     orm.Dialect
	health      httpapi.HealthFunc
	stats       httpapi.StatsFunc
	maintenance map[string]scheduler.JobFunc
	close       func()
}

func (a *App) openBackend(ctx context.Context) (*backend, error) {
	switch a.cfg.DB.Driver {
	case "postgres":
		return a.openPostgres(ctx)
	default:
		return a.openSQLite(ctx)
	}
}

func (a *App) openSQLite(ctx context.Context) (*backend, error) {
	db, err := sqlite.NewDB(ctx, a.cfg.DB.Path)
	if err != nil {
		return nil, shared.Wrap(err, "open sqlite")
	}

	if dir := a.cfg.Migrations.Dir; dir != "" {
		if err := sqlite.ApplyMigrations(a.cfg.DB.Path, dir); err != nil {
			db.Close()
			return nil, shared.Wrap(err, "apply sqlite migrations")
		}
		a.log.Info("migrations applied", slog.String("dir", dir))
	}

	return &backend{
		driver:  orm.NewSQLDriver(db),
		dialect: orm.DialectSQLite(),
		health: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
		stats: func() map[string]any {
			s := db.Stats()
			return map[string]any{
				"open":    s.OpenConnections,
				"in_use":  s.InUse,
				"idle":    s.Idle,
				"waits":   s.WaitCount,
				"blocked": s.WaitDuration.String(),
			}
		},
		maintenance: map[string]scheduler.JobFunc{
			"db-ping":         scheduler.PingJob(db.PingContext),
			"sql-pool-stats":  scheduler.SQLStatsJob(db, a.log),
			"sqlite-optimize": scheduler.SQLiteOptimizeJob(db),
		},
		close: func() { db.Close() },
	}, nil
}

func (a *App) openPostgres(ctx context.Context) (*backend, error) {
	dsn := a.cfg.DB.DSN

	if err := pg.WaitForDBSimple(ctx, dsn, dbWaitTimeout); err != nil {
		return nil, shared.Wrap(err, "wait for postgres")
	}

	opts := pg.DefaultPoolOptions()
	opts.MaxConns = a.cfg.DB.MaxConns
	opts.MinConns = a.cfg.DB.MinConns
	pool, err := pg.NewPoolWithOptions(ctx, dsn, opts)
	if err != nil {
		return nil, shared.Wrap(err, "open postgres pool")
	}

	if dir := a.cfg.Migrations.Dir; dir != "" {
		info, err := pg.ApplyMigrations(dsn, dir)
		if err != nil {
			pool.Close()
			return nil, shared.Wrap(err, "apply postgres migrations")
		}
		a.log.Info("migrations applied",
			slog.String("dir", dir),
			slog.Uint64("version", uint64(info.FinalVersion)),
			slog.Bool("dirty", info.Dirty),
		)
	}

	return &backend{
		driver:  orm.NewPgxDriver(pool),
		dialect: orm.DialectPostgres(),
		health: func(ctx context.Context) error {
			return pg.HealthCheckPool(ctx, pool)
		},
		stats: func() map[string]any {
			s := pg.GetPoolStats(pool)
			return map[string]any{
				"max_conns":     s.MaxConns,
				"open":          s.OpenConns,
				"in_use":        s.InUse,
				"idle":          s.Idle,
				"wait_count":    s.WaitCount,
				"wait_duration": s.WaitDuration.String(),
			}
		},
		maintenance: map[string]scheduler.JobFunc{
			"db-ping":        scheduler.PingJob(pool.Ping),
			"pgx-pool-stats": scheduler.PgxStatsJob(pool, a.log),
		},
		close: pool.Close,
	}, nil
}
