package app

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"relmap/internal/adapter/httpapi"
	"relmap/internal/adapter/scheduler"
	"relmap/internal/config"
	"relmap/internal/domain"
	"relmap/internal/orm"
	"relmap/internal/platform/logger"
	"relmap/internal/repository"
)

const (
	shutdownTimeout     = 5 * time.Second
	maintenanceInterval = 5 * time.Minute
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "relmap",
	})
	return &App{cfg: cfg, log: log}, nil
}

// Run starts the application and blocks until a termination signal.
func (a *App) Run() error {
	a.log.Info("starting", slog.String("driver", a.cfg.DB.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer be.close()

	engine := orm.NewEngine(be.driver, be.dialect,
		orm.WithLogger(a.log.With("component", "orm")),
		orm.WithEcho(a.cfg.DB.Echo),
	)
	if err := engine.Register(&domain.User{}, &domain.Task{}); err != nil {
		return err
	}
	// Without a migrations directory the schema is derived from the
	// registered entities.
	if a.cfg.Migrations.Dir == "" {
		if err := engine.CreateAll(ctx); err != nil {
			return err
		}
	}

	sessions := orm.NewSessionMaker(engine)
	users := repository.NewUserRepository(sessions, a.log)
	tasks := repository.NewTaskRepository(sessions, a.log)

	srv := httpapi.NewServer(httpapi.Options{
		Users:  users,
		Tasks:  tasks,
		Health: be.health,
		Stats:  be.stats,
		Logger: a.log.With("component", "http"),
		Debug:  a.cfg.Env == "dev",
	})

	sched := scheduler.NewWithContext(ctx, scheduler.Config{
		Logger: a.log.With("component", "scheduler"),
	})
	if err := scheduler.RegisterMaintenance(sched, be.maintenance, maintenanceInterval); err != nil {
		return err
	}
	sched.Start()

	httpSrv := &http.Server{Addr: a.cfg.HTTP.Addr, Handler: srv.Handler()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("server", slog.Any("err", err))
		}
	}()
	a.log.Info("listening", slog.String("addr", a.cfg.HTTP.Addr))

	<-ctx.Done()
	a.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.StopContext(shutdownCtx); err != nil {
		a.log.Warn("scheduler shutdown", slog.Any("err", err))
	}
	return httpSrv.Shutdown(shutdownCtx)
}
