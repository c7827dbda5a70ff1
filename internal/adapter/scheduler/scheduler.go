package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc представляет функцию задачи планировщика.
type JobFunc func(ctx context.Context) error

// JobID представляет идентификатор задачи.
type JobID = cron.EntryID

// OverlapPolicy определяет политику обработки перекрывающихся выполнений задач.
type OverlapPolicy int

const (
	// AllowOverlap разрешает параллельное выполнение задач (по умолчанию).
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning пропускает выполнение, если задача уже запущена.
	SkipIfRunning
	// DelayIfRunning ждет завершения предыдущего выполнения.
	DelayIfRunning
)

// JobOptions содержит опции для настройки задач.
type JobOptions struct {
	// Name - имя задачи для логирования (необязательно).
	Name string
	// Timeout - максимальное время выполнения задачи (необязательно).
	Timeout time.Duration
	// OverlapPolicy - политика обработки перекрывающихся выполнений.
	OverlapPolicy OverlapPolicy
}

// jobWrapper оборачивает задачу с её опциями.
type jobWrapper struct {
	job     JobFunc
	options JobOptions
	running sync.Mutex // для контроля перекрытий
}

// cronLogger адаптер для интеграции cron logger с slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	attrs := make([]slog.Attr, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := keysAndValues[i].(string)
		attrs = append(attrs, slog.Any(key, keysAndValues[i+1]))
	}
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := make([]slog.Attr, 0, len(keysAndValues)/2+1)
	attrs = append(attrs, slog.Any("error", err))
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := keysAndValues[i].(string)
		attrs = append(attrs, slog.Any(key, keysAndValues[i+1]))
	}
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

// Scheduler управляет периодическими задачами обслуживания базы данных.
// Фиксированные интервалы задаются расписанием "@every".
type Scheduler struct {
	cron      *cron.Cron
	logger    *slog.Logger
	hooks     JobHooks
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
	startOnce sync.Once
}

// JobHooks содержит необязательные хуки для наблюдаемости.
type JobHooks struct {
	OnJobStart  func(jobName string)
	OnJobFinish func(jobName string, duration time.Duration, err error)
	OnJobError  func(jobName string, err error)
}

// Config содержит конфигурацию планировщика.
type Config struct {
	Logger   *slog.Logger
	JobHooks JobHooks
}

// New создает новый экземпляр планировщика с background контекстом.
func New(cfg Config) *Scheduler {
	return NewWithContext(context.Background(), cfg)
}

// NewWithContext создает новый экземпляр планировщика с указанным родительским контекстом.
func NewWithContext(parentCtx context.Context, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(parentCtx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cronOpts := []cron.Option{
		cron.WithLogger(cronLogger{logger: logger.With("component", "cron")}),
	}

	return &Scheduler{
		cron:   cron.New(cronOpts...),
		logger: logger,
		hooks:  cfg.JobHooks,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob добавляет задачу по cron-расписанию с опциями по умолчанию.
// Примеры расписаний:
//   - "30 * * * *" - каждый час в 30 минут
//   - "@hourly" - каждый час
//   - "@every 5m" - каждые 5 минут
func (s *Scheduler) AddJob(schedule string, job JobFunc) (JobID, error) {
	return s.AddJobWithOptions(schedule, job, JobOptions{})
}

// AddJobWithOptions добавляет задачу по cron-расписанию с указанными опциями.
func (s *Scheduler) AddJobWithOptions(schedule string, job JobFunc, opts JobOptions) (JobID, error) {
	wrapper := &jobWrapper{
		job:     job,
		options: opts,
	}

	// Цепочка для обработки перекрытий
	var chain cron.Chain
	switch opts.OverlapPolicy {
	case SkipIfRunning:
		chain = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger))
	case DelayIfRunning:
		chain = cron.NewChain(cron.DelayIfStillRunning(cron.DefaultLogger))
	default: // AllowOverlap
		chain = cron.NewChain()
	}

	id, err := s.cron.AddJob(schedule, chain.Then(cron.FuncJob(func() {
		s.runJobWrapper(wrapper)
	})))
	if err != nil {
		s.logger.Error("failed to add job", "schedule", schedule, "name", opts.Name, "error", err)
		return 0, err
	}

	s.logger.Info("job added", "schedule", schedule, "name", opts.Name, "id", id)
	return id, nil
}

// RemoveJob удаляет задачу по ID.
func (s *Scheduler) RemoveJob(id JobID) {
	s.cron.Remove(id)
	s.logger.Info("job removed", "id", id)
}

// Start запускает планировщик.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting scheduler")
		s.cron.Start()

		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop останавливает планировщик и ждет завершения всех задач.
func (s *Scheduler) Stop() {
	if !s.IsRunning() {
		return
	}
	s.logger.Info("stopping scheduler")
	s.cancel()
	s.stopOnce.Do(s.stop)
}

// StopContext останавливает планировщик с учетом контекста дедлайна.
// Если контекст истекает раньше, чем завершается graceful shutdown,
// планировщик все равно останавливается корректно.
func (s *Scheduler) StopContext(ctx context.Context) error {
	if !s.IsRunning() {
		return nil
	}

	s.logger.Info("stopping scheduler with deadline")
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline exceeded, but shutdown will complete")
		<-done
		return ctx.Err()
	}
}

// stop выполняет фактическую остановку: ждет завершения запущенных задач.
func (s *Scheduler) stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// runJobWrapper выполняет задачу с учетом её опций.
func (s *Scheduler) runJobWrapper(wrapper *jobWrapper) {
	jobName := wrapper.options.Name
	if jobName == "" {
		jobName = "unnamed"
	}

	switch wrapper.options.OverlapPolicy {
	case SkipIfRunning:
		if !wrapper.running.TryLock() {
			s.logger.Debug("skipping job execution, already running", "name", jobName)
			return
		}
		defer wrapper.running.Unlock()
	case DelayIfRunning:
		wrapper.running.Lock()
		defer wrapper.running.Unlock()
	}

	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(jobName)
	}

	defer func() {
		if r := recover(); r != nil {
			panicErr := fmt.Errorf("panic: %v", r)
			s.logger.Error("job panicked", "name", jobName, "panic", r)
			if s.hooks.OnJobError != nil {
				s.hooks.OnJobError(jobName, panicErr)
			}
		}
	}()

	ctx := s.ctx
	var cancel context.CancelFunc
	if wrapper.options.Timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, wrapper.options.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := wrapper.job(ctx)
	duration := time.Since(start)

	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(jobName, duration, err)
	}

	if err != nil {
		s.logger.Error("job failed", "name", jobName, "error", err, "duration", duration)
		if s.hooks.OnJobError != nil {
			s.hooks.OnJobError(jobName, err)
		}
	} else {
		s.logger.Debug("job completed successfully", "name", jobName, "duration", duration)
	}
}

// IsRunning возвращает true, если планировщик запущен.
func (s *Scheduler) IsRunning() bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}
