package repository

import (
	"context"
	"log/slog"

	"relmap/internal/domain"
	"relmap/internal/orm"
	"relmap/internal/shared"
)

// TaskRepository persists tasks.
type TaskRepository struct {
	sessions *orm.SessionMaker
	log      *slog.Logger
}

// NewTaskRepository creates a task repository on top of a session factory.
func NewTaskRepository(sessions *orm.SessionMaker, log *slog.Logger) *TaskRepository {
	return &TaskRepository{sessions: sessions, log: log}
}

// Create inserts a task for an existing user.
func (r *TaskRepository) Create(ctx context.Context, userID int64, title, description string) (*domain.Task, error) {
	sess := r.sessions.Session()
	defer sess.Close(ctx)

	task := &domain.Task{Title: title, Description: description, UserID: userID}
	if err := sess.Add(task); err != nil {
		return nil, err
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, shared.Wrap(err, "create task")
	}
	r.log.DebugContext(ctx, "task created",
		slog.Int64("id", task.ID), slog.Int64("user_id", userID))
	return task, nil
}

// Get loads a task by id together with its owner.
func (r *TaskRepository) Get(ctx context.Context, id int64) (*domain.Task, error) {
	sess := r.sessions.Session()
	defer sess.Close(ctx)

	var tasks []*domain.Task
	err := sess.Query(&domain.Task{}).
		FilterBy(map[string]any{"id": id}).
		JoinedLoad("User").
		All(ctx, &tasks)
	if err != nil {
		return nil, shared.Wrapf(err, "get task %d", id)
	}
	if len(tasks) == 0 {
		return nil, shared.Newf(shared.KindNotFound, "task %d not found", id)
	}
	return tasks[0], nil
}

// List returns tasks matching the equality filters, newest first.
func (r *TaskRepository) List(ctx context.Context, filters map[string]any) ([]*domain.Task, error) {
	sess := r.sessions.Session()
	defer sess.Close(ctx)

	var tasks []*domain.Task
	err := sess.Query(&domain.Task{}).
		FilterBy(filters).
		OrderByDesc("id").
		All(ctx, &tasks)
	if err != nil {
		return nil, shared.Wrap(err, "list tasks")
	}
	return tasks, nil
}

// Complete marks a task as done.
func (r *TaskRepository) Complete(ctx context.Context, id int64) (*domain.Task, error) {
	sess := r.sessions.Session()
	defer sess.Close(ctx)

	n, err := sess.Query(&domain.Task{}).
		FilterBy(map[string]any{"id": id}).
		Update(ctx, map[string]any{"completed": true})
	if err != nil {
		return nil, shared.Wrapf(err, "complete task %d", id)
	}
	if n == 0 {
		return nil, shared.Newf(shared.KindNotFound, "task %d not found", id)
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, shared.Wrapf(err, "complete task %d", id)
	}
	return r.Get(ctx, id)
}
