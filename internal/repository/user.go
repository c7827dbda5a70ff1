// Package repository exposes persistence operations for domain
// entities. Each operation runs in its own session: a fresh unit of
// work with a lazily opened transaction that commits on success.
package repository

import (
	"context"
	"log/slog"

	"relmap/internal/domain"
	"relmap/internal/orm"
	"relmap/internal/shared"
)

// UserRepository persists users and answers user-centric queries.
type UserRepository struct {
	sessions *orm.SessionMaker
	log      *slog.Logger
}

// NewUserRepository creates a user repository on top of a session factory.
func NewUserRepository(sessions *orm.SessionMaker, log *slog.Logger) *UserRepository {
	return &UserRepository{sessions: sessions, log: log}
}

// Create inserts a new user and returns it with the generated key.
func (r *UserRepository) Create(ctx context.Context, name, email string, age int) (*domain.User, error) {
	sess := r.sessions.Session()
	defer sess.Close(ctx)

	u := &domain.User{Name: name, Email: email, Age: age}
	if err := sess.Add(u); err != nil {
		return nil, err
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, shared.Wrap(err, "create user")
	}
	r.log.DebugContext(ctx, "user created", slog.Int64("id", u.ID), slog.String("email", email))
	return u, nil
}

// Get loads a user by id together with their tasks.
func (r *UserRepository) Get(ctx context.Context, id int64) (*domain.User, error) {
	sess := r.sessions.Session()
	defer sess.Close(ctx)

	var users []*domain.User
	err := sess.Query(&domain.User{}).
		FilterBy(map[string]any{"id": id}).
		JoinedLoad("Tasks").
		All(ctx, &users)
	if err != nil {
		return nil, shared.Wrapf(err, "get user %d", id)
	}
	if len(users) == 0 {
		return nil, shared.Newf(shared.KindNotFound, "user %d not found", id)
	}
	return users[0], nil
}

// List returns users matching the equality filters, ordered by name.
// An empty filter map returns all users.
func (r *UserRepository) List(ctx context.Context, filters map[string]any) ([]*domain.User, error) {
	sess := r.sessions.Session()
	defer sess.Close(ctx)

	var users []*domain.User
	err := sess.Query(&domain.User{}).
		FilterBy(filters).
		OrderBy("name").
		All(ctx, &users)
	if err != nil {
		return nil, shared.Wrap(err, "list users")
	}
	return users, nil
}

// Update applies column changes to a user and returns the updated row.
func (r *UserRepository) Update(ctx context.Context, id int64, changes map[string]any) (*domain.User, error) {
	sess := r.sessions.Session()
	defer sess.Close(ctx)

	n, err := sess.Query(&domain.User{}).
		FilterBy(map[string]any{"id": id}).
		Update(ctx, changes)
	if err != nil {
		return nil, shared.Wrapf(err, "update user %d", id)
	}
	if n == 0 {
		return nil, shared.Newf(shared.KindNotFound, "user %d not found", id)
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, shared.Wrapf(err, "update user %d", id)
	}
	return r.Get(ctx, id)
}

// Delete removes a user and all their tasks.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	sess := r.sessions.Session()
	defer sess.Close(ctx)

	if _, err := sess.Query(&domain.Task{}).
		FilterBy(map[string]any{"user_id": id}).
		DeleteAll(ctx); err != nil {
		return shared.Wrapf(err, "delete tasks of user %d", id)
	}
	n, err := sess.Query(&domain.User{}).
		FilterBy(map[string]any{"id": id}).
		DeleteAll(ctx)
	if err != nil {
		return shared.Wrapf(err, "delete user %d", id)
	}
	if n == 0 {
		return shared.Newf(shared.KindNotFound, "user %d not found", id)
	}
	return sess.Commit(ctx)
}

// TaskCounts returns every user with the number of tasks they own,
// computed in a single LEFT JOIN + GROUP BY query.
func (r *UserRepository) TaskCounts(ctx context.Context) ([]domain.UserTaskCount, error) {
	sess := r.sessions.Session()
	defer sess.Close(ctx)

	d := r.sessions.Engine().Dialect()
	rows, err := sess.Query(&domain.User{}).
		SelectExprs(
			d.Quote("users")+"."+d.Quote("id"),
			d.Quote("users")+"."+d.Quote("name"),
		).
		CountRelated("Tasks", "task_count").
		GroupBy("id", "name").
		OrderBy("name").
		Rows(ctx)
	if err != nil {
		return nil, shared.Wrap(err, "count tasks per user")
	}
	defer rows.Close()

	var out []domain.UserTaskCount
	for rows.Next() {
		var row domain.UserTaskCount
		if err := rows.Scan(&row.UserID, &row.Name, &row.TaskCount); err != nil {
			return nil, shared.FromDB(err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.FromDB(err)
	}
	return out, nil
}
