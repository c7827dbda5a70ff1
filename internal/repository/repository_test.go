package repository

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relmap/internal/domain"
	"relmap/internal/orm"
	"relmap/internal/platform/sqlite"
	"relmap/internal/shared"
)

func newRepos(t *testing.T) (*UserRepository, *TaskRepository) {
	t.Helper()

	ctx := context.Background()
	db, err := sqlite.NewInMemoryDB(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine := orm.NewEngine(orm.NewSQLDriver(db), orm.DialectSQLite())
	require.NoError(t, engine.Register(&domain.User{}, &domain.Task{}))
	require.NoError(t, engine.CreateAll(ctx))

	sessions := orm.NewSessionMaker(engine)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUserRepository(sessions, log), NewTaskRepository(sessions, log)
}

func TestUserRepositoryCreateGet(t *testing.T) {
	users, tasks := newRepos(t)
	ctx := context.Background()

	u, err := users.Create(ctx, "alice", "alice@example.com", 30)
	require.NoError(t, err)
	require.NotZero(t, u.ID)

	_, err = tasks.Create(ctx, u.ID, "write report", "quarterly numbers")
	require.NoError(t, err)
	_, err = tasks.Create(ctx, u.ID, "review code", "")
	require.NoError(t, err)

	got, err := users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)
	assert.Len(t, got.Tasks, 2)
}

func TestUserRepositoryCreateInvalid(t *testing.T) {
	users, _ := newRepos(t)
	ctx := context.Background()

	_, err := users.Create(ctx, "", "not-an-email", 30)
	require.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestUserRepositoryDuplicateEmail(t *testing.T) {
	users, _ := newRepos(t)
	ctx := context.Background()

	_, err := users.Create(ctx, "alice", "alice@example.com", 30)
	require.NoError(t, err)

	_, err = users.Create(ctx, "other", "alice@example.com", 25)
	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
}

func TestUserRepositoryList(t *testing.T) {
	users, _ := newRepos(t)
	ctx := context.Background()

	_, err := users.Create(ctx, "alice", "alice@example.com", 30)
	require.NoError(t, err)
	_, err = users.Create(ctx, "bob", "bob@example.com", 25)
	require.NoError(t, err)

	all, err := users.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	young, err := users.List(ctx, map[string]any{"age": 25})
	require.NoError(t, err)
	require.Len(t, young, 1)
	assert.Equal(t, "bob", young[0].Name)
}

func TestUserRepositoryUpdate(t *testing.T) {
	users, _ := newRepos(t)
	ctx := context.Background()

	u, err := users.Create(ctx, "alice", "alice@example.com", 30)
	require.NoError(t, err)

	updated, err := users.Update(ctx, u.ID, map[string]any{"name": "alicia", "age": 31})
	require.NoError(t, err)
	assert.Equal(t, "alicia", updated.Name)
	assert.Equal(t, 31, updated.Age)

	_, err = users.Update(ctx, 999, map[string]any{"name": "ghost"})
	assert.True(t, shared.IsNotFound(err))
}

func TestUserRepositoryDelete(t *testing.T) {
	users, tasks := newRepos(t)
	ctx := context.Background()

	u, err := users.Create(ctx, "alice", "alice@example.com", 30)
	require.NoError(t, err)
	_, err = tasks.Create(ctx, u.ID, "write report", "")
	require.NoError(t, err)

	require.NoError(t, users.Delete(ctx, u.ID))

	_, err = users.Get(ctx, u.ID)
	assert.True(t, shared.IsNotFound(err))

	left, err := tasks.List(ctx, map[string]any{"user_id": u.ID})
	require.NoError(t, err)
	assert.Empty(t, left)

	err = users.Delete(ctx, u.ID)
	assert.True(t, shared.IsNotFound(err))
}

func TestUserRepositoryTaskCounts(t *testing.T) {
	users, tasks := newRepos(t)
	ctx := context.Background()

	alice, err := users.Create(ctx, "alice", "alice@example.com", 30)
	require.NoError(t, err)
	bob, err := users.Create(ctx, "bob", "bob@example.com", 25)
	require.NoError(t, err)

	_, err = tasks.Create(ctx, alice.ID, "one", "")
	require.NoError(t, err)
	_, err = tasks.Create(ctx, alice.ID, "two", "")
	require.NoError(t, err)

	counts, err := users.TaskCounts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, domain.UserTaskCount{UserID: alice.ID, Name: "alice", TaskCount: 2}, counts[0])
	assert.Equal(t, domain.UserTaskCount{UserID: bob.ID, Name: "bob", TaskCount: 0}, counts[1])
}

func TestTaskRepositoryGetWithOwner(t *testing.T) {
	users, tasks := newRepos(t)
	ctx := context.Background()

	u, err := users.Create(ctx, "alice", "alice@example.com", 30)
	require.NoError(t, err)
	created, err := tasks.Create(ctx, u.ID, "write report", "quarterly numbers")
	require.NoError(t, err)

	got, err := tasks.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "write report", got.Title)
	require.NotNil(t, got.User)
	assert.Equal(t, "alice", got.User.Name)
}

func TestTaskRepositoryCreateForMissingUser(t *testing.T) {
	_, tasks := newRepos(t)
	ctx := context.Background()

	_, err := tasks.Create(ctx, 999, "orphan", "")
	require.Error(t, err)
}

func TestTaskRepositoryComplete(t *testing.T) {
	users, tasks := newRepos(t)
	ctx := context.Background()

	u, err := users.Create(ctx, "alice", "alice@example.com", 30)
	require.NoError(t, err)
	created, err := tasks.Create(ctx, u.ID, "write report", "")
	require.NoError(t, err)
	assert.False(t, created.Completed)

	done, err := tasks.Complete(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, done.Completed)

	_, err = tasks.Complete(ctx, 999)
	assert.True(t, shared.IsNotFound(err))
}
