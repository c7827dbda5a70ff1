package orm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"relmap/internal/platform/sqlite"
)

type testUser struct {
	ID    int64       `db:"id,pk,auto"`
	Name  string      `db:"name,size=50,notnull" validate:"required,max=50"`
	Email string      `db:"email,size=100,unique,notnull" validate:"required,email"`
	Age   int         `db:"age"`
	Tasks []*testTask `rel:"hasmany,fk=user_id" validate:"-"`
}

func (testUser) TableName() string { return "users" }

type testTask struct {
	ID        int64     `db:"id,pk,auto"`
	Title     string    `db:"title,size=200,notnull" validate:"required,max=200"`
	Completed bool      `db:"completed,default=false"`
	UserID    int64     `db:"user_id,references=users.id"`
	User      *testUser `rel:"belongsto,fk=user_id" validate:"-"`
}

func (testTask) TableName() string { return "tasks" }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	ctx := context.Background()
	db, err := sqlite.NewInMemoryDB(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine := NewEngine(NewSQLDriver(db), DialectSQLite())
	require.NoError(t, engine.Register(&testUser{}, &testTask{}))
	require.NoError(t, engine.CreateAll(ctx))
	return engine
}

func seedUser(t *testing.T, engine *Engine, name, email string, age int) *testUser {
	t.Helper()

	ctx := context.Background()
	sess := engine.NewSession()
	defer sess.Close(ctx)

	u := &testUser{Name: name, Email: email, Age: age}
	require.NoError(t, sess.Add(u))
	require.NoError(t, sess.Commit(ctx))
	return u
}

func seedTask(t *testing.T, engine *Engine, userID int64, title string, completed bool) *testTask {
	t.Helper()

	ctx := context.Background()
	sess := engine.NewSession()
	defer sess.Close(ctx)

	task := &testTask{Title: title, Completed: completed, UserID: userID}
	require.NoError(t, sess.Add(task))
	require.NoError(t, sess.Commit(ctx))
	return task
}
