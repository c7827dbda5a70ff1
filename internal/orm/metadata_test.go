package orm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relmap/internal/platform/sqlite"
	"relmap/internal/shared"
)

type setting struct {
	Key   string `db:"key,pk"`
	Value string `db:"value,notnull"`
}

func (setting) TableName() string { return "settings" }

// Императивно определённая таблица после Bind работает с сессией так же,
// как декларативная.
func TestImperativeTableSession(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.NewInMemoryDB(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	table, err := NewTable("settings",
		NewColumn("key", Text, WithPrimaryKey()),
		NewColumn("value", Text, WithNotNull()),
	)
	require.NoError(t, err)
	require.NoError(t, table.Bind(&setting{}))

	meta := NewMetadata()
	require.NoError(t, meta.AddTable(table))

	engine := NewEngine(NewSQLDriver(db), DialectSQLite(), WithMetadata(meta))
	require.NoError(t, engine.CreateAll(ctx))

	sess := engine.NewSession()
	defer sess.Close(ctx)
	require.NoError(t, sess.Add(&setting{Key: "greeting", Value: "hello"}))
	require.NoError(t, sess.Commit(ctx))

	other := engine.NewSession()
	defer other.Close(ctx)

	var loaded setting
	require.NoError(t, other.Get(ctx, &loaded, "greeting"))
	assert.Equal(t, "hello", loaded.Value)

	var all []*setting
	require.NoError(t, other.Query(&setting{}).FilterBy(map[string]any{"value": "hello"}).All(ctx, &all))
	require.Len(t, all, 1)
	assert.Equal(t, "greeting", all[0].Key)
}

func TestBindUnmappedColumn(t *testing.T) {
	table, err := NewTable("settings",
		NewColumn("key", Text, WithPrimaryKey()),
		NewColumn("missing", Text),
	)
	require.NoError(t, err)

	err = table.Bind(&setting{})
	require.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestAddTableDuplicate(t *testing.T) {
	table, err := NewTable("settings", NewColumn("key", Text, WithPrimaryKey()))
	require.NoError(t, err)

	meta := NewMetadata()
	require.NoError(t, meta.AddTable(table))
	err = meta.AddTable(table)
	require.Error(t, err)
	assert.Equal(t, shared.KindConflict, shared.KindOf(err))
}

// DropAll удаляет таблицы в обратном порядке регистрации: при включённых
// внешних ключах удаление родительской таблицы раньше дочерней с
// ссылающимися строками завершилось бы ошибкой.
func TestDropAllReverseOrder(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	u := seedUser(t, engine, "carol", "carol@example.com", 40)
	seedTask(t, engine, u.ID, "write report", false)

	require.NoError(t, engine.DropAll(ctx))

	rows, err := engine.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'tasks')")
	require.NoError(t, err)
	defer rows.Close()

	var remaining []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		remaining = append(remaining, name)
	}
	require.NoError(t, rows.Err())
	assert.Empty(t, remaining)
}
