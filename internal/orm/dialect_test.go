package orm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectPlaceholders(t *testing.T) {
	assert.Equal(t, "?", DialectSQLite().Placeholder(1))
	assert.Equal(t, "?", DialectSQLite().Placeholder(7))
	assert.Equal(t, "$1", DialectPostgres().Placeholder(1))
	assert.Equal(t, "$7", DialectPostgres().Placeholder(7))
}

func TestDialectQuote(t *testing.T) {
	assert.Equal(t, `"users"`, DialectSQLite().Quote("users"))
	assert.Equal(t, `"we""ird"`, DialectPostgres().Quote(`we"ird`))
}

func TestDialectReturning(t *testing.T) {
	assert.False(t, DialectSQLite().SupportsReturning())
	assert.True(t, DialectPostgres().SupportsReturning())
}

func TestCreateSQLSQLite(t *testing.T) {
	table, err := StructTable(&testUser{})
	require.NoError(t, err)

	sql := table.CreateSQL(DialectSQLite())
	assert.Contains(t, sql, `CREATE TABLE IF NOT EXISTS "users"`)
	assert.Contains(t, sql, `"id" INTEGER PRIMARY KEY AUTOINCREMENT`)
	assert.Contains(t, sql, `"name" TEXT NOT NULL`)
	assert.Contains(t, sql, `"email" TEXT NOT NULL UNIQUE`)
}

func TestCreateSQLPostgres(t *testing.T) {
	table, err := StructTable(&testUser{})
	require.NoError(t, err)

	sql := table.CreateSQL(DialectPostgres())
	assert.Contains(t, sql, `"id" BIGSERIAL PRIMARY KEY`)
	assert.Contains(t, sql, `"name" VARCHAR(50) NOT NULL`)
	assert.Contains(t, sql, `"email" VARCHAR(100) NOT NULL UNIQUE`)
}

func TestCreateSQLForeignKeyAndDefault(t *testing.T) {
	table, err := StructTable(&testTask{})
	require.NoError(t, err)

	sql := table.CreateSQL(DialectSQLite())
	assert.Contains(t, sql, `FOREIGN KEY ("user_id") REFERENCES "users" ("id")`)
	assert.Contains(t, sql, `"completed" BOOLEAN DEFAULT FALSE`)
}

func TestImperativeTable(t *testing.T) {
	table, err := NewTable("settings",
		NewColumn("key", Text, WithPrimaryKey()),
		NewColumn("value", Text, WithNotNull()),
		NewColumn("owner_id", Integer, WithReferences("users", "id")),
	)
	require.NoError(t, err)

	require.NotNil(t, table.PK())
	assert.Equal(t, "key", table.PK().Name)

	sql := table.CreateSQL(DialectSQLite())
	assert.Contains(t, sql, `"key" TEXT PRIMARY KEY`)
	assert.Contains(t, sql, `FOREIGN KEY ("owner_id") REFERENCES "users" ("id")`)

	assert.Equal(t, `DROP TABLE IF EXISTS "settings"`, table.DropSQL(DialectSQLite()))
}

func TestImperativeTableErrors(t *testing.T) {
	_, err := NewTable("")
	assert.Error(t, err)

	_, err = NewTable("dup",
		NewColumn("a", Integer),
		NewColumn("a", Text),
	)
	assert.Error(t, err)

	_, err = NewTable("twopk",
		NewColumn("a", Integer, WithPrimaryKey()),
		NewColumn("b", Integer, WithPrimaryKey()),
	)
	assert.Error(t, err)
}
