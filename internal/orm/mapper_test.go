package orm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructTable(t *testing.T) {
	table, err := StructTable(&testUser{})
	require.NoError(t, err)

	assert.Equal(t, "users", table.Name)
	require.Len(t, table.Columns, 4)

	id, ok := table.Column("id")
	require.True(t, ok)
	assert.True(t, id.PrimaryKey)
	assert.True(t, id.AutoIncrement)
	assert.Equal(t, id, table.PK())

	name, ok := table.Column("name")
	require.True(t, ok)
	assert.Equal(t, Text, name.Kind)
	assert.Equal(t, 50, name.Size)
	assert.True(t, name.NotNull)

	email, ok := table.Column("email")
	require.True(t, ok)
	assert.True(t, email.Unique)

	age, ok := table.Column("age")
	require.True(t, ok)
	assert.Equal(t, Integer, age.Kind)
	assert.False(t, age.NotNull)
}

func TestStructTableRelations(t *testing.T) {
	users, err := StructTable(&testUser{})
	require.NoError(t, err)

	rel, ok := users.Relation("Tasks")
	require.True(t, ok)
	assert.Equal(t, HasMany, rel.Kind)
	assert.Equal(t, "tasks", rel.TargetTable)
	assert.Equal(t, "user_id", rel.FK)

	tasks, err := StructTable(&testTask{})
	require.NoError(t, err)

	back, ok := tasks.Relation("User")
	require.True(t, ok)
	assert.Equal(t, BelongsTo, back.Kind)
	assert.Equal(t, "users", back.TargetTable)

	userID, ok := tasks.Column("user_id")
	require.True(t, ok)
	require.NotNil(t, userID.FK)
	assert.Equal(t, "users", userID.FK.Table)
	assert.Equal(t, "id", userID.FK.Column)
}

type badOptionEntity struct {
	ID int64 `db:"id,bogus"`
}

func (badOptionEntity) TableName() string { return "bad" }

type noColumnsEntity struct {
	Ignored string `db:"-"`
}

func (noColumnsEntity) TableName() string { return "empty" }

type twoPKEntity struct {
	A int64 `db:"a,pk"`
	B int64 `db:"b,pk"`
}

func (twoPKEntity) TableName() string { return "twopk" }

type note struct {
	ID   int64  `db:"id,pk,auto"`
	Body string `db:"body"`
}

func (note) TableName() string { return "notes" }

type valueSliceEntity struct {
	ID    int64  `db:"id,pk,auto"`
	Notes []note `rel:"hasmany,fk=owner_id"`
}

func (valueSliceEntity) TableName() string { return "owners" }

func TestStructTableErrors(t *testing.T) {
	tests := []struct {
		name   string
		entity Entity
	}{
		{name: "unknown tag option", entity: &badOptionEntity{}},
		{name: "no mapped columns", entity: &noColumnsEntity{}},
		{name: "multiple primary keys", entity: &twoPKEntity{}},
		{name: "hasmany over value slice", entity: &valueSliceEntity{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := StructTable(tt.entity)
			assert.Error(t, err)
		})
	}
}

func TestTaskDefaultValue(t *testing.T) {
	table, err := StructTable(&testTask{})
	require.NoError(t, err)

	completed, ok := table.Column("completed")
	require.True(t, ok)
	assert.Equal(t, false, completed.Default)
}
