package orm

import (
	"fmt"
	"reflect"
	"strings"

	"relmap/internal/shared"
)

// TypeKind — логический тип колонки, отображаемый диалектом в SQL-тип.
type TypeKind int

const (
	Integer TypeKind = iota
	Text
	Real
	Boolean
	Timestamp
)

// ForeignKey описывает ссылку колонки на колонку другой таблицы.
type ForeignKey struct {
	Table  string
	Column string
}

// Column — описание колонки таблицы.
type Column struct {
	Name          string
	Kind          TypeKind
	Size          int
	PrimaryKey    bool
	AutoIncrement bool
	NotNull       bool
	Unique        bool
	Default       any
	FK            *ForeignKey

	// индекс поля структуры для отображённых таблиц, -1 для императивных
	fieldIndex int
}

// RelKind — вид связи между таблицами.
type RelKind int

const (
	// HasMany — коллекция дочерних записей, FK находится в дочерней таблице
	HasMany RelKind = iota
	// BelongsTo — ссылка на родительскую запись, FK находится в этой таблице
	BelongsTo
)

// Relation описывает связь, доступную для жадной загрузки.
type Relation struct {
	Name        string
	Kind        RelKind
	TargetTable string
	// FK — имя колонки внешнего ключа: для HasMany в целевой таблице,
	// для BelongsTo в своей
	FK string

	fieldIndex int
}

// Table — метаданные таблицы: колонки, связи и (для отображённых таблиц)
// Go-тип сущности.
type Table struct {
	Name      string
	Columns   []*Column
	Relations []*Relation

	goType reflect.Type // тип структуры без указателя, nil для несвязанных таблиц
	pk     *Column
}

// ColumnOption настраивает колонку при императивном определении.
type ColumnOption func(*Column)

// WithPrimaryKey помечает колонку первичным ключом.
func WithPrimaryKey() ColumnOption { return func(c *Column) { c.PrimaryKey = true } }

// WithAutoIncrement включает автогенерацию значения первичного ключа.
func WithAutoIncrement() ColumnOption { return func(c *Column) { c.AutoIncrement = true } }

// WithNotNull добавляет ограничение NOT NULL.
func WithNotNull() ColumnOption { return func(c *Column) { c.NotNull = true } }

// WithUnique добавляет ограничение UNIQUE.
func WithUnique() ColumnOption { return func(c *Column) { c.Unique = true } }

// WithSize задаёт максимальную длину текстовой колонки.
func WithSize(n int) ColumnOption { return func(c *Column) { c.Size = n } }

// WithDefault задаёт значение по умолчанию.
func WithDefault(v any) ColumnOption { return func(c *Column) { c.Default = v } }

// WithReferences добавляет внешний ключ на колонку другой таблицы.
func WithReferences(table, column string) ColumnOption {
	return func(c *Column) { c.FK = &ForeignKey{Table: table, Column: column} }
}

// NewColumn создаёт колонку для императивного определения таблицы.
func NewColumn(name string, kind TypeKind, opts ...ColumnOption) *Column {
	c := &Column{Name: name, Kind: kind, fieldIndex: -1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewTable создаёт таблицу из явного списка колонок. Таблица пригодна
// для DDL; для запросов через сессию её нужно связать со структурой
// методом Bind.
func NewTable(name string, cols ...*Column) (*Table, error) {
	if name == "" {
		return nil, shared.New(shared.KindValidation, "table name is empty")
	}
	t := &Table{Name: name, Columns: cols}
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if c.Name == "" {
			return nil, shared.Newf(shared.KindValidation, "table %s: column with empty name", name)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, shared.Newf(shared.KindValidation, "table %s: duplicate column %s", name, c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.PrimaryKey {
			if t.pk != nil {
				return nil, shared.Newf(shared.KindValidation, "table %s: multiple primary keys", name)
			}
			t.pk = c
		}
	}
	return t, nil
}

// Column возвращает колонку по имени.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// PK возвращает колонку первичного ключа или nil, если ключ не объявлен.
func (t *Table) PK() *Column { return t.pk }

// Relation возвращает связь по имени.
func (t *Table) Relation(name string) (*Relation, bool) {
	for _, r := range t.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Bind связывает императивно определённую таблицу со структурой сущности.
// Поля сопоставляются колонкам по db-тегам, как при декларативном
// определении.
func (t *Table) Bind(e Entity) error {
	mapped, err := StructTable(e)
	if err != nil {
		return err
	}
	for _, c := range t.Columns {
		mc, ok := mapped.Column(c.Name)
		if !ok {
			return shared.Newf(shared.KindValidation,
				"table %s: column %s has no field in %T", t.Name, c.Name, e)
		}
		c.fieldIndex = mc.fieldIndex
	}
	t.goType = mapped.goType
	t.Relations = mapped.Relations
	return nil
}

// CreateSQL генерирует выражение CREATE TABLE IF NOT EXISTS для диалекта.
func (t *Table) CreateSQL(d Dialect) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(d.Quote(t.Name))
	b.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(c.Name))
		b.WriteByte(' ')
		b.WriteString(d.ColumnType(c))
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
			if c.AutoIncrement && d.Name() == "sqlite" {
				b.WriteString(" AUTOINCREMENT")
			}
		}
		if c.NotNull && !c.PrimaryKey {
			b.WriteString(" NOT NULL")
		}
		if c.Unique && !c.PrimaryKey {
			b.WriteString(" UNIQUE")
		}
		if c.Default != nil {
			b.WriteString(" DEFAULT ")
			b.WriteString(defaultLiteral(c.Default))
		}
	}
	for _, c := range t.Columns {
		if c.FK == nil {
			continue
		}
		b.WriteString(fmt.Sprintf(", FOREIGN KEY (%s) REFERENCES %s (%s)",
			d.Quote(c.Name), d.Quote(c.FK.Table), d.Quote(c.FK.Column)))
	}
	b.WriteString(")")
	return b.String()
}

// DropSQL генерирует выражение DROP TABLE IF EXISTS.
func (t *Table) DropSQL(d Dialect) string {
	return "DROP TABLE IF EXISTS " + d.Quote(t.Name)
}

func defaultLiteral(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", x)
	}
}
