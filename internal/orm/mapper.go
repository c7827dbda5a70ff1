package orm

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"relmap/internal/shared"
)

// Entity — сущность, отображаемая на таблицу. Имя таблицы задаётся
// методом, поля — тегами db и rel:
//
//	type User struct {
//	    ID    int64   `db:"id,pk,auto"`
//	    Name  string  `db:"name,size=50,notnull"`
//	    Email string  `db:"email,size=100,unique,notnull"`
//	    Age   int     `db:"age"`
//	    Tasks []*Task `rel:"hasmany,fk=user_id"`
//	}
//
//	func (User) TableName() string { return "users" }
//
// Поддерживаемые опции db-тега: pk, auto, notnull, unique, size=N,
// default=V. Поле с тегом `db:"-"` или без тегов не отображается.
type Entity interface {
	TableName() string
}

// StructTable строит метаданные таблицы из тегов структуры.
// Повторные вызовы для одного типа возвращают независимые копии;
// кэширование выполняет Metadata.
func StructTable(e Entity) (*Table, error) {
	rt := reflect.TypeOf(e)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil, shared.Newf(shared.KindValidation, "entity %T is not a struct", e)
	}

	t := &Table{Name: e.TableName(), goType: rt}
	if t.Name == "" {
		return nil, shared.Newf(shared.KindValidation, "entity %s: empty table name", rt.Name())
	}

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		if relTag, ok := field.Tag.Lookup("rel"); ok {
			rel, err := parseRelation(field, i, relTag)
			if err != nil {
				return nil, shared.Wrapf(err, "entity %s field %s", rt.Name(), field.Name)
			}
			t.Relations = append(t.Relations, rel)
			continue
		}

		dbTag, ok := field.Tag.Lookup("db")
		if !ok || dbTag == "-" {
			continue
		}
		col, err := parseColumn(field, i, dbTag)
		if err != nil {
			return nil, shared.Wrapf(err, "entity %s field %s", rt.Name(), field.Name)
		}
		t.Columns = append(t.Columns, col)
		if col.PrimaryKey {
			if t.pk != nil {
				return nil, shared.Newf(shared.KindValidation,
					"entity %s: multiple primary keys", rt.Name())
			}
			t.pk = col
		}
	}

	if len(t.Columns) == 0 {
		return nil, shared.Newf(shared.KindValidation,
			"entity %s: no mapped columns", rt.Name())
	}
	return t, nil
}

func parseColumn(field reflect.StructField, index int, tag string) (*Column, error) {
	parts := strings.Split(tag, ",")
	name := strings.TrimSpace(parts[0])
	if name == "" {
		name = strings.ToLower(field.Name)
	}

	kind, err := kindOfType(field.Type)
	if err != nil {
		return nil, err
	}

	col := &Column{Name: name, Kind: kind, fieldIndex: index}
	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		switch {
		case opt == "pk":
			col.PrimaryKey = true
		case opt == "auto":
			col.AutoIncrement = true
		case opt == "notnull":
			col.NotNull = true
		case opt == "unique":
			col.Unique = true
		case strings.HasPrefix(opt, "size="):
			n, convErr := strconv.Atoi(strings.TrimPrefix(opt, "size="))
			if convErr != nil || n <= 0 {
				return nil, shared.Newf(shared.KindValidation, "invalid size option %q", opt)
			}
			col.Size = n
		case strings.HasPrefix(opt, "default="):
			col.Default = parseDefault(strings.TrimPrefix(opt, "default="), kind)
		case strings.HasPrefix(opt, "references="):
			// формат references=таблица.колонка
			ref := strings.TrimPrefix(opt, "references=")
			tbl, c, found := strings.Cut(ref, ".")
			if !found {
				return nil, shared.Newf(shared.KindValidation, "invalid references option %q", opt)
			}
			col.FK = &ForeignKey{Table: tbl, Column: c}
		case opt == "":
		default:
			return nil, shared.Newf(shared.KindValidation, "unknown db tag option %q", opt)
		}
	}
	return col, nil
}

func parseRelation(field reflect.StructField, index int, tag string) (*Relation, error) {
	parts := strings.Split(tag, ",")
	rel := &Relation{Name: field.Name, fieldIndex: index}

	switch strings.TrimSpace(parts[0]) {
	case "hasmany":
		rel.Kind = HasMany
		if field.Type.Kind() != reflect.Slice || field.Type.Elem().Kind() != reflect.Pointer {
			return nil, shared.New(shared.KindValidation, "hasmany field must be a slice of pointers")
		}
	case "belongsto":
		rel.Kind = BelongsTo
		if field.Type.Kind() != reflect.Pointer {
			return nil, shared.New(shared.KindValidation, "belongsto field must be a pointer")
		}
	default:
		return nil, shared.Newf(shared.KindValidation, "unknown relation kind %q", parts[0])
	}

	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		switch {
		case strings.HasPrefix(opt, "fk="):
			rel.FK = strings.TrimPrefix(opt, "fk=")
		case strings.HasPrefix(opt, "table="):
			rel.TargetTable = strings.TrimPrefix(opt, "table=")
		case opt == "":
		default:
			return nil, shared.Newf(shared.KindValidation, "unknown rel tag option %q", opt)
		}
	}
	if rel.FK == "" {
		return nil, shared.New(shared.KindValidation, "relation requires fk= option")
	}

	if rel.TargetTable == "" {
		target, err := relationTargetTable(field.Type)
		if err != nil {
			return nil, err
		}
		rel.TargetTable = target
	}
	return rel, nil
}

// relationTargetTable выводит имя целевой таблицы из типа поля связи:
// элемент среза для hasmany, тип за указателем для belongsto.
func relationTargetTable(ft reflect.Type) (string, error) {
	elem := ft
	if elem.Kind() == reflect.Slice {
		elem = elem.Elem()
	}
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	inst := reflect.New(elem).Interface()
	ent, ok := inst.(Entity)
	if !ok {
		return "", shared.Newf(shared.KindValidation,
			"relation target %s does not implement Entity", elem.Name())
	}
	return ent.TableName(), nil
}

func kindOfType(rt reflect.Type) (TypeKind, error) {
	if rt == reflect.TypeOf(time.Time{}) {
		return Timestamp, nil
	}
	switch rt.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Integer, nil
	case reflect.String:
		return Text, nil
	case reflect.Float32, reflect.Float64:
		return Real, nil
	case reflect.Bool:
		return Boolean, nil
	default:
		return 0, shared.Newf(shared.KindValidation, "unsupported column type %s", rt)
	}
}

func parseDefault(raw string, kind TypeKind) any {
	switch kind {
	case Integer:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case Real:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case Boolean:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}

// fieldValue возвращает значение колонки из сущности.
func (t *Table) fieldValue(entity reflect.Value, c *Column) any {
	return entity.Field(c.fieldIndex).Interface()
}

// setFieldValue записывает значение колонки в поле сущности с приведением
// типов драйвера (int64, float64, bool, строки, время).
func (t *Table) setFieldValue(entity reflect.Value, c *Column, v any) error {
	field := entity.Field(c.fieldIndex)
	if v == nil {
		field.SetZero()
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return nil
	}
	// SQLite хранит BOOLEAN как 0/1
	if field.Kind() == reflect.Bool && rv.CanInt() {
		field.SetBool(rv.Int() != 0)
		return nil
	}
	if rv.Type().ConvertibleTo(field.Type()) {
		field.Set(rv.Convert(field.Type()))
		return nil
	}
	return shared.Newf(shared.KindInternal,
		"column %s: cannot assign %T to %s", c.Name, v, field.Type())
}

// scanTargets возвращает указатели на поля сущности для Rows.Scan
// в порядке перечисленных колонок.
func (t *Table) scanTargets(entity reflect.Value, cols []*Column) []any {
	targets := make([]any, len(cols))
	for i, c := range cols {
		targets[i] = entity.Field(c.fieldIndex).Addr().Interface()
	}
	return targets
}

// snapshot делает снимок значений колонок для отслеживания изменений.
func (t *Table) snapshot(entity reflect.Value) map[string]any {
	snap := make(map[string]any, len(t.Columns))
	for _, c := range t.Columns {
		snap[c.Name] = t.fieldValue(entity, c)
	}
	return snap
}

// pkValue возвращает нормализованное значение первичного ключа.
func (t *Table) pkValue(entity reflect.Value) (any, bool) {
	if t.pk == nil {
		return nil, false
	}
	v := entity.Field(t.pk.fieldIndex)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), !v.IsZero()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint()), !v.IsZero()
	default:
		return v.Interface(), !v.IsZero()
	}
}

// derefStruct возвращает reflect.Value структуры за указателем сущности.
func derefStruct(e Entity) (reflect.Value, error) {
	rv := reflect.ValueOf(e)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, shared.Newf(shared.KindValidation,
			"entity must be a non-nil pointer, got %T", e)
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, shared.Newf(shared.KindValidation,
			"entity must point to a struct, got %T", e)
	}
	return rv, nil
}
