package orm

import (
	"context"
	"reflect"
	"strings"

	"relmap/internal/shared"
)

type eagerPart struct {
	rel    *Relation
	target *Table
}

// allEager выполняет выборку с жадной загрузкой связей одним запросом
// и сворачивает строки декартова произведения по первичному ключу
// родителя. Дочерние сущности дедуплицируются по своим ключам, поэтому
// несколько hasmany-связей в одном запросе не раздувают коллекции.
func (q *SelectQuery) allEager(ctx context.Context, slicePtr reflect.Value) error {
	d := q.s.engine.dialect
	t := q.table
	if t.pk == nil {
		return shared.Newf(shared.KindValidation,
			"eager load requires a primary key on %s", t.Name)
	}

	parts := make([]eagerPart, 0, len(q.eager))
	for _, name := range q.eager {
		rel, _ := t.Relation(name)
		target, ok := q.s.engine.meta.Table(rel.TargetTable)
		if !ok {
			return shared.Newf(shared.KindValidation,
				"relation %s target %s is not registered", name, rel.TargetTable)
		}
		if target.pk == nil {
			return shared.Newf(shared.KindValidation,
				"eager load requires a primary key on %s", target.Name)
		}
		parts = append(parts, eagerPart{rel: rel, target: target})
	}

	query, args := q.buildEager(d, parts)
	rows, err := q.s.executor().QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	var (
		orderKeys []any
		parents   = make(map[any]*eagerParent)
		childSeen = make(map[childKey]struct{})
	)

	for rows.Next() {
		holders := newHolders(len(t.Columns) + childColumnCount(parts))
		if err := rows.Scan(holders...); err != nil {
			return shared.FromDB(err)
		}

		parent, key, err := q.foldParent(t, holders, parents, &orderKeys)
		if err != nil {
			return err
		}

		offset := len(t.Columns)
		for _, p := range parts {
			childHolders := holders[offset : offset+len(p.target.Columns)]
			offset += len(p.target.Columns)
			if err := q.foldChild(parent, key, p, childHolders, childSeen); err != nil {
				return err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return shared.FromDB(err)
	}

	out := slicePtr.Elem()
	out.SetLen(0)
	for _, key := range orderKeys {
		out = reflect.Append(out, reflect.ValueOf(parents[key].entity))
	}
	slicePtr.Elem().Set(out)
	return nil
}

type eagerParent struct {
	entity Entity
	value  reflect.Value
}

type childKey struct {
	parent   any
	relation string
	child    any
}

// foldParent возвращает сущность-родителя для строки, создавая её при
// первом появлении ключа. Коллекции жадно загружаемых связей при этом
// сбрасываются: запрос перечитывает их целиком.
func (q *SelectQuery) foldParent(
	t *Table,
	holders []any,
	parents map[any]*eagerParent,
	orderKeys *[]any,
) (*eagerParent, any, error) {
	pkIdx := -1
	for i, c := range t.Columns {
		if c == t.pk {
			pkIdx = i
			break
		}
	}
	key := normalizePK(holderValue(holders[pkIdx]))
	if p, seen := parents[key]; seen {
		return p, key, nil
	}

	ent, err := q.s.adoptRow(t, holders[:len(t.Columns)])
	if err != nil {
		return nil, nil, err
	}
	rv := reflect.ValueOf(ent).Elem()
	for _, name := range q.eager {
		rel, _ := t.Relation(name)
		if rel.Kind == HasMany {
			field := rv.Field(rel.fieldIndex)
			field.Set(reflect.MakeSlice(field.Type(), 0, 0))
		}
	}
	p := &eagerParent{entity: ent, value: rv}
	parents[key] = p
	*orderKeys = append(*orderKeys, key)
	return p, key, nil
}

func (q *SelectQuery) foldChild(
	parent *eagerParent,
	parentKey any,
	p eagerPart,
	holders []any,
	seen map[childKey]struct{},
) error {
	pkIdx := -1
	for i, c := range p.target.Columns {
		if c == p.target.pk {
			pkIdx = i
			break
		}
	}
	raw := holderValue(holders[pkIdx])
	if raw == nil {
		// LEFT JOIN без совпадений
		return nil
	}
	ck := childKey{parent: parentKey, relation: p.rel.Name, child: normalizePK(raw)}
	if _, dup := seen[ck]; dup {
		return nil
	}
	seen[ck] = struct{}{}

	child, err := q.s.adoptRow(p.target, holders)
	if err != nil {
		return err
	}

	field := parent.value.Field(p.rel.fieldIndex)
	switch p.rel.Kind {
	case HasMany:
		field.Set(reflect.Append(field, reflect.ValueOf(child)))
	case BelongsTo:
		field.Set(reflect.ValueOf(child))
	}
	return nil
}

// buildEager собирает запрос с LEFT JOIN жадно загружаемых связей.
// При заданных Limit или Offset родительская таблица заменяется
// подзапросом, чтобы ограничение применялось к родителям, а не к
// строкам произведения.
func (q *SelectQuery) buildEager(d Dialect, parts []eagerPart) (string, []any) {
	t := q.table
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(columnList(d, t.Name, t.Columns))
	for _, p := range parts {
		b.WriteString(", ")
		b.WriteString(columnList(d, p.target.Name, p.target.Columns))
	}
	b.WriteString(" FROM ")

	var args []any
	limited := q.limit >= 0 || q.offset >= 0
	if limited {
		var inner strings.Builder
		inner.WriteString("SELECT ")
		inner.WriteString(columnList(d, t.Name, t.Columns))
		inner.WriteString(" FROM ")
		inner.WriteString(d.Quote(t.Name))
		args = q.writeWhere(&inner, 1)
		q.writeOrder(&inner)
		q.writeLimit(&inner)
		b.WriteString("(")
		b.WriteString(inner.String())
		b.WriteString(") AS ")
		b.WriteString(d.Quote(t.Name))
	} else {
		b.WriteString(d.Quote(t.Name))
	}

	for _, p := range parts {
		b.WriteString(" LEFT JOIN ")
		b.WriteString(d.Quote(p.target.Name))
		b.WriteString(" ON ")
		switch p.rel.Kind {
		case HasMany:
			b.WriteString(d.Quote(p.target.Name) + "." + d.Quote(p.rel.FK))
			b.WriteString(" = ")
			b.WriteString(d.Quote(t.Name) + "." + d.Quote(t.pk.Name))
		case BelongsTo:
			b.WriteString(d.Quote(t.Name) + "." + d.Quote(p.rel.FK))
			b.WriteString(" = ")
			b.WriteString(d.Quote(p.target.Name) + "." + d.Quote(p.target.pk.Name))
		}
	}

	if !limited {
		args = q.writeWhere(&b, 1)
	}
	// ORDER BY нужен и на внешнем уровне: подзапрос отбирает родителей,
	// но порядок строк после JOIN он не гарантирует.
	q.writeOrder(&b)
	return b.String(), args
}

func childColumnCount(parts []eagerPart) int {
	n := 0
	for _, p := range parts {
		n += len(p.target.Columns)
	}
	return n
}
