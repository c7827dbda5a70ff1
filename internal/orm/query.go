package orm

import (
	"context"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"relmap/internal/shared"
)

type filterCond struct {
	column string
	value  any
}

type orderTerm struct {
	column string
	desc   bool
}

type rawCond struct {
	expr string
	args []any
}

// SelectQuery — построитель выборки по таблице сущности. Запросы
// выполняются через исполнитель сессии, поэтому видят её незафиксированные
// изменения; перед выполнением сессия сбрасывает накопленные операции.
type SelectQuery struct {
	s     *Session
	table *Table
	proto Entity

	filters []filterCond
	raw     []rawCond
	order   []orderTerm
	limit   int
	offset  int
	eager   []string

	selectExprs []string
	joinRels    []string
	groupBy     []string

	err error
}

// Query создаёт построитель выборки для таблицы сущности-прототипа.
func (s *Session) Query(proto Entity) *SelectQuery {
	q := &SelectQuery{s: s, proto: proto, limit: -1, offset: -1}
	t, err := s.engine.meta.Register(proto)
	if err != nil {
		q.err = err
		return q
	}
	q.table = t
	return q
}

// FilterBy добавляет условия равенства по колонкам. Ключи карты
// обходятся в отсортированном порядке, поэтому текст запроса
// детерминирован. Значение nil превращается в IS NULL.
func (q *SelectQuery) FilterBy(filters map[string]any) *SelectQuery {
	if q.err != nil {
		return q
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := q.table.Column(k); !ok {
			q.err = shared.Newf(shared.KindValidation,
				"table %s has no column %s", q.table.Name, k)
			return q
		}
		q.filters = append(q.filters, filterCond{column: k, value: filters[k]})
	}
	return q
}

// Where добавляет сырое SQL-условие с аргументами. Плейсхолдеры
// записываются как ? и переписываются под диалект.
func (q *SelectQuery) Where(expr string, args ...any) *SelectQuery {
	if q.err != nil {
		return q
	}
	q.raw = append(q.raw, rawCond{expr: expr, args: args})
	return q
}

// OrderBy добавляет сортировку по возрастанию.
func (q *SelectQuery) OrderBy(column string) *SelectQuery {
	q.order = append(q.order, orderTerm{column: column})
	return q
}

// OrderByDesc добавляет сортировку по убыванию.
func (q *SelectQuery) OrderByDesc(column string) *SelectQuery {
	q.order = append(q.order, orderTerm{column: column, desc: true})
	return q
}

// Limit ограничивает число возвращаемых сущностей.
func (q *SelectQuery) Limit(n int) *SelectQuery {
	q.limit = n
	return q
}

// Offset пропускает первые n сущностей.
func (q *SelectQuery) Offset(n int) *SelectQuery {
	q.offset = n
	return q
}

// JoinedLoad включает жадную загрузку связи одним запросом с LEFT JOIN.
// Для hasmany строки результата сворачиваются по первичному ключу
// родителя, ограничение Limit применяется к родителям через подзапрос.
func (q *SelectQuery) JoinedLoad(relation string) *SelectQuery {
	if q.err != nil {
		return q
	}
	if _, ok := q.table.Relation(relation); !ok {
		q.err = shared.Newf(shared.KindValidation,
			"table %s has no relation %s", q.table.Name, relation)
		return q
	}
	q.eager = append(q.eager, relation)
	return q
}

// SelectExprs переключает построитель в режим произвольной выборки:
// вместо сущностей запрос вернёт сырые строки перечисленных выражений.
func (q *SelectQuery) SelectExprs(exprs ...string) *SelectQuery {
	q.selectExprs = append(q.selectExprs, exprs...)
	return q
}

// CountRelated добавляет COUNT по первичному ключу связанной таблицы
// с алиасом и LEFT JOIN этой связи. Используется вместе с GroupBy.
func (q *SelectQuery) CountRelated(relation, alias string) *SelectQuery {
	if q.err != nil {
		return q
	}
	rel, ok := q.table.Relation(relation)
	if !ok {
		q.err = shared.Newf(shared.KindValidation,
			"table %s has no relation %s", q.table.Name, relation)
		return q
	}
	target, ok := q.s.engine.meta.Table(rel.TargetTable)
	if !ok || target.pk == nil {
		q.err = shared.Newf(shared.KindValidation,
			"relation %s target %s is not registered", relation, rel.TargetTable)
		return q
	}
	d := q.s.engine.dialect
	q.selectExprs = append(q.selectExprs,
		"COUNT("+d.Quote(target.Name)+"."+d.Quote(target.pk.Name)+") AS "+d.Quote(alias))
	q.joinRels = append(q.joinRels, relation)
	return q
}

// LeftJoin добавляет LEFT JOIN связи без загрузки её сущностей.
func (q *SelectQuery) LeftJoin(relation string) *SelectQuery {
	if q.err != nil {
		return q
	}
	if _, ok := q.table.Relation(relation); !ok {
		q.err = shared.Newf(shared.KindValidation,
			"table %s has no relation %s", q.table.Name, relation)
		return q
	}
	q.joinRels = append(q.joinRels, relation)
	return q
}

// GroupBy добавляет группировку по колонкам таблицы.
func (q *SelectQuery) GroupBy(columns ...string) *SelectQuery {
	q.groupBy = append(q.groupBy, columns...)
	return q
}

// All загружает все подходящие сущности в dest (*[]*T).
func (q *SelectQuery) All(ctx context.Context, dest any) error {
	if q.err != nil {
		return q.err
	}
	if err := q.s.autoflush(ctx); err != nil {
		return err
	}

	slicePtr := reflect.ValueOf(dest)
	if slicePtr.Kind() != reflect.Pointer || slicePtr.Elem().Kind() != reflect.Slice {
		return shared.Newf(shared.KindValidation, "dest must be a pointer to slice, got %T", dest)
	}
	elemType := slicePtr.Elem().Type().Elem()
	if elemType.Kind() != reflect.Pointer || elemType.Elem() != q.table.goType {
		return shared.Newf(shared.KindValidation,
			"dest element type %s does not match table %s", elemType, q.table.Name)
	}

	if len(q.eager) > 0 {
		return q.allEager(ctx, slicePtr)
	}

	query, args := q.buildPlain()
	rows, err := q.s.executor().QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	out := slicePtr.Elem()
	out.SetLen(0)
	for rows.Next() {
		holders := newHolders(len(q.table.Columns))
		if err := rows.Scan(holders...); err != nil {
			return shared.FromDB(err)
		}
		ent, err := q.s.adoptRow(q.table, holders)
		if err != nil {
			return err
		}
		out = reflect.Append(out, reflect.ValueOf(ent))
	}
	if err := rows.Err(); err != nil {
		return shared.FromDB(err)
	}
	slicePtr.Elem().Set(out)
	return nil
}

// First загружает первую подходящую сущность в dest. Возвращает
// ошибку с видом NotFound, если ничего не найдено.
func (q *SelectQuery) First(ctx context.Context, dest Entity) error {
	if q.err != nil {
		return q.err
	}
	rv, err := derefStruct(dest)
	if err != nil {
		return err
	}
	if len(q.eager) == 0 {
		q.limit = 1
	}

	listType := reflect.SliceOf(reflect.PointerTo(q.table.goType))
	list := reflect.New(listType)
	if err := q.All(ctx, list.Interface()); err != nil {
		return err
	}
	if list.Elem().Len() == 0 {
		return shared.Newf(shared.KindNotFound, "no %s rows match the query", q.table.Name)
	}
	rv.Set(list.Elem().Index(0).Elem())
	return nil
}

// Count возвращает число подходящих строк.
func (q *SelectQuery) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	if err := q.s.autoflush(ctx); err != nil {
		return 0, err
	}
	d := q.s.engine.dialect
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(d.Quote(q.table.Name))
	args := q.writeWhere(&b, 1)

	rows, err := q.s.executor().QueryContext(ctx, b.String(), args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, shared.FromDB(err)
		}
	}
	return n, rows.Err()
}

// Update выполняет массовое обновление подходящих строк, минуя
// отслеживаемые экземпляры. Ключи карты обходятся в отсортированном
// порядке. Возвращает число обновлённых строк.
func (q *SelectQuery) Update(ctx context.Context, changes map[string]any) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	if len(changes) == 0 {
		return 0, nil
	}
	tx, err := q.s.requireTx(ctx)
	if err != nil {
		return 0, err
	}
	if err := q.s.autoflush(ctx); err != nil {
		return 0, err
	}

	cols := make([]string, 0, len(changes))
	for k := range changes {
		if _, ok := q.table.Column(k); !ok {
			return 0, shared.Newf(shared.KindValidation,
				"table %s has no column %s", q.table.Name, k)
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)

	d := q.s.engine.dialect
	var b strings.Builder
	args := make([]any, 0, len(cols))
	b.WriteString("UPDATE ")
	b.WriteString(d.Quote(q.table.Name))
	b.WriteString(" SET ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(c))
		b.WriteString(" = ")
		b.WriteString(d.Placeholder(i + 1))
		args = append(args, changes[c])
	}
	whereArgs := q.writeWhere(&b, len(cols)+1)
	args = append(args, whereArgs...)

	res, err := tx.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, shared.Wrapf(err, "update %s", q.table.Name)
	}
	q.s.expireByTable(q.table.Name)
	return res.RowsAffected, nil
}

// DeleteAll удаляет подходящие строки, минуя отслеживаемые экземпляры.
func (q *SelectQuery) DeleteAll(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	tx, err := q.s.requireTx(ctx)
	if err != nil {
		return 0, err
	}
	if err := q.s.autoflush(ctx); err != nil {
		return 0, err
	}
	d := q.s.engine.dialect
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(d.Quote(q.table.Name))
	args := q.writeWhere(&b, 1)

	res, err := tx.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, shared.Wrapf(err, "delete from %s", q.table.Name)
	}
	q.s.expireByTable(q.table.Name)
	return res.RowsAffected, nil
}

// Rows выполняет запрос в режиме произвольной выборки и возвращает
// сырые строки для ручного сканирования. Вызывающий закрывает Rows.
func (q *SelectQuery) Rows(ctx context.Context) (Rows, error) {
	if q.err != nil {
		return nil, q.err
	}
	if len(q.selectExprs) == 0 {
		return nil, shared.New(shared.KindValidation, "Rows requires SelectExprs or CountRelated")
	}
	if err := q.s.autoflush(ctx); err != nil {
		return nil, err
	}

	d := q.s.engine.dialect
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(q.selectExprs, ", "))
	b.WriteString(" FROM ")
	b.WriteString(d.Quote(q.table.Name))
	if err := q.writeJoins(&b); err != nil {
		return nil, err
	}
	args := q.writeWhere(&b, 1)
	if len(q.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		for i, c := range q.groupBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(q.quoteOrder(c))
		}
	}
	q.writeOrder(&b)
	q.writeLimit(&b)

	return q.s.executor().QueryContext(ctx, b.String(), args...)
}

// buildPlain собирает выборку без жадной загрузки.
func (q *SelectQuery) buildPlain() (string, []any) {
	d := q.s.engine.dialect
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(columnList(d, q.table.Name, q.table.Columns))
	b.WriteString(" FROM ")
	b.WriteString(d.Quote(q.table.Name))
	args := q.writeWhere(&b, 1)
	q.writeOrder(&b)
	q.writeLimit(&b)
	return b.String(), args
}

// writeWhere добавляет WHERE из условий равенства и сырых условий.
// Возвращает аргументы в порядке плейсхолдеров.
func (q *SelectQuery) writeWhere(b *strings.Builder, firstPlaceholder int) []any {
	if len(q.filters) == 0 && len(q.raw) == 0 {
		return nil
	}
	d := q.s.engine.dialect
	args := make([]any, 0, len(q.filters))
	n := firstPlaceholder
	b.WriteString(" WHERE ")
	wrote := false
	for _, f := range q.filters {
		if wrote {
			b.WriteString(" AND ")
		}
		wrote = true
		b.WriteString(d.Quote(q.table.Name))
		b.WriteString(".")
		b.WriteString(d.Quote(f.column))
		if f.value == nil {
			b.WriteString(" IS NULL")
			continue
		}
		b.WriteString(" = ")
		b.WriteString(d.Placeholder(n))
		n++
		args = append(args, f.value)
	}
	for _, rc := range q.raw {
		if wrote {
			b.WriteString(" AND ")
		}
		wrote = true
		b.WriteString("(")
		for _, ch := range rc.expr {
			if ch == '?' {
				b.WriteString(d.Placeholder(n))
				n++
				continue
			}
			b.WriteRune(ch)
		}
		b.WriteString(")")
		args = append(args, rc.args...)
	}
	return args
}

func (q *SelectQuery) writeOrder(b *strings.Builder) {
	if len(q.order) == 0 {
		return
	}
	b.WriteString(" ORDER BY ")
	for i, o := range q.order {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(q.quoteOrder(o.column))
		if o.desc {
			b.WriteString(" DESC")
		}
	}
}

// quoteOrder квотирует имя, если это колонка таблицы; алиасы и
// квалифицированные выражения остаются как есть.
func (q *SelectQuery) quoteOrder(column string) string {
	d := q.s.engine.dialect
	if _, ok := q.table.Column(column); ok {
		return d.Quote(q.table.Name) + "." + d.Quote(column)
	}
	return column
}

func (q *SelectQuery) writeLimit(b *strings.Builder) {
	if q.limit >= 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.limit))
	}
	if q.offset >= 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(q.offset))
	}
}

func (q *SelectQuery) writeJoins(b *strings.Builder) error {
	d := q.s.engine.dialect
	seen := make(map[string]struct{}, len(q.joinRels))
	for _, name := range q.joinRels {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		rel, _ := q.table.Relation(name)
		target, ok := q.s.engine.meta.Table(rel.TargetTable)
		if !ok {
			return shared.Newf(shared.KindValidation,
				"relation %s target %s is not registered", name, rel.TargetTable)
		}
		b.WriteString(" LEFT JOIN ")
		b.WriteString(d.Quote(target.Name))
		b.WriteString(" ON ")
		switch rel.Kind {
		case HasMany:
			b.WriteString(d.Quote(target.Name) + "." + d.Quote(rel.FK))
			b.WriteString(" = ")
			b.WriteString(d.Quote(q.table.Name) + "." + d.Quote(q.table.pk.Name))
		case BelongsTo:
			b.WriteString(d.Quote(q.table.Name) + "." + d.Quote(rel.FK))
			b.WriteString(" = ")
			b.WriteString(d.Quote(target.Name) + "." + d.Quote(target.pk.Name))
		}
	}
	return nil
}

func newHolders(n int) []any {
	holders := make([]any, n)
	for i := range holders {
		holders[i] = new(any)
	}
	return holders
}

func holderValue(h any) any { return *h.(*any) }

// adoptRow строит сущность из просканированных значений, возвращая
// уже отслеживаемый экземпляр при попадании в карту идентичности.
func (s *Session) adoptRow(t *Table, holders []any) (Entity, error) {
	fresh := reflect.New(t.goType)
	for i, c := range t.Columns {
		if err := t.setFieldValue(fresh.Elem(), c, holderValue(holders[i])); err != nil {
			return nil, err
		}
	}
	ent := fresh.Interface().(Entity)
	if pk, ok := t.pkValue(fresh.Elem()); ok {
		key := entityKey{table: t.Name, pk: pk}
		if st, exists := s.identity[key]; exists && st.status == statusPersistent {
			return st.entity, nil
		}
		s.track(ent, fresh.Elem(), t)
	}
	return ent, nil
}

// expireByTable сбрасывает снимки после массовых операций, чтобы
// последующие сравнения не считали устаревшие значения актуальными.
func (s *Session) expireByTable(table string) {
	for key, st := range s.identity {
		if key.table != table {
			continue
		}
		st.snapshot = st.table.snapshot(st.value)
	}
}

