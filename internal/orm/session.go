package orm

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"relmap/internal/shared"
)

// validate проверяет сущности по validate-тегам перед записью в базу.
var validate = validator.New()

type entityStatus int

const (
	statusPending entityStatus = iota
	statusPersistent
	statusDeleted
)

type entityKey struct {
	table string
	pk    any
}

// entityState — отслеживаемое состояние сущности: ссылка на экземпляр,
// снимок значений на момент последней синхронизации с базой и статус.
type entityState struct {
	entity   Entity
	value    reflect.Value
	table    *Table
	snapshot map[string]any
	status   entityStatus
}

// Session — единица работы поверх Engine. Отслеживает добавленные,
// загруженные и удалённые сущности; транзакция открывается лениво при
// первой записи и завершается Commit или Rollback. Карта идентичности
// гарантирует один отслеживаемый экземпляр на первичный ключ.
//
// Сессия не потокобезопасна: один горутина — одна сессия.
type Session struct {
	engine *Engine

	tx       TxExecutor
	identity map[entityKey]*entityState
	pending  []*entityState
	deleted  []*entityState
	closed   bool
}

// NewSession создаёт сессию поверх движка.
func (e *Engine) NewSession() *Session {
	return &Session{
		engine:   e,
		identity: make(map[entityKey]*entityState),
	}
}

// SessionMaker — фабрика сессий, привязанная к движку. Удобна для
// передачи в репозитории: каждая операция открывает свежую сессию.
type SessionMaker struct {
	engine *Engine
}

// NewSessionMaker создаёт фабрику сессий.
func NewSessionMaker(e *Engine) *SessionMaker {
	return &SessionMaker{engine: e}
}

// Session открывает новую сессию.
func (sm *SessionMaker) Session() *Session {
	return sm.engine.NewSession()
}

// Engine возвращает движок фабрики.
func (sm *SessionMaker) Engine() *Engine { return sm.engine }

// executor возвращает открытую транзакцию либо движок.
func (s *Session) executor() Executor {
	if s.tx != nil {
		return s.tx
	}
	return s.engine
}

// requireTx лениво открывает транзакцию.
func (s *Session) requireTx(ctx context.Context) (TxExecutor, error) {
	if s.closed {
		return nil, shared.New(shared.KindInvariantViolated, "session is closed")
	}
	if s.tx == nil {
		tx, err := s.engine.BeginTx(ctx)
		if err != nil {
			return nil, err
		}
		s.tx = tx
	}
	return s.tx, nil
}

// Add ставит сущность в очередь на вставку. Элементы hasmany-связей,
// ещё не отслеживаемые сессией, добавляются каскадно.
func (s *Session) Add(e Entity) error {
	if s.closed {
		return shared.New(shared.KindInvariantViolated, "session is closed")
	}
	rv, err := derefStruct(e)
	if err != nil {
		return err
	}
	t, err := s.engine.meta.Register(e)
	if err != nil {
		return err
	}
	if s.tracked(e) {
		return nil
	}
	s.pending = append(s.pending, &entityState{
		entity: e,
		value:  rv,
		table:  t,
		status: statusPending,
	})

	for _, rel := range t.Relations {
		if rel.Kind != HasMany {
			continue
		}
		slice := rv.Field(rel.fieldIndex)
		for i := 0; i < slice.Len(); i++ {
			child, ok := slice.Index(i).Interface().(Entity)
			if !ok || slice.Index(i).IsNil() {
				continue
			}
			if err := s.Add(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// Delete помечает загруженную сущность на удаление.
func (s *Session) Delete(e Entity) error {
	if s.closed {
		return shared.New(shared.KindInvariantViolated, "session is closed")
	}
	rv, err := derefStruct(e)
	if err != nil {
		return err
	}
	t, err := s.engine.meta.Register(e)
	if err != nil {
		return err
	}
	pk, ok := t.pkValue(rv)
	if !ok {
		return shared.New(shared.KindValidation, "cannot delete entity without primary key")
	}
	key := entityKey{table: t.Name, pk: pk}
	st, tracked := s.identity[key]
	if !tracked {
		st = &entityState{entity: e, value: rv, table: t}
		s.identity[key] = st
	}
	st.status = statusDeleted
	s.deleted = append(s.deleted, st)
	return nil
}

// Get загружает сущность по первичному ключу в dest. При попадании в
// карту идентичности запрос к базе не выполняется: в dest копируются
// текущие значения отслеживаемого экземпляра, а изменения продолжают
// отслеживаться по первому загруженному экземпляру.
func (s *Session) Get(ctx context.Context, dest Entity, pk any) error {
	rv, err := derefStruct(dest)
	if err != nil {
		return err
	}
	t, err := s.engine.meta.Register(dest)
	if err != nil {
		return err
	}
	if t.pk == nil {
		return shared.Newf(shared.KindValidation, "table %s has no primary key", t.Name)
	}

	key := entityKey{table: t.Name, pk: normalizePK(pk)}
	if st, ok := s.identity[key]; ok && st.status == statusPersistent {
		if st.entity != dest {
			rv.Set(st.value)
		}
		return nil
	}

	if err := s.autoflush(ctx); err != nil {
		return err
	}

	d := s.engine.dialect
	q := "SELECT " + columnList(d, t.Name, t.Columns) +
		" FROM " + d.Quote(t.Name) +
		" WHERE " + d.Quote(t.pk.Name) + " = " + d.Placeholder(1)

	rows, err := s.executor().QueryContext(ctx, q, pk)
	if err != nil {
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return shared.FromDB(err)
		}
		return shared.Newf(shared.KindNotFound, "%s with pk %v not found", t.Name, pk)
	}
	if err := rows.Scan(t.scanTargets(rv, t.Columns)...); err != nil {
		return shared.FromDB(err)
	}
	s.track(dest, rv, t)
	return nil
}

// Flush синхронизирует накопленные изменения с базой в рамках лениво
// открытой транзакции: INSERT для новых сущностей, UPDATE для
// изменённых, DELETE для удалённых. Транзакция остаётся открытой
// до Commit или Rollback.
func (s *Session) Flush(ctx context.Context) error {
	if len(s.pending) == 0 && len(s.deleted) == 0 && !s.hasDirty() {
		return nil
	}
	tx, err := s.requireTx(ctx)
	if err != nil {
		return err
	}

	for _, st := range s.pending {
		if err := s.flushInsert(ctx, tx, st); err != nil {
			return err
		}
	}
	s.pending = s.pending[:0]

	for _, st := range s.identity {
		if st.status != statusPersistent {
			continue
		}
		if err := s.flushUpdate(ctx, tx, st); err != nil {
			return err
		}
	}

	for _, st := range s.deleted {
		if err := s.flushDelete(ctx, tx, st); err != nil {
			return err
		}
	}
	s.deleted = s.deleted[:0]
	return nil
}

// Commit фиксирует накопленные изменения. Снимки отслеживаемых
// сущностей сохраняются, экземпляры остаются пригодными для чтения
// после фиксации.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit(ctx)
	s.tx = nil
	if err != nil {
		return err
	}
	return nil
}

// Rollback откатывает транзакцию и сбрасывает отслеживаемое состояние:
// очередь вставок, пометки удаления и карту идентичности.
func (s *Session) Rollback(ctx context.Context) error {
	s.pending = s.pending[:0]
	s.deleted = s.deleted[:0]
	s.identity = make(map[entityKey]*entityState)
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback(ctx)
	s.tx = nil
	return err
}

// Close откатывает незавершённую транзакцию и закрывает сессию.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.tx != nil {
		return s.Rollback(ctx)
	}
	return nil
}

func (s *Session) flushInsert(ctx context.Context, tx TxExecutor, st *entityState) error {
	if err := validateEntity(st.entity); err != nil {
		return err
	}
	s.syncBelongsToFK(st)

	t := st.table
	d := s.engine.dialect

	cols := make([]*Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.AutoIncrement && c.PrimaryKey {
			if _, set := t.pkValue(st.value); !set {
				continue
			}
		}
		cols = append(cols, c)
	}

	args := make([]any, len(cols))
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Quote(t.Name))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(c.Name))
		args[i] = t.fieldValue(st.value, c)
	}
	b.WriteString(") VALUES (")
	for i := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Placeholder(i + 1))
	}
	b.WriteString(")")

	needsPK := t.pk != nil && t.pk.AutoIncrement
	if _, set := t.pkValue(st.value); set {
		needsPK = false
	}

	switch {
	case needsPK && d.SupportsReturning():
		b.WriteString(" RETURNING ")
		b.WriteString(d.Quote(t.pk.Name))
		var id int64
		rows, err := tx.QueryContext(ctx, b.String(), args...)
		if err != nil {
			return shared.Wrapf(err, "insert into %s", t.Name)
		}
		if rows.Next() {
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return shared.FromDB(err)
			}
		}
		if err := rows.Close(); err != nil {
			return shared.FromDB(err)
		}
		if err := t.setFieldValue(st.value, t.pk, id); err != nil {
			return err
		}
	default:
		res, err := tx.ExecContext(ctx, b.String(), args...)
		if err != nil {
			return shared.Wrapf(err, "insert into %s", t.Name)
		}
		if needsPK {
			if !res.HasLastInsertID {
				return shared.Newf(shared.KindInternal,
					"driver returned no generated key for %s", t.Name)
			}
			if err := t.setFieldValue(st.value, t.pk, res.LastInsertID); err != nil {
				return err
			}
		}
	}

	s.syncHasManyFK(st)

	st.status = statusPersistent
	st.snapshot = t.snapshot(st.value)
	if pk, ok := t.pkValue(st.value); ok {
		s.identity[entityKey{table: t.Name, pk: pk}] = st
	}
	return nil
}

func (s *Session) flushUpdate(ctx context.Context, tx TxExecutor, st *entityState) error {
	t := st.table
	changed := make([]*Column, 0, 2)
	for _, c := range t.Columns {
		if c.PrimaryKey {
			continue
		}
		if !reflect.DeepEqual(st.snapshot[c.Name], t.fieldValue(st.value, c)) {
			changed = append(changed, c)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	if err := validateEntity(st.entity); err != nil {
		return err
	}

	d := s.engine.dialect
	args := make([]any, 0, len(changed)+1)
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(d.Quote(t.Name))
	b.WriteString(" SET ")
	for i, c := range changed {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(c.Name))
		b.WriteString(" = ")
		b.WriteString(d.Placeholder(i + 1))
		args = append(args, t.fieldValue(st.value, c))
	}
	pk, ok := t.pkValue(st.value)
	if !ok {
		return shared.Newf(shared.KindInvariantViolated,
			"tracked %s entity lost its primary key", t.Name)
	}
	b.WriteString(" WHERE ")
	b.WriteString(d.Quote(t.pk.Name))
	b.WriteString(" = ")
	b.WriteString(d.Placeholder(len(changed) + 1))
	args = append(args, pk)

	if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
		return shared.Wrapf(err, "update %s", t.Name)
	}
	st.snapshot = t.snapshot(st.value)
	return nil
}

func (s *Session) flushDelete(ctx context.Context, tx TxExecutor, st *entityState) error {
	t := st.table
	d := s.engine.dialect
	pk, ok := t.pkValue(st.value)
	if !ok {
		return shared.New(shared.KindValidation, "cannot delete entity without primary key")
	}
	q := "DELETE FROM " + d.Quote(t.Name) +
		" WHERE " + d.Quote(t.pk.Name) + " = " + d.Placeholder(1)
	if _, err := tx.ExecContext(ctx, q, pk); err != nil {
		return shared.Wrapf(err, "delete from %s", t.Name)
	}
	delete(s.identity, entityKey{table: t.Name, pk: pk})
	return nil
}

// syncBelongsToFK переносит первичные ключи родителей в FK-колонки
// перед вставкой.
func (s *Session) syncBelongsToFK(st *entityState) {
	for _, rel := range st.table.Relations {
		if rel.Kind != BelongsTo {
			continue
		}
		parent := st.value.Field(rel.fieldIndex)
		if parent.IsNil() {
			continue
		}
		target, ok := s.engine.meta.Table(rel.TargetTable)
		if !ok || target.pk == nil {
			continue
		}
		pk, set := target.pkValue(parent.Elem())
		if !set {
			continue
		}
		if fkCol, ok := st.table.Column(rel.FK); ok {
			_ = st.table.setFieldValue(st.value, fkCol, pk)
		}
	}
}

// syncHasManyFK после вставки родителя проставляет его ключ в
// FK-колонки дочерних сущностей.
func (s *Session) syncHasManyFK(st *entityState) {
	pk, ok := st.table.pkValue(st.value)
	if !ok {
		return
	}
	for _, rel := range st.table.Relations {
		if rel.Kind != HasMany {
			continue
		}
		target, tok := s.engine.meta.Table(rel.TargetTable)
		if !tok {
			continue
		}
		fkCol, cok := target.Column(rel.FK)
		if !cok {
			continue
		}
		slice := st.value.Field(rel.fieldIndex)
		for i := 0; i < slice.Len(); i++ {
			child := slice.Index(i)
			if child.Kind() == reflect.Pointer {
				if child.IsNil() {
					continue
				}
				child = child.Elem()
			}
			_ = target.setFieldValue(child, fkCol, pk)
		}
	}
}

// track регистрирует загруженную сущность в карте идентичности.
func (s *Session) track(e Entity, rv reflect.Value, t *Table) {
	pk, ok := t.pkValue(rv)
	if !ok {
		return
	}
	key := entityKey{table: t.Name, pk: pk}
	if _, exists := s.identity[key]; exists {
		return
	}
	s.identity[key] = &entityState{
		entity:   e,
		value:    rv,
		table:    t,
		snapshot: t.snapshot(rv),
		status:   statusPersistent,
	}
}

// tracked сообщает, отслеживается ли экземпляр сессией.
func (s *Session) tracked(e Entity) bool {
	for _, st := range s.pending {
		if st.entity == e {
			return true
		}
	}
	for _, st := range s.identity {
		if st.entity == e {
			return true
		}
	}
	return false
}

func (s *Session) hasDirty() bool {
	for _, st := range s.identity {
		if st.status != statusPersistent {
			continue
		}
		for _, c := range st.table.Columns {
			if c.PrimaryKey {
				continue
			}
			if !reflect.DeepEqual(st.snapshot[c.Name], st.table.fieldValue(st.value, c)) {
				return true
			}
		}
	}
	return false
}

// autoflush сбрасывает накопленные изменения перед выборкой, чтобы
// запрос видел их в рамках транзакции сессии.
func (s *Session) autoflush(ctx context.Context) error {
	if len(s.pending) == 0 && !s.hasDirty() {
		return nil
	}
	return s.Flush(ctx)
}

func validateEntity(e Entity) error {
	if err := validate.Struct(e); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return shared.MarkKind(err, shared.KindInternal)
		}
		return shared.MarkKind(err, shared.KindValidation)
	}
	return nil
}

func normalizePK(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	default:
		return v
	}
}

func columnList(d Dialect, table string, cols []*Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = d.Quote(table) + "." + d.Quote(c.Name)
	}
	return strings.Join(parts, ", ")
}
