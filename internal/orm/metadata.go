package orm

import (
	"context"
	"sync"

	"relmap/internal/shared"
)

// Metadata — реестр таблиц. Хранит порядок регистрации: CreateAll
// создаёт таблицы в этом порядке (родительские таблицы регистрируют
// раньше дочерних), DropAll удаляет в обратном.
type Metadata struct {
	mu     sync.RWMutex
	tables map[string]*Table
	order  []string
}

// NewMetadata создаёт пустой реестр.
func NewMetadata() *Metadata {
	return &Metadata{tables: make(map[string]*Table)}
}

// Register строит таблицу из тегов сущности и добавляет её в реестр.
// Повторная регистрация сущности с тем же именем таблицы возвращает
// уже построенные метаданные.
func (m *Metadata) Register(e Entity) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tables[e.TableName()]; ok {
		return t, nil
	}
	t, err := StructTable(e)
	if err != nil {
		return nil, err
	}
	m.tables[t.Name] = t
	m.order = append(m.order, t.Name)
	return t, nil
}

// AddTable добавляет императивно определённую таблицу.
func (m *Metadata) AddTable(t *Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[t.Name]; ok {
		return shared.Newf(shared.KindConflict, "table %s already registered", t.Name)
	}
	m.tables[t.Name] = t
	m.order = append(m.order, t.Name)
	return nil
}

// Table возвращает метаданные таблицы по имени.
func (m *Metadata) Table(name string) (*Table, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[name]
	return t, ok
}

// Tables возвращает таблицы в порядке регистрации.
func (m *Metadata) Tables() []*Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Table, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.tables[name])
	}
	return out
}

// CreateAll создаёт все зарегистрированные таблицы, пропуская
// уже существующие.
func (m *Metadata) CreateAll(ctx context.Context, ex Executor, d Dialect) error {
	for _, t := range m.Tables() {
		if _, err := ex.ExecContext(ctx, t.CreateSQL(d)); err != nil {
			return shared.Wrapf(err, "create table %s", t.Name)
		}
	}
	return nil
}

// DropAll удаляет все зарегистрированные таблицы в обратном порядке,
// чтобы дочерние таблицы с внешними ключами удалялись первыми.
func (m *Metadata) DropAll(ctx context.Context, ex Executor, d Dialect) error {
	tables := m.Tables()
	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := ex.ExecContext(ctx, tables[i].DropSQL(d)); err != nil {
			return shared.Wrapf(err, "drop table %s", tables[i].Name)
		}
	}
	return nil
}
