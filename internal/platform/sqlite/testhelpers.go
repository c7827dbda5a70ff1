package sqlite

import (
	"context"
	"database/sql"
	"testing"
)

// TestDB — тестовая база с подключением, путём к файлу и готовым TxRunner.
// Очистка регистрируется через t.Cleanup, вызывающему коду ничего закрывать
// не нужно.
type TestDB struct {
	DB       *sql.DB
	Path     string // пустой или ":memory:" для in-memory базы
	TxRunner *TxRunner
}

// NewTestDBInMemory создаёт in-memory базу для теста.
func NewTestDBInMemory(t *testing.T) *TestDB {
	t.Helper()

	db, err := NewInMemoryDB(context.Background())
	if err != nil {
		t.Fatalf("create in-memory test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return &TestDB{DB: db, Path: ":memory:", TxRunner: NewTxRunner(db)}
}

// NewTestDBFile создаёт файловую базу во временной директории.
func NewTestDBFile(t *testing.T) *TestDB {
	t.Helper()

	db, path, err := NewTestDB(context.Background())
	if err != nil {
		t.Fatalf("create file test db: %v", err)
	}
	t.Cleanup(func() { _ = CleanupTestDB(db, path) })

	return &TestDB{DB: db, Path: path, TxRunner: NewTxRunner(db)}
}

// ApplyTestMigrations накатывает миграции на тестовую базу,
// например из migrations/sqlite.
func (tdb *TestDB) ApplyTestMigrations(t *testing.T, migrationsPath string) {
	t.Helper()

	if err := ApplyMigrations(tdb.Path, migrationsPath); err != nil {
		t.Fatalf("apply test migrations: %v", err)
	}
}

// Exec выполняет команду, останавливая тест при ошибке.
func (tdb *TestDB) Exec(t *testing.T, query string, args ...any) sql.Result {
	t.Helper()

	result, err := tdb.DB.ExecContext(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
	return result
}

// Query выполняет выборку, останавливая тест при ошибке.
func (tdb *TestDB) Query(t *testing.T, query string, args ...any) *sql.Rows {
	t.Helper()

	rows, err := tdb.DB.QueryContext(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return rows
}

// QueryRow выполняет выборку одной строки.
func (tdb *TestDB) QueryRow(t *testing.T, query string, args ...any) *sql.Row {
	t.Helper()
	return tdb.DB.QueryRowContext(context.Background(), query, args...)
}

// MustSeedData выполняет запросы подготовки данных, падая при первой ошибке.
func (tdb *TestDB) MustSeedData(t *testing.T, queries ...string) {
	t.Helper()

	for _, query := range queries {
		tdb.Exec(t, query)
	}
}

// TruncateTable удаляет все строки таблицы.
func (tdb *TestDB) TruncateTable(t *testing.T, tableName string) {
	t.Helper()
	tdb.Exec(t, "DELETE FROM "+tableName)
}

// TruncateAllTables удаляет строки всех пользовательских таблиц,
// не трогая sqlite_* и schema_migrations.
func (tdb *TestDB) TruncateAllTables(t *testing.T) {
	t.Helper()

	rows := tdb.Query(t,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != 'schema_migrations'")
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan table name: %v", err)
		}
		tables = append(tables, name)
	}

	// дочерние таблицы первыми, иначе внешние ключи заблокируют удаление
	for i := len(tables) - 1; i >= 0; i-- {
		tdb.TruncateTable(t, tables[i])
	}
}

// WithTx выполняет fn в транзакции, останавливая тест при ошибке.
func (tdb *TestDB) WithTx(t *testing.T, fn func(ctx context.Context) error) {
	t.Helper()

	if err := tdb.TxRunner.WithinTx(context.Background(), fn); err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

// CountRows возвращает число строк таблицы.
func (tdb *TestDB) CountRows(t *testing.T, tableName string) int {
	t.Helper()

	var count int
	if err := tdb.QueryRow(t, "SELECT COUNT(*) FROM "+tableName).Scan(&count); err != nil {
		t.Fatalf("count rows of %s: %v", tableName, err)
	}
	return count
}

// TableExists сообщает, существует ли таблица.
func (tdb *TestDB) TableExists(t *testing.T, tableName string) bool {
	t.Helper()

	var count int
	row := tdb.QueryRow(t,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", tableName)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("check table %s: %v", tableName, err)
	}
	return count > 0
}
