package orm

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect описывает различия SQL-диалектов, существенные для генерации
// запросов и DDL: плейсхолдеры, квотирование идентификаторов,
// поддержка RETURNING и типы колонок.
type Dialect interface {
	// Name возвращает имя диалекта ("sqlite" или "postgres")
	Name() string
	// Placeholder возвращает плейсхолдер для n-го аргумента (нумерация с 1)
	Placeholder(n int) string
	// Quote квотирует идентификатор (имя таблицы или колонки)
	Quote(ident string) string
	// SupportsReturning сообщает, поддерживает ли диалект INSERT ... RETURNING
	SupportsReturning() bool
	// ColumnType возвращает SQL-тип для колонки
	ColumnType(c *Column) string
}

// DialectSQLite возвращает диалект SQLite.
func DialectSQLite() Dialect { return sqliteDialect{} }

// DialectPostgres возвращает диалект PostgreSQL.
func DialectPostgres() Dialect { return postgresDialect{} }

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }
func (sqliteDialect) Placeholder(n int) string { return "?" }
func (sqliteDialect) SupportsReturning() bool { return false }

func (sqliteDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (sqliteDialect) ColumnType(c *Column) string {
	switch c.Kind {
	case Integer:
		return "INTEGER"
	case Text:
		// SQLite игнорирует ограничение длины, тип остаётся TEXT
		return "TEXT"
	case Real:
		return "REAL"
	case Boolean:
		return "BOOLEAN"
	case Timestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }
func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (postgresDialect) SupportsReturning() bool { return true }

func (postgresDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (postgresDialect) ColumnType(c *Column) string {
	switch c.Kind {
	case Integer:
		if c.PrimaryKey && c.AutoIncrement {
			return "BIGSERIAL"
		}
		return "BIGINT"
	case Text:
		if c.Size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", c.Size)
		}
		return "TEXT"
	case Real:
		return "DOUBLE PRECISION"
	case Boolean:
		return "BOOLEAN"
	case Timestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}
