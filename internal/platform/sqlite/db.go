package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // драйвер SQLite
)

// TxLockMode задаёт, какую блокировку берёт BEGIN новой транзакции.
type TxLockMode string

const (
	// TxLockDeferred — блокировка откладывается до первого обращения (умолчание SQLite).
	TxLockDeferred TxLockMode = "DEFERRED"
	// TxLockImmediate — RESERVED-блокировка берётся сразу, меньше SQLITE_BUSY при записи.
	TxLockImmediate TxLockMode = "IMMEDIATE"
	// TxLockExclusive — сразу берётся EXCLUSIVE-блокировка.
	TxLockExclusive TxLockMode = "EXCLUSIVE"
)

// AccessMode — режим открытия файла базы данных.
type AccessMode string

const (
	AccessModeReadWrite       AccessMode = "rw"
	AccessModeReadOnly        AccessMode = "ro"
	AccessModeReadWriteCreate AccessMode = "rwc"
)

// DBOptions — настройки подключения к SQLite: пул database/sql,
// PRAGMA-параметры и поведение транзакций.
type DBOptions struct {
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	// PingTimeout ограничивает проверку соединения при открытии.
	PingTimeout time.Duration
	WALMode     bool
	ForeignKeys bool
	// BusyTimeout — сколько ждать снятия чужой блокировки перед SQLITE_BUSY.
	BusyTimeout time.Duration
	TxLockMode  TxLockMode
	// EnableWriteQueue сериализует запись через очередь TxRunner.
	EnableWriteQueue bool
	WriteQueueSize   int
	AccessMode       AccessMode
}

// DefaultDBOptions возвращает настройки для встроенного использования:
// маленький пул (у SQLite один писатель), WAL, внешние ключи включены.
func DefaultDBOptions() DBOptions {
	return DBOptions{
		ConnMaxLifetime:  time.Hour,
		ConnMaxIdleTime:  10 * time.Minute,
		MaxOpenConns:     4,
		MaxIdleConns:     1,
		PingTimeout:      5 * time.Second,
		WALMode:          true,
		ForeignKeys:      true,
		BusyTimeout:      5 * time.Second,
		TxLockMode:       TxLockDeferred,
		EnableWriteQueue: false,
		WriteQueueSize:   100,
		AccessMode:       AccessModeReadWrite,
	}
}

// NewDB открывает базу данных по пути dbPath с настройками по умолчанию.
func NewDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	return NewDBWithOptions(ctx, dbPath, DefaultDBOptions())
}

// NewReadOnlyDB открывает базу данных только для чтения.
func NewReadOnlyDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	return NewDBWithMode(ctx, dbPath, AccessModeReadOnly)
}

// NewDBWithMode открывает базу данных в заданном режиме доступа.
func NewDBWithMode(ctx context.Context, dbPath string, mode AccessMode) (*sql.DB, error) {
	opts := DefaultDBOptions()
	opts.AccessMode = mode
	if mode == AccessModeReadOnly {
		opts.EnableWriteQueue = false
	}
	return NewDBWithOptions(ctx, dbPath, opts)
}

// NewDBWithOptions открывает базу данных с явными настройками: создаёт
// директорию файла при необходимости, настраивает пул, проверяет
// соединение и применяет PRAGMA-параметры.
func NewDBWithOptions(ctx context.Context, dbPath string, opts DBOptions) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", buildDSN(dbPath, opts))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	configurePool(db, opts)

	if err := pingDB(ctx, db, opts.PingTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applyPragmas(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func configurePool(db *sql.DB, opts DBOptions) {
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
}

func pingDB(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping sqlite database: %w", err)
	}
	return nil
}

// buildDSN собирает DSN; через параметры строки передаётся только режим
// доступа и busy_timeout, остальное применяется PRAGMA-командами.
func buildDSN(dbPath string, opts DBOptions) string {
	var params []string
	if opts.AccessMode != "" && opts.AccessMode != AccessModeReadWrite {
		params = append(params, "mode="+string(opts.AccessMode))
	}
	if opts.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_busy_timeout=%d", opts.BusyTimeout.Milliseconds()))
	}
	if len(params) == 0 {
		return dbPath
	}
	return dbPath + "?" + strings.Join(params, "&")
}

// applyPragmas применяет PRAGMA-настройки к открытому подключению.
// PRAGMA надёжнее параметров DSN: не зависит от драйвера.
func applyPragmas(ctx context.Context, db *sql.DB, opts DBOptions) error {
	pragmas := make([]string, 0, 4)
	if opts.ForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON")
	}
	if opts.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	pragmas = append(pragmas, "PRAGMA synchronous = NORMAL")
	if opts.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout.Milliseconds()))
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// NewInMemoryDB открывает in-memory базу для тестов. Пул ограничен одним
// соединением: каждое новое соединение к :memory: видело бы пустую схему.
// WAL для in-memory не поддерживается.
func NewInMemoryDB(ctx context.Context) (*sql.DB, error) {
	opts := DefaultDBOptions()
	opts.WALMode = false
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	opts.EnableWriteQueue = false
	return NewDBWithOptions(ctx, ":memory:", opts)
}

// NewTestDB создаёт временный файл базы во временной директории системы.
// Возвращает подключение и путь к файлу для последующей очистки.
func NewTestDB(ctx context.Context) (*sql.DB, string, error) {
	tmpFile, err := os.CreateTemp("", "relmap_test_*.sqlite")
	if err != nil {
		return nil, "", fmt.Errorf("create temp database file: %w", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := NewDB(ctx, tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, "", err
	}
	return db, tmpPath, nil
}

// CleanupTestDB закрывает тестовую базу и удаляет её файл.
func CleanupTestDB(db *sql.DB, dbPath string) error {
	if db != nil {
		_ = db.Close()
	}
	if dbPath != "" && dbPath != ":memory:" {
		return os.Remove(dbPath)
	}
	return nil
}
