package sqlite

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// BuildMigrateURL строит URL базы для golang-migrate из пути к файлу.
// На Windows путь вида "C:\..." превращается в "sqlite:///C:/...".
func BuildMigrateURL(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("resolve database path: %w", err)
	}

	urlPath := filepath.ToSlash(absPath)
	if runtime.GOOS == "windows" && len(urlPath) >= 2 && urlPath[1] == ':' {
		urlPath = "/" + urlPath
	}
	if !strings.HasPrefix(urlPath, "/") {
		urlPath = "/" + urlPath
	}
	return "sqlite://" + urlPath, nil
}

// newMigrator открывает отдельное migrate-подключение к базе. Закрытие
// остаётся на вызывающем.
func newMigrator(dbPath, migrationsPath string) (*migrate.Migrate, error) {
	databaseURL, err := BuildMigrateURL(dbPath)
	if err != nil {
		return nil, err
	}
	m, err := migrate.New(migrationsPath, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// ApplyMigrations накатывает все непримененные миграции из директории
// migrationsPath (например "file://migrations/sqlite" — схема users/tasks).
// Повторный вызов без новых миграций не считается ошибкой.
func ApplyMigrations(dbPath, migrationsPath string) error {
	m, err := newMigrator(dbPath, migrationsPath)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// GetMigrationVersion возвращает текущую версию схемы и флаг dirty.
// До первой миграции возвращает (0, false, nil).
func GetMigrationVersion(dbPath, migrationsPath string) (uint, bool, error) {
	m, err := newMigrator(dbPath, migrationsPath)
	if err != nil {
		return 0, false, err
	}
	defer func() { _, _ = m.Close() }()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}

// DowngradeToVersion откатывает схему до заданной версии.
func DowngradeToVersion(dbPath, migrationsPath string, version uint) error {
	m, err := newMigrator(dbPath, migrationsPath)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("downgrade to version %d: %w", version, err)
	}
	return nil
}

// ResetMigrations откатывает все миграции. Уничтожает данные,
// применять только в тестах.
func ResetMigrations(dbPath, migrationsPath string) error {
	m, err := newMigrator(dbPath, migrationsPath)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("reset migrations: %w", err)
	}
	return nil
}
