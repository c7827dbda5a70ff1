package pg

import (
	"errors"
	"fmt"
	"io/fs"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationInfo — результат прогона миграций.
type MigrationInfo struct {
	// Applied — применились ли новые миграции в этом прогоне.
	Applied bool
	// CurrentVersion — версия схемы до прогона.
	CurrentVersion uint
	// FinalVersion — версия схемы после прогона.
	FinalVersion uint
	// Dirty — схема осталась в незавершённом состоянии.
	Dirty bool
}

// ApplyMigrations накатывает миграции из директории migrationsPath
// (например "file://migrations/postgres" — схема users/tasks).
// Повторный вызов без новых миграций не считается ошибкой.
func ApplyMigrations(dsn, migrationsPath string) (MigrationInfo, error) {
	m, err := migrate.New(migrationsPath, dsn)
	if err != nil {
		return MigrationInfo{}, fmt.Errorf("create migrator: %w", err)
	}
	defer closeMigrator(m)
	return runUp(m)
}

// ApplyMigrationsFromFS накатывает миграции из fs.FS, например из
// встроенной через embed.FS директории.
func ApplyMigrationsFromFS(dsn string, fsys fs.FS, dirName string) (MigrationInfo, error) {
	sourceDriver, err := iofs.New(fsys, dirName)
	if err != nil {
		return MigrationInfo{}, fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return MigrationInfo{}, fmt.Errorf("create migrator: %w", err)
	}
	defer closeMigrator(m)
	return runUp(m)
}

// runUp выполняет Up и собирает MigrationInfo. Грязная схема —
// ошибка: прерванную миграцию должен разбирать оператор.
func runUp(m *migrate.Migrate) (MigrationInfo, error) {
	var info MigrationInfo

	currentVersion, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationInfo{}, fmt.Errorf("read current version: %w", err)
	}
	info.CurrentVersion = currentVersion
	info.Dirty = dirty
	if dirty {
		return info, fmt.Errorf("database is in dirty state at version %d", currentVersion)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return info, nil
		}
		return info, fmt.Errorf("apply migrations: %w", err)
	}
	info.Applied = true

	if finalVersion, _, err := m.Version(); err == nil {
		info.FinalVersion = finalVersion
	}
	return info, nil
}

// GetMigrationVersion возвращает версию схемы и флаг dirty.
// До первой миграции возвращает (0, false, nil).
func GetMigrationVersion(dsn, migrationsPath string) (uint, bool, error) {
	m, err := migrate.New(migrationsPath, dsn)
	if err != nil {
		return 0, false, fmt.Errorf("create migrator: %w", err)
	}
	defer closeMigrator(m)
	return readVersion(m)
}

// GetMigrationVersionFromFS — то же для миграций из fs.FS.
func GetMigrationVersionFromFS(dsn string, fsys fs.FS, dirName string) (uint, bool, error) {
	sourceDriver, err := iofs.New(fsys, dirName)
	if err != nil {
		return 0, false, fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return 0, false, fmt.Errorf("create migrator: %w", err)
	}
	defer closeMigrator(m)
	return readVersion(m)
}

func readVersion(m *migrate.Migrate) (uint, bool, error) {
	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}

func closeMigrator(m *migrate.Migrate) {
	sourceErr, dbErr := m.Close()
	_, _ = sourceErr, dbErr
}
