package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createUsersSchema создаёт минимальную схему users/tasks для тестов пакета.
func createUsersSchema(t *testing.T, db *sql.DB) {
	t.Helper()

	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE
	)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		user_id INTEGER REFERENCES users (id)
	)`)
	require.NoError(t, err)
}

func TestDefaultDBOptions(t *testing.T) {
	opts := DefaultDBOptions()

	assert.Equal(t, time.Hour, opts.ConnMaxLifetime)
	assert.Equal(t, 10*time.Minute, opts.ConnMaxIdleTime)
	assert.Equal(t, 4, opts.MaxOpenConns)
	assert.Equal(t, 1, opts.MaxIdleConns)
	assert.Equal(t, 5*time.Second, opts.PingTimeout)
	assert.True(t, opts.WALMode)
	assert.True(t, opts.ForeignKeys)
	assert.Equal(t, 5*time.Second, opts.BusyTimeout)
	assert.Equal(t, TxLockDeferred, opts.TxLockMode)
	assert.False(t, opts.EnableWriteQueue)
	assert.Equal(t, AccessModeReadWrite, opts.AccessMode)
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name     string
		dbPath   string
		opts     DBOptions
		expected string
	}{
		{
			name:     "default options",
			dbPath:   "data/relmap.db",
			opts:     DefaultDBOptions(),
			expected: "data/relmap.db?_busy_timeout=5000",
		},
		{
			name:     "no parameters",
			dbPath:   ":memory:",
			opts:     DBOptions{},
			expected: ":memory:",
		},
		{
			name:     "custom busy timeout",
			dbPath:   "relmap.db",
			opts:     DBOptions{BusyTimeout: 10 * time.Second},
			expected: "relmap.db?_busy_timeout=10000",
		},
		{
			name:     "read only mode",
			dbPath:   "relmap.db",
			opts:     DBOptions{AccessMode: AccessModeReadOnly},
			expected: "relmap.db?mode=ro",
		},
		{
			name:   "mode and timeout",
			dbPath: "relmap.db",
			opts: DBOptions{
				AccessMode:  AccessModeReadWriteCreate,
				BusyTimeout: 2 * time.Second,
			},
			expected: "relmap.db?mode=rwc&_busy_timeout=2000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildDSN(tt.dbPath, tt.opts))
		})
	}
}

func TestNewInMemoryDB(t *testing.T) {
	ctx := context.Background()
	db, err := NewInMemoryDB(ctx)
	require.NoError(t, err)
	defer db.Close()

	createUsersSchema(t, db)
	_, err = db.ExecContext(ctx,
		"INSERT INTO users (name, email) VALUES ('alice', 'alice@example.com')")
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestInMemoryDBForeignKeys(t *testing.T) {
	ctx := context.Background()
	db, err := NewInMemoryDB(ctx)
	require.NoError(t, err)
	defer db.Close()

	createUsersSchema(t, db)

	// внешние ключи включены по умолчанию: задача без пользователя отклоняется
	_, err = db.ExecContext(ctx,
		"INSERT INTO tasks (title, user_id) VALUES ('orphan', 999)")
	require.Error(t, err)
	assert.Contains(t, strings.ToUpper(err.Error()), "FOREIGN KEY")
}

func TestNewTestDB(t *testing.T) {
	ctx := context.Background()
	db, path, err := NewTestDB(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, path)
	defer func() { _ = CleanupTestDB(db, path) }()

	_, err = os.Stat(path)
	assert.NoError(t, err)

	createUsersSchema(t, db)
	_, err = db.ExecContext(ctx,
		"INSERT INTO users (name, email) VALUES ('bob', 'bob@example.com')")
	assert.NoError(t, err)
}

func TestNewDBCreatesDirectory(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	dbPath := filepath.Join(tmpDir, "nested", "relmap.db")
	db, err := NewDB(ctx, dbPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err)
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestNewDBInvalidPath(t *testing.T) {
	ctx := context.Background()

	// под /dev/null нельзя создать директорию
	_, err := NewDB(ctx, "/dev/null/nonexistent/relmap.db")
	assert.Error(t, err)
}

func TestCleanupTestDB(t *testing.T) {
	ctx := context.Background()
	db, path, err := NewTestDB(ctx)
	require.NoError(t, err)

	require.NoError(t, CleanupTestDB(db, path))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupTestDBInMemory(t *testing.T) {
	ctx := context.Background()
	db, err := NewInMemoryDB(ctx)
	require.NoError(t, err)

	assert.NoError(t, CleanupTestDB(db, ":memory:"))
	assert.NoError(t, CleanupTestDB(nil, ""))
}

func TestPragmasApplied(t *testing.T) {
	ctx := context.Background()
	db, path, err := NewTestDB(ctx)
	require.NoError(t, err)
	defer func() { _ = CleanupTestDB(db, path) }()

	var journalMode string
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))

	var foreignKeys int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)

	var busyTimeout int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	// synchronous возвращается числом: 1 соответствует NORMAL
	var synchronous string
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&synchronous))
	assert.Equal(t, "1", synchronous)
}

func TestNewReadOnlyDB(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "relmap.db")

	db, err := NewDB(ctx, dbPath)
	require.NoError(t, err)
	createUsersSchema(t, db)
	_, err = db.ExecContext(ctx,
		"INSERT INTO users (name, email) VALUES ('carol', 'carol@example.com')")
	require.NoError(t, err)
	db.Close()

	roDB, err := NewReadOnlyDB(ctx, dbPath)
	require.NoError(t, err)
	defer roDB.Close()

	var name string
	require.NoError(t, roDB.QueryRowContext(ctx,
		"SELECT name FROM users WHERE email = 'carol@example.com'").Scan(&name))
	assert.Equal(t, "carol", name)

	// не все сборки драйвера уважают mode=ro в DSN
	_, err = roDB.ExecContext(ctx,
		"INSERT INTO users (name, email) VALUES ('dave', 'dave@example.com')")
	if err != nil {
		errMsg := strings.ToLower(err.Error())
		assert.True(t,
			strings.Contains(errMsg, "readonly") ||
				strings.Contains(errMsg, "read-only") ||
				strings.Contains(errMsg, "attempt to write"),
			"unexpected write error: %s", err.Error())
	}
}

func TestNewDBWithMode(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		mode        AccessMode
		shouldWrite bool
	}{
		{name: "read write", mode: AccessModeReadWrite, shouldWrite: true},
		{name: "read only", mode: AccessModeReadOnly, shouldWrite: false},
		{name: "read write create", mode: AccessModeReadWriteCreate, shouldWrite: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbPath := filepath.Join(t.TempDir(), "relmap.db")

			setup, err := NewDB(ctx, dbPath)
			require.NoError(t, err)
			createUsersSchema(t, setup)
			setup.Close()

			db, err := NewDBWithMode(ctx, dbPath, tt.mode)
			require.NoError(t, err)
			defer db.Close()

			_, err = db.ExecContext(ctx,
				"INSERT INTO users (name, email) VALUES ('erin', 'erin@example.com')")
			if tt.shouldWrite {
				assert.NoError(t, err)
			} else if err == nil {
				t.Logf("driver ignored mode=%s in DSN", tt.mode)
			}
		})
	}
}
