// Package sqlite — SQLite-бекенд слоя доступа к данным: подключение с
// настроенными PRAGMA, транзакции с savepoint и ретраями на SQLITE_BUSY,
// миграции схемы и тестовые хелперы.
//
// # Подключение
//
// База с настройками по умолчанию (WAL, внешние ключи, busy timeout):
//
//	ctx := context.Background()
//	db, err := sqlite.NewDB(ctx, "data/relmap.db")
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
// Только для чтения:
//
//	db, err := sqlite.NewReadOnlyDB(ctx, "data/relmap.db")
//
// # Транзакции
//
// TxRunner выполняет функцию в транзакции и сам коммитит или откатывает:
//
//	runner := sqlite.NewTxRunner(db)
//	err = runner.WithinTx(ctx, func(ctx context.Context) error {
//		q := runner.GetQuerier(ctx)
//		_, err := q.ExecContext(ctx,
//			"INSERT INTO users (name, email) VALUES (?, ?)",
//			"alice", "alice@example.com")
//		return err
//	})
//
// Savepoint внутри внешней транзакции откатывается независимо:
//
//	err = runner.WithinTx(ctx, func(outerCtx context.Context) error {
//		return runner.WithinSavepoint(outerCtx, func(innerCtx context.Context) error {
//			q := runner.GetQuerier(innerCtx)
//			_, err := q.ExecContext(innerCtx,
//				"INSERT INTO tasks (title, user_id) VALUES (?, ?)", "draft", 1)
//			return err
//		})
//	})
//
// Для нагруженной записи есть очередь и ранний захват блокировки:
//
//	opts := sqlite.DefaultDBOptions()
//	opts.EnableWriteQueue = true
//	opts.TxLockMode = sqlite.TxLockImmediate
//	db, err := sqlite.NewDBWithOptions(ctx, "data/relmap.db", opts)
//
// # Миграции
//
// Схема users/tasks накатывается из директории репозитория:
//
//	err = sqlite.ApplyMigrations("data/relmap.db", "file://migrations/sqlite")
//
// # Тестирование
//
// In-memory база закрывается вместе с тестом:
//
//	func TestUserQueries(t *testing.T) {
//		tdb := sqlite.NewTestDBInMemory(t)
//		tdb.MustSeedData(t,
//			"CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)",
//			"INSERT INTO users (name) VALUES ('alice')")
//		// tdb.DB и tdb.TxRunner готовы к использованию
//	}
//
// Файловая база для интеграционных тестов с миграциями:
//
//	func TestWithMigrations(t *testing.T) {
//		tdb := sqlite.NewTestDBFile(t)
//		tdb.ApplyTestMigrations(t, "file://migrations/sqlite")
//	}
package sqlite
