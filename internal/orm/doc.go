// Package orm — слой объектно-реляционного отображения поверх общего
// контракта Driver, реализованного адаптерами database/sql (SQLite)
// и pgx (PostgreSQL).
//
// Сущности объявляются декларативно тегами структур и регистрируются
// в реестре метаданных движка:
//
//	type User struct {
//	    ID    int64   `db:"id,pk,auto"`
//	    Name  string  `db:"name,size=50,notnull" validate:"required,max=50"`
//	    Email string  `db:"email,size=100,unique,notnull"`
//	    Tasks []*Task `rel:"hasmany,fk=user_id"`
//	}
//
//	func (User) TableName() string { return "users" }
//
//	engine := orm.NewEngine(orm.NewSQLDriver(db), orm.DialectSQLite(),
//	    orm.WithLogger(log), orm.WithEcho(cfg.DB.Echo))
//	if err := engine.Register(&User{}, &Task{}); err != nil { ... }
//	if err := engine.CreateAll(ctx); err != nil { ... }
//
// Таблицы можно определять и императивно через NewTable и NewColumn,
// связывая их со структурами методом Bind.
//
// Сессия реализует единицу работы: транзакция открывается лениво при
// первой записи, изменения накапливаются и уходят в базу при Flush,
// фиксация — Commit. Карта идентичности гарантирует один отслеживаемый
// экземпляр на первичный ключ, изменения обнаруживаются сравнением со
// снимком загруженных значений:
//
//	sess := engine.NewSession()
//	defer sess.Close(ctx)
//
//	u := &User{Name: "alice", Email: "alice@example.com"}
//	if err := sess.Add(u); err != nil { ... }
//	if err := sess.Commit(ctx); err != nil { ... }
//
//	var loaded User
//	if err := sess.Get(ctx, &loaded, u.ID); err != nil { ... }
//
// Выборки строятся построителем запросов с условиями равенства,
// жадной загрузкой связей и агрегатами:
//
//	var users []*User
//	err := sess.Query(&User{}).
//	    FilterBy(map[string]any{"name": "alice"}).
//	    JoinedLoad("Tasks").
//	    All(ctx, &users)
package orm
