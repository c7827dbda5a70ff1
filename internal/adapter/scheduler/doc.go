// Package scheduler runs periodic database maintenance jobs on
// cron-based schedules using github.com/robfig/cron/v3.
//
// Features:
//   - Cron-style schedules, including "@every" for fixed intervals
//   - Job overlap control policies (Allow/Skip/Delay)
//   - Per-job timeouts and named jobs
//   - Observability hooks (OnJobStart, OnJobFinish, OnJobError)
//   - Graceful shutdown that waits for running jobs
//
// Ready-made maintenance jobs cover connection liveness probes, pool
// statistics reporting for both database/sql and pgx, and background
// SQLite optimization:
//
//	sched := scheduler.New(scheduler.Config{Logger: log})
//	err := scheduler.RegisterMaintenance(sched, map[string]scheduler.JobFunc{
//	    "db-ping":         scheduler.PingJob(db.PingContext),
//	    "sql-pool-stats":  scheduler.SQLStatsJob(db, log),
//	    "sqlite-optimize": scheduler.SQLiteOptimizeJob(db),
//	}, 5*time.Minute)
//	if err != nil {
//	    return err
//	}
//	sched.Start()
//	defer sched.Stop()
package scheduler
