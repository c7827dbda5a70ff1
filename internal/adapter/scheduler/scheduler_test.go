package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relmap/internal/platform/sqlite"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerStartStop(t *testing.T) {
	s := New(Config{Logger: testLogger()})
	assert.True(t, s.IsRunning())

	s.Start()
	s.Stop()
	assert.False(t, s.IsRunning())

	// повторная остановка безопасна
	s.Stop()
}

func TestAddJobInvalidSchedule(t *testing.T) {
	s := New(Config{Logger: testLogger()})
	defer s.Stop()

	_, err := s.AddJob("not a schedule", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestJobExecutes(t *testing.T) {
	s := New(Config{Logger: testLogger()})
	defer s.Stop()

	done := make(chan struct{})
	var once atomic.Bool
	_, err := s.AddJob("@every 50ms", func(ctx context.Context) error {
		if once.CompareAndSwap(false, true) {
			close(done)
		}
		return nil
	})
	require.NoError(t, err)

	s.Start()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestJobHooks(t *testing.T) {
	var started, finished, failed atomic.Int32
	jobErr := errors.New("boom")

	s := New(Config{
		Logger: testLogger(),
		JobHooks: JobHooks{
			OnJobStart:  func(name string) { started.Add(1) },
			OnJobFinish: func(name string, d time.Duration, err error) { finished.Add(1) },
			OnJobError:  func(name string, err error) { failed.Add(1) },
		},
	})
	defer s.Stop()

	done := make(chan struct{})
	var once atomic.Bool
	_, err := s.AddJobWithOptions("@every 50ms", func(ctx context.Context) error {
		if once.CompareAndSwap(false, true) {
			defer close(done)
		}
		return jobErr
	}, JobOptions{Name: "failing"})
	require.NoError(t, err)

	s.Start()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
	s.Stop()

	assert.GreaterOrEqual(t, started.Load(), int32(1))
	assert.GreaterOrEqual(t, finished.Load(), int32(1))
	assert.GreaterOrEqual(t, failed.Load(), int32(1))
}

func TestJobTimeout(t *testing.T) {
	s := New(Config{Logger: testLogger()})
	defer s.Stop()

	timedOut := make(chan struct{})
	var once atomic.Bool
	_, err := s.AddJobWithOptions("@every 50ms", func(ctx context.Context) error {
		<-ctx.Done()
		if once.CompareAndSwap(false, true) {
			close(timedOut)
		}
		return ctx.Err()
	}, JobOptions{Name: "slow", Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	s.Start()
	select {
	case <-timedOut:
	case <-time.After(3 * time.Second):
		t.Fatal("job context was not canceled by timeout")
	}
}

func TestSkipIfRunning(t *testing.T) {
	s := New(Config{Logger: testLogger()})
	defer s.Stop()

	var running atomic.Int32
	var overlapped atomic.Bool
	release := make(chan struct{})
	entered := make(chan struct{})
	var once atomic.Bool

	_, err := s.AddJobWithOptions("@every 50ms", func(ctx context.Context) error {
		if running.Add(1) > 1 {
			overlapped.Store(true)
		}
		defer running.Add(-1)
		if once.CompareAndSwap(false, true) {
			close(entered)
		}
		<-release
		return nil
	}, JobOptions{Name: "exclusive", OverlapPolicy: SkipIfRunning})
	require.NoError(t, err)

	s.Start()
	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not start")
	}
	// даем планировщику несколько тиков на попытки перекрытия
	time.Sleep(200 * time.Millisecond)
	close(release)
	s.Stop()

	assert.False(t, overlapped.Load(), "overlapping executions must be skipped")
}

func TestRemoveJob(t *testing.T) {
	s := New(Config{Logger: testLogger()})
	defer s.Stop()

	id, err := s.AddJob("@every 1h", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	s.RemoveJob(id)
}

func TestStopContext(t *testing.T) {
	s := New(Config{Logger: testLogger()})
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.StopContext(ctx))
}

func TestPingJob(t *testing.T) {
	ok := PingJob(func(ctx context.Context) error { return nil })
	assert.NoError(t, ok(context.Background()))

	bad := PingJob(func(ctx context.Context) error { return errors.New("down") })
	assert.Error(t, bad(context.Background()))
}

func TestSQLiteMaintenanceJobs(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.NewInMemoryDB(ctx)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, SQLStatsJob(db, testLogger())(ctx))
	require.NoError(t, SQLiteOptimizeJob(db)(ctx))
}

func TestRegisterMaintenance(t *testing.T) {
	s := New(Config{Logger: testLogger()})
	defer s.Stop()

	err := RegisterMaintenance(s, map[string]JobFunc{
		"noop": func(ctx context.Context) error { return nil },
	}, time.Minute)
	require.NoError(t, err)
}
