package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleRunsTask(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	var runs int64
	err := s.Schedule("tick", 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt64(&runs, 1)
		return nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&runs) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestScheduleReplacesSameName(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	var first, second int64
	require.NoError(t, s.Schedule("sweep", 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt64(&first, 1)
		return nil
	}))
	require.NoError(t, s.Schedule("sweep", 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt64(&second, 1)
		return nil
	}))

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&second) >= 2
	}, time.Second, 5*time.Millisecond)

	status := s.GetStatus()
	assert.Equal(t, 1, status.Total)

	frozen := atomic.LoadInt64(&first)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, frozen, atomic.LoadInt64(&first), "replaced job must not keep firing")
}

func TestTaskErrorDoesNotStopJob(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	var runs int64
	require.NoError(t, s.Schedule("flaky", 10*time.Millisecond, func(ctx context.Context) error {
		n := atomic.AddInt64(&runs, 1)
		if n == 1 {
			return errors.New("transient store error")
		}
		return nil
	}))

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&runs) >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestTaskPanicIsContained(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	var runs int64
	require.NoError(t, s.Schedule("panicky", 10*time.Millisecond, func(ctx context.Context) error {
		if atomic.AddInt64(&runs, 1) == 1 {
			panic("boom")
		}
		return nil
	}))

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&runs) >= 2
	}, time.Second, 5*time.Millisecond)

	status := s.GetStatus()
	require.Len(t, status.Jobs, 1)
	assert.True(t, status.Jobs[0].Running)
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(nil)

	require.NoError(t, s.Schedule("cleanup", time.Hour, func(ctx context.Context) error { return nil }))
	assert.True(t, s.Stop("cleanup"))
	assert.False(t, s.Stop("cleanup"))
	assert.False(t, s.Stop("never-registered"))
}

func TestStopDoesNotCancelInFlightRun(t *testing.T) {
	s := New(nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var cancelled atomic.Bool
	var completed atomic.Bool

	require.NoError(t, s.Schedule("sweep", 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-ctx.Done():
			cancelled.Store(true)
		case <-release:
			completed.Store(true)
		}
		return nil
	}))

	<-started
	require.True(t, s.Stop("sweep"))
	close(release)
	s.Wait()

	assert.False(t, cancelled.Load(), "stop must not cancel the run already in flight")
	assert.True(t, completed.Load())
}

func TestStoppedJobStillRunsViaTriggerNow(t *testing.T) {
	s := New(nil)

	var runs int64
	require.NoError(t, s.Schedule("sweep", time.Hour, func(ctx context.Context) error {
		atomic.AddInt64(&runs, 1)
		return nil
	}))
	require.True(t, s.Stop("sweep"))

	require.NoError(t, s.TriggerNow(context.Background(), "sweep"))
	assert.Equal(t, int64(1), atomic.LoadInt64(&runs))

	status := s.GetStatus()
	require.Len(t, status.Jobs, 1)
	assert.False(t, status.Jobs[0].Running)
	assert.NotNil(t, status.Jobs[0].LastRun)
}

func TestTriggerNowUnknownJob(t *testing.T) {
	s := New(nil)
	err := s.TriggerNow(context.Background(), "ghost")
	require.Error(t, err)
}

func TestTriggerNowReturnsTaskError(t *testing.T) {
	s := New(nil)

	wantErr := errors.New("sweep failed")
	require.NoError(t, s.Schedule("sweep", time.Hour, func(ctx context.Context) error { return wantErr }))

	err := s.TriggerNow(context.Background(), "sweep")
	require.ErrorIs(t, err, wantErr)

	status := s.GetStatus()
	assert.Equal(t, "sweep failed", status.Jobs[0].LastError)
}

func TestStopAll(t *testing.T) {
	s := New(nil)

	require.NoError(t, s.Schedule("a", time.Hour, func(ctx context.Context) error { return nil }))
	require.NoError(t, s.Schedule("b", time.Hour, func(ctx context.Context) error { return nil }))

	assert.Equal(t, 2, s.StopAll())
	assert.Equal(t, 0, s.StopAll())

	status := s.GetStatus()
	assert.Equal(t, 2, status.Total)
	for _, j := range status.Jobs {
		assert.False(t, j.Running)
	}
	s.Wait()
}

func TestScheduleValidation(t *testing.T) {
	s := New(nil)

	assert.Error(t, s.Schedule("", time.Second, func(ctx context.Context) error { return nil }))
	assert.Error(t, s.Schedule("bad-interval", 0, func(ctx context.Context) error { return nil }))
	assert.Error(t, s.Schedule("nil-task", time.Second, nil))
}
