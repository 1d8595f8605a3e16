package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startService(t *testing.T, clock clockwork.Clock, workers int) *Service {
	t.Helper()
	s := New(clock, workers)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx) //nolint:errcheck
	return s
}

func TestScheduleOnceFiresAfterDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := startService(t, clock, 2)

	fired := make(chan struct{})
	s.ScheduleOnce(time.Minute, func() { close(fired) })

	// Not yet due.
	clock.Advance(30 * time.Second)
	select {
	case <-fired:
		t.Fatal("callback fired before its delay elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(30 * time.Second)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

func TestScheduleOnceFiresExactlyOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := startService(t, clock, 2)

	var count atomic.Int32
	s.ScheduleOnce(time.Second, func() { count.Add(1) })

	clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 10*time.Millisecond)

	clock.Advance(10 * time.Second)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestManyPendingCallbacks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := startService(t, clock, 3)

	const n = 40
	var count atomic.Int32
	for i := 1; i <= n; i++ {
		s.ScheduleOnce(time.Duration(i)*time.Second, func() { count.Add(1) })
	}
	assert.Equal(t, int64(n), s.Pending())

	clock.Advance(n * time.Second)
	require.Eventually(t, func() bool { return count.Load() == n }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCallbackRunsOffCallerGoroutine(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := startService(t, clock, 1)

	// A callback that itself schedules and waits would deadlock if callbacks
	// ran on the scheduling goroutine; here it only signals.
	fired := make(chan struct{})
	s.ScheduleOnce(time.Second, func() { close(fired) })

	clock.Advance(time.Second)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
}

func TestShutdownStopsPendingTimers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock, 2)
	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan struct{})
	go func() {
		s.Run(ctx) //nolint:errcheck
		close(runDone)
	}()

	var count atomic.Int32
	s.ScheduleOnce(time.Minute, func() { count.Add(1) })

	cancel()
	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// Timer fires after shutdown: the callback is discarded, nothing hangs.
	clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), count.Load())
}
