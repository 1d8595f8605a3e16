// Package sched provides one-shot deferred callbacks on top of a clockwork
// clock, executed by a small worker pool.
package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const defaultWorkers = 5

// Service fires callbacks once their delay has elapsed. Callbacks run on the
// worker pool, never on the scheduling goroutine, so a blocked caller cannot
// delay anyone else's deadline. There is no cancellation API: callbacks are
// expected to no-op against state that no longer exists.
type Service struct {
	clock   clockwork.Clock
	workers int
	workCh  chan func()
	quit    chan struct{}
	once    sync.Once
	pending atomic.Int64
}

// New creates a scheduler driven by the given clock. Tests pass a
// clockwork.FakeClock to control time.
func New(clock clockwork.Clock, workers int) *Service {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Service{
		clock:   clock,
		workers: workers,
		workCh:  make(chan func(), workers*2),
		quit:    make(chan struct{}),
	}
}

// Run starts the worker pool and blocks until ctx is cancelled, then stops
// accepting fired timers and joins the workers.
func (s *Service) Run(ctx context.Context) error {
	log.Info().Int("workers", s.workers).Msg("scheduler started")

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go s.worker(ctx, &wg, i)
	}

	<-ctx.Done()
	s.once.Do(func() { close(s.quit) })
	wg.Wait()
	log.Info().Msg("scheduler stopped")
	return nil
}

// ScheduleOnce executes fn exactly once, no earlier than delay from now.
// Many callbacks may be pending at the same time.
func (s *Service) ScheduleOnce(delay time.Duration, fn func()) {
	timer := s.clock.NewTimer(delay)
	s.pending.Add(1)

	go func() {
		defer s.pending.Add(-1)
		select {
		case <-timer.Chan():
			select {
			case s.workCh <- fn:
			case <-s.quit:
			}
		case <-s.quit:
			stopAndDrainTimer(timer)
		}
	}()
}

// Pending returns the number of callbacks not yet executed.
func (s *Service) Pending() int64 {
	return s.pending.Load()
}

func (s *Service) worker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Int("worker_id", id).Msg("scheduler worker shutting down")
			return
		case fn := <-s.workCh:
			fn()
		}
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired,
// following the pattern from the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
