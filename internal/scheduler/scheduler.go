// Package scheduler implements the Sync Scheduler & Gates: per-country
// coalescing semaphores and a debounced enqueue path onto a background
// task queue, grounded on the teacher's per-command debounce plus a
// generalized per-country semaphore.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// defaultDebounce is the cooldown ScheduleSyncIfNeeded applies between
// scheduling attempts for the same country absent an explicit override.
const defaultDebounce = 500 * time.Millisecond

// TaskQueue is the narrow background-execution contract the scheduler
// enqueues onto; an embedding application supplies the implementation
// (FIFO single worker, a worker pool, whatever fits).
type TaskQueue interface {
	Enqueue(ctx context.Context, fn func(context.Context))
}

// PendingCounter reports how many unsynced change-log entries exist for a
// country, used by ScheduleSyncIfNeeded's onlyIfPending check.
type PendingCounter interface {
	CountUnsynced(ctx context.Context) (int, error)
}

// countrySemaphore is a SemaphoreSlim(1,1) equivalent: a single-permit gate
// with a non-blocking Wait(0) probe for IsSynchronizationInProgress.
type countrySemaphore struct {
	mu   sync.Mutex
	held bool
}

func (s *countrySemaphore) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held {
		return false
	}
	s.held = true
	return true
}

func (s *countrySemaphore) release() {
	s.mu.Lock()
	s.held = false
	s.mu.Unlock()
}

func (s *countrySemaphore) inUse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

// country bundles one country's push and sync gates plus its debounce
// timestamp.
type country struct {
	pushSem countrySemaphore
	syncSem countrySemaphore

	debounceMu  sync.Mutex
	lastSchedule time.Time
}

// Scheduler coordinates per-country sync scheduling.
type Scheduler struct {
	queue TaskQueue

	mu        sync.Mutex
	countries map[string]*country
}

// New constructs a Scheduler that enqueues background sync work onto
// queue.
func New(queue TaskQueue) *Scheduler {
	return &Scheduler{queue: queue, countries: make(map[string]*country)}
}

func (s *Scheduler) countryFor(countryID string) *country {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.countries[countryID]
	if !ok {
		c = &country{}
		s.countries[countryID] = c
	}
	return c
}

// ScheduleSyncIfNeeded debounces (default 500ms, or minInterval if
// positive) and, when onlyIfPending is set, first checks pending.CountUnsynced
// before enqueuing the sync task onto the background queue. The returned
// bool reports whether a sync was actually enqueued.
func (s *Scheduler) ScheduleSyncIfNeeded(ctx context.Context, countryID string, minInterval time.Duration, onlyIfPending bool, pending PendingCounter, run func(context.Context) error) (bool, error) {
	if countryID == "" {
		return false, fmt.Errorf("scheduler: empty country id")
	}
	interval := minInterval
	if interval <= 0 {
		interval = defaultDebounce
	}

	c := s.countryFor(countryID)

	c.debounceMu.Lock()
	now := time.Now()
	if now.Sub(c.lastSchedule) < interval {
		c.debounceMu.Unlock()
		return false, nil
	}
	c.lastSchedule = now
	c.debounceMu.Unlock()

	if onlyIfPending {
		if pending == nil {
			return false, fmt.Errorf("scheduler: onlyIfPending requires a PendingCounter")
		}
		count, err := pending.CountUnsynced(ctx)
		if err != nil {
			return false, fmt.Errorf("scheduler: count unsynced changes: %w", err)
		}
		if count == 0 {
			return false, nil
		}
	}

	s.queue.Enqueue(ctx, func(taskCtx context.Context) {
		s.runCoalesced(taskCtx, countryID, run)
	})
	return true, nil
}

// runCoalesced acquires the country's sync semaphore and runs run; callers
// that re-enter while a run is in flight simply skip (the in-flight run
// already covers any pending work, mirroring SemaphoreSlim(1,1)
// coalescing rather than queuing a second run).
func (s *Scheduler) runCoalesced(ctx context.Context, countryID string, run func(context.Context) error) {
	c := s.countryFor(countryID)
	if !c.syncSem.tryAcquire() {
		return
	}
	defer c.syncSem.release()
	_ = run(ctx)
}

// RunPushCoalesced runs fn under the country's push semaphore, skipping if
// a push is already in flight. Returns whether fn actually ran.
func (s *Scheduler) RunPushCoalesced(ctx context.Context, countryID string, fn func(context.Context) error) (bool, error) {
	c := s.countryFor(countryID)
	if !c.pushSem.tryAcquire() {
		return false, nil
	}
	defer c.pushSem.release()
	return true, fn(ctx)
}

// IsSynchronizationInProgress implements a non-blocking Wait(0) probe on
// the country's sync semaphore.
func (s *Scheduler) IsSynchronizationInProgress(countryID string) bool {
	return s.countryFor(countryID).syncSem.inUse()
}

// IsPushInProgress probes the country's push semaphore the same way.
func (s *Scheduler) IsPushInProgress(countryID string) bool {
	return s.countryFor(countryID).pushSem.inUse()
}
