// ============================================================================
// Spacetime Executor - Cooperative Task Scheduler
// ============================================================================
//
// Package: internal/executor
// File: executor.go
// Function: Drives every parked task to completion on a single goroutine
//
// Per-task state machine:
//   Parked (in TaskSet) ──wake──→ Ready (id in ReadyQueue)
//        ↑                             │ pop
//        │ Pending                     ↓
//        └──────────────────────── Running ──Ready──→ Completed (dropped)
//
// Run loop:
//   1. runReadyTasks - pop ids, resume each task one step
//      - id absent from the TaskSet: stale or duplicate wake, skip it
//      - Ready:   drop the task and evict its cached waker
//      - Pending: park it again (a live id already parked is fatal)
//   2. sleepIfIdle - wait on the ReadyQueue until something is pushed
//
// Cooperative scheduling:
//   Tasks keep control until their Poll returns. The executor never injects
//   suspension and never resumes two tasks at once. Event producers only
//   push ids through wakers; they never resume a task themselves.
//
// Fatal conditions (panic):
//   - ErrQueueFull:      wake or spawn beyond the ReadyQueue capacity
//   - ErrDuplicateTask:  spawning an id that is still live
//   - ErrTaskReparked:   re-parking an id that is already parked
//
// ============================================================================

package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ChuLiYu/spacetime-runtime/internal/task"
	"github.com/ChuLiYu/spacetime-runtime/internal/tracing"
	"github.com/ChuLiYu/spacetime-runtime/pkg/types"
)

// ============================================================================
// Error definitions
// ============================================================================

var (
	// ErrQueueFull means the ready queue reached its fixed capacity
	ErrQueueFull = errors.New("ready queue is full")
	// ErrDuplicateTask means a task id was registered while still live
	ErrDuplicateTask = errors.New("task id already registered")
	// ErrTaskReparked means a suspended task found its id already parked
	ErrTaskReparked = errors.New("task re-parked while already parked")
)

// Recorder receives scheduler events; metrics.Collector implements it.
type Recorder interface {
	RecordSpawn()
	RecordResume(d time.Duration, outcome task.Poll)
	RecordStaleWake()
	UpdateQueueStats(ready, parked int)
}

type nopRecorder struct{}

func (nopRecorder) RecordSpawn()                          {}
func (nopRecorder) RecordResume(time.Duration, task.Poll) {}
func (nopRecorder) RecordStaleWake()                      {}
func (nopRecorder) UpdateQueueStats(int, int)             {}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Parked     int    `json:"parked"`
	Ready      int    `json:"ready"`
	Capacity   int    `json:"capacity"`
	Spawned    uint64 `json:"spawned"`
	Resumed    uint64 `json:"resumed"`
	Completed  uint64 `json:"completed"`
	StaleWakes uint64 `json:"stale_wakes"`
}

// Option configures an Executor.
type Option func(*Executor)

// WithCapacity sets the ready queue capacity.
func WithCapacity(capacity int) Option {
	return func(e *Executor) { e.queue = NewReadyQueue(capacity) }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// Executor owns the parked task set, the ready queue and the waker cache.
type Executor struct {
	tasks    *TaskSet
	queue    *ReadyQueue
	wakers   map[types.TaskID]*task.Waker // touched only by the run loop
	recorder Recorder
	logger   *slog.Logger

	spawned    atomic.Uint64
	resumed    atomic.Uint64
	completed  atomic.Uint64
	staleWakes atomic.Uint64
}

// New creates an executor with an empty task set and ready queue.
func New(opts ...Option) *Executor {
	e := &Executor{
		tasks:    NewTaskSet(),
		queue:    NewReadyQueue(DefaultQueueCapacity),
		wakers:   make(map[types.TaskID]*task.Waker),
		recorder: nopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tasks returns the shared parked task set.
func (e *Executor) Tasks() *TaskSet { return e.tasks }

// Queue returns the shared ready queue.
func (e *Executor) Queue() *ReadyQueue { return e.queue }

// Spawner returns a handle sharing this executor's task set and ready queue.
func (e *Executor) Spawner() *Spawner {
	return &Spawner{
		tasks:    e.tasks,
		queue:    e.queue,
		recorder: e.recorder,
		spawned:  &e.spawned,
	}
}

// Run drives the scheduler until ctx is cancelled. Under normal operation
// the host never cancels it.
func (e *Executor) Run(ctx context.Context) {
	e.logger.Info("Executor started", "capacity", e.queue.Cap())
	for {
		if ctx.Err() != nil {
			e.logger.Info("Executor stopped", "parked", e.tasks.Len())
			return
		}
		e.RunReadyTasks(ctx)
		if !e.sleepIfIdle(ctx) {
			e.logger.Info("Executor stopped", "parked", e.tasks.Len())
			return
		}
	}
}

// RunReadyTasks performs one drain pass and returns how many tasks it resumed.
//
// A pass pops at most the number of ids queued when it started, so a task
// that keeps waking itself is resumed again on the next pass instead of
// monopolising this one.
func (e *Executor) RunReadyTasks(ctx context.Context) int {
	budget := e.queue.Len()
	resumed := 0

	for ; budget > 0; budget-- {
		id, ok := e.queue.Pop()
		if !ok {
			break
		}

		t, ok := e.tasks.Remove(id)
		if !ok {
			// already completed, or a duplicate wake
			e.staleWakes.Add(1)
			e.recorder.RecordStaleWake()
			continue
		}

		e.resume(ctx, t)
		resumed++
	}

	e.recorder.UpdateQueueStats(e.queue.Len(), e.tasks.Len())
	return resumed
}

func (e *Executor) resume(ctx context.Context, t *task.Task) {
	waker, ok := e.wakers[t.ID]
	if !ok {
		waker = task.NewWaker(t.ID, e.wake)
		e.wakers[t.ID] = waker
	}

	_, span := tracing.StartSpan(ctx, "task.resume")
	span.SetInt("task_id", uint64(t.ID)).
		SetInt("module_id", uint64(t.ModuleID)).
		SetInt("reducer_id", uint64(t.ReducerID))

	start := time.Now()
	outcome := t.Resume(waker)
	elapsed := time.Since(start)

	span.SetString("outcome", outcome.String())
	span.End()

	e.resumed.Add(1)
	e.recorder.RecordResume(elapsed, outcome)

	switch outcome {
	case task.Ready:
		delete(e.wakers, t.ID)
		e.completed.Add(1)
		e.logger.Debug("Task completed",
			"taskID", t.ID,
			"moduleID", t.ModuleID,
			"reducerID", t.ReducerID,
			"duration", elapsed)
	default:
		if err := e.tasks.Insert(t); err != nil {
			panic(fmt.Errorf("%w: task %d", ErrTaskReparked, t.ID))
		}
	}
}

// wake is the push side handed to every waker.
func (e *Executor) wake(id types.TaskID) {
	if err := e.queue.Push(id); err != nil {
		panic(err)
	}
}

// sleepIfIdle blocks while the ready queue is empty. It returns false once
// ctx is done.
func (e *Executor) sleepIfIdle(ctx context.Context) bool {
	if !e.queue.IsEmpty() {
		return ctx.Err() == nil
	}
	return e.queue.Wait(ctx)
}

// Stats returns counters and current queue sizes.
func (e *Executor) Stats() Stats {
	return Stats{
		Parked:     e.tasks.Len(),
		Ready:      e.queue.Len(),
		Capacity:   e.queue.Cap(),
		Spawned:    e.spawned.Load(),
		Resumed:    e.resumed.Load(),
		Completed:  e.completed.Load(),
		StaleWakes: e.staleWakes.Load(),
	}
}
