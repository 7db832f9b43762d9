package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ChuLiYu/spacetime-runtime/internal/task"
	"github.com/ChuLiYu/spacetime-runtime/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// recoverError runs fn and returns the error it panicked with, if any
func recoverError(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	fn()
	return nil
}

// suspendOnce returns a computation that parks once, handing its waker to
// the caller, and completes on the next resume
func suspendOnce(captured **task.Waker) task.Computation {
	resumed := false
	return task.Func(func(w *task.Waker) task.Poll {
		if resumed {
			return task.Ready
		}
		resumed = true
		*captured = w
		return task.Pending
	})
}

// ============================================================================
// ReadyQueue
// ============================================================================

func TestReadyQueueFIFO(t *testing.T) {
	q := NewReadyQueue(3)

	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	require.NoError(t, q.Push(3))

	for _, want := range []types.TaskID{1, 2, 3} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := q.Pop()
	assert.False(t, ok, "empty queue should pop nothing")
}

func TestReadyQueueWrapsAround(t *testing.T) {
	q := NewReadyQueue(2)

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Push(types.TaskID(i)))
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, types.TaskID(i), got)
	}
	assert.True(t, q.IsEmpty())
}

func TestReadyQueueFull(t *testing.T) {
	q := NewReadyQueue(1)

	require.NoError(t, q.Push(1))
	err := q.Push(2)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, q.Len())
}

func TestReadyQueueDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultQueueCapacity, NewReadyQueue(0).Cap())
}

func TestReadyQueueWaitWakesOnPush(t *testing.T) {
	q := NewReadyQueue(4)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan bool, 1)
	go func() { done <- q.Wait(ctx) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(9))

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Push")
	}
}

func TestReadyQueueWaitReturnsOnCancel(t *testing.T) {
	q := NewReadyQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, q.Wait(ctx))
}

// ============================================================================
// TaskSet
// ============================================================================

func TestTaskSetRejectsDuplicate(t *testing.T) {
	s := NewTaskSet()

	require.NoError(t, s.Insert(task.New(1, 0, 0, task.Once(func() {}))))
	err := s.Insert(task.New(1, 0, 0, task.Once(func() {})))
	assert.ErrorIs(t, err, ErrDuplicateTask)

	tk, ok := s.Remove(1)
	require.True(t, ok)
	assert.Equal(t, types.TaskID(1), tk.ID)
	assert.False(t, s.Contains(1))

	_, ok = s.Remove(1)
	assert.False(t, ok)
}

func TestTaskSetIDsSorted(t *testing.T) {
	s := NewTaskSet()
	for _, id := range []types.TaskID{5, 1, 3} {
		require.NoError(t, s.Insert(task.New(id, 0, 0, task.Once(func() {}))))
	}
	assert.Equal(t, []types.TaskID{1, 3, 5}, s.IDs())
	assert.Equal(t, 3, s.Len())
}

// ============================================================================
// Executor
// ============================================================================

func TestNonSuspendingTaskCompletesInOnePass(t *testing.T) {
	e := New()
	ran := false
	e.Spawner().Spawn(task.New(0, 0, 0, task.Once(func() { ran = true })))

	n := e.RunReadyTasks(context.Background())

	assert.Equal(t, 1, n)
	assert.True(t, ran)
	assert.False(t, e.Tasks().Contains(0))
	assert.Empty(t, e.wakers, "completed task must evict its waker")
	assert.Equal(t, uint64(1), e.Stats().Completed)
}

// Scenario: one task completes immediately, the other suspends once and
// stays parked until woken
func TestSuspendedTaskStaysParkedUntilWoken(t *testing.T) {
	e := New()
	var waker *task.Waker

	e.Spawner().Spawn(task.New(1, 0, 0, task.Once(func() {})))
	e.Spawner().Spawn(task.New(2, 0, 0, suspendOnce(&waker)))

	e.RunReadyTasks(context.Background())

	assert.False(t, e.Tasks().Contains(1), "first task should be dropped")
	assert.True(t, e.Tasks().Contains(2), "second task should be parked")
	require.NotNil(t, waker)

	// Without a wake, further passes do nothing
	assert.Equal(t, 0, e.RunReadyTasks(context.Background()))
	assert.True(t, e.Tasks().Contains(2))

	waker.Wake()
	assert.Equal(t, 1, e.RunReadyTasks(context.Background()))
	assert.False(t, e.Tasks().Contains(2))
	assert.Equal(t, 0, e.Tasks().Len())
}

func TestWakerIsReusedAcrossResumes(t *testing.T) {
	e := New()
	var seen []*task.Waker
	steps := 0
	e.Spawner().Spawn(task.New(3, 0, 0, task.Func(func(w *task.Waker) task.Poll {
		seen = append(seen, w)
		steps++
		if steps == 3 {
			return task.Ready
		}
		w.Wake()
		return task.Pending
	})))

	for i := 0; i < 3; i++ {
		e.RunReadyTasks(context.Background())
	}

	require.Len(t, seen, 3)
	assert.Same(t, seen[0], seen[1])
	assert.Same(t, seen[1], seen[2])
	assert.Equal(t, types.TaskID(3), seen[0].TaskID())
}

func TestSelfWakingTaskDoesNotStarveOthers(t *testing.T) {
	e := New()
	spins := 0
	e.Spawner().Spawn(task.New(1, 0, 0, task.Func(func(w *task.Waker) task.Poll {
		spins++
		w.Wake()
		return task.Pending
	})))
	other := false
	e.Spawner().Spawn(task.New(2, 0, 0, task.Once(func() { other = true })))

	// Each pass returns even though task 1 is always ready
	e.RunReadyTasks(context.Background())
	e.RunReadyTasks(context.Background())

	assert.True(t, other)
	assert.Equal(t, 2, spins, "self-waking task should be resumed on every pass")
	assert.True(t, e.Tasks().Contains(1))
}

func TestDuplicateWakeIsSkipped(t *testing.T) {
	e := New()
	var waker *task.Waker
	e.Spawner().Spawn(task.New(4, 0, 0, suspendOnce(&waker)))
	e.RunReadyTasks(context.Background())

	waker.Wake()
	waker.Wake()
	e.RunReadyTasks(context.Background())

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.Completed)
	assert.Equal(t, uint64(1), stats.StaleWakes)
	assert.Equal(t, 0, stats.Parked)
}

func TestSpawnDuplicateIDPanics(t *testing.T) {
	e := New()
	sp := e.Spawner()
	sp.Spawn(task.New(1, 0, 0, task.Once(func() {})))

	err := recoverError(func() { sp.Spawn(task.New(1, 0, 0, task.Once(func() {}))) })
	assert.ErrorIs(t, err, ErrDuplicateTask)
}

// Scenario: filling the ready queue to capacity, the next push is fatal
func TestSpawnBeyondCapacityPanics(t *testing.T) {
	const capacity = 5
	e := New(WithCapacity(capacity))
	sp := e.Spawner()

	for i := 0; i < capacity; i++ {
		sp.Spawn(task.New(types.TaskID(i), 0, 0, task.Once(func() {})))
	}
	assert.Equal(t, capacity, e.Queue().Len())

	err := recoverError(func() {
		sp.Spawn(task.New(capacity, 0, 0, task.Once(func() {})))
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueueFull))
}

func TestWakeBeyondCapacityPanics(t *testing.T) {
	e := New(WithCapacity(1))
	var waker *task.Waker
	e.Spawner().Spawn(task.New(1, 0, 0, suspendOnce(&waker)))
	e.RunReadyTasks(context.Background())

	waker.Wake()
	err := recoverError(waker.Wake)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	e := New()
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var waker *task.Waker
	done := make(chan struct{})
	e.Spawner().Spawn(task.New(1, 0, 0, task.Func(func(w *task.Waker) task.Poll {
		mu.Lock()
		defer mu.Unlock()
		if waker != nil {
			close(done)
			return task.Ready
		}
		waker = w
		return task.Pending
	})))

	stopped := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(stopped)
	}()

	// Wake from another goroutine, like an event source would
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return waker != nil
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	w := waker
	mu.Unlock()
	w.Wake()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task was not resumed after wake")
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type countingRecorder struct {
	mu                    sync.Mutex
	spawns, resumes       int
	stale                 int
	lastReady, lastParked int
	outcomes              []task.Poll
}

func (r *countingRecorder) RecordSpawn() { r.mu.Lock(); r.spawns++; r.mu.Unlock() }
func (r *countingRecorder) RecordResume(_ time.Duration, p task.Poll) {
	r.mu.Lock()
	r.resumes++
	r.outcomes = append(r.outcomes, p)
	r.mu.Unlock()
}
func (r *countingRecorder) RecordStaleWake() { r.mu.Lock(); r.stale++; r.mu.Unlock() }
func (r *countingRecorder) UpdateQueueStats(ready, parked int) {
	r.mu.Lock()
	r.lastReady, r.lastParked = ready, parked
	r.mu.Unlock()
}

func TestRecorderReceivesEvents(t *testing.T) {
	rec := &countingRecorder{}
	e := New(WithRecorder(rec))
	var waker *task.Waker
	e.Spawner().Spawn(task.New(1, 0, 0, suspendOnce(&waker)))

	e.RunReadyTasks(context.Background())

	assert.Equal(t, 1, rec.spawns)
	assert.Equal(t, 1, rec.resumes)
	assert.Equal(t, []task.Poll{task.Pending}, rec.outcomes)
	assert.Equal(t, 1, rec.lastParked)
	assert.Equal(t, 0, rec.lastReady)
}
