package executor

import (
	"sync/atomic"

	"github.com/ChuLiYu/spacetime-runtime/internal/task"
)

// Spawner registers new tasks with an executor. It can be copied freely and
// used from any goroutine, including from inside a running task.
type Spawner struct {
	tasks    *TaskSet
	queue    *ReadyQueue
	recorder Recorder
	spawned  *atomic.Uint64
}

// Spawn parks t under its id and marks it ready.
//
// Both failure modes are scheduler invariant violations and panic:
// ErrDuplicateTask when the id is still live, ErrQueueFull when the ready
// queue is at capacity.
func (s *Spawner) Spawn(t *task.Task) {
	if err := s.tasks.Insert(t); err != nil {
		panic(err)
	}
	if err := s.queue.Push(t.ID); err != nil {
		panic(err)
	}
	s.spawned.Add(1)
	s.recorder.RecordSpawn()
}
