package task

import "github.com/ChuLiYu/spacetime-runtime/pkg/types"

// Waker re-enqueues one task id when invoked.
//
// A Waker is bound to a single task id for the whole lifetime of that task.
// Calling Wake more than once before the task is resumed is harmless: the
// executor skips ids that are no longer parked.
type Waker struct {
	id   types.TaskID
	wake func(types.TaskID)
}

// NewWaker binds id to the push side of a ready queue.
func NewWaker(id types.TaskID, wake func(types.TaskID)) *Waker {
	return &Waker{id: id, wake: wake}
}

// TaskID returns the id this waker re-enqueues.
func (w *Waker) TaskID() types.TaskID {
	return w.id
}

// Wake pushes the bound id back onto the ready queue.
func (w *Waker) Wake() {
	if w == nil || w.wake == nil {
		return
	}
	w.wake(w.id)
}
