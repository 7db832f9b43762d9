// ============================================================================
// Spacetime Task - Suspendable Computation Handle
// ============================================================================
//
// Package: internal/task
// File: task.go
// Function: Wraps one suspendable computation together with its provenance
//
// Execution Model:
//   A Computation is advanced one step at a time by Resume. Each step either
//   finishes the computation (Ready) or parks it (Pending). A parked
//   computation must have arranged for its Waker to be invoked later, otherwise
//   it stays parked forever; there is no cancellation.
//
//   ┌──────────┐  Resume(w)   ┌───────────┐
//   │  Parked  │ ───────────→ │  Running  │ ──→ Ready   (dropped)
//   └──────────┘              └───────────┘ ──→ Pending (parked again)
//
// ============================================================================

package task

import "github.com/ChuLiYu/spacetime-runtime/pkg/types"

// Poll is the outcome of advancing a computation by one step.
type Poll int

const (
	// Pending means the computation suspended and will be resumed after a wake.
	Pending Poll = iota
	// Ready means the computation ran to completion.
	Ready
)

func (p Poll) String() string {
	if p == Ready {
		return "ready"
	}
	return "pending"
}

// Computation is a suspendable unit of work producing no value.
//
// Poll must not block. A computation returning Pending is responsible for
// handing w to whatever will eventually call w.Wake.
type Computation interface {
	Poll(w *Waker) Poll
}

// Func adapts a plain function to a Computation.
type Func func(w *Waker) Poll

// Poll calls f(w).
func (f Func) Poll(w *Waker) Poll {
	return f(w)
}

// Once returns a computation that runs fn and completes on its first resume.
func Once(fn func()) Computation {
	return Func(func(*Waker) Poll {
		fn()
		return Ready
	})
}

// Task is one in-flight or parked instance of a reducer (or system) computation.
type Task struct {
	ID        types.TaskID    // unique within one executor
	ModuleID  types.ModuleID  // provenance
	ReducerID types.ReducerID // provenance
	Name      string          // optional label for logs

	computation Computation
}

// New takes ownership of computation and wraps it as a Task.
func New(id types.TaskID, moduleID types.ModuleID, reducerID types.ReducerID, computation Computation) *Task {
	return &Task{
		ID:          id,
		ModuleID:    moduleID,
		ReducerID:   reducerID,
		computation: computation,
	}
}

// Resume advances the computation exactly one step using w as its wake handle.
func (t *Task) Resume(w *Waker) Poll {
	return t.computation.Poll(w)
}
