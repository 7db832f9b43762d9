// ============================================================================
// Spacetime Registry - Core Coordinator
// ============================================================================
//
// Package: internal/core
// File: registry.go
// Function: Process-wide registry of modules; the only creator of tasks
//
// Architecture:
//   The registry owns every Module (addressed by integer id) and shares the
//   parked TaskSet and ReadyQueue with the Executor:
//
//   ┌───────────────┐ CallReducer ┌──────────────┐ Spawn ┌──────────────┐
//   │ host / reducer│ ──────────→ │   Registry   │ ────→ │   Executor   │
//   └───────────────┘             │  modules map │       │ TaskSet+Queue│
//          ↑ ReducerContext       └──────────────┘       └──────────────┘
//          └──────────────────────── Resume ←───────────────────┘
//
// Id authority:
//   Module ids and task ids come from two independently locked monotonic
//   counters and are never reused.
//
// Dispatch (CallReducer):
//   1. look up module and reducer under the registry lock
//   2. release the lock, allocate a task id, build a ReducerContext with the
//      module's access level
//   3. invoke the constructor, wrap the computation and spawn
//   The constructor runs outside the lock so it may use its context freely.
//
// Every table/reducer mutation re-validates module existence under the lock
// before delegating to the Module.
//
// ============================================================================

package core

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/spacetime-runtime/internal/executor"
	"github.com/ChuLiYu/spacetime-runtime/internal/task"
	"github.com/ChuLiYu/spacetime-runtime/internal/tracing"
	"github.com/ChuLiYu/spacetime-runtime/pkg/types"
)

// SystemModuleID tags tasks spawned by SpawnSystem; it is not a real module.
const SystemModuleID = ^types.ModuleID(0)

// Recorder receives registry and scheduler events; metrics.Collector implements it.
type Recorder interface {
	executor.Recorder
	RecordReducerCall(found bool)
	RecordAccessDenied()
}

type nopRecorder struct{}

func (nopRecorder) RecordSpawn()                          {}
func (nopRecorder) RecordResume(time.Duration, task.Poll) {}
func (nopRecorder) RecordStaleWake()                      {}
func (nopRecorder) UpdateQueueStats(int, int)             {}
func (nopRecorder) RecordReducerCall(bool)                {}
func (nopRecorder) RecordAccessDenied()                   {}

// Option configures a Registry.
type Option func(*Registry)

// WithQueueCapacity sets the ready queue capacity of the owned executor.
func WithQueueCapacity(capacity int) Option {
	return func(r *Registry) { r.capacity = capacity }
}

// WithRecorder sets the metrics recorder for the registry and its executor.
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithLogger sets the logger for the registry and its executor.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// Registry is the arena owning every module.
type Registry struct {
	mu      sync.Mutex
	modules map[types.ModuleID]*Module

	moduleIDMu   sync.Mutex
	nextModuleID types.ModuleID

	taskIDMu   sync.Mutex
	nextTaskID types.TaskID

	executor *executor.Executor
	spawner  *executor.Spawner

	capacity  int
	recorder  Recorder
	logger    *slog.Logger
	sessionID string
}

// New creates a registry and the executor it feeds.
func New(opts ...Option) *Registry {
	r := &Registry{
		modules:   make(map[types.ModuleID]*Module),
		capacity:  executor.DefaultQueueCapacity,
		recorder:  nopRecorder{},
		logger:    slog.Default(),
		sessionID: uuid.New().String(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("session", r.sessionID)

	r.executor = executor.New(
		executor.WithCapacity(r.capacity),
		executor.WithRecorder(r.recorder),
		executor.WithLogger(r.logger),
	)
	r.spawner = r.executor.Spawner()
	return r
}

// SessionID identifies this registry instance in logs.
func (r *Registry) SessionID() string { return r.sessionID }

// Executor returns the executor driven by Run.
func (r *Registry) Executor() *executor.Executor { return r.executor }

// Logger returns the registry logger.
func (r *Registry) Logger() *slog.Logger { return r.logger }

// Stats reports the scheduler counters of the owned executor.
func (r *Registry) Stats() executor.Stats { return r.executor.Stats() }

// Run drives the scheduler; it returns only when ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	r.executor.Run(ctx)
}

// ============================================================================
// Modules
// ============================================================================

// InsertModule registers a new module and returns its id.
func (r *Registry) InsertModule(name string, access types.AccessLevel) types.ModuleID {
	r.moduleIDMu.Lock()
	id := r.nextModuleID
	r.nextModuleID++
	r.moduleIDMu.Unlock()

	r.mu.Lock()
	r.modules[id] = NewModule(id, name, access)
	r.mu.Unlock()

	r.logger.Info("Module inserted", "moduleID", id, "name", name, "access", access)
	return id
}

// DeleteModule removes a module; absent ids are ignored. Parked tasks of the
// module keep running, their table operations fail with ErrModuleNotFound.
func (r *Registry) DeleteModule(id types.ModuleID) {
	r.mu.Lock()
	_, existed := r.modules[id]
	delete(r.modules, id)
	r.mu.Unlock()

	if existed {
		r.logger.Info("Module deleted", "moduleID", id)
	}
}

// GetModuleInfos returns a descriptor of one module.
func (r *Registry) GetModuleInfos(id types.ModuleID) (types.ModuleInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modules[id]
	if !ok {
		return types.ModuleInfo{}, fmt.Errorf("%w: %d", ErrModuleNotFound, id)
	}
	return m.Infos(), nil
}

// GetModulesID lists every module id in ascending order.
func (r *Registry) GetModulesID() []types.ModuleID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.modules))
}

// ModuleByName finds the lowest id module with the given name.
func (r *Registry) ModuleByName(name string) (types.ModuleID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range slices.Sorted(maps.Keys(r.modules)) {
		if r.modules[id].name == name {
			return id, true
		}
	}
	return 0, false
}

// withModule runs fn with the module under the registry lock.
func (r *Registry) withModule(id types.ModuleID, fn func(m *Module) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modules[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrModuleNotFound, id)
	}
	return fn(m)
}

// ============================================================================
// Reducers
// ============================================================================

// InsertReducer registers a reducer in a module.
func (r *Registry) InsertReducer(moduleID types.ModuleID, name string, constructor Constructor) (types.ReducerID, error) {
	var id types.ReducerID
	err := r.withModule(moduleID, func(m *Module) error {
		id = m.InsertReducer(name, constructor)
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.logger.Debug("Reducer inserted", "moduleID", moduleID, "reducerID", id, "name", name)
	return id, nil
}

// DeleteReducer removes a reducer; absent ids are ignored.
func (r *Registry) DeleteReducer(moduleID types.ModuleID, reducerID types.ReducerID) {
	_ = r.withModule(moduleID, func(m *Module) error {
		m.DeleteReducer(reducerID)
		return nil
	})
}

// ReducerByName finds a reducer id by module and reducer name.
func (r *Registry) ReducerByName(moduleID types.ModuleID, name string) (types.ReducerID, error) {
	var id types.ReducerID
	err := r.withModule(moduleID, func(m *Module) error {
		red, ok := m.ReducerByName(name)
		if !ok {
			return fmt.Errorf("%w: %q in module %d", ErrReducerNotFound, name, moduleID)
		}
		id = red.ID
		return nil
	})
	return id, err
}

// CallReducer schedules one invocation of a reducer. It never waits for the
// reducer to run. Unknown ids return a NotFound error and create no task.
func (r *Registry) CallReducer(moduleID types.ModuleID, reducerID types.ReducerID) error {
	_, span := tracing.StartSpan(context.Background(), "reducer.call")
	defer span.End()
	span.SetInt("module_id", uint64(moduleID)).SetInt("reducer_id", uint64(reducerID))

	var (
		constructor Constructor
		name        string
		access      types.AccessLevel
	)
	err := r.withModule(moduleID, func(m *Module) error {
		red, ok := m.Reducer(reducerID)
		if !ok {
			return fmt.Errorf("%w: %d in module %d", ErrReducerNotFound, reducerID, moduleID)
		}
		constructor, name, access = red.constructor, red.Name, m.access
		return nil
	})
	r.recorder.RecordReducerCall(err == nil)
	if err != nil {
		span.SetStatus(err)
		return err
	}

	taskID := r.allocTaskID()
	ctx := newReducerContext(r, moduleID, reducerID, access, taskID)

	var computation task.Computation
	if constructor != nil {
		computation = constructor(ctx)
	}
	if computation == nil {
		computation = task.Once(func() {})
	}

	t := task.New(taskID, moduleID, reducerID, computation)
	t.Name = name
	r.spawner.Spawn(t)

	span.SetInt("task_id", uint64(taskID)).SetString("reducer", name)
	span.SetStatus(nil)
	r.logger.Debug("Reducer scheduled",
		"moduleID", moduleID,
		"reducerID", reducerID,
		"reducer", name,
		"taskID", taskID)
	return nil
}

// SpawnSystem schedules a computation that is not a reducer invocation,
// such as the host's boot report. It returns the allocated task id. A nil
// computation completes on its first resume.
func (r *Registry) SpawnSystem(name string, computation task.Computation) types.TaskID {
	if computation == nil {
		computation = task.Once(func() {})
	}
	taskID := r.allocTaskID()
	t := task.New(taskID, SystemModuleID, 0, computation)
	t.Name = name
	r.spawner.Spawn(t)
	r.logger.Debug("System task spawned", "taskID", taskID, "name", name)
	return taskID
}

func (r *Registry) allocTaskID() types.TaskID {
	r.taskIDMu.Lock()
	defer r.taskIDMu.Unlock()
	id := r.nextTaskID
	r.nextTaskID++
	return id
}
