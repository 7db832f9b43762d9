package core

import (
	"github.com/ChuLiYu/spacetime-runtime/internal/task"
	"github.com/ChuLiYu/spacetime-runtime/pkg/types"
)

// Constructor builds a fresh computation for one reducer invocation.
// It must not block; the work belongs in the returned computation.
type Constructor func(ctx *ReducerContext) task.Computation

// Reducer is a named, stateless entry point of a module.
type Reducer struct {
	ID       types.ReducerID
	ModuleID types.ModuleID
	Name     string

	constructor Constructor
}

// Info describes the reducer without its constructor.
func (r *Reducer) Info() types.ReducerInfo {
	return types.ReducerInfo{
		ID:       r.ID,
		ModuleID: r.ModuleID,
		Name:     r.Name,
	}
}
