package core

// ============================================================================
// Table Operations
// Purpose: Typed table and row access routed through the registry lock
// ============================================================================
//
// Two entry points exist:
//   - id-addressed functions (InsertTableRow[T] ...) used by the host; a row
//     type that does not match the table panics with ErrWrongType
//   - TableHandle[T], obtained from CreateTable/OpenTable, which fixes T at
//     creation so a mismatched row type cannot be expressed
//
// Go methods cannot carry type parameters, hence package-level generics.

import (
	"fmt"

	"github.com/ChuLiYu/spacetime-runtime/internal/table"
	"github.com/ChuLiYu/spacetime-runtime/pkg/types"
)

// InsertTable creates a table with row type T in a module.
func InsertTable[T any](r *Registry, moduleID types.ModuleID, name string) (types.TableID, error) {
	var id types.TableID
	err := r.withModule(moduleID, func(m *Module) error {
		id = AddTable[T](m, name)
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.logger.Debug("Table inserted", "moduleID", moduleID, "tableID", id, "name", name)
	return id, nil
}

// DeleteTable removes a table and its rows; absent ids are ignored.
func (r *Registry) DeleteTable(moduleID types.ModuleID, tableID types.TableID) {
	_ = r.withModule(moduleID, func(m *Module) error {
		m.DeleteTable(tableID)
		return nil
	})
}

// InsertTableRow appends a row and returns its new row id.
func InsertTableRow[T any](r *Registry, moduleID types.ModuleID, tableID types.TableID, row T) (types.RowID, error) {
	var id types.RowID
	err := withTable(r, moduleID, tableID, func(t *table.Table[T]) error {
		id = t.Insert(row)
		return nil
	})
	return id, err
}

// UpdateTableRow replaces an existing row and returns the previous value.
// A missing row is reported as ErrRowNotFound and nothing is inserted.
func UpdateTableRow[T any](r *Registry, moduleID types.ModuleID, tableID types.TableID, rowID types.RowID, row T) (T, error) {
	var previous T
	err := withTable(r, moduleID, tableID, func(t *table.Table[T]) error {
		v, ok := t.Update(rowID, row)
		if !ok {
			return rowNotFound(moduleID, tableID, rowID)
		}
		previous = v
		return nil
	})
	return previous, err
}

// DeleteTableRow removes a row and hands its value to the caller.
func DeleteTableRow[T any](r *Registry, moduleID types.ModuleID, tableID types.TableID, rowID types.RowID) (T, error) {
	var removed T
	err := withTable(r, moduleID, tableID, func(t *table.Table[T]) error {
		v, ok := t.Delete(rowID)
		if !ok {
			return rowNotFound(moduleID, tableID, rowID)
		}
		removed = v
		return nil
	})
	return removed, err
}

// GetTableRow returns an independent copy of a row.
func GetTableRow[T any](r *Registry, moduleID types.ModuleID, tableID types.TableID, rowID types.RowID) (T, error) {
	var value T
	err := withTable(r, moduleID, tableID, func(t *table.Table[T]) error {
		v, ok := t.Get(rowID)
		if !ok {
			return rowNotFound(moduleID, tableID, rowID)
		}
		value = v
		return nil
	})
	return value, err
}

// TableRows returns copies of every row ordered by row id.
func TableRows[T any](r *Registry, moduleID types.ModuleID, tableID types.TableID) ([]table.Row[T], error) {
	var rows []table.Row[T]
	err := withTable(r, moduleID, tableID, func(t *table.Table[T]) error {
		rows = t.Rows()
		return nil
	})
	return rows, err
}

// withTable runs fn on the typed table under the registry lock.
func withTable[T any](r *Registry, moduleID types.ModuleID, tableID types.TableID, fn func(t *table.Table[T]) error) error {
	return r.withModule(moduleID, func(m *Module) error {
		t, err := lookupTable[T](m, tableID)
		if err != nil {
			return err
		}
		return fn(t)
	})
}

// lookupTable must be called with the registry lock held.
func lookupTable[T any](m *Module, tableID types.TableID) (*table.Table[T], error) {
	b, ok := m.Table(tableID)
	if !ok {
		return nil, fmt.Errorf("%w: %d in module %d", ErrTableNotFound, tableID, m.id)
	}
	t, ok := table.As[T](b)
	if !ok {
		var zero T
		panic(fmt.Errorf("%w: table %q of module %d holds %s, got %T",
			ErrWrongType, b.Name(), m.id, b.RowType(), zero))
	}
	return t, nil
}

func rowNotFound(moduleID types.ModuleID, tableID types.TableID, rowID types.RowID) error {
	return fmt.Errorf("%w: %d in table %d of module %d", ErrRowNotFound, rowID, tableID, moduleID)
}

// ============================================================================
// TableHandle
// ============================================================================

// TableHandle is typed access to one table. Handles obtained from a
// ReducerContext re-check access on every call; host handles do not.
type TableHandle[T any] struct {
	reg      *Registry
	ctx      *ReducerContext
	moduleID types.ModuleID
	tableID  types.TableID
}

// CreateTable creates a table of row type T in module moduleID.
func CreateTable[T any](ctx *ReducerContext, moduleID types.ModuleID, name string) (TableHandle[T], error) {
	if err := ctx.check(moduleID); err != nil {
		return TableHandle[T]{}, err
	}
	id, err := InsertTable[T](ctx.registry, moduleID, name)
	if err != nil {
		return TableHandle[T]{}, err
	}
	return TableHandle[T]{reg: ctx.registry, ctx: ctx, moduleID: moduleID, tableID: id}, nil
}

// OpenTable binds a handle to an existing table. Opening a table with the
// wrong row type panics with ErrWrongType.
func OpenTable[T any](ctx *ReducerContext, moduleID types.ModuleID, tableID types.TableID) (TableHandle[T], error) {
	if err := ctx.check(moduleID); err != nil {
		return TableHandle[T]{}, err
	}
	return openTable[T](ctx.registry, ctx, moduleID, tableID)
}

// OpenHostTable binds an unchecked handle for host code running outside any reducer.
func OpenHostTable[T any](r *Registry, moduleID types.ModuleID, tableID types.TableID) (TableHandle[T], error) {
	return openTable[T](r, nil, moduleID, tableID)
}

func openTable[T any](r *Registry, ctx *ReducerContext, moduleID types.ModuleID, tableID types.TableID) (TableHandle[T], error) {
	err := withTable(r, moduleID, tableID, func(*table.Table[T]) error { return nil })
	if err != nil {
		return TableHandle[T]{}, err
	}
	return TableHandle[T]{reg: r, ctx: ctx, moduleID: moduleID, tableID: tableID}, nil
}

// ID returns the table id.
func (h TableHandle[T]) ID() types.TableID { return h.tableID }

// ModuleID returns the owning module id.
func (h TableHandle[T]) ModuleID() types.ModuleID { return h.moduleID }

func (h TableHandle[T]) allowed() error {
	if h.reg == nil {
		return fmt.Errorf("%w: unbound table handle", ErrTableNotFound)
	}
	if h.ctx == nil {
		return nil
	}
	return h.ctx.check(h.moduleID)
}

// Insert appends a row.
func (h TableHandle[T]) Insert(row T) (types.RowID, error) {
	if err := h.allowed(); err != nil {
		return 0, err
	}
	return InsertTableRow(h.reg, h.moduleID, h.tableID, row)
}

// Get returns a copy of a row.
func (h TableHandle[T]) Get(rowID types.RowID) (T, error) {
	if err := h.allowed(); err != nil {
		var zero T
		return zero, err
	}
	return GetTableRow[T](h.reg, h.moduleID, h.tableID, rowID)
}

// Update replaces a row and returns the previous value.
func (h TableHandle[T]) Update(rowID types.RowID, row T) (T, error) {
	if err := h.allowed(); err != nil {
		var zero T
		return zero, err
	}
	return UpdateTableRow(h.reg, h.moduleID, h.tableID, rowID, row)
}

// Delete removes a row and returns its value.
func (h TableHandle[T]) Delete(rowID types.RowID) (T, error) {
	if err := h.allowed(); err != nil {
		var zero T
		return zero, err
	}
	return DeleteTableRow[T](h.reg, h.moduleID, h.tableID, rowID)
}

// Rows returns copies of every row ordered by row id.
func (h TableHandle[T]) Rows() ([]table.Row[T], error) {
	if err := h.allowed(); err != nil {
		return nil, err
	}
	return TableRows[T](h.reg, h.moduleID, h.tableID)
}

// Info describes the table.
func (h TableHandle[T]) Info() (types.TableInfo, error) {
	if err := h.allowed(); err != nil {
		return types.TableInfo{}, err
	}
	var info types.TableInfo
	err := withTable(h.reg, h.moduleID, h.tableID, func(t *table.Table[T]) error {
		info = t.Info()
		return nil
	})
	return info, err
}
