package core

// ============================================================================
// Core Error Definitions
// Purpose: Define the recoverable and fatal conditions of the registry
// ============================================================================

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the parent of every lookup failure; test with errors.Is
	ErrNotFound = errors.New("not found")

	// ErrModuleNotFound indicates an unknown module id
	ErrModuleNotFound = fmt.Errorf("module %w", ErrNotFound)

	// ErrReducerNotFound indicates an unknown reducer id within a module
	ErrReducerNotFound = fmt.Errorf("reducer %w", ErrNotFound)

	// ErrTableNotFound indicates an unknown table id within a module
	ErrTableNotFound = fmt.Errorf("table %w", ErrNotFound)

	// ErrRowNotFound indicates an unknown row id within a table
	ErrRowNotFound = fmt.Errorf("row %w", ErrNotFound)

	// ErrAccessDenied indicates a reducer context failed its
	// own-module-or-admin check
	ErrAccessDenied = errors.New("access denied")

	// ErrWrongType indicates a row whose type does not match the table
	// schema. It is never returned: it is the value of the panic raised on
	// such a call, since it means a module author broke the table contract.
	ErrWrongType = errors.New("wrong row type")
)
