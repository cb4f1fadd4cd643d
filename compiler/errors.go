package compiler

import (
	"errors"
	"fmt"
)

var (
	// ErrValueShape is returned when a command value has the wrong shape,
	// e.g. a map where a query string is expected.
	ErrValueShape = errors.New("wrong value format")
	// ErrUnknownFunction is returned for $function names the interpreter
	// does not implement.
	ErrUnknownFunction = errors.New("unknown function")
	// ErrEmptyImport is returned when $import or $clone find nothing.
	ErrEmptyImport = errors.New("query returned no results")
	// ErrVariableName is returned for malformed variable names and for
	// variables that reference themselves.
	ErrVariableName = errors.New("invalid variable")
)

// CommandError locates a fatal error in a mod file.
type CommandError struct {
	File    string
	Line    int
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s: %v", e.File, e.Line, e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.File, e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
