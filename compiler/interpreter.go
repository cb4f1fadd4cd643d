package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/c360studio/modforge/entity"
	"github.com/c360studio/modforge/modfile"
	"github.com/c360studio/modforge/query"
	"github.com/c360studio/modforge/store"
)

// Command kinds reported to the Recorder.
const (
	KindFunction  = "function"
	KindSelector  = "selector"
	KindAttribute = "attribute"
)

// Execute runs a command block against a store. Commands run in declaration
// order; nested blocks recurse into narrowed stores. The first fatal error
// stops execution and is returned as a *CommandError. Mutations already
// applied are kept.
func (c *Compiler) Execute(block modfile.Block, st *store.Store) error {
	for _, cmd := range block {
		if err := c.executeCommand(cmd, st); err != nil {
			var ce *CommandError
			if errors.As(err, &ce) {
				return err
			}
			return &CommandError{File: c.file, Line: cmd.Line, Command: cmd.Key, Err: err}
		}
	}
	return nil
}

func (c *Compiler) executeCommand(cmd modfile.Command, st *store.Store) error {
	key, err := c.resolveString(cmd.Key)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	value := cmd.Value
	if s, ok := value.(string); ok {
		if value, err = c.resolveValue(s); err != nil {
			return err
		}
	}
	c.logger.Debug("Execute command", "file", c.file, "line", cmd.Line, "command", key, "context", st.ID())

	switch {
	case isFunction(key):
		c.recorder.CommandExecuted(KindFunction)
		return c.call(key, value, st)
	case query.IsAttributeName(key):
		c.recorder.CommandExecuted(KindAttribute)
		return c.setAttribute(key, value, st)
	default:
		c.recorder.CommandExecuted(KindSelector)
		return c.narrow(key, value, st)
	}
}

// narrow runs the nested block against the entities key selects.
func (c *Compiler) narrow(key string, value any, st *store.Store) error {
	block, err := asBlock(value)
	if err != nil {
		return fmt.Errorf("%w: a block of commands is expected for a query, got %s", err, describe(value))
	}
	filtered, err := c.Filter(key, st)
	if err != nil {
		return err
	}
	if filtered.IsEmpty() {
		c.notice("Empty context for command", "command", key)
		return nil
	}
	return c.Execute(block, filtered)
}

// setAttribute sets an attribute on every entity of the store.
func (c *Compiler) setAttribute(name string, value any, st *store.Store) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("%w: unable to set value %s for attribute %s", ErrValueShape, describe(value), name)
	}
	for _, e := range st.Entities() {
		e.SetAttribute(name, s)
	}
	return nil
}

func isFunction(key string) bool {
	return strings.HasPrefix(key, "$")
}

func asBlock(v any) (modfile.Block, error) {
	switch t := v.(type) {
	case modfile.Block:
		return t, nil
	case nil:
		return modfile.Block{}, nil
	}
	return nil, ErrValueShape
}

// asBlocks accepts one block or a list of blocks.
func asBlocks(v any) ([]modfile.Block, error) {
	if list, ok := v.([]any); ok {
		out := make([]modfile.Block, 0, len(list))
		for _, item := range list {
			b, err := asBlock(item)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		return out, nil
	}
	b, err := asBlock(v)
	if err != nil {
		return nil, err
	}
	return []modfile.Block{b}, nil
}

// asStrings accepts one string or a list of strings.
func asStrings(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, ErrValueShape
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, ErrValueShape
}

func describe(v any) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case modfile.Block, nil:
		return "block"
	case []any:
		return "list"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// entities returns the store's entities or ErrValueShape for stores of
// scalars and arrays.
func entities(st *store.Store) ([]entity.Entity, error) {
	if st.IsEmpty() {
		return nil, nil
	}
	if st.Kind() != store.KindEntity {
		return nil, fmt.Errorf("%w: context %s holds %s values, not entities", ErrValueShape, st.ID(), st.Kind())
	}
	return st.Entities(), nil
}
