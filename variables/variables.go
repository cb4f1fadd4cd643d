// Package variables provides the two-scope variable storage mod files read
// and write through %TOKENS% and $import.
package variables

import (
	"maps"
	"slices"
	"strings"

	"github.com/c360studio/modforge/modfile"
)

// PathSeparator joins nested variable keys, as in %WEAPONS>SWORD%.
const PathSeparator = ">"

// Store holds global variables, loaded once per mod, and local variables,
// reset for every included file. Local values shadow global ones.
type Store struct {
	global map[string]any
	local  map[string]any
}

// New creates an empty store.
func New() *Store {
	return &Store{
		global: make(map[string]any),
		local:  make(map[string]any),
	}
}

// SplitPath splits a variable name into its nested keys.
func SplitPath(name string) []string {
	return strings.Split(name, PathSeparator)
}

// Get looks the path up in the local scope, then in the global scope.
func (s *Store) Get(path ...string) (any, bool) {
	if v, ok := lookup(s.local, path); ok {
		return v, true
	}
	return lookup(s.global, path)
}

// Set stores value at path, creating intermediate blocks as needed.
func (s *Store) Set(path []string, value any, global bool) {
	if len(path) == 0 {
		return
	}
	m := s.scope(global)
	if len(path) == 1 {
		m[path[0]] = value
		return
	}
	parent, _ := m[path[0]].(modfile.Block)
	m[path[0]] = setIn(parent, path[1:], value)
}

// Merge deep-merges values into a scope. Nested blocks merge key by key and
// keep their order; everything else overwrites.
func (s *Store) Merge(values map[string]any, global bool) {
	dst := s.scope(global)
	for k, v := range values {
		sv, ok := v.(modfile.Block)
		dv, dok := dst[k].(modfile.Block)
		if ok && dok {
			dst[k] = mergeBlock(dv, sv)
			continue
		}
		dst[k] = v
	}
}

// ResetLocal drops every local variable.
func (s *Store) ResetLocal() {
	clear(s.local)
}

// Global returns a copy of the top level of the global scope.
func (s *Store) Global() map[string]any {
	return maps.Clone(s.global)
}

func (s *Store) scope(global bool) map[string]any {
	if global {
		return s.global
	}
	return s.local
}

func lookup(m map[string]any, path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	cur, ok := m[path[0]]
	if !ok {
		return nil, false
	}
	for _, k := range path[1:] {
		b, ok := cur.(modfile.Block)
		if !ok {
			return nil, false
		}
		i := index(b, k)
		if i < 0 {
			return nil, false
		}
		cur = b[i].Value
	}
	return cur, true
}

// index returns the position of the last command named key, -1 if none.
func index(b modfile.Block, key string) int {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i].Key == key {
			return i
		}
	}
	return -1
}

// setIn returns a copy of b with value stored at path.
func setIn(b modfile.Block, path []string, value any) modfile.Block {
	b = slices.Clone(b)
	i := index(b, path[0])
	v := value
	if len(path) > 1 {
		var child modfile.Block
		if i >= 0 {
			child, _ = b[i].Value.(modfile.Block)
		}
		v = setIn(child, path[1:], value)
	}
	if i < 0 {
		return append(b, modfile.Command{Key: path[0], Value: v})
	}
	b[i].Value = v
	return b
}

// mergeBlock returns dst with the commands of src merged in. Keys already in
// dst are replaced in place; new keys are appended in src order.
func mergeBlock(dst, src modfile.Block) modfile.Block {
	out := slices.Clone(dst)
	for _, cmd := range src {
		i := index(out[:len(dst)], cmd.Key)
		if i < 0 {
			out = append(out, cmd)
			continue
		}
		sv, sok := cmd.Value.(modfile.Block)
		dv, dok := out[i].Value.(modfile.Block)
		if sok && dok {
			out[i].Value = mergeBlock(dv, sv)
		} else {
			out[i].Value = cmd.Value
		}
	}
	return out
}
