package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/c360studio/modforge/modfile"
	"github.com/c360studio/modforge/query"
	"github.com/c360studio/modforge/variables"
)

// maxVariableDepth bounds nested variable references.
const maxVariableDepth = 32

// token matches a variable reference at the start of a string: %NAME% or the
// older unterminated %NAME form. Nested keys are joined with '>'.
var token = regexp.MustCompile(`^%([a-zA-Z\d_>\-]*)%?`)

// resolveString replaces every variable token in s. Array variables are
// joined with commas.
func (c *Compiler) resolveString(s string) (string, error) {
	v, err := c.resolve(s, false, 0)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// resolveValue is resolveString for command values: a value that consists of
// a single token referencing an array or map is replaced by that structure.
func (c *Compiler) resolveValue(s string) (any, error) {
	return c.resolve(s, true, 0)
}

func (c *Compiler) resolve(s string, wholesale bool, depth int) (any, error) {
	if !strings.ContainsRune(s, '%') {
		return s, nil
	}
	if depth > maxVariableDepth {
		return nil, fmt.Errorf("%w: variables nested too deep in %q", ErrVariableName, s)
	}

	src := []rune(s)
	mask := []rune(query.Mask(s))
	var b strings.Builder
	for i := 0; i < len(src); i++ {
		if mask[i] != '%' {
			b.WriteRune(src[i])
			continue
		}
		m := token.FindStringSubmatch(string(src[i:]))
		if m == nil || m[1] == "" {
			b.WriteRune(src[i])
			continue
		}
		name := m[1]
		v, ok := c.db.Vars.Get(variables.SplitPath(name)...)
		if !ok {
			c.notice("Unknown variable", "variable", name, "in", s)
			b.WriteRune(src[i])
			continue
		}

		if wholesale && strings.TrimSpace(s) == m[0] {
			switch v.(type) {
			case []any, modfile.Block:
				return structure(v), nil
			}
		}
		text, err := scalarText(name, v)
		if err != nil {
			return nil, err
		}
		nested, err := c.resolve(text, false, depth+1)
		if err != nil {
			return nil, err
		}
		b.WriteString(nested.(string))
		i += len([]rune(m[0])) - 1
	}
	return b.String(), nil
}

// scalarText renders a variable for string interpolation.
func scalarText(name string, v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, err := scalarText(name, item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	case modfile.Block:
		if len(t) == 0 {
			return "", nil
		}
		return "", fmt.Errorf("%w: variable %s holds a map and can't be used inside text", ErrValueShape, name)
	default:
		return fmt.Sprint(t), nil
	}
}

// structure turns a variable value into command values. Blocks keep their
// declaration order.
func structure(v any) any {
	switch t := v.(type) {
	case modfile.Block:
		block := make(modfile.Block, 0, len(t))
		for _, cmd := range t {
			block = append(block, modfile.Command{Key: cmd.Key, Value: structure(cmd.Value), Line: cmd.Line})
		}
		return block
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, structure(item))
		}
		return out
	case nil:
		return modfile.Block{}
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
