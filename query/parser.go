package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Traversal joins a query step to its child step.
type Traversal string

const (
	// Descend continues into the children of the current matches.
	Descend Traversal = "/"
	// ReturnParent returns the current depth once the chain is satisfied.
	ReturnParent Traversal = "<"
	// ReturnAttribute returns the value of the attribute named by the child.
	ReturnAttribute Traversal = ">"
	// Create instantiates the child under every current match.
	Create Traversal = "~"
)

// Operator is a comparison code. Strict operators end in '='; array-aware
// ones start with '+' (every element must match) or '?' (any element).
type Operator string

const (
	// Strict operators compare whole strings.
	OpEquals     Operator = "=="
	OpNotEquals  Operator = "!="
	OpContains   Operator = "*="
	OpStartsWith Operator = "^="
	OpEndsWith   Operator = "$="

	// Array-aware operators split the attribute value on commas.
	OpAllEqual     Operator = "+="
	OpAnyEqual     Operator = "?="
	OpAllNotEqual  Operator = "+!"
	OpAnyNotEqual  Operator = "?!"
	OpAllContain   Operator = "+*"
	OpAnyContain   Operator = "?*"
	OpAllStartWith Operator = "+^"
	OpAnyStartWith Operator = "?^"
	OpAllEndWith   Operator = "+$"
	OpAnyEndWith   Operator = "?$"
)

// Condition compares one attribute against one or more needles.
type Condition struct {
	Attribute string
	Operator  Operator
	Needles   []string
}

// Predicate is an OR over groups of AND-ed conditions. An empty predicate
// matches everything.
type Predicate [][]Condition

// Node is one step of a parsed query.
type Node struct {
	Name      string
	Type      string
	Predicate Predicate
	// Ordinal selects a single match: n > 0 is 1-based from the start,
	// n < 0 counts from the end, 0 keeps all matches.
	Ordinal int
	Child   *Node
	ChildOp Traversal
}

var (
	traversals  = []string{string(Create), string(Descend), string(ReturnParent), string(ReturnAttribute)}
	comparisons = []string{"=", "!", "*", "^", "$"}

	ordinalPattern   = regexp.MustCompile(`^\{(-?\d*)\}\s*$`)
	typePattern      = regexp.MustCompile(`\(([a-zA-Z\d_.\-]*)\)$`)
	attributePattern = regexp.MustCompile(`^[a-zA-Z\d\-_]+$`)
)

// IsAttributeName reports whether s is a plain attribute name rather than a
// selector.
func IsAttributeName(s string) bool {
	return attributePattern.MatchString(s)
}

// Parse compiles a selector into a chain of nodes. A syntax error anywhere
// aborts the whole parse.
func Parse(q string) (*Node, error) {
	tokens, err := SplitKeep(q, traversals...)
	if err != nil {
		return nil, err
	}

	var root, cur *Node
	var op Traversal
	for i, tok := range tokens {
		if i%2 == 1 {
			op = Traversal(tok)
			continue
		}
		n, err := parseElement(tok)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", q, err)
		}
		if root == nil {
			root = n
		} else {
			cur.Child = n
			cur.ChildOp = op
		}
		cur = n
	}
	return root, nil
}

// parseElement parses one step between traversal operators.
func parseElement(s string) (*Node, error) {
	n := &Node{}

	hl, err := Highlight(s)
	if err != nil {
		return nil, err
	}
	hr := []rune(hl)
	if idx := strings.IndexRune(hl, '{'); idx >= 0 {
		pos := len([]rune(hl[:idx]))
		m := ordinalPattern.FindStringSubmatch(string(hr[pos:]))
		if m == nil {
			return nil, fmt.Errorf("%w: invalid ordinal in %q", ErrSyntax, s)
		}
		if m[1] != "" && m[1] != "-" {
			n.Ordinal, _ = strconv.Atoi(m[1])
		}
		s = string([]rune(s)[:pos])
	}

	parts, err := Split(s, "@")
	if err != nil {
		return nil, err
	}
	switch len(parts) {
	case 2:
		if n.Name, n.Type, err = parseName(parts[0]); err != nil {
			return nil, err
		}
		if n.Predicate, err = parsePredicate(parts[1]); err != nil {
			return nil, err
		}
		return n, nil
	case 1:
	default:
		return nil, fmt.Errorf("%w: more than one '@' in %q", ErrSyntax, s)
	}

	ops, err := Split(s, comparisons...)
	if err != nil {
		return nil, err
	}
	if len(ops) > 1 {
		n.Predicate, err = parsePredicate(s)
	} else {
		n.Name, n.Type, err = parseName(s)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// parseName splits Name(Type) into its parts.
func parseName(s string) (string, string, error) {
	s = strings.TrimSpace(s)
	pos := strings.IndexRune(s, '(')
	if pos < 0 {
		return Unescape(s), "", nil
	}
	m := typePattern.FindStringSubmatch(s)
	if m == nil {
		return "", "", fmt.Errorf("%w: invalid type suffix in %q", ErrSyntax, s)
	}
	return Unescape(s[:pos]), m[1], nil
}

// parsePredicate parses '+' (AND) and '?' (OR) joined conditions. AND binds
// tighter than OR.
func parsePredicate(s string) (Predicate, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	tokens, err := SplitKeep(s, "+", "?")
	if err != nil {
		return nil, err
	}

	var pred Predicate
	var group []Condition
	for i, tok := range tokens {
		if i%2 == 1 {
			if tok == "?" {
				pred = append(pred, group)
				group = nil
			}
			continue
		}
		c, err := parseCondition(tok)
		if err != nil {
			return nil, err
		}
		group = append(group, c)
	}
	return append(pred, group), nil
}

// parseCondition parses attribute, operator and value.
func parseCondition(s string) (Condition, error) {
	parts, err := SplitKeep(s, comparisons...)
	if err != nil {
		return Condition{}, err
	}
	if len(parts) != 3 {
		return Condition{}, fmt.Errorf("%w: unable to parse comparison operator: %q", ErrSyntax, s)
	}
	attr := strings.ToLower(strings.TrimSpace(Unescape(parts[0])))
	if attr == "" {
		return Condition{}, fmt.Errorf("%w: missing attribute name in %q", ErrSyntax, s)
	}
	op, value := parts[1], parts[2]

	c := Condition{Attribute: attr}
	switch {
	case len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`):
		c.Operator = Operator(op + "=")
		c.Needles = []string{Unescape(value[1 : len(value)-1])}
	case len(value) >= 2 && strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]"):
		c.Operator = Operator("+" + op)
		c.Needles = splitNeedles(value[1 : len(value)-1])
	default:
		c.Operator = Operator("?" + op)
		c.Needles = splitNeedles(value)
	}
	return c, nil
}

func splitNeedles(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		out = append(out, Unescape(v))
	}
	return out
}
