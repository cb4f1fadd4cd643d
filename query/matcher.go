package query

import "strings"

// Attributed is anything that exposes attributes to the matcher.
type Attributed interface {
	Attribute(name string) (string, bool)
}

// Matches evaluates a predicate against e. An empty predicate matches.
func Matches(e Attributed, p Predicate) bool {
	if len(p) == 0 {
		return true
	}
	for _, group := range p {
		if matchAll(e, group) {
			return true
		}
	}
	return false
}

func matchAll(e Attributed, group []Condition) bool {
	for _, c := range group {
		if !Evaluate(e, c) {
			return false
		}
	}
	return true
}

// Evaluate tests a single condition. A missing attribute compares as the
// empty string. Unknown operators never match.
func Evaluate(e Attributed, c Condition) bool {
	haystack, _ := e.Attribute(c.Attribute)
	if len(c.Operator) != 2 || len(c.Needles) == 0 {
		return false
	}

	mode, code := c.Operator[0], c.Operator[1]
	if code == '=' && mode != '+' && mode != '?' {
		cmp := compareFunc(mode)
		return cmp != nil && cmp(haystack, c.Needles[0])
	}

	cmp := compareFunc(code)
	if cmp == nil {
		return false
	}
	items := strings.Split(haystack, ",")
	switch mode {
	case '+':
		for _, needle := range c.Needles {
			for _, item := range items {
				if !cmp(item, needle) {
					return false
				}
			}
		}
		return true
	case '?':
		for _, needle := range c.Needles {
			for _, item := range items {
				if cmp(item, needle) {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

func compareFunc(code byte) func(haystack, needle string) bool {
	switch code {
	case '=':
		return func(h, n string) bool { return h == n }
	case '!':
		return func(h, n string) bool { return h != n }
	case '*':
		return strings.Contains
	case '^':
		return strings.HasPrefix
	case '$':
		return strings.HasSuffix
	default:
		return nil
	}
}
