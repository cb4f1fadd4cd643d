// Package query parses and evaluates the path-query selector language used by
// mod files, e.g. Item(Item)@identifier="sword"+tags*weapon{2}/Price>baseprice.
package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax is returned for malformed selectors.
var ErrSyntax = errors.New("query syntax error")

// ModDir is the game's mod directory token. It is never treated as syntax.
const ModDir = "%ModDir%"

// ExplodeOptions controls Explode output.
type ExplodeOptions struct {
	// Include keeps each matched delimiter as its own entry.
	Include bool
	// Reverse returns the entries last to first.
	Reverse bool
}

// Split splits s on unprotected delimiters.
func Split(s string, delimiters ...string) ([]string, error) {
	return Explode(s, delimiters, ExplodeOptions{})
}

// SplitKeep splits s on unprotected delimiters and keeps the delimiters.
func SplitKeep(s string, delimiters ...string) ([]string, error) {
	return Explode(s, delimiters, ExplodeOptions{Include: true})
}

// Explode splits s on every unprotected occurrence of any delimiter.
// Delimiters inside quotes, brackets, the %ModDir% token or after a
// backslash are protected. Segments are raw substrings of s, so joining the
// Include output reproduces s.
func Explode(s string, delimiters []string, opts ExplodeOptions) ([]string, error) {
	scan, err := Highlight(s)
	if err != nil {
		return nil, err
	}
	src := []rune(s)
	hl := []rune(scan)

	delims := make([][]rune, 0, len(delimiters))
	for _, d := range delimiters {
		if d != "" {
			delims = append(delims, []rune(d))
		}
	}

	var parts []string
	start := 0
	for i := 0; i < len(hl); {
		d := matchAt(hl, i, delims)
		if d == nil {
			i++
			continue
		}
		parts = append(parts, string(src[start:i]))
		if opts.Include {
			parts = append(parts, string(d))
		}
		i += len(d)
		start = i
	}
	parts = append(parts, string(src[start:]))

	if opts.Reverse {
		for l, r := 0, len(parts)-1; l < r; l, r = l+1, r-1 {
			parts[l], parts[r] = parts[r], parts[l]
		}
	}
	return parts, nil
}

func matchAt(hl []rune, i int, delims [][]rune) []rune {
	for _, d := range delims {
		if i+len(d) > len(hl) {
			continue
		}
		ok := true
		for j, r := range d {
			if hl[i+j] != r {
				ok = false
				break
			}
		}
		if ok {
			return d
		}
	}
	return nil
}

// Highlight returns a copy of s of the same rune length where everything that
// cannot be syntax is replaced with spaces: the %ModDir% token, backslash
// escapes together with the escaped rune, and the content of double-quoted,
// single-quoted and bracketed spans. Percent signs inside spans survive so
// variables can still be found.
func Highlight(s string) (string, error) {
	r := []rune(s)
	blankReserved(r)
	blankEscapes(r)

	var trigger rune
	started := false
	for i, c := range r {
		if started {
			if c == trigger {
				started = false
				continue
			}
			if trigger == ']' && c == '[' {
				return "", fmt.Errorf("%w: arrays inside of arrays are not allowed: %s", ErrSyntax, s)
			}
			if c != '%' {
				r[i] = ' '
			}
			continue
		}
		switch c {
		case '"', '\'':
			started, trigger = true, c
		case '[':
			started, trigger = true, ']'
		}
	}
	if started {
		return "", fmt.Errorf("%w: unterminated wrapper %q in: %s", ErrSyntax, trigger, s)
	}
	return string(r), nil
}

// Mask is Highlight for free text such as attribute values: when quotes or
// brackets do not balance only the reserved token and escapes are blanked.
func Mask(s string) string {
	if hl, err := Highlight(s); err == nil {
		return hl
	}
	r := []rune(s)
	blankReserved(r)
	blankEscapes(r)
	return string(r)
}

func blankEscapes(r []rune) {
	for i := 0; i < len(r); i++ {
		if r[i] != '\\' {
			continue
		}
		r[i] = ' '
		if i+1 < len(r) {
			r[i+1] = ' '
			i++
		}
	}
}

func blankReserved(r []rune) {
	token := []rune(ModDir)
	for i := 0; i+len(token) <= len(r); i++ {
		if !strings.EqualFold(string(r[i:i+len(token)]), ModDir) {
			continue
		}
		for j := range token {
			r[i+j] = ' '
		}
		i += len(token) - 1
	}
}

// Unescape collapses every backslash escape to the escaped rune.
func Unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	r := []rune(s)
	for i := 0; i < len(r); i++ {
		if r[i] == '\\' && i+1 < len(r) {
			i++
		}
		b.WriteRune(r[i])
	}
	return b.String()
}
