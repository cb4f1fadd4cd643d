package store

import (
	"fmt"
	"strings"

	"github.com/c360studio/modforge/entity"
	"github.com/c360studio/modforge/query"
)

// Query runs a parsed selector against the store and returns a new store
// holding the results: entities, or attribute values for '>' selectors.
func (s *Store) Query(n *query.Node) (*Store, error) {
	out := New(s.id, s.logger)
	out.types = s.types
	if n == nil {
		return out, nil
	}
	values, err := s.filter(n)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if err := out.Add(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// level holds the matches of one query depth grouped by lineage key. The key
// is the identifier of the depth-0 match the entity descends from.
type level struct {
	keys   []string
	groups map[string][]entity.Entity
	seen   map[string]bool
}

func newLevel() *level {
	return &level{
		groups: make(map[string][]entity.Entity),
		seen:   make(map[string]bool),
	}
}

func (l *level) add(key string, e entity.Entity) {
	if l.seen[e.ID()] {
		return
	}
	l.seen[e.ID()] = true
	if _, ok := l.groups[key]; !ok {
		l.keys = append(l.keys, key)
	}
	l.groups[key] = append(l.groups[key], e)
}

func (l *level) has(key string) bool {
	_, ok := l.groups[key]
	return ok
}

func (l *level) empty() bool { return len(l.keys) == 0 }

// retain drops every group whose key is not kept by keep.
func (l *level) retain(keep func(string) bool) {
	kept := l.keys[:0]
	for _, k := range l.keys {
		if keep(k) {
			kept = append(kept, k)
			continue
		}
		delete(l.groups, k)
	}
	l.keys = kept
}

func (l *level) flatten() []entity.Entity {
	var out []entity.Entity
	for _, k := range l.keys {
		out = append(out, l.groups[k]...)
	}
	return out
}

// filter walks the query chain one depth at a time. A depth without matches
// ends the walk with no results; every new depth prunes the lineages that
// did not reach it from all earlier depths.
func (s *Store) filter(n *query.Node) ([]any, error) {
	if s.kind != KindEntity || s.IsEmpty() {
		return nil, nil
	}

	var levels []*level
	returnDepth := -1
	for depth, cur := 0, n; cur != nil; depth, cur = depth+1, cur.Child {
		l := newLevel()
		if depth == 0 {
			for _, e := range match(s.Entities(), cur) {
				l.add(e.ID(), e)
			}
		} else {
			prev := levels[depth-1]
			for _, key := range prev.keys {
				for _, parent := range prev.groups[key] {
					if !parent.HasChildren() {
						continue
					}
					for _, c := range match(children(parent), cur) {
						l.add(key, c)
					}
				}
			}
		}
		if l.empty() {
			return nil, nil
		}
		for _, p := range levels {
			p.retain(l.has)
		}
		levels = append(levels, l)

		if cur.Child == nil {
			if returnDepth >= 0 {
				l = levels[returnDepth]
			}
			return toAny(l.flatten()), nil
		}

		switch cur.ChildOp {
		case query.ReturnParent:
			if returnDepth < 0 {
				returnDepth = depth
			}
		case query.ReturnAttribute:
			var values []any
			for _, e := range l.flatten() {
				if v, ok := e.Attribute(cur.Child.Name); ok {
					values = append(values, v)
				}
			}
			return values, nil
		case query.Create:
			return s.create(depth, l, cur.Child)
		}
	}
	return nil, nil
}

// match applies name, type, predicate and ordinal filters. The type filter
// only applies to roots.
func match(list []entity.Entity, n *query.Node) []entity.Entity {
	var out []entity.Entity
	for _, e := range list {
		if e.IsRemoved() {
			continue
		}
		if n.Name != "" && e.Name() != n.Name {
			continue
		}
		if r, ok := e.(*entity.Root); ok && n.Type != "" && r.Type() != n.Type {
			continue
		}
		if !query.Matches(e, n.Predicate) {
			continue
		}
		out = append(out, e)
	}
	if n.Ordinal == 0 || len(out) == 0 {
		return out
	}
	i := n.Ordinal - 1
	if n.Ordinal < 0 {
		i = len(out) + n.Ordinal
	}
	if i < 0 || i >= len(out) {
		return nil
	}
	return out[i : i+1]
}

func children(e entity.Entity) []entity.Entity {
	cs := e.Children()
	out := make([]entity.Entity, 0, len(cs))
	for _, c := range cs {
		out = append(out, c)
	}
	return out
}

func toAny(list []entity.Entity) []any {
	out := make([]any, 0, len(list))
	for _, e := range list {
		out = append(out, e)
	}
	return out
}

// create instantiates the node under every match of the current depth. At
// depth 0 of a root store it creates a single new root instead. The node's
// ordinal positions new children; its equality conditions become attributes.
func (s *Store) create(depth int, l *level, n *query.Node) ([]any, error) {
	name := s.normalize(n.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: create requires a tag name", query.ErrSyntax)
	}
	attrs, err := createAttributes(n.Predicate)
	if err != nil {
		return nil, err
	}

	if depth == 0 && s.rootOnly {
		r, err := s.NewRootEntity(name, n.Type)
		if err != nil {
			return nil, err
		}
		for _, a := range attrs {
			r.SetAttribute(a.Name, a.Value)
		}
		if err := s.Add(r); err != nil {
			return nil, err
		}
		return []any{r}, nil
	}

	var out []any
	for _, parent := range l.flatten() {
		child := entity.NewElement(name, attrs...)
		parent.AddChild(child, n.Ordinal)
		out = append(out, child)
	}
	return out, nil
}

// NewRootEntity builds a modified root for this store. typ may be empty, in
// which case it is derived from the tag name. The root is not inserted.
func (s *Store) NewRootEntity(name, typ string) (*entity.Root, error) {
	name = s.normalize(name)
	if typ == "" && s.types != nil {
		typ, _ = s.types.TypeForTagName(name)
	}
	if typ == "" {
		return nil, fmt.Errorf("%w: by XML tag name %q, provide it explicitly, e.g. ~%s(Type)", ErrUnknownType, name, name)
	}
	r := entity.NewRoot(name, typ, "", "new."+typ)
	r.MarkModified()
	return r, nil
}

// NormalizeTag returns the canonical spelling of a tag name.
func (s *Store) NormalizeTag(name string) string {
	return s.normalize(name)
}

func (s *Store) normalize(name string) string {
	if s.types == nil {
		return name
	}
	return s.types.NormalizeTag(name)
}

func createAttributes(p query.Predicate) ([]entity.Attr, error) {
	if len(p) > 1 {
		return nil, fmt.Errorf("%w: created entities accept '+' joined attributes only", query.ErrSyntax)
	}
	var attrs []entity.Attr
	for _, group := range p {
		for _, c := range group {
			if c.Operator != query.OpEquals && c.Operator != query.OpAnyEqual {
				return nil, fmt.Errorf("%w: created entities accept '=' attributes only, got %q", query.ErrSyntax, c.Operator)
			}
			attrs = append(attrs, entity.Attr{Name: c.Attribute, Value: strings.Join(c.Needles, ",")})
		}
	}
	return attrs, nil
}
