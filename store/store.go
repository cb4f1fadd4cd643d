// Package store provides the ordered, keyed collections that queries run
// against and return. A store holds exactly one kind of value: entities,
// arrays or scalars.
package store

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/c360studio/modforge/entity"
)

var (
	// ErrKindMismatch is returned when a value's kind differs from the
	// kind already held by the store.
	ErrKindMismatch = errors.New("store kind mismatch")
	// ErrRootMismatch is returned when roots and elements are mixed.
	ErrRootMismatch = errors.New("store root partition mismatch")
	// ErrKeyMismatch is returned when an entity is stored under a key other
	// than its own identifier.
	ErrKeyMismatch = errors.New("entity key mismatch")
	// ErrUnknownType is returned when a root is created without an explicit
	// type and none can be derived from its tag name.
	ErrUnknownType = errors.New("unable to determine entity type")
)

// Kind is the kind of value a store holds.
type Kind int

const (
	KindNone Kind = iota
	KindEntity
	KindArray
	KindScalar
)

func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindArray:
		return "array"
	case KindScalar:
		return "scalar"
	default:
		return "none"
	}
}

// TypeLookup resolves tag names for entity creation.
type TypeLookup interface {
	NormalizeTag(name string) string
	TypeForTagName(name string) (string, bool)
}

type partition int

const (
	partitionUnknown partition = iota
	partitionRoot
	partitionElement
)

// Store is an insertion-ordered keyed collection.
type Store struct {
	id       string
	kind     Kind
	part     partition
	rootOnly bool
	keys     []string
	values   map[string]any
	next     int
	types    TypeLookup
	logger   *slog.Logger
}

// New creates an empty store.
func New(id string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		id:     id,
		values: make(map[string]any),
		logger: logger,
	}
}

// NewRoot creates a store that only accepts root entities. Queries against
// it can create new roots; types resolves their asset type and may be nil.
func NewRoot(id string, types TypeLookup, logger *slog.Logger) *Store {
	s := New(id, logger)
	s.kind = KindEntity
	s.part = partitionRoot
	s.rootOnly = true
	s.types = types
	return s
}

// ID returns the store name.
func (s *Store) ID() string { return s.id }

// Kind returns the kind of held values. Empty stores that are not root
// stores report KindNone.
func (s *Store) Kind() Kind { return s.kind }

// IsRootStore reports whether the store was created with NewRoot.
func (s *Store) IsRootStore() bool { return s.rootOnly }

// HoldsRoots reports whether the held entities are roots.
func (s *Store) HoldsRoots() bool { return s.part == partitionRoot }

func (s *Store) Len() int       { return len(s.keys) }
func (s *Store) IsEmpty() bool  { return len(s.keys) == 0 }
func (s *Store) Keys() []string { return slices.Clone(s.keys) }

func (s *Store) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

func (s *Store) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Add inserts a value. Entities are keyed by their identifier, other values
// by a sequential index.
func (s *Store) Add(value any) error {
	return s.Put("", value)
}

// Put inserts a value under key. An empty key picks the default key. An
// existing key is overwritten in place.
func (s *Store) Put(key string, value any) error {
	kind, err := kindOf(value)
	if err != nil {
		return err
	}
	e, isEntity := value.(entity.Entity)
	if isEntity && key != "" && key != e.ID() {
		return fmt.Errorf("store %s: %w: key %q for entity %q", s.id, ErrKeyMismatch, key, e.ID())
	}
	if err := s.validate(kind, value); err != nil {
		return fmt.Errorf("store %s: %w", s.id, err)
	}

	if isEntity {
		key = e.ID()
		if old, ok := s.values[key].(entity.Entity); ok {
			s.logger.Warn("Entity replaced in context",
				"context", s.id,
				"id", key,
				"previous", old.Name(),
				"replacement", e.Name())
		}
	}
	if key == "" {
		for s.Has(strconv.Itoa(s.next)) {
			s.next++
		}
		key = strconv.Itoa(s.next)
		s.next++
	}

	if !s.Has(key) {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
	if s.kind == KindNone {
		s.kind = kind
	}
	return nil
}

func (s *Store) validate(kind Kind, value any) error {
	if s.kind != KindNone && s.kind != kind {
		return fmt.Errorf("%w: cannot insert %s into a store of %s values", ErrKindMismatch, kind, s.kind)
	}
	e, ok := value.(entity.Entity)
	if !ok {
		return nil
	}
	want := partitionElement
	if e.IsRoot() {
		want = partitionRoot
	}
	switch {
	case s.part == partitionUnknown:
		s.part = want
	case s.part != want && s.part == partitionRoot:
		return fmt.Errorf("%w: non-root entity %q in a store of root entities", ErrRootMismatch, e.Name())
	case s.part != want:
		return fmt.Errorf("%w: root entity %q in a store of non-root entities", ErrRootMismatch, e.Name())
	}
	return nil
}

func kindOf(value any) (Kind, error) {
	switch value.(type) {
	case entity.Entity:
		return KindEntity, nil
	case []any, []string:
		return KindArray, nil
	case string, bool, int, int64, float64:
		return KindScalar, nil
	default:
		return KindNone, fmt.Errorf("%w: unsupported value of type %T", ErrKindMismatch, value)
	}
}

// Remove detaches values from the store. Entities passed directly are also
// flagged removed together with their subtree; keys only detach.
func (s *Store) Remove(targets ...any) {
	for _, t := range targets {
		var key string
		switch v := t.(type) {
		case entity.Entity:
			v.Remove()
			key = v.ID()
		case string:
			key = v
		default:
			continue
		}
		if !s.Has(key) {
			continue
		}
		delete(s.values, key)
		s.keys = slices.DeleteFunc(s.keys, func(k string) bool { return k == key })
	}
	if len(s.keys) == 0 && !s.rootOnly {
		s.kind = KindNone
		s.part = partitionUnknown
	}
}

// All iterates keys and values in insertion order.
func (s *Store) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, k := range s.keys {
			if !yield(k, s.values[k]) {
				return
			}
		}
	}
}

// Values returns the values in insertion order.
func (s *Store) Values() []any {
	out := make([]any, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.values[k])
	}
	return out
}

// Entities returns the held entities in insertion order.
func (s *Store) Entities() []entity.Entity {
	if s.kind != KindEntity {
		return nil
	}
	out := make([]entity.Entity, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.values[k].(entity.Entity))
	}
	return out
}

// Roots returns the held root entities in insertion order.
func (s *Store) Roots() []*entity.Root {
	var out []*entity.Root
	for _, e := range s.Entities() {
		if r, ok := e.(*entity.Root); ok {
			out = append(out, r)
		}
	}
	return out
}

// Strings returns scalar values rendered as strings.
func (s *Store) Strings() []string {
	if s.kind != KindScalar {
		return nil
	}
	out := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, fmt.Sprint(s.values[k]))
	}
	return out
}

// Render returns one line per value: entities as compact XML, arrays
// comma-joined, scalars as they are.
func (s *Store) Render() ([]string, error) {
	out := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		switch v := s.values[k].(type) {
		case entity.Entity:
			x, err := entity.ToXML(v)
			if err != nil {
				return nil, fmt.Errorf("render %s: %w", v.Describe(), err)
			}
			out = append(out, x)
		case []string:
			out = append(out, strings.Join(v, ","))
		case []any:
			parts := make([]string, len(v))
			for i, e := range v {
				parts[i] = fmt.Sprint(e)
			}
			out = append(out, strings.Join(parts, ","))
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out, nil
}
