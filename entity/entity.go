// Package entity provides the in-memory XML entity model: independently
// identified root entities and the elements they own.
package entity

import (
	"encoding/xml"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// LockState tracks whether a root entity changed since it was imported.
type LockState int

const (
	// StateDraft is an entity still being assembled. Mutations do not
	// change its state.
	StateDraft LockState = iota
	// StateLocked is an entity unchanged since import.
	StateLocked
	// StateModified is an entity mutated after it was locked, or created
	// by a mod. Only modified entities are exported.
	StateModified
)

// String returns the state name.
func (s LockState) String() string {
	switch s {
	case StateDraft:
		return "draft"
	case StateLocked:
		return "locked"
	case StateModified:
		return "modified"
	default:
		return "unknown"
	}
}

// Entity is the capability set shared by roots and elements.
type Entity interface {
	ID() string
	Name() string
	SetName(name string)

	Attribute(name string) (string, bool)
	HasAttribute(name string) bool
	SetAttribute(name, value string)
	RemoveAttribute(name string)
	Attributes() []Attr

	Value() string
	HasValue() bool
	SetValue(value string)

	Children() []*Element
	HasChildren() bool
	AddChild(child *Element, order int)
	RemoveChild(id string)

	Root() *Root
	IsRoot() bool
	Remove()
	IsRemoved() bool
	IsModified() bool
	Describe() string

	xml.Marshaler
}

// Attr is a single XML attribute.
type Attr struct {
	Name  string
	Value string
}

// NewID returns a fresh opaque entity identifier.
func NewID() string {
	return uuid.NewString()
}

// node holds the fields shared by Root and Element. self points back at the
// outer value so mutations can reach the owning root.
type node struct {
	self     Entity
	id       string
	name     string
	attrs    []Attr
	value    string
	hasValue bool
	children []*Element
	removed  bool
}

func (n *node) ID() string   { return n.id }
func (n *node) Name() string { return n.name }

func (n *node) SetName(name string) {
	n.touch()
	n.name = name
}

// Attribute looks an attribute up case-insensitively. A missing attribute is
// reported through ok, never as an error.
func (n *node) Attribute(name string) (string, bool) {
	if i := n.attrIndex(name); i >= 0 {
		return n.attrs[i].Value, true
	}
	return "", false
}

func (n *node) HasAttribute(name string) bool {
	return n.attrIndex(name) >= 0
}

// SetAttribute keeps the spelling of an existing attribute and appends new
// ones in insertion order.
func (n *node) SetAttribute(name, value string) {
	n.touch()
	if i := n.attrIndex(name); i >= 0 {
		n.attrs[i].Value = value
		return
	}
	n.attrs = append(n.attrs, Attr{Name: name, Value: value})
}

func (n *node) RemoveAttribute(name string) {
	i := n.attrIndex(name)
	if i < 0 {
		return
	}
	n.touch()
	n.attrs = slices.Delete(n.attrs, i, i+1)
}

func (n *node) Attributes() []Attr {
	return slices.Clone(n.attrs)
}

func (n *node) attrIndex(name string) int {
	for i, a := range n.attrs {
		if strings.EqualFold(a.Name, name) {
			return i
		}
	}
	return -1
}

func (n *node) Value() string  { return n.value }
func (n *node) HasValue() bool { return n.hasValue }

func (n *node) SetValue(value string) {
	n.touch()
	n.value = value
	n.hasValue = true
}

func (n *node) Children() []*Element {
	return slices.Clone(n.children)
}

func (n *node) HasChildren() bool {
	return len(n.children) > 0
}

// AddChild attaches child to this entity. order positions the child among
// the existing children: 0 appends, n > 0 makes it the nth child, n < 0
// counts from the end (-1 is the last slot). Out of range orders append.
func (n *node) AddChild(child *Element, order int) {
	n.touch()
	child.parent = n.self
	pos := len(n.children)
	switch {
	case order > 0 && order-1 < len(n.children):
		pos = order - 1
	case order < 0 && len(n.children)+order+1 >= 0:
		pos = len(n.children) + order + 1
	}
	n.children = slices.Insert(n.children, pos, child)
}

func (n *node) RemoveChild(id string) {
	n.touch()
	n.children = slices.DeleteFunc(n.children, func(c *Element) bool {
		return c.id == id
	})
}

func (n *node) IsRemoved() bool { return n.removed }

func (n *node) markRemoved() {
	n.removed = true
	for _, c := range n.children {
		c.markRemoved()
	}
}

func (n *node) touch() {
	if r := n.self.Root(); r != nil {
		r.BreakLock()
	}
}

func (n *node) copyInto(dst *node, parent Entity) {
	dst.name = n.name
	dst.attrs = slices.Clone(n.attrs)
	dst.value = n.value
	dst.hasValue = n.hasValue
	dst.children = make([]*Element, 0, len(n.children))
	for _, c := range n.children {
		cc := c.cloneFor(parent)
		dst.children = append(dst.children, cc)
	}
}
