package entity

import "fmt"

// Element is a descendant node owned by its parent. It has no identity of
// its own outside the parent's children.
type Element struct {
	node
	parent Entity
}

// NewElement creates a detached element. Attach it with AddChild.
func NewElement(name string, attrs ...Attr) *Element {
	e := &Element{}
	e.self = e
	e.id = NewID()
	e.name = name
	e.attrs = append(e.attrs, attrs...)
	return e
}

// Parent returns the owning entity, nil while detached.
func (e *Element) Parent() Entity { return e.parent }

// Root walks the parent chain. Detached elements have no root.
func (e *Element) Root() *Root {
	var cur Entity = e
	for {
		el, ok := cur.(*Element)
		if !ok {
			r, _ := cur.(*Root)
			return r
		}
		if el.parent == nil {
			return nil
		}
		cur = el.parent
	}
}

func (e *Element) IsRoot() bool { return false }

func (e *Element) IsModified() bool {
	r := e.Root()
	return r != nil && r.IsModified()
}

// Remove flags the subtree as removed and detaches it from its parent.
func (e *Element) Remove() {
	e.markRemoved()
	if e.parent != nil {
		e.parent.RemoveChild(e.id)
	}
}

func (e *Element) Describe() string {
	r := e.Root()
	if r == nil {
		return fmt.Sprintf("Sub-element: '%s' with ID: '%s' (detached)", e.name, e.id)
	}
	return fmt.Sprintf("Sub-element: '%s' with ID: '%s' owned by a root entity: '%s' with ID: '%s'",
		e.name, e.id, r.Type(), r.ID())
}

// CloneInto deep-copies the element with fresh identifiers. The copy is not
// attached; pass it to AddChild of the new parent.
func (e *Element) CloneInto(parent Entity) *Element {
	return e.cloneFor(parent)
}

func (e *Element) cloneFor(parent Entity) *Element {
	c := &Element{parent: parent}
	c.self = c
	c.id = NewID()
	e.copyInto(&c.node, c)
	return c
}
