package entity

import "fmt"

// Root is a top-level, independently identified and serializable entity.
type Root struct {
	node

	appID    string
	file     string
	typ      string
	override bool
	state    LockState
}

// NewRoot creates a draft root entity. typ is the asset type; when empty
// the tag name stands in for it.
func NewRoot(name, typ, appID, file string, attrs ...Attr) *Root {
	r := &Root{appID: appID, file: file, typ: typ}
	r.self = r
	r.id = NewID()
	r.name = name
	r.attrs = append(r.attrs, attrs...)
	return r
}

func (r *Root) Root() *Root  { return r }
func (r *Root) IsRoot() bool { return true }

// AppID returns the source application the entity was imported from.
func (r *Root) AppID() string { return r.appID }

// File returns the export file path without extension.
func (r *Root) File() string { return r.file }

// SetFile overrides the export file path. It does not count as a mutation.
func (r *Root) SetFile(file string) { r.file = file }

// Type returns the asset type of the entity.
func (r *Root) Type() string {
	if r.typ == "" {
		return r.name
	}
	return r.typ
}

// Override reports whether the entity replaces one from another source.
func (r *Root) Override() bool { return r.override }

// SetOverride sets the override flag.
func (r *Root) SetOverride(override bool) { r.override = override }

// State returns the lock state.
func (r *Root) State() LockState { return r.state }

// Lock marks the entity as unchanged since import.
func (r *Root) Lock() { r.state = StateLocked }

func (r *Root) IsLocked() bool { return r.state == StateLocked }

// BreakLock moves a locked entity to StateModified. Drafts stay drafts.
func (r *Root) BreakLock() {
	if r.state == StateLocked {
		r.state = StateModified
	}
}

// MarkModified forces the entity into StateModified regardless of state.
func (r *Root) MarkModified() { r.state = StateModified }

func (r *Root) IsModified() bool { return r.state == StateModified }

// Remove flags the root and its whole subtree as removed.
func (r *Root) Remove() { r.markRemoved() }

func (r *Root) Describe() string {
	return fmt.Sprintf("Root entity with ID: '%s' of type: '%s'", r.id, r.Type())
}

// Clone deep-copies the entity keeping its identifier. Children get fresh
// identifiers. The clone starts locked.
func (r *Root) Clone() *Root {
	return r.CloneAs(r.id)
}

// CloneAs deep-copies the entity under a new identifier.
func (r *Root) CloneAs(id string) *Root {
	c := &Root{appID: r.appID, file: r.file, typ: r.typ, override: r.override}
	c.self = c
	c.id = id
	r.copyInto(&c.node, c)
	c.state = StateLocked
	return c
}
