// Package database holds everything one mod compilation works on: the parsed
// mod file, one root store per source application, the variable scopes and
// the active store commands run against.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/c360studio/modforge/modfile"
	"github.com/c360studio/modforge/store"
	"github.com/c360studio/modforge/variables"
)

// ActiveContext is the name of the merged store.
const ActiveContext = "SELF"

// ErrUnknownContext is returned for context names that are neither an
// application of the mod nor empty.
var ErrUnknownContext = errors.New("unknown context")

// Scanner produces the root store of one application.
type Scanner interface {
	IsValid(appID string) bool
	Scan(appID string) (*store.Store, error)
}

// Database is the per-mod state of a compilation.
type Database struct {
	Mod  *modfile.Mod
	Vars *variables.Store

	stores map[string]*store.Store
	order  []string
	active *store.Store
	types  store.TypeLookup
	logger *slog.Logger
}

// New creates an empty database for mod. types resolves asset types of
// roots created in the active store.
func New(mod *modfile.Mod, types store.TypeLookup, logger *slog.Logger) *Database {
	if logger == nil {
		logger = slog.Default()
	}
	return &Database{
		Mod:    mod,
		Vars:   variables.New(),
		stores: make(map[string]*store.Store),
		types:  types,
		logger: logger,
	}
}

// Open scans every application of the mod and builds the active store.
// Workshop items missing on disk are skipped with a warning; the game itself
// must be present.
func Open(ctx context.Context, mod *modfile.Mod, sc Scanner, types store.TypeLookup, logger *slog.Logger) (*Database, error) {
	db := New(mod, types, logger)
	for _, app := range mod.Workshop {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !sc.IsValid(app.ID) {
			if app.ID == modfile.GameAppID {
				return nil, fmt.Errorf("game sources not found for %s", app.Name)
			}
			db.logger.Warn("Workshop item is not downloaded", "mod", mod.Name, "app", app.Name, "id", app.ID)
			continue
		}
		st, err := sc.Scan(app.ID)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", app.Name, err)
		}
		db.AddStore(st)
	}
	if err := db.Activate(); err != nil {
		return nil, err
	}
	return db, nil
}

// AddStore registers an application store under its identifier. Stores
// added later take part in the active store after the ones before them.
func (d *Database) AddStore(s *store.Store) {
	if _, ok := d.stores[s.ID()]; !ok {
		d.order = append(d.order, s.ID())
	}
	d.stores[s.ID()] = s
	d.active = nil
}

// Activate (re)builds the active store from the registered stores in mod
// workshop order.
func (d *Database) Activate() error {
	var order []string
	for _, app := range d.Mod.Workshop {
		if _, ok := d.stores[app.ID]; ok {
			order = append(order, app.ID)
		}
	}
	for _, id := range d.order {
		if _, ok := d.Mod.AppName(id); !ok {
			order = append(order, id)
		}
	}
	active, err := BuildActiveContext(order, d.stores, d.types, d.logger)
	if err != nil {
		return err
	}
	d.active = active
	return nil
}

// BuildActiveContext merges clones of every root of the stores named in order
// into a new root store. On identifier collisions the application listed
// first wins.
func BuildActiveContext(order []string, stores map[string]*store.Store, types store.TypeLookup, logger *slog.Logger) (*store.Store, error) {
	active := store.NewRoot(ActiveContext, types, logger)
	for _, id := range order {
		src, ok := stores[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownContext, id)
		}
		for _, r := range src.Roots() {
			if r.IsRemoved() || active.Has(r.ID()) {
				continue
			}
			if err := active.Add(r.Clone()); err != nil {
				return nil, fmt.Errorf("activate %s: %w", id, err)
			}
		}
	}
	return active, nil
}

// Active returns the merged store, building it on first use.
func (d *Database) Active() *store.Store {
	if d.active == nil {
		if err := d.Activate(); err != nil {
			d.logger.Error("Failed to build active context", "error", err)
			d.active = store.NewRoot(ActiveContext, d.types, d.logger)
		}
	}
	return d.active
}

// Context resolves an application name to its store. The empty name is the
// active store.
func (d *Database) Context(name string) (*store.Store, error) {
	if name == "" || name == ActiveContext {
		return d.Active(), nil
	}
	app, ok := d.Mod.App(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q in mod %s", ErrUnknownContext, name, d.Mod.Name)
	}
	s, ok := d.stores[app.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not imported", ErrUnknownContext, name)
	}
	return s, nil
}

// ContextNames maps imported application identifiers to their names.
func (d *Database) ContextNames() map[string]string {
	out := make(map[string]string, len(d.stores))
	for id := range d.stores {
		if name, ok := d.Mod.AppName(id); ok {
			out[id] = name
		}
	}
	return out
}

// Entities counts the roots across all application stores.
func (d *Database) Entities() int {
	n := 0
	for _, s := range d.stores {
		n += s.Len()
	}
	return n
}
