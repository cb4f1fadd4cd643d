// Package compiler runs mod files against a database and exports the
// modified entities as a content package.
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/c360studio/modforge/database"
	"github.com/c360studio/modforge/entity"
	"github.com/c360studio/modforge/export"
	"github.com/c360studio/modforge/mapping"
	"github.com/c360studio/modforge/query"
	"github.com/c360studio/modforge/store"
)

// gameVersionQuery reads the game version from the game's content package.
const gameVersionQuery = `ContentPackage@name="Vanilla">gameversion`

// Recorder receives interpreter events. Implementations must be cheap; it is
// called once per command.
type Recorder interface {
	CommandExecuted(kind string)
	Notice(message string)
}

type nopRecorder struct{}

func (nopRecorder) CommandExecuted(string) {}
func (nopRecorder) Notice(string)          {}

// Options configures a Compiler.
type Options struct {
	// OutputPath is the directory the mod folder is written to.
	OutputPath string
	// CacheSize bounds the parsed-query cache. Zero uses the default.
	CacheSize int
	// Recorder receives command and notice events. Nil discards them.
	Recorder Recorder
}

// Report summarises one compilation.
type Report struct {
	Mod      string
	Folder   string
	Files    []string
	Entities int
	Notices  int
	Duration time.Duration
}

// Compiler executes one mod. It is not safe for concurrent use.
type Compiler struct {
	db       *database.Database
	mapping  *mapping.Mapping
	queries  *query.Cache
	recorder Recorder
	opts     Options
	logger   *slog.Logger

	contentPackage *entity.Root
	file           string
	global         bool
	notices        int
}

// New creates a compiler for the mod held by db.
func New(db *database.Database, m *mapping.Mapping, opts Options, logger *slog.Logger) (*Compiler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := query.NewCache(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}
	rec := opts.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Compiler{
		db:       db,
		mapping:  m,
		queries:  cache,
		recorder: rec,
		opts:     opts,
		logger:   logger.With("mod", db.Mod.Name),
		file:     db.Mod.File,
	}, nil
}

// Compile runs the primary mod file and every include against the active
// store, then writes the mod folder.
func (c *Compiler) Compile(ctx context.Context) (*Report, error) {
	start := time.Now()
	mod := c.db.Mod

	if mod.GameVersion == "" {
		mod.GameVersion = c.gameVersion()
	}
	c.db.Vars.Merge(mod.Variables, true)
	c.ContentPackage()

	c.file, c.global = mod.File, true
	if err := c.Execute(mod.Execute, c.db.Active()); err != nil {
		return nil, err
	}

	includes, err := mod.ResolveIncludes(c.logger)
	if err != nil {
		return nil, err
	}
	c.global = false
	for _, rel := range includes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		inc, err := mod.LoadInclude(rel)
		if err != nil {
			return nil, err
		}
		c.db.Vars.ResetLocal()
		c.db.Vars.Merge(inc.Variables, false)
		c.file = rel
		c.logger.Debug("Execute include", "file", rel)
		if err := c.Execute(inc.Execute, c.db.Active()); err != nil {
			return nil, err
		}
	}

	roots := c.Modified()
	w := export.NewWriter(c.mapping, c.logger)
	files, err := w.Write(ctx, export.Build{
		Dir:            c.opts.OutputPath,
		Folder:         mod.Folder,
		CorePackage:    mod.CorePackage,
		AppNames:       c.db.ContextNames(),
		ContentPackage: c.ContentPackage(),
		Roots:          roots,
	})
	if err != nil {
		return nil, err
	}

	r := &Report{
		Mod:      mod.Name,
		Folder:   mod.Folder,
		Files:    files,
		Entities: len(roots),
		Notices:  c.notices,
		Duration: time.Since(start),
	}
	c.logger.Info("Mod compiled", "folder", mod.Folder, "files", len(files), "entities", len(roots), "notices", c.notices, "duration", r.Duration)
	return r, nil
}

// ContentPackage returns the mod's content package root, creating it in the
// active store on first use.
func (c *Compiler) ContentPackage() *entity.Root {
	if c.contentPackage != nil {
		return c.contentPackage
	}
	mod := c.db.Mod
	attrs := []entity.Attr{
		{Name: "name", Value: mod.Name},
		{Name: "modversion", Value: mod.ModVersion},
		{Name: "gameversion", Value: mod.GameVersion},
		{Name: "corepackage", Value: strconv.FormatBool(mod.CorePackage)},
	}
	if mod.AltNames != "" {
		attrs = append(attrs, entity.Attr{Name: "altnames", Value: mod.AltNames})
	}
	cp := entity.NewRoot(export.ContentPackageTag, export.ContentPackageTag, mod.Name, export.ContentPackageFile, attrs...)
	if err := c.db.Active().Add(cp); err != nil {
		c.logger.Error("Failed to register content package", "error", err)
	}
	c.contentPackage = cp
	return cp
}

// Modified returns the roots of the active store to export.
func (c *Compiler) Modified() []*entity.Root {
	var out []*entity.Root
	for _, r := range c.db.Active().Roots() {
		if r == c.contentPackage || r.IsRemoved() || !r.IsModified() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Query runs q against a named application store, or the active store when
// contextName is empty.
func (c *Compiler) Query(q, contextName string) (*store.Store, error) {
	st, err := c.db.Context(contextName)
	if err != nil {
		return nil, err
	}
	return c.Filter(q, st)
}

// Filter runs q against st.
func (c *Compiler) Filter(q string, st *store.Store) (*store.Store, error) {
	n, err := c.queries.Parse(q)
	if err != nil {
		return nil, err
	}
	return st.Query(n)
}

func (c *Compiler) gameVersion() string {
	res, err := c.Query(gameVersionQuery, "")
	if err != nil || res.IsEmpty() {
		c.notice("Unable to determine game version", "query", gameVersionQuery)
		return ""
	}
	return res.Strings()[0]
}

// notice logs a recoverable condition.
func (c *Compiler) notice(msg string, args ...any) {
	c.notices++
	c.recorder.Notice(msg)
	c.logger.Warn(msg, append(args, "file", c.file)...)
}
