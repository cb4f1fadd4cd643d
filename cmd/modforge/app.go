package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/c360studio/modforge/compiler"
	"github.com/c360studio/modforge/config"
	"github.com/c360studio/modforge/database"
	"github.com/c360studio/modforge/events"
	"github.com/c360studio/modforge/mapping"
	"github.com/c360studio/modforge/metrics"
	"github.com/c360studio/modforge/modfile"
	"github.com/c360studio/modforge/source"
	"github.com/c360studio/modforge/steamcmd"
	"github.com/c360studio/modforge/store"
	"github.com/c360studio/modforge/watch"
)

// App wires configuration, sources and outputs together.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	mapping   *mapping.Mapping
	metrics   *metrics.Metrics
	publisher *events.Publisher
}

// NewApp loads the mapping tables. The publisher may be nil.
func NewApp(cfg *config.Config, publisher *events.Publisher, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := mapping.Default()
	if err != nil {
		return nil, err
	}
	if cfg.Mapping.File != "" {
		if m, err = mapping.Load(cfg.Mapping.File); err != nil {
			return nil, fmt.Errorf("load mapping: %w", err)
		}
	}
	return &App{
		cfg:       cfg,
		logger:    logger,
		mapping:   m,
		metrics:   metrics.New(),
		publisher: publisher,
	}, nil
}

// countingScanner records imported entities per application.
type countingScanner struct {
	*source.Scanner
	metrics *metrics.Metrics
}

func (s countingScanner) Scan(appID string) (*store.Store, error) {
	st, err := s.Scanner.Scan(appID)
	if err == nil {
		s.metrics.EntitiesImported(appID, st.Len())
	}
	return st, err
}

// Open loads a mod and imports every application it uses.
func (a *App) Open(ctx context.Context, name string) (*database.Database, error) {
	mod, err := modfile.Load(filepath.Join(a.cfg.Paths.Input, name))
	if err != nil {
		return nil, err
	}
	sc := source.NewScanner(source.ScannerConfig{
		GamePath:     a.cfg.Paths.Game,
		WorkshopPath: a.cfg.Paths.Workshop,
		Translations: a.cfg.Build.Translations || mod.Translations,
		Exclude:      a.cfg.Build.Exclude,
	}, a.mapping, a.logger)
	return database.Open(ctx, mod, countingScanner{Scanner: sc, metrics: a.metrics}, a.mapping, a.logger)
}

// Build compiles one mod and reports the result to metrics and NATS.
func (a *App) Build(ctx context.Context, name string) (*compiler.Report, error) {
	start := time.Now()
	report, err := a.build(ctx, name)

	files := 0
	if report != nil {
		files = len(report.Files)
	}
	a.metrics.BuildFinished(name, files, time.Since(start), err)
	if a.cfg.Metrics.Textfile != "" {
		if werr := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); werr != nil {
			a.logger.Warn("Failed to write metrics", "error", werr)
		}
	}

	msg := events.BuildReport{Mod: name, DurationMS: time.Since(start).Milliseconds()}
	if report != nil {
		msg.Mod, msg.Folder = report.Mod, report.Folder
		msg.Files, msg.Entities, msg.Notices = report.Files, report.Entities, report.Notices
	}
	if err != nil {
		msg.Error = err.Error()
	}
	if perr := a.publisher.PublishBuild(ctx, msg); perr != nil {
		a.logger.Warn("Failed to publish build report", "error", perr)
	}
	return report, err
}

func (a *App) build(ctx context.Context, name string) (*compiler.Report, error) {
	db, err := a.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	c, err := compiler.New(db, a.mapping, compiler.Options{
		OutputPath: a.cfg.Paths.Output,
		CacheSize:  a.cfg.Build.QueryCache,
		Recorder:   a.metrics,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	return c.Compile(ctx)
}

// BuildAll compiles every mod under the input directory. A failing mod does
// not stop the others; their errors are joined.
func (a *App) BuildAll(ctx context.Context) ([]*compiler.Report, error) {
	mods, err := modfile.List(a.cfg.Paths.Input)
	if err != nil {
		return nil, err
	}
	if len(mods) == 0 {
		a.logger.Warn("No mods found", "input", a.cfg.Paths.Input)
	}
	var reports []*compiler.Report
	var errs []error
	for _, name := range mods {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		r, err := a.Build(ctx, name)
		if err != nil {
			a.logger.Error("Mod build failed", "mod", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		reports = append(reports, r)
	}
	return reports, errors.Join(errs...)
}

// Query runs a query against an application of the mod, or the active
// context when app is empty, and renders the results.
func (a *App) Query(ctx context.Context, mod, app, q string) ([]string, error) {
	db, err := a.Open(ctx, mod)
	if err != nil {
		return nil, err
	}
	c, err := compiler.New(db, a.mapping, compiler.Options{CacheSize: a.cfg.Build.QueryCache}, a.logger)
	if err != nil {
		return nil, err
	}
	res, err := c.Query(q, app)
	if err != nil {
		return nil, err
	}
	return res.Render()
}

// Install installs the current game build and points the game path at it.
func (a *App) Install(ctx context.Context, force bool) (*steamcmd.Installation, error) {
	inst, err := steamcmd.NewInstaller(steamcmd.Config{
		Binary: a.cfg.SteamCMD.Binary,
		AppID:  a.cfg.SteamCMD.AppID,
		Dir:    a.cfg.SteamCMD.Dir,
	}, nil, a.logger).Install(ctx, force)
	if err != nil {
		return nil, err
	}
	a.cfg.Paths.Game = inst.Path
	return inst, nil
}

// Watch rebuilds the mod on every change to its sources until ctx is done.
func (a *App) Watch(ctx context.Context, name string) error {
	w, err := watch.New(watch.Config{
		Root:     filepath.Join(a.cfg.Paths.Input, name),
		Debounce: a.cfg.Watch.Debounce,
		Ignore:   a.cfg.Watch.Ignore,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	a.rebuild(ctx, name, nil)
	for change := range w.Changes() {
		a.rebuild(ctx, name, change.Paths)
	}
	return nil
}

func (a *App) rebuild(ctx context.Context, name string, paths []string) {
	if len(paths) > 0 {
		a.logger.Info("Sources changed", "mod", name, "files", paths)
	}
	if _, err := a.Build(ctx, name); err != nil && ctx.Err() == nil {
		a.logger.Error("Mod build failed", "mod", name, "error", err)
	}
}
