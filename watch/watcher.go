// Package watch reports changes to mod input files so a mod can be rebuilt
// while it is being edited.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 250 * time.Millisecond

var watchedExtensions = []string{".yml", ".yaml", ".xml"}

// Config configures a Watcher.
type Config struct {
	// Root is the directory to watch recursively.
	Root string

	// Debounce is how long changes are collected before a Change is sent.
	Debounce time.Duration

	// Ignore holds doublestar patterns matched against paths relative to Root.
	Ignore []string

	Logger *slog.Logger
}

// Change is one debounce window worth of edits.
type Change struct {
	// Paths are the changed files relative to Root, sorted.
	Paths []string
}

// Watcher watches a mod directory and emits debounced changes.
type Watcher struct {
	config  Config
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	// Editors often rewrite files without changing them.
	hashMu sync.Mutex
	hashes map[string]string

	changes chan Change
}

// New creates a watcher. Call Start to begin watching.
func New(config Config) (*Watcher, error) {
	for _, p := range config.Ignore {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p}
		}
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}

	return &Watcher{
		config:  config,
		watcher: fsw,
		logger:  logger,
		pending: make(map[string]fsnotify.Op),
		hashes:  make(map[string]string),
		changes: make(chan Change, 16),
	}, nil
}

// PatternError reports an invalid ignore pattern.
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return "invalid ignore pattern: " + e.Pattern
}

// Changes returns the channel of debounced changes. It is closed once the
// watcher stops processing events.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Start adds watches under Root, records the current file contents and
// begins processing events until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchesRecursive(w.config.Root); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("File watcher started",
		"root", w.config.Root,
		"debounce", w.config.Debounce)
	return nil
}

// Stop closes the underlying watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if w.relevant(path) {
				w.changed(path)
			}
			return nil
		}
		if path != root && w.skipDir(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.changes)
	ticker := time.NewTicker(w.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if !w.relevant(path) {
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(path); err == nil && info.IsDir() && !w.skipDir(path) {
				if err := w.watcher.Add(path); err != nil {
					w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
				}
			}
		}
		return
	}

	w.pendingMu.Lock()
	w.pending[path] |= event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("File change detected", "path", w.rel(path), "op", event.Op.String())
}

func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	batch := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	var paths []string
	for path := range batch {
		if ctx.Err() != nil {
			return
		}
		if w.changed(path) {
			paths = append(paths, w.rel(path))
		}
	}
	if len(paths) == 0 {
		return
	}
	slices.Sort(paths)

	select {
	case w.changes <- Change{Paths: paths}:
		w.logger.Debug("Sent change", "paths", len(paths))
	default:
		w.logger.Warn("Change channel full, dropping change", "paths", paths)
	}
}

// changed records the file's content hash and reports whether it differs
// from the last one seen. Deleted files count as changed once.
func (w *Watcher) changed(path string) bool {
	sum := ""
	if data, err := os.ReadFile(path); err == nil {
		h := sha256.Sum256(data)
		sum = hex.EncodeToString(h[:])
	}

	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	old, had := w.hashes[path]
	if sum == "" {
		delete(w.hashes, path)
		return had
	}
	w.hashes[path] = sum
	return !had || old != sum
}

func (w *Watcher) relevant(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.Contains(watchedExtensions, ext) && !w.ignored(path)
}

func (w *Watcher) skipDir(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".") || w.ignored(path)
}

func (w *Watcher) ignored(path string) bool {
	rel := w.rel(path)
	for _, p := range w.config.Ignore {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.config.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
