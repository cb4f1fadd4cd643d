package modfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ResolveIncludes expands the mod's include patterns to files relative to
// the mod directory. Patterns support * and ** wildcards.
//
// Examples:
//   - "items/weapons.yml" -> ["items/weapons.yml"]
//   - "items/*.yml"       -> ["items/armor.yml", "items/weapons.yml"]
//   - "**/*.yml"          -> every YAML file below the mod directory
//
// Missing files and directories are skipped with a warning. The primary mod
// file is never included twice.
func (m *Mod) ResolveIncludes(logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var resolved []string
	seen := map[string]bool{FileName: true}

	for _, pattern := range m.Includes {
		paths, err := m.resolvePattern(pattern, logger)
		if err != nil {
			return nil, fmt.Errorf("resolve include %q: %w", pattern, err)
		}
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				resolved = append(resolved, p)
			}
		}
	}
	return resolved, nil
}

// resolvePattern expands a single include pattern to files.
func (m *Mod) resolvePattern(pattern string, logger *slog.Logger) ([]string, error) {
	pattern = filepath.ToSlash(strings.TrimPrefix(pattern, "./"))

	if !containsGlob(pattern) {
		info, err := os.Stat(filepath.Join(m.Dir, pattern))
		if err != nil || info.IsDir() {
			logger.Warn("Included file doesn't exist", "mod", m.Name, "file", pattern)
			return nil, nil
		}
		return []string{pattern}, nil
	}

	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: bad glob pattern", ErrInvalid)
	}
	matches, err := doublestar.Glob(os.DirFS(m.Dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob error: %w", err)
	}
	if len(matches) == 0 {
		logger.Warn("No included files match pattern", "mod", m.Name, "pattern", pattern)
	}
	return matches, nil
}

// LoadInclude reads an include file relative to the mod directory.
func (m *Mod) LoadInclude(rel string) (*Include, error) {
	path := filepath.Join(m.Dir, filepath.FromSlash(rel))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read include: %w", err)
	}
	return ParseInclude(data, path)
}

// containsGlob checks if a pattern contains glob characters.
func containsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
