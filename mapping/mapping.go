// Package mapping holds the lookup tables that relate XML tag names, asset
// types and file wrappers.
package mapping

import (
	_ "embed"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// OverrideTag is the document element of files replacing other entities.
const OverrideTag = "Override"

//go:embed defaults.yaml
var defaults []byte

// Tables is the YAML shape of a mapping file.
type Tables struct {
	Tags     map[string]string   `yaml:"tags"`
	Entities map[string]string   `yaml:"entities"`
	Wrappers map[string]string   `yaml:"wrappers"`
	Ignored  map[string][]string `yaml:"ignored"`
}

// Mapping answers tag and type questions for the importer, the store and
// the exporter.
type Mapping struct {
	tags     map[string]string
	entities map[string]string
	wrappers map[string]string
	ignored  map[string][]string
}

// Default returns the built-in tables.
func Default() (*Mapping, error) {
	return Parse(defaults)
}

// Load returns the built-in tables with the file at path merged over them.
// An empty path returns the defaults.
func Load(path string) (*Mapping, error) {
	m, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return m, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", path, err)
	}
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", path, err)
	}
	m.Merge(t)
	return m, nil
}

// Parse builds a mapping from YAML tables.
func Parse(data []byte) (*Mapping, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	m := &Mapping{
		tags:     make(map[string]string),
		entities: make(map[string]string),
		wrappers: make(map[string]string),
		ignored:  make(map[string][]string),
	}
	m.Merge(t)
	return m, nil
}

// Merge adds t's entries, replacing existing ones.
func (m *Mapping) Merge(t Tables) {
	for k, v := range t.Tags {
		m.tags[strings.ToLower(k)] = v
	}
	maps.Copy(m.entities, t.Entities)
	maps.Copy(m.wrappers, t.Wrappers)
	for k, v := range t.Ignored {
		m.ignored[k] = slices.Clone(v)
	}
}

// NormalizeTag returns the canonical spelling of a tag name. Unknown names
// are returned unchanged.
func (m *Mapping) NormalizeTag(name string) string {
	if v, ok := m.tags[strings.ToLower(name)]; ok {
		return v
	}
	return name
}

// TypeForTagName returns the asset type of root entities with the tag name.
func (m *Mapping) TypeForTagName(name string) (string, bool) {
	t, ok := m.entities[name]
	return t, ok
}

// Wrapper returns the wrapper tag of an asset type. ok is false for types
// that are not XML assets.
func (m *Mapping) Wrapper(assetType string) (string, bool) {
	w, ok := m.wrappers[assetType]
	return w, ok
}

// IsXMLAsset reports whether files of the asset type are imported.
func (m *Mapping) IsXMLAsset(assetType string) bool {
	_, ok := m.wrappers[assetType]
	return ok
}

// IsWrapper reports whether tag is skipped at the top of a file of the
// asset type rather than imported as an entity.
func (m *Mapping) IsWrapper(assetType, tag string) bool {
	if tag == OverrideTag {
		return true
	}
	if w, ok := m.wrappers[assetType]; ok && w != "" && w == tag {
		return true
	}
	return slices.Contains(m.ignored[assetType], tag)
}
