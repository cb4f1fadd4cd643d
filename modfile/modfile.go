// Package modfile reads mod definition files: the primary filelist.yml and
// the files it includes.
package modfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	// FileName is the primary mod file inside a mod directory.
	FileName = "filelist.yml"

	// GameName and GameAppID identify the base game.
	GameName  = "Barotrauma"
	GameAppID = "1026340"

	// DefaultModVersion is used when the mod file has no modversion.
	DefaultModVersion = "1.0.0"
)

// ErrInvalid is returned for mod files with a missing or malformed field.
var ErrInvalid = errors.New("invalid mod file")

// App is a source application: the game or a workshop item.
type App struct {
	Name string
	ID   string
}

// Command is one entry of an execute block. Value is a string, a []any of
// strings and Blocks, or a Block.
type Command struct {
	Key   string
	Value any
	Line  int
}

// Block is an ordered command map. Keys may repeat.
type Block []Command

// Mod is a parsed primary mod file.
type Mod struct {
	// Dir is the mod directory; File the primary file inside it.
	Dir  string
	File string

	Name         string
	Folder       string
	ModVersion   string
	GameVersion  string
	CorePackage  bool
	Translations bool
	AltNames     string

	Includes  []string
	Variables map[string]any
	Execute   Block

	// Workshop lists the source applications in priority order. The game is
	// always last.
	Workshop []App
}

// Include is a parsed included mod file.
type Include struct {
	File      string
	Variables map[string]any
	Execute   Block
}

// Load reads the primary mod file of the mod directory dir.
func Load(dir string) (*Mod, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mod file: %w", err)
	}
	m, err := Parse(data, path)
	if err != nil {
		return nil, err
	}
	m.Dir = dir
	return m, nil
}

// Parse decodes a primary mod file and applies defaults that need no game
// data: folder, modversion and the trailing game application.
func Parse(data []byte, file string) (*Mod, error) {
	root, err := document(data, file)
	if err != nil {
		return nil, err
	}

	m := &Mod{File: file, Variables: map[string]any{}}
	if root != nil {
		if err := m.decode(root); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}

	if m.Name == "" {
		return nil, fmt.Errorf("%s: %w: module name can't be empty", file, ErrInvalid)
	}
	if m.Folder == "" {
		m.Folder = m.Name
	}
	if m.ModVersion == "" {
		m.ModVersion = DefaultModVersion
	}
	m.Workshop = append(m.Workshop, App{Name: GameName, ID: GameAppID})
	return m, nil
}

func (m *Mod) decode(root *yaml.Node) error {
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], resolveAlias(root.Content[i+1])
		var err error
		switch key.Value {
		case "name":
			m.Name = val.Value
		case "folder":
			m.Folder = val.Value
		case "modversion":
			m.ModVersion = val.Value
		case "gameversion":
			m.GameVersion = val.Value
		case "altnames":
			m.AltNames = val.Value
		case "corepackage":
			err = val.Decode(&m.CorePackage)
		case "translations":
			err = val.Decode(&m.Translations)
		case "includes":
			err = val.Decode(&m.Includes)
		case "variables":
			err = decodeVariables(val, m.Variables)
		case "execute":
			m.Execute, err = decodeBlock(val)
		case "workshop":
			m.Workshop, err = decodeWorkshop(val)
		}
		if err != nil {
			return fmt.Errorf("%w: line %d: %s: %v", ErrInvalid, key.Line, key.Value, err)
		}
	}
	return nil
}

// ParseInclude decodes an included mod file. Only variables and execute are
// read; an empty file yields an empty include.
func ParseInclude(data []byte, file string) (*Include, error) {
	root, err := document(data, file)
	if err != nil {
		return nil, err
	}
	inc := &Include{File: file, Variables: map[string]any{}}
	if root == nil {
		return inc, nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], resolveAlias(root.Content[i+1])
		var err error
		switch key.Value {
		case "variables":
			err = decodeVariables(val, inc.Variables)
		case "execute":
			inc.Execute, err = decodeBlock(val)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w: line %d: %s: %v", file, ErrInvalid, key.Line, key.Value, err)
		}
	}
	return inc, nil
}

// App returns the application with the given name.
func (m *Mod) App(name string) (App, bool) {
	for _, a := range m.Workshop {
		if a.Name == name {
			return a, true
		}
	}
	return App{}, false
}

// AppName returns the name of the application with the given id.
func (m *Mod) AppName(id string) (string, bool) {
	for _, a := range m.Workshop {
		if a.ID == id {
			return a.Name, true
		}
	}
	return "", false
}

// List returns the names of the mod directories under input, sorted.
func List(input string) ([]string, error) {
	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, fmt.Errorf("list mods: %w", err)
	}
	var mods []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(input, e.Name(), FileName)); err == nil {
			mods = append(mods, e.Name())
		}
	}
	sort.Strings(mods)
	return mods, nil
}

// document returns the top-level mapping of a YAML document, nil for an
// empty document.
func document(data []byte, file string) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := resolveAlias(doc.Content[0])
	if isNull(root) {
		return nil, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: %w: top level must be a mapping", file, ErrInvalid)
	}
	return root, nil
}

// decodeVariables reads the variables mapping. Nested mappings become Blocks
// so structures substituted into commands keep their declaration order.
func decodeVariables(n *yaml.Node, dst map[string]any) error {
	if isNull(n) {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping of variables", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		v, err := decodeValue(n.Content[i+1])
		if err != nil {
			return err
		}
		dst[n.Content[i].Value] = v
	}
	return nil
}

func decodeWorkshop(n *yaml.Node) ([]App, error) {
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("workshop must map names to application ids")
	}
	var apps []App
	for i := 0; i+1 < len(n.Content); i += 2 {
		name, id := n.Content[i].Value, resolveAlias(n.Content[i+1]).Value
		if name == GameName {
			continue
		}
		if id == "" {
			return nil, fmt.Errorf("workshop item %q has no id", name)
		}
		apps = append(apps, App{Name: name, ID: id})
	}
	return apps, nil
}

// decodeBlock turns an execute mapping into a Block keeping key order,
// duplicate keys and key line numbers.
func decodeBlock(n *yaml.Node) (Block, error) {
	if isNull(n) {
		return Block{}, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping of commands", n.Line)
	}
	block := make(Block, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i]
		val, err := decodeValue(n.Content[i+1])
		if err != nil {
			return nil, err
		}
		block = append(block, Command{Key: key.Value, Value: val, Line: key.Line})
	}
	return block, nil
}

func decodeValue(n *yaml.Node) (any, error) {
	n = resolveAlias(n)
	switch n.Kind {
	case yaml.ScalarNode:
		if isNull(n) {
			return Block{}, nil
		}
		return n.Value, nil
	case yaml.MappingNode:
		return decodeBlock(n)
	case yaml.SequenceNode:
		items := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := decodeValue(c)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}
