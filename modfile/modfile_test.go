package modfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const primary = `
name: Better Swords
modversion: 2.0.0
corepackage: false
includes:
  - items/*.yml
  - missing.yml
workshop:
  Some Library: "2222"
  Barotrauma: "999"
variables:
  PRICE: 10
  WEAPONS:
    SWORD: sword
execute:
  Item@identifier="sword":
    price: "%PRICE%"
    Price:
  Item@identifier="sword":
    $remove:
      - Sprite
      - Price
  $asset-add|Text: files/text.xml
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(primary), "filelist.yml")
	require.NoError(t, err)

	assert.Equal(t, "Better Swords", m.Name)
	assert.Equal(t, "Better Swords", m.Folder)
	assert.Equal(t, "2.0.0", m.ModVersion)
	assert.Empty(t, m.GameVersion)
	assert.False(t, m.CorePackage)
	assert.Equal(t, []string{"items/*.yml", "missing.yml"}, m.Includes)
	assert.Equal(t, []App{{"Some Library", "2222"}, {GameName, GameAppID}}, m.Workshop)
	assert.Equal(t, "10", m.Variables["PRICE"])
	assert.Equal(t, Block{{Key: "SWORD", Value: "sword", Line: 14}}, m.Variables["WEAPONS"])

	require.Len(t, m.Execute, 3)
	first := m.Execute[0]
	assert.Equal(t, `Item@identifier="sword"`, first.Key)
	assert.Equal(t, 16, first.Line)
	assert.Equal(t, Block{
		{Key: "price", Value: "%PRICE%", Line: 17},
		{Key: "Price", Value: Block{}, Line: 18},
	}, first.Value)

	// Duplicate keys are kept in order.
	assert.Equal(t, first.Key, m.Execute[1].Key)
	remove := m.Execute[1].Value.(Block)[0]
	assert.Equal(t, "$remove", remove.Key)
	assert.Equal(t, []any{"Sprite", "Price"}, remove.Value)

	assert.Equal(t, "files/text.xml", m.Execute[2].Value)

	name, ok := m.AppName("2222")
	assert.True(t, ok)
	assert.Equal(t, "Some Library", name)
	app, ok := m.App(GameName)
	assert.True(t, ok)
	assert.Equal(t, GameAppID, app.ID)
}

func TestParse_Defaults(t *testing.T) {
	m, err := Parse([]byte("name: Minimal\n"), "filelist.yml")
	require.NoError(t, err)

	assert.Equal(t, DefaultModVersion, m.ModVersion)
	assert.Equal(t, "Minimal", m.Folder)
	assert.Equal(t, []App{{GameName, GameAppID}}, m.Workshop)
	assert.Empty(t, m.Execute)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing name", "folder: x\n"},
		{"empty document", ""},
		{"not a mapping", "- a\n- b\n"},
		{"execute is a list", "name: x\nexecute:\n  - a\n"},
		{"bad corepackage", "name: x\ncorepackage: maybe\n"},
		{"workshop without id", "name: x\nworkshop:\n  Lib:\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), "filelist.yml")
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Parse([]byte("name: [unclosed"), "filelist.yml")
	assert.Error(t, err)
}

func TestParseInclude(t *testing.T) {
	inc, err := ParseInclude([]byte(`
variables:
  LOCAL: yes
execute:
  Item:
    tags: weapon
`), "items/a.yml")
	require.NoError(t, err)
	assert.Equal(t, "yes", inc.Variables["LOCAL"])
	require.Len(t, inc.Execute, 1)

	empty, err := ParseInclude(nil, "empty.yml")
	require.NoError(t, err)
	assert.Empty(t, empty.Execute)
}

func TestLoadAndResolveIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), primary)
	writeFile(t, filepath.Join(dir, "items", "b.yml"), "execute:\n  Item:\n    a: b\n")
	writeFile(t, filepath.Join(dir, "items", "a.yml"), "")
	writeFile(t, filepath.Join(dir, "items", "notes.txt"), "")

	m, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, m.Dir)

	files, err := m.ResolveIncludes(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"items/a.yml", "items/b.yml"}, files)

	inc, err := m.LoadInclude(files[1])
	require.NoError(t, err)
	require.Len(t, inc.Execute, 1)
	assert.Equal(t, "Item", inc.Execute[0].Key)

	m.Includes = []string{"items/[", FileName}
	_, err = m.ResolveIncludes(nil)
	assert.ErrorIs(t, err, ErrInvalid)

	m.Includes = []string{FileName, "./items/a.yml", "items/a.yml"}
	files, err = m.ResolveIncludes(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"items/a.yml"}, files)
}

func TestList(t *testing.T) {
	input := t.TempDir()
	writeFile(t, filepath.Join(input, "zeta", FileName), "name: zeta\n")
	writeFile(t, filepath.Join(input, "alpha", FileName), "name: alpha\n")
	require.NoError(t, os.MkdirAll(filepath.Join(input, "empty"), 0o755))
	writeFile(t, filepath.Join(input, "loose.yml"), "")

	mods, err := List(input)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, mods)
}
