package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/modforge/entity"
	"github.com/c360studio/modforge/modfile"
	"github.com/c360studio/modforge/store"
)

type fakeScanner struct {
	stores map[string]*store.Store
	fail   string
}

func (f fakeScanner) IsValid(appID string) bool {
	_, ok := f.stores[appID]
	return ok
}

func (f fakeScanner) Scan(appID string) (*store.Store, error) {
	if appID == f.fail {
		return nil, errors.New("broken content package")
	}
	return f.stores[appID], nil
}

func appStore(t *testing.T, appID string, roots ...*entity.Root) *store.Store {
	t.Helper()
	s := store.NewRoot(appID, nil, nil)
	for _, r := range roots {
		r.Lock()
		require.NoError(t, s.Add(r))
	}
	return s
}

func testMod(t *testing.T) *modfile.Mod {
	t.Helper()
	m, err := modfile.Parse([]byte("name: Test\nworkshop:\n  Library: \"2222\"\n"), "filelist.yml")
	require.NoError(t, err)
	return m
}

func TestBuildActiveContext_FirstWins(t *testing.T) {
	shared := entity.NewRoot("Item", "Item", modfile.GameAppID, "game/items", entity.Attr{Name: "identifier", Value: "sword"})
	gameOnly := entity.NewRoot("Item", "Item", modfile.GameAppID, "game/items")
	game := appStore(t, modfile.GameAppID, shared, gameOnly)

	override := shared.Clone()
	override.SetAttribute("identifier", "modded")
	lib := appStore(t, "2222", override)

	active, err := BuildActiveContext([]string{"2222", modfile.GameAppID},
		map[string]*store.Store{"2222": lib, modfile.GameAppID: game}, nil, nil)
	require.NoError(t, err)

	require.Equal(t, 2, active.Len())
	roots := active.Roots()
	v, _ := roots[0].Attribute("identifier")
	assert.Equal(t, "modded", v)
	assert.Equal(t, gameOnly.ID(), roots[1].ID())

	// Clones are independent of the application stores.
	assert.NotSame(t, gameOnly, roots[1])
	roots[1].SetAttribute("x", "1")
	assert.False(t, gameOnly.HasAttribute("x"))
	assert.True(t, roots[1].IsModified())
	assert.False(t, gameOnly.IsModified())

	_, err = BuildActiveContext([]string{"404"}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownContext)
}

func TestOpen(t *testing.T) {
	mod := testMod(t)
	sword := entity.NewRoot("Item", "Item", modfile.GameAppID, "game/items")
	sc := fakeScanner{stores: map[string]*store.Store{
		modfile.GameAppID: appStore(t, modfile.GameAppID, sword),
	}}

	db, err := Open(context.Background(), mod, sc, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, db.Active().Len())
	assert.Equal(t, 1, db.Entities())
	assert.Equal(t, map[string]string{modfile.GameAppID: modfile.GameName}, db.ContextNames())

	game, err := db.Context(modfile.GameName)
	require.NoError(t, err)
	assert.Equal(t, modfile.GameAppID, game.ID())

	active, err := db.Context("")
	require.NoError(t, err)
	assert.Same(t, db.Active(), active)

	_, err = db.Context("Library")
	assert.ErrorIs(t, err, ErrUnknownContext, "not downloaded")
	_, err = db.Context("Nope")
	assert.ErrorIs(t, err, ErrUnknownContext)
}

func TestOpen_Errors(t *testing.T) {
	mod := testMod(t)

	_, err := Open(context.Background(), mod, fakeScanner{}, nil, nil)
	assert.Error(t, err, "game must be present")

	sc := fakeScanner{
		stores: map[string]*store.Store{
			modfile.GameAppID: appStore(t, modfile.GameAppID),
			"2222":            appStore(t, "2222"),
		},
		fail: "2222",
	}
	_, err = Open(context.Background(), mod, sc, nil, nil)
	assert.ErrorContains(t, err, "Library")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Open(ctx, mod, sc, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestActivate_WorkshopOrder(t *testing.T) {
	mod := testMod(t)
	db := New(mod, nil, nil)

	gameRoot := entity.NewRoot("Item", "Item", modfile.GameAppID, "g")
	libRoot := gameRoot.Clone()
	libRoot.SetAttribute("from", "library")

	// Registration order does not matter; workshop order does.
	db.AddStore(appStore(t, modfile.GameAppID, gameRoot))
	db.AddStore(appStore(t, "2222", libRoot))
	require.NoError(t, db.Activate())

	roots := db.Active().Roots()
	require.Len(t, roots, 1)
	v, _ := roots[0].Attribute("from")
	assert.Equal(t, "library", v)
}
