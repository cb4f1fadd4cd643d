package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sword() *Root {
	r := NewRoot("Item", "Item", "1026340", "1026340/Content/Items/weapons",
		Attr{Name: "identifier", Value: "sword"})
	price := NewElement("Price", Attr{Name: "baseprice", Value: "100"})
	r.AddChild(price, 0)
	price.AddChild(NewElement("Store", Attr{Name: "location", Value: "outpost"}), 0)
	r.AddChild(NewElement("Sprite", Attr{Name: "texture", Value: "sword.png"}), 0)
	r.Lock()
	return r
}

func TestLockState_LazyBreak(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Root)
	}{
		{"set attribute", func(r *Root) { r.SetAttribute("price", "10") }},
		{"remove attribute", func(r *Root) { r.RemoveAttribute("identifier") }},
		{"rename", func(r *Root) { r.SetName("Weapon") }},
		{"add child", func(r *Root) { r.AddChild(NewElement("Tag"), 0) }},
		{"child attribute", func(r *Root) { r.Children()[0].SetAttribute("baseprice", "1") }},
		{"remove grandchild", func(r *Root) { r.Children()[0].Children()[0].Remove() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sword()
			require.True(t, r.IsLocked())
			assert.False(t, r.IsModified())

			tt.mutate(r)

			assert.False(t, r.IsLocked())
			assert.True(t, r.IsModified())
			assert.Equal(t, StateModified, r.State())
		})
	}
}

func TestLockState_DraftIgnoresMutation(t *testing.T) {
	r := NewRoot("ContentPackage", "ContentPackage", "mod", "filelist")
	r.AddChild(NewElement("Item", Attr{Name: "file", Value: "%ModDir%/items.xml"}), 0)
	assert.Equal(t, StateDraft, r.State())
	assert.False(t, r.IsModified())
}

func TestAttributes_CaseInsensitive(t *testing.T) {
	r := NewRoot("Item", "", "app", "f", Attr{Name: "Identifier", Value: "sword"})

	v, ok := r.Attribute("identifier")
	assert.True(t, ok)
	assert.Equal(t, "sword", v)

	r.SetAttribute("IDENTIFIER", "axe")
	attrs := r.Attributes()
	require.Len(t, attrs, 1)
	assert.Equal(t, Attr{Name: "Identifier", Value: "axe"}, attrs[0])

	_, ok = r.Attribute("missing")
	assert.False(t, ok)
}

func TestRoot_TypeFallsBackToName(t *testing.T) {
	assert.Equal(t, "Decal", NewRoot("Decal", "", "", "").Type())
	assert.Equal(t, "Structure", NewRoot("Decal", "Structure", "", "").Type())
}

func TestAddChild_Order(t *testing.T) {
	names := func(e Entity) []string {
		var out []string
		for _, c := range e.Children() {
			out = append(out, c.Name())
		}
		return out
	}

	r := NewRoot("Item", "", "", "")
	r.AddChild(NewElement("A"), 0)
	r.AddChild(NewElement("B"), 0)
	r.AddChild(NewElement("First"), 1)
	r.AddChild(NewElement("Last"), -1)
	r.AddChild(NewElement("Mid"), 3)
	r.AddChild(NewElement("Tail"), 99)

	assert.Equal(t, []string{"First", "A", "Mid", "B", "Last", "Tail"}, names(r))
}

func TestElement_RootAndRemove(t *testing.T) {
	r := sword()
	price := r.Children()[0]
	store := price.Children()[0]

	assert.Same(t, r, store.Root())
	assert.Same(t, r, price.Parent())

	price.Remove()

	assert.True(t, price.IsRemoved())
	assert.True(t, store.IsRemoved())
	assert.Len(t, r.Children(), 1)
	assert.Equal(t, "Sprite", r.Children()[0].Name())
	assert.True(t, r.IsModified())
}

func TestRoot_RemoveFlagsSubtree(t *testing.T) {
	r := sword()
	r.Remove()

	assert.True(t, r.IsRemoved())
	for _, c := range r.Children() {
		assert.True(t, c.IsRemoved())
	}
}

func TestClone_RoundTrip(t *testing.T) {
	r := sword()
	original, err := ToXML(r)
	require.NoError(t, err)

	c := r.Clone()
	assert.Equal(t, r.ID(), c.ID())
	assert.True(t, c.IsLocked())

	cloned, err := ToXML(c)
	require.NoError(t, err)
	assert.Equal(t, original, cloned)

	// Child identities are fresh and bound to the new parent chain.
	require.Len(t, c.Children(), 2)
	assert.NotEqual(t, r.Children()[0].ID(), c.Children()[0].ID())
	assert.Same(t, c, c.Children()[0].Children()[0].Root())

	// The clone is independent of later mutation of the original.
	r.Children()[0].SetAttribute("baseprice", "5")
	v, _ := c.Children()[0].Attribute("baseprice")
	assert.Equal(t, "100", v)
	assert.False(t, c.IsModified())

	c.SetAttribute("identifier", "sword2")
	assert.True(t, c.IsModified())
}

func TestClone_As(t *testing.T) {
	r := sword()
	c := r.CloneAs("fresh")
	assert.Equal(t, "fresh", c.ID())
	assert.Equal(t, r.File(), c.File())
	assert.Equal(t, r.Type(), c.Type())
}

func TestElement_CloneInto(t *testing.T) {
	r := sword()
	other := NewRoot("Item", "", "", "")
	price := r.Children()[0].CloneInto(other)
	other.AddChild(price, 0)

	assert.Same(t, other, price.Root())
	assert.NotEqual(t, r.Children()[0].ID(), price.ID())
	assert.Len(t, price.Children(), 1)
}

func TestToXML(t *testing.T) {
	r := NewRoot("Text", "", "", "", Attr{Name: "lang", Value: "en"})
	title := NewElement("Title")
	title.SetValue("Fish & Chips")
	r.AddChild(title, 0)

	out, err := ToXML(r)
	require.NoError(t, err)
	assert.Equal(t, `<Text lang="en"><Title>Fish &amp; Chips</Title></Text>`, out)
}

func TestDescribe(t *testing.T) {
	r := sword()
	assert.Contains(t, r.Describe(), "of type: 'Item'")
	assert.Contains(t, r.Children()[0].Describe(), "Sub-element: 'Price'")
	assert.Contains(t, NewElement("Loose").Describe(), "detached")
}
