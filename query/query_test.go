package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type attrs map[string]string

func (a attrs) Attribute(name string) (string, bool) {
	v, ok := a[strings.ToLower(name)]
	return v, ok
}

func TestHighlight(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Item/Price", "Item/Price"},
		{"quoted", `a="x/y"`, `a="   "`},
		{"single quoted", `a='x<y'`, `a='   '`},
		{"bracket", "a=[x,y]", "a=[   ]"},
		{"escape", `a\/b`, "a  b"},
		{"moddir", "%ModDir%/file", "        /file"},
		{"moddir any case", "%moddir%/x", "        /x"},
		{"percent survives quotes", `a="%VAR%"`, `a="%   %"`},
		{"brackets in quotes", `a="[x]"`, `a="   "`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Highlight(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len([]rune(tt.input)), len([]rune(got)))
		})
	}
}

func TestHighlight_Errors(t *testing.T) {
	for _, input := range []string{`a="open`, "a=[x", "a=[x,[y]]", "a='x"} {
		t.Run(input, func(t *testing.T) {
			_, err := Highlight(input)
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, `a="%   %"`, Mask(`a="%VAR%"`))
	assert.Equal(t, `it's %X%`, Mask(`it's %X%`))
	assert.Equal(t, `[        /%X%`, Mask(`[%ModDir%/%X%`))
	assert.Equal(t, `x  %`, Mask(`x\%%`))
}

func TestExplode(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		delims []string
		opts   ExplodeOptions
		want   []string
	}{
		{"simple", "a/b/c", []string{"/"}, ExplodeOptions{}, []string{"a", "b", "c"}},
		{"keep", "a/b<c", []string{"/", "<"}, ExplodeOptions{Include: true}, []string{"a", "/", "b", "<", "c"}},
		{"reverse", "a/b", []string{"/"}, ExplodeOptions{Reverse: true}, []string{"b", "a"}},
		{"protected", `a="x/y"/b`, []string{"/"}, ExplodeOptions{}, []string{`a="x/y"`, "b"}},
		{"escaped", `a\/b/c`, []string{"/"}, ExplodeOptions{}, []string{`a\/b`, "c"}},
		{"moddir", "a%VAR%b%ModDir%c", []string{"%"}, ExplodeOptions{}, []string{"a", "VAR", "b%ModDir%c"}},
		{"multi rune delim", "a::b", []string{"::"}, ExplodeOptions{}, []string{"a", "b"}},
		{"unicode", `näme="ü/ö"/b`, []string{"/"}, ExplodeOptions{}, []string{`näme="ü/ö"`, "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Explode(tt.input, tt.delims, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExplode_IncludeRoundTrip(t *testing.T) {
	inputs := []string{
		`Item@identifier="sword"/Price>baseprice`,
		`Item(Item)@a=[x,y]+b!c?d*e{2}~Tag`,
		`\<x\>/%ModDir%/y`,
	}
	for _, input := range inputs {
		parts, err := SplitKeep(input, "~", "/", "<", ">")
		require.NoError(t, err)
		assert.Equal(t, input, strings.Join(parts, ""))
	}
}

func TestUnescape(t *testing.T) {
	assert.Equal(t, "a/b", Unescape(`a\/b`))
	assert.Equal(t, `a\b`, Unescape(`a\\b`))
	assert.Equal(t, "plain", Unescape("plain"))
}

func TestParse_Chain(t *testing.T) {
	n, err := Parse(`Item(Weapon)@identifier="sword"/Price{-1}>baseprice`)
	require.NoError(t, err)

	assert.Equal(t, "Item", n.Name)
	assert.Equal(t, "Weapon", n.Type)
	assert.Equal(t, Predicate{{{Attribute: "identifier", Operator: OpEquals, Needles: []string{"sword"}}}}, n.Predicate)
	assert.Equal(t, Descend, n.ChildOp)

	price := n.Child
	require.NotNil(t, price)
	assert.Equal(t, "Price", price.Name)
	assert.Equal(t, -1, price.Ordinal)
	assert.Equal(t, ReturnAttribute, price.ChildOp)

	require.NotNil(t, price.Child)
	assert.Equal(t, "baseprice", price.Child.Name)
	assert.Nil(t, price.Child.Child)
}

func TestParse_Operators(t *testing.T) {
	tests := []struct {
		query string
		op    Traversal
	}{
		{"A/B", Descend},
		{"A<B", ReturnParent},
		{"A>b", ReturnAttribute},
		{"A~B", Create},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			n, err := Parse(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.op, n.ChildOp)
			assert.Equal(t, "B", strings.ToUpper(n.Child.Name))
		})
	}
}

func TestParse_Predicates(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Predicate
	}{
		{
			"bare predicate",
			"identifier=sword",
			Predicate{{{Attribute: "identifier", Operator: OpAnyEqual, Needles: []string{"sword"}}}},
		},
		{
			"lowercased attribute",
			`Item@Identifier^"sw"`,
			Predicate{{{Attribute: "identifier", Operator: OpStartsWith, Needles: []string{"sw"}}}},
		},
		{
			"comma list",
			"Item@tags*small,medium",
			Predicate{{{Attribute: "tags", Operator: OpAnyContain, Needles: []string{"small", "medium"}}}},
		},
		{
			"bracket list",
			"Item@tags![a,b]",
			Predicate{{{Attribute: "tags", Operator: OpAllNotEqual, Needles: []string{"a", "b"}}}},
		},
		{
			"and binds tighter than or",
			"Item@a=1+b=2?c$3",
			Predicate{
				{
					{Attribute: "a", Operator: OpAnyEqual, Needles: []string{"1"}},
					{Attribute: "b", Operator: OpAnyEqual, Needles: []string{"2"}},
				},
				{{Attribute: "c", Operator: OpAnyEndWith, Needles: []string{"3"}}},
			},
		},
		{
			"quoted value keeps syntax",
			`Item@name="a/b+c?d"`,
			Predicate{{{Attribute: "name", Operator: OpEquals, Needles: []string{"a/b+c?d"}}}},
		},
		{
			"escaped quote inside quotes",
			`Item@name="say \"hi\""`,
			Predicate{{{Attribute: "name", Operator: OpEquals, Needles: []string{`say "hi"`}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Parse(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.Predicate)
			assert.Nil(t, n.Child)
		})
	}
}

func TestParse_OrdinalAndType(t *testing.T) {
	tests := []struct {
		query   string
		name    string
		typ     string
		ordinal int
	}{
		{"Item{2}", "Item", "", 2},
		{"Item{-3}", "Item", "", -3},
		{"Item{}", "Item", "", 0},
		{"Decal(Structure)", "Decal", "Structure", 0},
		{"(Item)", "", "Item", 0},
		{`Item@name="{1}"`, "Item", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			n, err := Parse(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.name, n.Name)
			assert.Equal(t, tt.typ, n.Type)
			assert.Equal(t, tt.ordinal, n.Ordinal)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	queries := []string{
		"Item@a=1@b=2",
		"Item@a=1=2",
		"Item@identifier",
		`Item@a="x`,
		"Item@a=[x,[y]]",
		"Item{x}",
		"Item(bad type)",
		"Item@=x",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			_, err := Parse(q)
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestIsAttributeName(t *testing.T) {
	assert.True(t, IsAttributeName("baseprice"))
	assert.True(t, IsAttributeName("some-attr_2"))
	assert.False(t, IsAttributeName("Item/Price"))
	assert.False(t, IsAttributeName(""))
	assert.False(t, IsAttributeName("a@b=c"))
}

func TestEvaluate(t *testing.T) {
	e := attrs{"identifier": "sword", "tags": "weapon,smallitem,sharp"}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals", Condition{"identifier", OpEquals, []string{"sword"}}, true},
		{"strict ignores commas", Condition{"tags", OpEquals, []string{"weapon"}}, false},
		{"not equals", Condition{"identifier", OpNotEquals, []string{"axe"}}, true},
		{"contains", Condition{"identifier", OpContains, []string{"wor"}}, true},
		{"contains at start", Condition{"identifier", OpContains, []string{"sw"}}, true},
		{"starts with", Condition{"identifier", OpStartsWith, []string{"sw"}}, true},
		{"ends with", Condition{"identifier", OpEndsWith, []string{"rd"}}, true},
		{"any equal hit", Condition{"tags", OpAnyEqual, []string{"sharp"}}, true},
		{"any equal miss", Condition{"tags", OpAnyEqual, []string{"blunt"}}, false},
		{"any of needles", Condition{"tags", OpAnyEqual, []string{"blunt", "weapon"}}, true},
		{"all not equal", Condition{"tags", OpAllNotEqual, []string{"blunt", "heavy"}}, true},
		{"all not equal miss", Condition{"tags", OpAllNotEqual, []string{"sharp"}}, false},
		{"all contain", Condition{"tags", OpAllContain, []string{"a"}}, true},
		{"all start with miss", Condition{"tags", OpAllStartWith, []string{"w"}}, false},
		{"any start with", Condition{"tags", OpAnyStartWith, []string{"sm"}}, true},
		{"any end with", Condition{"tags", OpAnyEndWith, []string{"item"}}, true},
		{"all end with miss", Condition{"tags", OpAllEndWith, []string{"p"}}, false},
		{"missing attribute is empty", Condition{"missing", OpEquals, []string{""}}, true},
		{"missing attribute contains", Condition{"missing", OpContains, []string{"x"}}, false},
		{"unknown operator", Condition{"identifier", Operator("~="), []string{"sword"}}, false},
		{"malformed operator", Condition{"identifier", Operator("="), []string{"sword"}}, false},
		{"no needles", Condition{"identifier", OpAnyEqual, nil}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(e, tt.cond))
		})
	}
}

func TestMatches(t *testing.T) {
	e := attrs{"identifier": "sword", "category": "weapon"}

	p, err := Parse(`Item@identifier=axe?category=weapon+identifier^sw`)
	require.NoError(t, err)
	assert.True(t, Matches(e, p.Predicate))

	p, err = Parse(`Item@identifier=axe?category=tool`)
	require.NoError(t, err)
	assert.False(t, Matches(e, p.Predicate))

	assert.True(t, Matches(e, nil))
}

func TestCache(t *testing.T) {
	c, err := NewCache(2)
	require.NoError(t, err)

	a, err := c.Parse("Item/Price")
	require.NoError(t, err)
	b, err := c.Parse("Item/Price")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = c.Parse("Item@a=1@b=2")
	assert.ErrorIs(t, err, ErrSyntax)
	assert.Equal(t, 1, c.Len())

	_, _ = c.Parse("B")
	_, _ = c.Parse("C")
	assert.Equal(t, 2, c.Len())
}
