package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/c360studio/modforge/entity"
	"github.com/c360studio/modforge/query"
	"github.com/c360studio/modforge/store"
	"github.com/c360studio/modforge/variables"
)

var variableName = regexp.MustCompile(`^[\dA-Z_>]+$`)

// call dispatches $name|arg|arg commands.
func (c *Compiler) call(key string, value any, st *store.Store) error {
	parts, err := query.Split(key, "|")
	if err != nil {
		return err
	}
	name := strings.TrimSpace(strings.TrimPrefix(parts[0], "$"))
	args := parts[1:]
	for i := range args {
		args[i] = strings.TrimSpace(args[i])
	}

	switch name {
	case "debug":
		return c.fnDebug(args, value, st)
	case "import":
		return c.fnImport(args, value, st)
	case "create":
		return c.fnCreate(args, value, st)
	case "clone":
		return c.fnClone(args, value, st)
	case "remove":
		return c.fnRemove(args, value, st)
	case "set-file", "file-set":
		return c.fnSetFile(args, value, st)
	case "asset-add":
		return c.fnAssetAdd(args, value, st)
	}
	return fmt.Errorf("%w: $%s", ErrUnknownFunction, name)
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func orderArg(args []string, i int) (int, error) {
	s := arg(args, i)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: order %q is not a number", ErrValueShape, s)
	}
	return n, nil
}

func queryValue(fn string, value any) (string, error) {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: $%s expects a query, got %s", ErrValueShape, fn, describe(value))
	}
	return s, nil
}

// fnDebug logs what a query selects in the current context.
//
//	$debug|Swords: Item@tags*weapon
func (c *Compiler) fnDebug(args []string, value any, st *store.Store) error {
	q, err := queryValue("debug", value)
	if err != nil {
		return err
	}
	filtered, err := c.Filter(q, st)
	if err != nil {
		return err
	}
	msg := arg(args, 0)
	if msg == "" {
		msg = q
	}
	c.logger.Info("Debug", "message", msg, "query", q, "results", filtered.Len())
	for key, v := range filtered.All() {
		if e, ok := v.(entity.Entity); ok {
			c.logger.Info("Debug entity", "message", msg, "entity", e.Describe())
			continue
		}
		c.logger.Info("Debug value", "message", msg, "key", key, "value", v)
	}
	return nil
}

// fnImport binds query results to a variable.
//
//	$import|GAME_VERSION|Barotrauma: ContentPackage@name="Vanilla">gameversion
func (c *Compiler) fnImport(args []string, value any, _ *store.Store) error {
	q, err := queryValue("import", value)
	if err != nil {
		return err
	}
	name, err := c.resolveString(arg(args, 0))
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: $import needs a variable name", ErrVariableName)
	}
	if !variableName.MatchString(name) {
		return fmt.Errorf("%w: %q must use A-Z, digits, _ and >", ErrVariableName, name)
	}

	results, err := c.Query(q, arg(args, 1))
	if err != nil {
		return err
	}
	if results.IsEmpty() {
		return fmt.Errorf("%w: %s", ErrEmptyImport, q)
	}
	if results.Kind() == store.KindEntity {
		return fmt.Errorf("%w: $import needs attribute values, %s selects entities", ErrValueShape, q)
	}

	var v any
	if results.Len() == 1 {
		v = results.Values()[0]
	} else {
		v = results.Values()
	}
	c.db.Vars.Set(variables.SplitPath(name), v, c.global)
	c.logger.Debug("Imported variable", "variable", name, "values", results.Len())
	return nil
}

// fnCreate creates entities and runs the block against them. In a root
// context it creates root entities:
//
//	$create|Decal|Structure:
//
// anywhere else it creates a child element under every entity, the optional
// argument being its position:
//
//	$create|Price|1:
func (c *Compiler) fnCreate(args []string, value any, st *store.Store) error {
	blocks, err := asBlocks(value)
	if err != nil {
		return fmt.Errorf("%w: $create expects a block, got %s", err, describe(value))
	}
	name := arg(args, 0)
	if name == "" {
		return fmt.Errorf("%w: unable to create entity without tag name", ErrValueShape)
	}

	for _, block := range blocks {
		created := store.New("create", c.logger)
		if st.IsRootStore() {
			r, err := st.NewRootEntity(name, arg(args, 1))
			if err != nil {
				return err
			}
			if err := st.Add(r); err != nil {
				return err
			}
			if err := created.Add(r); err != nil {
				return err
			}
		} else {
			order, err := orderArg(args, 1)
			if err != nil {
				return err
			}
			parents, err := entities(st)
			if err != nil {
				return err
			}
			for _, p := range parents {
				el := entity.NewElement(c.mapping.NormalizeTag(name))
				p.AddChild(el, order)
				if err := created.Add(el); err != nil {
					return err
				}
			}
		}
		if err := c.Execute(block, created); err != nil {
			return err
		}
	}
	return nil
}

// fnClone copies entities selected in another context into the current one
// and runs the block against the copies.
//
//	$clone|Barotrauma|Item@identifier="sword":
//	$clone||Item@identifier="sword"/Price|2:
func (c *Compiler) fnClone(args []string, value any, st *store.Store) error {
	block, err := asBlock(value)
	if err != nil {
		return fmt.Errorf("%w: $clone expects a block, got %s", err, describe(value))
	}
	q := arg(args, 1)
	if q == "" {
		return fmt.Errorf("%w: $clone needs a query argument", ErrValueShape)
	}
	order, err := orderArg(args, 2)
	if err != nil {
		return err
	}

	results, err := c.Query(q, arg(args, 0))
	if err != nil {
		return err
	}
	if results.IsEmpty() {
		return fmt.Errorf("%w: %s", ErrEmptyImport, q)
	}
	if results.Kind() != store.KindEntity {
		return fmt.Errorf("%w: %s does not select entities", ErrValueShape, q)
	}

	clones := store.New("clone", c.logger)
	for _, src := range results.Entities() {
		switch e := src.(type) {
		case *entity.Root:
			if !st.IsRootStore() {
				return fmt.Errorf("%w: root entities can only be cloned into a root context", ErrValueShape)
			}
			clone := e.CloneAs(entity.NewID())
			clone.MarkModified()
			if err := st.Add(clone); err != nil {
				return err
			}
			if err := clones.Add(clone); err != nil {
				return err
			}
		case *entity.Element:
			parents, err := entities(st)
			if err != nil {
				return err
			}
			for _, p := range parents {
				clone := e.CloneInto(p)
				p.AddChild(clone, order)
				if err := clones.Add(clone); err != nil {
					return err
				}
			}
		}
	}
	if clones.IsEmpty() {
		return nil
	}
	return c.Execute(block, clones)
}

// fnRemove removes what one or more queries select in the current context.
func (c *Compiler) fnRemove(_ []string, value any, st *store.Store) error {
	queries, err := asStrings(value)
	if err != nil {
		return fmt.Errorf("%w: $remove expects a query or a list of queries", err)
	}
	active := c.db.Active()
	for _, q := range queries {
		filtered, err := c.Filter(q, st)
		if err != nil {
			return err
		}
		if filtered.IsEmpty() || filtered.Kind() != store.KindEntity {
			c.notice("Empty results for query", "query", q)
			continue
		}
		for _, e := range filtered.Entities() {
			st.Remove(e)
			if e.IsRoot() {
				active.Remove(e.ID())
			}
		}
	}
	return nil
}

// fnSetFile changes the export file of the roots owning the context
// entities.
func (c *Compiler) fnSetFile(_ []string, value any, st *store.Store) error {
	file, ok := value.(string)
	if !ok || strings.TrimSpace(file) == "" {
		return fmt.Errorf("%w: $set-file expects a file path, got %s", ErrValueShape, describe(value))
	}
	file = strings.TrimSuffix(strings.TrimSpace(file), ".xml")
	ents, err := entities(st)
	if err != nil {
		return err
	}
	for _, e := range ents {
		if r := e.Root(); r != nil {
			r.SetFile(file)
		}
	}
	return nil
}

// fnAssetAdd lists files in the mod's content package.
//
//	$asset-add|EnemySubmarine: "%ModDir%/Submarines/Raider.sub"
func (c *Compiler) fnAssetAdd(args []string, value any, _ *store.Store) error {
	assetType := c.mapping.NormalizeTag(arg(args, 0))
	if assetType == "" {
		return fmt.Errorf("%w: $asset-add needs an asset type", ErrValueShape)
	}
	files, err := asStrings(value)
	if err != nil {
		return fmt.Errorf("%w: $asset-add expects a file or a list of files", err)
	}
	cp := c.ContentPackage()
	for _, f := range files {
		cp.AddChild(entity.NewElement(assetType, entity.Attr{Name: "file", Value: f}), 0)
	}
	return nil
}
