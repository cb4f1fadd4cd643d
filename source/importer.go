// Package source imports game and workshop XML assets into root entities.
package source

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/c360studio/modforge/entity"
	"github.com/c360studio/modforge/mapping"
)

// Importer decodes asset files into locked root entities.
type Importer struct {
	mapping *mapping.Mapping
	logger  *slog.Logger
}

// NewImporter creates an importer using m for tag normalisation and
// wrapper detection.
func NewImporter(m *mapping.Mapping, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{mapping: m, logger: logger}
}

// ParseFile imports the asset file at path. rel is the game-relative path of
// the file; the entities' export file is "<appID>/<rel without .xml>".
func (im *Importer) ParseFile(path, assetType, appID, rel string) ([]*entity.Root, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()

	roots, err := im.Parse(f, assetType, appID, rel)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return roots, nil
}

// frame is one open XML element. A nil node marks a skipped wrapper.
type frame struct {
	node entity.Entity
	text strings.Builder
}

// Parse imports one XML document. Wrapper tags are skipped at the top of the
// document so every entity below them becomes a root. A document element
// named Override marks every root as an override.
func (im *Importer) Parse(r io.Reader, assetType, appID, rel string) ([]*entity.Root, error) {
	file := appID + "/" + strings.TrimSuffix(rel, ".xml")

	dec := xml.NewDecoder(r)
	var (
		roots    []*entity.Root
		stack    []*frame
		override bool
	)
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := im.mapping.NormalizeTag(qualified(t.Name))
			attrs := attributes(t.Attr)
			parent := top(stack)

			switch {
			case parent == nil || parent.node == nil:
				if len(stack) == 0 && name == mapping.OverrideTag {
					override = true
				}
				if im.mapping.IsWrapper(assetType, name) {
					stack = append(stack, &frame{})
					continue
				}
				stack = append(stack, &frame{node: entity.NewRoot(name, assetType, appID, file, attrs...)})
			default:
				el := entity.NewElement(name, attrs...)
				parent.node.AddChild(el, 0)
				stack = append(stack, &frame{node: el})
			}

		case xml.CharData:
			if f := top(stack); f != nil && f.node != nil {
				f.text.Write(t)
			}

		case xml.EndElement:
			f := top(stack)
			if f == nil {
				return nil, fmt.Errorf("unexpected closing tag %s", qualified(t.Name))
			}
			stack = stack[:len(stack)-1]
			if f.node == nil {
				continue
			}
			if text := strings.TrimSpace(f.text.String()); text != "" {
				f.node.SetValue(text)
			}
			if r, ok := f.node.(*entity.Root); ok {
				r.SetOverride(override)
				r.Lock()
				roots = append(roots, r)
			}
		}
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("unexpected end of document inside %d open elements", len(stack))
	}
	im.logger.Debug("Imported asset", "file", file, "type", assetType, "entities", len(roots))
	return roots, nil
}

func top(stack []*frame) *frame {
	if len(stack) == 0 {
		return nil
	}
	return stack[len(stack)-1]
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func attributes(in []xml.Attr) []entity.Attr {
	out := make([]entity.Attr, 0, len(in))
	for _, a := range in {
		out = append(out, entity.Attr{Name: qualified(a.Name), Value: a.Value})
	}
	return out
}
