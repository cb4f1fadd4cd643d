// Package export writes modified entities as a Barotrauma content package:
// one XML file per export file plus the filelist.xml listing them.
package export

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/c360studio/modforge/entity"
	"github.com/c360studio/modforge/mapping"
)

const (
	// ContentPackageTag is the tag and asset type of content packages.
	ContentPackageTag = "ContentPackage"
	// ContentPackageFile is the export file of the mod's content package.
	ContentPackageFile = "filelist"
	// OverrideSuffix marks export files whose entities replace others.
	OverrideSuffix = ".override"

	modDir = "%ModDir%"
)

var (
	// ErrMixedTypes is returned when entities of different asset types
	// share an export file.
	ErrMixedTypes = errors.New("multiple asset types in one file")
	// ErrNotXML is returned for asset types that have no XML form.
	ErrNotXML = errors.New("asset type is not an XML asset")
	// ErrUnsafePath is returned for export paths leaving the output folder.
	ErrUnsafePath = errors.New("export path outside the output folder")
)

// Wrappers resolves the wrapper tag of an asset type.
type Wrappers interface {
	Wrapper(assetType string) (string, bool)
}

// Build describes one mod export.
type Build struct {
	// Dir is the output root; the mod is written to Dir/Folder.
	Dir    string
	Folder string
	// CorePackage mods write override entities to their own files.
	CorePackage bool
	// AppNames maps application ids in export paths to folder names.
	AppNames map[string]string
	// ContentPackage receives one asset element per written file.
	ContentPackage *entity.Root
	Roots          []*entity.Root
}

// Writer renders builds to disk.
type Writer struct {
	wrappers Wrappers
	logger   *slog.Logger
}

// NewWriter creates a writer.
func NewWriter(w Wrappers, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{wrappers: w, logger: logger}
}

// file is one output document.
type file struct {
	name     string
	typ      string
	wrapper  string
	override bool
	roots    []*entity.Root
}

// Write recreates Dir/Folder and writes the build into it. It returns the
// written files relative to the mod folder, filelist.xml last.
func (w *Writer) Write(ctx context.Context, b Build) ([]string, error) {
	if b.ContentPackage == nil {
		return nil, errors.New("export: missing content package")
	}
	out, err := folderPath(b.Dir, b.Folder)
	if err != nil {
		return nil, err
	}

	files, err := w.plan(b)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		b.ContentPackage.AddChild(entity.NewElement(f.typ,
			entity.Attr{Name: "file", Value: modDir + "/" + f.name + ".xml"}), 0)
	}
	files = append(files, &file{
		name:  ContentPackageFile,
		typ:   ContentPackageTag,
		roots: []*entity.Root{b.ContentPackage},
	})

	if err := os.RemoveAll(out); err != nil {
		return nil, fmt.Errorf("remove mod folder: %w", err)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, fmt.Errorf("create mod folder: %w", err)
	}

	written := make([]string, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel := f.name + ".xml"
		if err := writeFile(filepath.Join(out, filepath.FromSlash(rel)), f); err != nil {
			return nil, fmt.Errorf("write %s: %w", rel, err)
		}
		w.logger.Debug("Wrote file", "file", rel, "type", f.typ, "entities", len(f.roots))
		written = append(written, rel)
	}
	return written, nil
}

// plan groups roots by export file in order of first appearance.
func (w *Writer) plan(b Build) ([]*file, error) {
	var files []*file
	byName := make(map[string]*file)
	for _, r := range b.Roots {
		name := exportName(r, b.AppNames)
		override := r.Override() && !b.CorePackage
		if override {
			name += OverrideSuffix
		}
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return nil, fmt.Errorf("%w: %s", ErrUnsafePath, name)
		}

		f, ok := byName[name]
		if !ok {
			wrapper, ok := w.wrappers.Wrapper(r.Type())
			if !ok {
				return nil, fmt.Errorf("%w: %s in file %s", ErrNotXML, r.Type(), name)
			}
			f = &file{name: name, typ: r.Type(), wrapper: wrapper, override: override}
			byName[name] = f
			files = append(files, f)
		}
		if f.typ != r.Type() {
			return nil, fmt.Errorf("%w: %s and %s in %s", ErrMixedTypes, f.typ, r.Type(), name)
		}
		f.roots = append(f.roots, r)
	}
	return files, nil
}

// exportName is the root's export file with a leading application id
// replaced by the application name.
func exportName(r *entity.Root, appNames map[string]string) string {
	name := path.Clean(strings.ReplaceAll(r.File(), "\\", "/"))
	head, rest, found := strings.Cut(name, "/")
	if n, ok := appNames[head]; ok && found {
		return n + "/" + rest
	}
	return name
}

func folderPath(dir, folder string) (string, error) {
	if strings.TrimSpace(folder) == "" || !filepath.IsLocal(folder) {
		return "", fmt.Errorf("%w: folder %q", ErrUnsafePath, folder)
	}
	return filepath.Join(dir, folder), nil
}

func writeFile(p string, f *file) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	out, err := os.Create(p)
	if err != nil {
		return err
	}
	if err := encode(out, f); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func encode(out io.Writer, f *file) error {
	if _, err := io.WriteString(out, `<?xml version="1.0" encoding="UTF-8"?>`+"\n"); err != nil {
		return err
	}
	enc := xml.NewEncoder(out)
	enc.Indent("", "  ")

	var open []xml.StartElement
	if f.override {
		open = append(open, xml.StartElement{Name: xml.Name{Local: mapping.OverrideTag}})
	}
	if f.wrapper != "" && len(f.roots) > 1 {
		open = append(open, xml.StartElement{Name: xml.Name{Local: f.wrapper}})
	}
	for _, s := range open {
		if err := enc.EncodeToken(s); err != nil {
			return err
		}
	}
	for _, r := range f.roots {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode %s: %w", r.Describe(), err)
		}
	}
	for i := len(open) - 1; i >= 0; i-- {
		if err := enc.EncodeToken(open[i].End()); err != nil {
			return err
		}
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(out, "\n")
	return err
}
