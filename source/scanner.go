package source

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/modforge/entity"
	"github.com/c360studio/modforge/mapping"
	"github.com/c360studio/modforge/modfile"
	"github.com/c360studio/modforge/store"
)

// ContentPackageType is the asset type of content package documents.
const ContentPackageType = "ContentPackage"

// nonXMLAssets are asset types whose files are never imported.
var nonXMLAssets = []string{"EnemySubmarine", "Outpost", "BeaconStation", "Wreck", "Submarine", "OutpostModule"}

// translationAssets are imported only when translations are enabled.
var translationAssets = []string{"Text", "NPCConversations"}

var modDirPrefix = regexp.MustCompile(`(?i)^%ModDir%/`)

// ScannerConfig locates application sources.
type ScannerConfig struct {
	// GamePath is the game install directory.
	GamePath string
	// WorkshopPath holds one directory per workshop item id.
	WorkshopPath string
	// Translations enables importing text assets.
	Translations bool
	// Exclude lists doublestar patterns of asset files to skip.
	Exclude []string
}

// Scanner imports all XML assets of an application.
type Scanner struct {
	cfg      ScannerConfig
	mapping  *mapping.Mapping
	importer *Importer
	logger   *slog.Logger
}

// NewScanner creates a scanner.
func NewScanner(cfg ScannerConfig, m *mapping.Mapping, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		cfg:      cfg,
		mapping:  m,
		importer: NewImporter(m, logger),
		logger:   logger,
	}
}

// Path returns the absolute path of rel inside the application's sources.
func (s *Scanner) Path(appID, rel string) string {
	if appID == modfile.GameAppID {
		return filepath.Join(s.cfg.GamePath, filepath.FromSlash(rel))
	}
	return filepath.Join(s.cfg.WorkshopPath, appID, filepath.FromSlash(rel))
}

// ContentPackage returns the application-relative content package path.
func ContentPackage(appID string) string {
	if appID == modfile.GameAppID {
		return "Content/ContentPackages/Vanilla.xml"
	}
	return "filelist.xml"
}

// IsValid reports whether the application has a content package to scan.
func (s *Scanner) IsValid(appID string) bool {
	_, err := os.Stat(s.Path(appID, ContentPackage(appID)))
	return err == nil
}

// Scan imports the application's content package and every XML asset it
// lists into a new root store named after appID.
func (s *Scanner) Scan(appID string) (*store.Store, error) {
	st := store.NewRoot(appID, s.mapping, s.logger)

	rel := ContentPackage(appID)
	packages, err := s.importer.ParseFile(s.Path(appID, rel), ContentPackageType, appID, rel)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", appID, err)
	}

	for _, cp := range packages {
		if err := st.Add(cp); err != nil {
			return nil, err
		}
		for _, asset := range cp.Children() {
			roots, err := s.scanAsset(appID, asset)
			if err != nil {
				return nil, fmt.Errorf("scan %s: %w", appID, err)
			}
			for _, r := range roots {
				if err := st.Add(r); err != nil {
					return nil, err
				}
			}
		}
	}
	s.logger.Info("Scanned application", "app", appID, "entities", st.Len())
	return st, nil
}

func (s *Scanner) scanAsset(appID string, asset *entity.Element) ([]*entity.Root, error) {
	assetType := asset.Name()
	if slices.Contains(nonXMLAssets, assetType) || !s.mapping.IsXMLAsset(assetType) {
		return nil, nil
	}
	if !s.cfg.Translations && slices.Contains(translationAssets, assetType) {
		return nil, nil
	}
	file, ok := asset.Attribute("file")
	if !ok || file == "" {
		return nil, nil
	}
	file = filepath.ToSlash(modDirPrefix.ReplaceAllString(file, ""))

	for _, pattern := range s.cfg.Exclude {
		if match, _ := doublestar.Match(pattern, file); match {
			s.logger.Debug("Skipped excluded asset", "app", appID, "file", file, "pattern", pattern)
			return nil, nil
		}
	}

	path := s.Path(appID, file)
	if _, err := os.Stat(path); err != nil {
		s.logger.Warn("Asset file is missing", "app", appID, "type", assetType, "file", file)
		return nil, nil
	}
	return s.importer.ParseFile(path, assetType, appID, file)
}
