// Package config provides configuration loading and management for modforge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete modforge configuration
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Mapping  MappingConfig  `yaml:"mapping"`
	SteamCMD SteamCMDConfig `yaml:"steamcmd"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	NATS     NATSConfig     `yaml:"nats"`
	Watch    WatchConfig    `yaml:"watch"`
	Build    BuildConfig    `yaml:"build"`
}

// PathsConfig locates the game, workshop items, mod sources and output
type PathsConfig struct {
	// Game is the installed game directory
	Game string `yaml:"game"`
	// Workshop holds one directory per workshop item id
	Workshop string `yaml:"workshop"`
	// Input holds one directory per mod source
	Input string `yaml:"input"`
	// Output receives the compiled mod folders
	Output string `yaml:"output"`
}

// MappingConfig configures tag and asset type tables
type MappingConfig struct {
	// File is merged over the built-in tables (empty = built-in only)
	File string `yaml:"file"`
}

// SteamCMDConfig configures game installation
type SteamCMDConfig struct {
	Binary string `yaml:"binary"`
	AppID  string `yaml:"app_id"`
	// Dir receives installed builds as <app id>/<build id>
	Dir string `yaml:"dir"`
}

// MetricsConfig configures the Prometheus textfile
type MetricsConfig struct {
	// Textfile is written after every build (empty = disabled)
	Textfile string `yaml:"textfile"`
}

// NATSConfig configures build notifications
type NATSConfig struct {
	// URL is the NATS server URL (empty = disabled)
	URL string `yaml:"url"`
	// SubjectPrefix is prepended to the mod name
	SubjectPrefix string `yaml:"subject_prefix"`
}

// WatchConfig configures the rebuild-on-change loop
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	// Ignore holds glob patterns relative to the mod directory
	Ignore []string `yaml:"ignore"`
}

// BuildConfig configures compilation
type BuildConfig struct {
	// Translations imports text assets of every application
	Translations bool `yaml:"translations"`
	// Exclude holds glob patterns of asset files to skip on import
	Exclude []string `yaml:"exclude"`
	// QueryCache bounds the parsed query cache (0 = default)
	QueryCache int `yaml:"query_cache"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Game:     "Barotrauma",
			Workshop: "WorkShop",
			Input:    "ModSources",
			Output:   "LocalMods",
		},
		SteamCMD: SteamCMDConfig{
			Binary: "steamcmd",
			AppID:  "1026340",
			Dir:    "Steam",
		},
		NATS: NATSConfig{
			SubjectPrefix: "modforge.build",
		},
		Watch: WatchConfig{
			Debounce: 250 * time.Millisecond,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Paths.Input == "" {
		return fmt.Errorf("paths.input is required")
	}
	if c.Paths.Output == "" {
		return fmt.Errorf("paths.output is required")
	}
	if c.Paths.Game == "" {
		return fmt.Errorf("paths.game is required")
	}
	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive")
	}
	if c.Build.QueryCache < 0 {
		return fmt.Errorf("build.query_cache must not be negative")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML config. Unset fields stay zero so the result can be
// merged over defaults.
func Parse(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Paths
	setString(&c.Paths.Game, other.Paths.Game)
	setString(&c.Paths.Workshop, other.Paths.Workshop)
	setString(&c.Paths.Input, other.Paths.Input)
	setString(&c.Paths.Output, other.Paths.Output)

	setString(&c.Mapping.File, other.Mapping.File)

	setString(&c.SteamCMD.Binary, other.SteamCMD.Binary)
	setString(&c.SteamCMD.AppID, other.SteamCMD.AppID)
	setString(&c.SteamCMD.Dir, other.SteamCMD.Dir)

	setString(&c.Metrics.Textfile, other.Metrics.Textfile)

	setString(&c.NATS.URL, other.NATS.URL)
	setString(&c.NATS.SubjectPrefix, other.NATS.SubjectPrefix)

	// Watch
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if len(other.Watch.Ignore) > 0 {
		c.Watch.Ignore = other.Watch.Ignore
	}

	// Build
	if other.Build.Translations {
		c.Build.Translations = true
	}
	if len(other.Build.Exclude) > 0 {
		c.Build.Exclude = other.Build.Exclude
	}
	if other.Build.QueryCache != 0 {
		c.Build.QueryCache = other.Build.QueryCache
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
