package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "modforge.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/modforge"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Environment variables overriding paths.
const (
	EnvGame     = "BMF_PATH_GAME"
	EnvWorkshop = "BMF_PATH_WORKSHOP"
	EnvInput    = "BMF_PATH_INPUT"
	EnvOutput   = "BMF_PATH_OUTPUT"
	EnvMapping  = "BMF_PATH_MAPPING"
)

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger

	// Overridable in tests.
	getenv  func(string) string
	workDir func() (string, error)
	homeDir func() (string, error)
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger:  logger,
		getenv:  os.Getenv,
		workDir: os.Getwd,
		homeDir: os.UserHomeDir,
	}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/modforge/config.yaml)
// 3. Project config (modforge.yaml in current or parent directories)
// 4. Environment variables (BMF_PATH_*)
//
// ${VAR} and ${VAR:-default} references in config files are expanded.
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfigPath != "" {
		if userConfig, err := l.loadFile(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(userConfig)
		} else if !os.IsNotExist(err) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		projectConfig, err := l.loadFile(projectConfigPath)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
		l.resolveRelative(projectConfig, filepath.Dir(projectConfigPath))
		config.Merge(projectConfig)
	} else {
		l.logger.Debug("No project config found")
	}

	l.applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()
	if _, err := os.Stat(userConfigPath); err == nil {
		return nil
	}

	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

func (l *Loader) loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse([]byte(l.expandEnv(string(data))))
}

// expandEnv replaces ${VAR} and ${VAR:-default}.
func (l *Loader) expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := envPattern.FindStringSubmatch(m)
		if v := l.getenv(sub[1]); v != "" {
			return v
		}
		return sub[2]
	})
}

// resolveRelative makes project config paths relative to the file's directory.
func (l *Loader) resolveRelative(c *Config, dir string) {
	for _, p := range []*string{
		&c.Paths.Game, &c.Paths.Workshop, &c.Paths.Input, &c.Paths.Output,
		&c.Mapping.File, &c.SteamCMD.Dir, &c.Metrics.Textfile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

func (l *Loader) applyEnv(c *Config) {
	for env, dst := range map[string]*string{
		EnvGame:     &c.Paths.Game,
		EnvWorkshop: &c.Paths.Workshop,
		EnvInput:    &c.Paths.Input,
		EnvOutput:   &c.Paths.Output,
		EnvMapping:  &c.Mapping.File,
	} {
		if v := strings.TrimSpace(l.getenv(env)); v != "" {
			*dst = v
			l.logger.Debug("Config from environment", slog.String("var", env))
		}
	}
}

func (l *Loader) userConfigPath() string {
	home, err := l.homeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for modforge.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := l.workDir()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
