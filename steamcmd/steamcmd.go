// Package steamcmd installs and updates the game through SteamCMD.
package steamcmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
)

// GameAppID is the Steam application id of Barotrauma.
const GameAppID = "1026340"

var (
	// ErrNoBuildID is returned when SteamCMD reports no public build.
	ErrNoBuildID = errors.New("steamcmd: unable to read build id")
	// ErrNotInstalled is returned when an update ends without the success line.
	ErrNotInstalled = errors.New("steamcmd: update did not report success")
)

var buildIDPattern = regexp.MustCompile(`(?s)"branches"\s*\{\s*"public"\s*\{\s*"buildid"\s*"(\d+)"`)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%w: %s", err, out)
	}
	return out, nil
}

// Config configures an Installer.
type Config struct {
	// Binary is the steamcmd executable. Defaults to "steamcmd".
	Binary string
	// AppID defaults to GameAppID.
	AppID string
	// Dir receives one <AppID>/<build id> folder per installed build.
	Dir string
}

// Installation describes an installed build.
type Installation struct {
	AppID   string
	BuildID string
	Path    string
	// Updated is false when the build was already present.
	Updated bool
}

// Installer drives SteamCMD.
type Installer struct {
	config Config
	run    Runner
	logger *slog.Logger
}

// NewInstaller creates an installer. A nil runner executes the binary.
func NewInstaller(config Config, run Runner, logger *slog.Logger) *Installer {
	if config.Binary == "" {
		config.Binary = "steamcmd"
	}
	if config.AppID == "" {
		config.AppID = GameAppID
	}
	if run == nil {
		run = execRunner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{config: config, run: run, logger: logger}
}

// BuildID asks Steam for the current public build of the application.
func (i *Installer) BuildID(ctx context.Context) (string, error) {
	out, err := i.steam(ctx, "+login", "anonymous", "+app_info_update", "1", "+app_info_print", i.config.AppID)
	if err != nil {
		return "", err
	}
	m := buildIDPattern.FindSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("%w for app %s", ErrNoBuildID, i.config.AppID)
	}
	if n, err := strconv.Atoi(string(m[1])); err != nil || n == 0 {
		return "", fmt.Errorf("%w for app %s", ErrNoBuildID, i.config.AppID)
	}
	return string(m[1]), nil
}

// Install makes sure the current build is installed. With force the build is
// validated again even when its folder exists.
func (i *Installer) Install(ctx context.Context, force bool) (*Installation, error) {
	buildID, err := i.BuildID(ctx)
	if err != nil {
		return nil, err
	}
	inst := &Installation{
		AppID:   i.config.AppID,
		BuildID: buildID,
		Path:    filepath.Join(i.config.Dir, i.config.AppID, buildID),
	}
	if _, err := os.Stat(inst.Path); err == nil && !force {
		i.logger.Info("Build already installed", "app", inst.AppID, "build", buildID, "path", inst.Path)
		return inst, nil
	}
	if err := os.MkdirAll(inst.Path, 0o755); err != nil {
		return nil, fmt.Errorf("prepare install directory: %w", err)
	}

	dir, err := filepath.Abs(inst.Path)
	if err != nil {
		return nil, err
	}
	out, err := i.steam(ctx, "+force_install_dir", dir, "+login", "anonymous", "+app_update", i.config.AppID, "validate")
	if err == nil && !i.installed(out) {
		i.logger.Error("SteamCMD update failed", "app", inst.AppID, "build", buildID, "output", string(out))
		err = fmt.Errorf("%w: app %s build %s", ErrNotInstalled, inst.AppID, buildID)
	}
	if err != nil {
		// A half-installed build must not pass for an installed one next time.
		if !force {
			_ = os.RemoveAll(inst.Path)
		}
		return nil, err
	}
	inst.Updated = true
	i.logger.Info("Build installed", "app", inst.AppID, "build", buildID, "path", inst.Path)
	return inst, nil
}

func (i *Installer) installed(out []byte) bool {
	success := regexp.MustCompile(`Success! App '` + regexp.QuoteMeta(i.config.AppID) + `' fully installed\.`)
	return success.Match(out)
}

func (i *Installer) steam(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"+@ShutdownOnFailedCommand", "1", "+@NoPromptForPassword", "1"}, args...)
	full = append(full, "+quit")
	i.logger.Debug("Running SteamCMD", "args", full)
	out, err := i.run(ctx, i.config.Binary, full...)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", i.config.Binary, err)
	}
	return out, nil
}
