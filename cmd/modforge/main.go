// Package main provides the modforge binary entry point.
// Modforge compiles YAML mod definitions into Barotrauma content packages.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/modforge/config"
	"github.com/c360studio/modforge/events"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "modforge"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the persistent flags shared by all commands.
type options struct {
	logLevel string
	game     string
	input    string
	output   string
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Barotrauma mod compiler",
		Long: `Modforge compiles YAML mod definitions into Barotrauma content packages.

A mod directory holds a filelist.yml that selects entities of the game and
of workshop items with queries, changes them, and lists further files to
include. The modified entities are written as a content package folder.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.game, "game", "", "Game directory (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.input, "input", "", "Mod sources directory (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.output, "output", "", "Output directory (overrides config)")

	cmd.AddCommand(buildCmd(opts), watchCmd(opts), queryCmd(opts), installCmd(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	return cmd
}

func buildCmd(opts *options) *cobra.Command {
	var (
		mod         string
		forceUpdate bool
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile one mod or every mod in the input directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, app *App) error {
				if forceUpdate {
					if _, err := app.Install(ctx, true); err != nil {
						return fmt.Errorf("update game: %w", err)
					}
				}
				if mod != "" {
					r, err := app.Build(ctx, mod)
					if err != nil {
						return err
					}
					printReport(cmd, r.Mod, r.Files)
					return nil
				}
				reports, err := app.BuildAll(ctx)
				for _, r := range reports {
					printReport(cmd, r.Mod, r.Files)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&mod, "mod", "", "Mod directory name (default: all mods)")
	cmd.Flags().BoolVar(&forceUpdate, "force-update", false, "Install or validate the current game build first")
	return cmd
}

func watchCmd(opts *options) *cobra.Command {
	var mod string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild a mod whenever its sources change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, app *App) error {
				return app.Watch(ctx, mod)
			})
		},
	}
	cmd.Flags().StringVar(&mod, "mod", "", "Mod directory name")
	_ = cmd.MarkFlagRequired("mod")
	return cmd
}

func queryCmd(opts *options) *cobra.Command {
	var mod, app string
	cmd := &cobra.Command{
		Use:   "query QUERY",
		Short: "Print what a query selects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *App) error {
				lines, err := a.Query(ctx, mod, app, args[0])
				if err != nil {
					return err
				}
				for _, l := range lines {
					fmt.Fprintln(cmd.OutOrStdout(), l)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mod, "mod", "", "Mod directory name")
	cmd.Flags().StringVar(&app, "context", "", "Application name (default: active context)")
	_ = cmd.MarkFlagRequired("mod")
	return cmd
}

func installCmd(opts *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the current game build with SteamCMD",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, app *App) error {
				inst, err := app.Install(ctx, force)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "build %s installed at %s\n", inst.BuildID, inst.Path)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Validate the build even when it is present")
	return cmd
}

func printReport(cmd *cobra.Command, mod string, files []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files\n", mod, len(files))
	for _, f := range files {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", f)
	}
}

// withApp configures logging, loads the configuration and runs fn until it
// returns or the process is interrupted.
func withApp(parent context.Context, opts *options, fn func(context.Context, *App) error) error {
	if parent == nil {
		parent = context.Background()
	}
	logger := newLogger(opts.logLevel)
	slog.SetDefault(logger)

	cfg, err := config.NewLoader(logger).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	publisher, closeNATS, err := events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
	if err != nil {
		return err
	}
	defer closeNATS()

	app, err := NewApp(cfg, publisher, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return fn(ctx, app)
}

func applyFlags(cfg *config.Config, opts *options) {
	if opts.game != "" {
		cfg.Paths.Game = opts.game
	}
	if opts.input != "" {
		cfg.Paths.Input = opts.input
	}
	if opts.output != "" {
		cfg.Paths.Output = opts.output
	}
}

func newLogger(level string) *slog.Logger {
	l := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
