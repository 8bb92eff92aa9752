package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/frederic-klein/yapp/internal/config"
	"github.com/frederic-klein/yapp/internal/environment"
	"github.com/frederic-klein/yapp/internal/installed"
	"github.com/frederic-klein/yapp/internal/manifest"
	"github.com/frederic-klein/yapp/internal/plugins"
	"github.com/frederic-klein/yapp/internal/requirement"
	"github.com/frederic-klein/yapp/internal/snapshot"
	"github.com/frederic-klein/yapp/internal/update"
)

var (
	configPath string
	verbose    bool
	dryRun     bool
	format     string
)

// exitError carries a status that was already reported by the update pipeline.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdin)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintln(stderr, color.RedString("Error: %v", err))
		return 1
	}
	return 0
}

func newRootCmd(stdin io.Reader) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "yapp",
		Short:         "Manage plugins of the poetry installation",
		Long:          "yapp installs plugins into the environment poetry itself runs in, keeping everything already installed there.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	pluginCmd := &cobra.Command{
		Use:   "plugin",
		Short: "Manage global plugins",
	}

	addCmd := &cobra.Command{
		Use:   "add <plugins>...",
		Short: "Add new plugins",
		Long: `Add new plugins to the poetry environment.

Plugins can be given as a name with an optional constraint (poetry-plugin@^1.0),
a VCS URL (git+https://github.com/org/plugin.git#main), a local path
(../my-plugin/) or an archive URL. Extras may follow any form in brackets.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, stdin, args)
		},
	}
	addCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Output the operations but do not execute anything")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show information about the currently installed plugins",
		Args:  cobra.NoArgs,
		RunE:  runShow,
	}
	showCmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, yaml)")

	pluginCmd.AddCommand(addCmd, showCmd)
	rootCmd.AddCommand(pluginCmd)
	return rootCmd
}

type app struct {
	fs     afero.Fs
	cfg    *config.Config
	logger *log.Logger
	envs   *environment.Manager
	loader *installed.Loader
}

func setup(cmd *cobra.Command) (*app, error) {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Prefix: "yapp",
		Level:  level,
	})

	fs := afero.NewOsFs()
	cfg, err := config.Load(fs, config.LoadOptions{ConfigFile: configPath})
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &app{
		fs:     fs,
		cfg:    cfg,
		logger: logger,
		envs:   environment.NewManager(fs, cfg.Python, cfg.Env.Path, environment.ExecRunner, logger),
		loader: installed.NewLoader(fs),
	}, nil
}

func runAdd(cmd *cobra.Command, stdin io.Reader, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	pipeline, err := update.NewExecPipeline(a.cfg.Update.Command, a.logger)
	if err != nil {
		return err
	}

	adder := plugins.NewAdder(plugins.Deps{
		Parser:      requirement.NewParser(a.fs, wd),
		Envs:        a.envs,
		Loader:      a.loader,
		Snapshotter: snapshot.New(a.cfg.HostPackage, snapshot.NewExclusions(a.cfg.UnsafePackages...), a.cfg.PluginGroups),
		Writer:      manifest.NewWriter(a.fs),
		Executor:    update.NewExecutor(a.fs, pipeline, stdin),
		Logger:      a.logger,
	}, a.cfg.Home, update.InstallerConfig{
		Parallel:   a.cfg.Installer.Parallel,
		MaxWorkers: a.cfg.Installer.MaxWorkers,
		NoCache:    a.cfg.Installer.NoCache,
	})

	code, err := adder.Add(cmd.Context(), plugins.AddOptions{Plugins: args, DryRun: dryRun}, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	if format != "text" && format != "yaml" {
		return fmt.Errorf("unknown format %q, expected text or yaml", format)
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}

	list, err := plugins.NewLister(a.envs, a.loader, a.cfg.PluginGroups).List(cmd.Context())
	if err != nil {
		return err
	}

	if format == "yaml" {
		return plugins.WriteYAML(cmd.OutOrStdout(), list)
	}
	return plugins.WriteText(cmd.OutOrStdout(), list)
}
