// Package cmd provides the CLI commands for sharedwatch.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/sharedwatch/internal/config"
	"github.com/Aman-CERP/sharedwatch/internal/logging"
	"github.com/Aman-CERP/sharedwatch/internal/output"
	"github.com/Aman-CERP/sharedwatch/internal/profiling"
	"github.com/Aman-CERP/sharedwatch/pkg/version"
)

// app carries state shared by every command of one invocation.
type app struct {
	debug      bool
	jsonOutput bool
	configDir  string
	profile    profiling.Options

	cfg      *config.Config
	logger   *slog.Logger
	cleanup  func()
	profiler *profiling.Session
}

// NewRootCmd creates the root command for the sharedwatch CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "sharedwatch",
		Short: "Shared, debounced directory watching",
		Long: `sharedwatch watches directories and reports debounced batches of
file changes. Every watcher of the same directory and ignore set shares one
event source.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/sharedwatch/config.yaml)
  3. Project config (.sharedwatch.yaml)
  4. Environment variables (SHAREDWATCH_*)`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { a.teardown() },
	}

	cmd.SetVersionTemplate("sharedwatch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging to ~/.sharedwatch/logs/")
	cmd.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Force JSON output")
	cmd.PersistentFlags().StringVar(&a.configDir, "project", ".", "Directory searched for a project config file")

	cmd.PersistentFlags().StringVar(&a.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&a.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&a.profile.Trace, "profile-trace", "", "Write execution trace to file")
	cmd.PersistentFlags().StringVar(&a.profile.Goroutine, "profile-goroutine", "", "Write goroutine dump to file on exit")
	cmd.PersistentFlags().StringVar(&a.profile.Block, "profile-block", "", "Write blocking profile to file")
	cmd.PersistentFlags().StringVar(&a.profile.Mutex, "profile-mutex", "", "Write mutex contention profile to file")

	cmd.AddCommand(newWatchCmd(a))
	cmd.AddCommand(newWaitCmd(a))
	cmd.AddCommand(newDoctorCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newVersionCmd(a))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// setup loads configuration and installs the logger.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configDir)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, cleanup, err := logging.Setup(a.loggingConfig())
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	a.logger = logger
	a.cleanup = cleanup
	slog.SetDefault(logger)

	if a.debug {
		slog.Debug("debug logging enabled",
			slog.String("log_file", a.loggingConfig().FilePath),
			slog.String("version", version.Version))
	}

	if a.profile.Enabled() {
		a.profiler, err = profiling.Start(a.profile)
		if err != nil {
			a.teardown()
			return err
		}
	}
	return nil
}

// loggingConfig maps the logging section onto the logger setup. Without a
// log file only warnings reach the terminal.
func (a *app) loggingConfig() logging.Config {
	lc := a.cfg.Logging
	switch {
	case a.debug:
		path := lc.File
		if path == "" {
			path = logging.DefaultLogPath()
		}
		return logging.Config{Level: "debug", FilePath: path, MaxSizeMB: lc.MaxSizeMB, MaxFiles: lc.MaxFiles}
	case lc.File != "":
		return logging.Config{Level: lc.Level, FilePath: lc.File, MaxSizeMB: lc.MaxSizeMB, MaxFiles: lc.MaxFiles}
	default:
		return logging.Config{Level: "warn", Text: true}
	}
}

func (a *app) teardown() {
	if a.profiler != nil {
		if err := a.profiler.Stop(); err != nil {
			slog.Warn("profiling incomplete", slog.String("error", err.Error()))
		}
		a.profiler = nil
	}
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
}

// writer returns the output writer for cmd, honoring --json.
func (a *app) writer(cmd *cobra.Command) *output.Writer {
	w := output.New(cmd.OutOrStdout())
	if a.jsonOutput {
		w.WithJSON(true)
	}
	return w
}
