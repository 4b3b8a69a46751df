package cmd

import (
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/sharedwatch/internal/ignore"
	"github.com/Aman-CERP/sharedwatch/internal/preflight"
)

// errCheckFailed is returned when a required check fails.
var errCheckFailed = errors.New("system check failed")

func newDoctorCmd(a *app) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor [dir]",
		Short: "Check that a directory can be watched",
		Long: `Run system diagnostics for watching a directory with the configured backend.

Checks:
  - The directory exists and can be listed
  - File descriptor limit (1024 minimum)
  - inotify watch limit against the directories a recursive watch adds
  - Native (fsnotify) watching works for the directory

Native checks are warnings unless source.backend is fsnotify.`,
		Example: `  # Check the current directory
  sharedwatch doctor

  # Machine-readable output
  sharedwatch doctor ./src --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runDoctor(cmd, a, dir, verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")

	return cmd
}

func runDoctor(cmd *cobra.Command, a *app, dir string, verbose bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	var gitignore []string
	if a.cfg.Ignore.Gitignore {
		if gitignore, err = ignore.ReadGitignore(abs); err != nil {
			slog.Warn("gitignore unreadable", slog.String("dir", abs), slog.String("error", err.Error()))
		}
	}
	matcher, err := ignore.Compile(abs, a.cfg.Ignore.Patterns, gitignore...)
	if err != nil {
		return err
	}

	out := a.writer(cmd)
	checker := preflight.New(
		preflight.WithOutput(cmd.OutOrStdout()),
		preflight.WithBackend(a.cfg.Source.Backend, a.cfg.Source.Recursive),
		preflight.WithIgnore(matcher),
		preflight.WithVerbose(verbose),
	)
	results := checker.RunAll(cmd.Context(), abs)

	if out.JSON() {
		if err := out.Value(doctorReport{Status: checker.SummaryStatus(results), Checks: results}); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return errCheckFailed
	}
	return nil
}

type doctorReport struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}
