package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/sharedwatch/pkg/sharedwatch"
)

// waitResult is the JSON form of a completed wait.
type waitResult struct {
	Dir     string `json:"dir"`
	Changed bool   `json:"changed"`
	Elapsed string `json:"elapsed"`
}

func newWaitCmd(a *app) *cobra.Command {
	var (
		ignorePatterns []string
		timeout        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wait <dir>",
		Short: "Block until the next change under a directory",
		Long: `Block until something under the directory changes, then exit 0.

With --timeout the command fails if nothing changes in time.`,
		Example: `  # Rebuild whenever sources change
  while sharedwatch wait ./src --ignore build; do make; done

  # Give up after 30 seconds
  sharedwatch wait . --timeout 30s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWait(cmd, a, args[0], ignorePatterns, timeout)
		},
	}

	cmd.Flags().StringArrayVar(&ignorePatterns, "ignore", nil, "Path or glob to ignore (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Fail if nothing changes within this duration (0 = wait forever)")

	return cmd
}

func runWait(cmd *cobra.Command, a *app, dir string, ignorePatterns []string, timeout time.Duration) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	out := a.writer(cmd)
	start := time.Now()

	err = a.runService(cmd.Context(), func(ctx context.Context, svc *sharedwatch.Service) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return svc.WaitForChange(ctx, abs, ignorePatterns)
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("no change under %s within %s", abs, timeout)
	}
	if err != nil {
		return err
	}

	if out.JSON() {
		return out.Value(waitResult{Dir: abs, Changed: true, Elapsed: time.Since(start).Round(time.Millisecond).String()})
	}
	out.Successf("Change detected under %s", abs)
	return nil
}
