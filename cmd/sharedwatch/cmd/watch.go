package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/sharedwatch/pkg/sharedwatch"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		ignorePatterns []string
		count          int
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Print changes under a directory until interrupted",
		Long: `Watch a directory and print every debounced batch of changes.

On a terminal each change is printed as one line. Otherwise, or with --json,
each batch is printed as one JSON object per line.`,
		Example: `  # Watch the current directory
  sharedwatch watch .

  # Ignore build output and stop after the first batch
  sharedwatch watch ./src --ignore build --ignore '**/*.tmp' --count 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, a, args[0], ignorePatterns, count)
		},
	}

	cmd.Flags().StringArrayVar(&ignorePatterns, "ignore", nil, "Path or glob to ignore (repeatable)")
	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many batches (0 = until interrupted)")

	return cmd
}

func runWatch(cmd *cobra.Command, a *app, dir string, ignorePatterns []string, count int) error {
	if count < 0 {
		return fmt.Errorf("--count must be non-negative, got %d", count)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	out := a.writer(cmd)

	return a.runService(cmd.Context(), func(ctx context.Context, svc *sharedwatch.Service) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			mu       sync.Mutex
			batches  int
			printErr error
		)
		cb := sharedwatch.NewCallback(func(b sharedwatch.Batch) {
			mu.Lock()
			defer mu.Unlock()
			if count > 0 && batches >= count {
				return
			}
			if err := out.Batch(abs, b.Events()); err != nil && printErr == nil {
				printErr = err
				cancel()
				return
			}
			batches++
			if count > 0 && batches >= count {
				cancel()
			}
		})

		if _, err := svc.Watch(abs, ignorePatterns, cb); err != nil {
			return err
		}
		if !out.JSON() {
			fmt.Fprintf(cmd.ErrOrStderr(), "👀 Watching %s (Ctrl+C to stop)\n", abs)
		}

		<-ctx.Done()
		if _, err := svc.Unwatch(abs, ignorePatterns, cb); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		return printErr
	})
}
