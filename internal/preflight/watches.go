package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/sharedwatch/internal/source"
)

const defaultInotifyLimitPath = "/proc/sys/fs/inotify/max_user_watches"

// CheckInotifyWatches compares the number of directories the native backend
// would watch with the per-user inotify limit. Systems without inotify pass.
func (c *Checker) CheckInotifyWatches(ctx context.Context, dir string) CheckResult {
	result := CheckResult{
		Name:     "inotify_watches",
		Required: c.backend == source.BackendFsnotify,
	}

	if c.backend == source.BackendPolling {
		result.Status = StatusPass
		result.Message = "not used by the polling backend"
		return result
	}

	data, err := os.ReadFile(c.inotifyLimitPath)
	if errors.Is(err, fs.ErrNotExist) {
		result.Status = StatusPass
		result.Message = "not applicable (no inotify)"
		return result
	}
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot read inotify limit: %v", err)
		return result
	}
	limit, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot parse inotify limit %q", strings.TrimSpace(string(data)))
		return result
	}

	dirs, err := c.countDirs(ctx, dir)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot count directories: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d directories (limit: %d)", dirs, limit)
	if dirs > limit {
		result.Status = StatusFail
		if !result.Required {
			result.Status = StatusWarn
		}
		result.Details = "Raise it with 'sysctl fs.inotify.max_user_watches=524288' or use source.backend: polling"
		return result
	}
	result.Status = StatusPass
	return result
}

// countDirs counts the directories a recursive watch of dir would add,
// skipping ignored subtrees.
func (c *Checker) countDirs(ctx context.Context, dir string) (int, error) {
	if !c.recursive {
		return 1, nil
	}

	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped by the sources too.
			if d != nil && d.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && c.matcher.Match(path) {
			return filepath.SkipDir
		}
		count++
		return nil
	})
	return count, err
}

// CheckNativeWatch checks that fsnotify can watch dir. It is required only
// when the fsnotify backend is configured; auto falls back to polling.
func (c *Checker) CheckNativeWatch(dir string) CheckResult {
	result := CheckResult{
		Name:     "native_watch",
		Required: c.backend == source.BackendFsnotify,
	}

	if c.backend == source.BackendPolling {
		result.Status = StatusPass
		result.Message = "skipped (polling backend)"
		return result
	}

	err := probeFsnotify(dir)
	if err == nil {
		result.Status = StatusPass
		result.Message = "fsnotify OK"
		return result
	}

	result.Message = fmt.Sprintf("fsnotify unavailable: %v", err)
	if result.Required {
		result.Status = StatusFail
		result.Details = "Use source.backend: polling or auto"
	} else {
		result.Status = StatusWarn
		result.Details = "The auto backend will fall back to polling"
	}
	return result
}

func probeFsnotify(dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	return w.Add(dir)
}
