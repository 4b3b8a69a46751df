// Package preflight checks that a directory can be watched before a watch is
// started.
//
// The package validates:
//   - The directory exists and is readable
//   - File descriptor limits (minimum 1024)
//   - inotify watch limits against the number of directories to watch (Linux)
//   - Native (fsnotify) watching works for the directory
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New(preflight.WithIgnore(matcher))
//	results := checker.RunAll(ctx, "/path/to/project")
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
