package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Aman-CERP/sharedwatch/internal/ignore"
	"github.com/Aman-CERP/sharedwatch/internal/source"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status by name.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose   bool
	output    io.Writer
	backend   string
	recursive bool
	matcher   *ignore.Matcher

	// inotifyLimitPath is read for the inotify watch limit.
	inotifyLimitPath string
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// WithBackend sets the configured source backend. Native watching is only
// required when the backend is fsnotify.
func WithBackend(backend string, recursive bool) Option {
	return func(c *Checker) {
		c.backend = backend
		c.recursive = recursive
	}
}

// WithIgnore sets the matcher used to skip ignored directories when counting.
func WithIgnore(m *ignore.Matcher) Option {
	return func(c *Checker) {
		c.matcher = m
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output:           os.Stdout,
		backend:          source.BackendAuto,
		recursive:        true,
		inotifyLimitPath: defaultInotifyLimitPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs all preflight checks for dir and returns the results. The
// remaining checks are skipped when dir cannot be watched at all.
func (c *Checker) RunAll(ctx context.Context, dir string) []CheckResult {
	results := []CheckResult{c.CheckDirectory(dir)}
	if results[0].Status == StatusFail {
		return results
	}

	results = append(results, c.CheckFileDescriptors())
	results = append(results, c.CheckInotifyWatches(ctx, dir))
	results = append(results, c.CheckNativeWatch(dir))
	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status == StatusWarn || r.Status == StatusFail {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "sharedwatch System Check")
	_, _ = fmt.Fprintln(c.output, "========================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Details != "" && (c.verbose || r.Status != StatusPass) {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))
}

// CheckDirectory checks that dir exists, is a directory and can be listed.
func (c *Checker) CheckDirectory(dir string) CheckResult {
	result := CheckResult{
		Name:     "directory",
		Required: true,
	}

	if err := source.ValidateRoot(dir); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	if _, err := os.ReadDir(dir); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot list directory: %v", err)
		return result
	}

	result.Status = StatusPass
	result.Message = dir
	return result
}
