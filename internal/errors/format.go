package errors

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var we *WatchError
	if !stderrors.As(err, &we) {
		we = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", we.Message)
	if we.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", we.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", we.Code)
	return sb.String()
}

// LogAttrs returns slog attributes describing err, suitable for
// logger.Warn("...", errors.LogAttrs(err)...).
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	var we *WatchError
	if !stderrors.As(err, &we) {
		return []any{slog.String("error", err.Error())}
	}

	attrs := []any{
		slog.String("error_code", we.Code),
		slog.String("error", we.Message),
		slog.String("category", string(we.Category)),
		slog.Bool("retryable", we.Retryable),
	}
	if we.Cause != nil {
		attrs = append(attrs, slog.String("cause", we.Cause.Error()))
	}

	keys := make([]string, 0, len(we.Details))
	for k := range we.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String("detail_"+k, we.Details[k]))
	}
	return attrs
}
