// Package logging provides opt-in file-based logging with rotation for sharedwatch.
// When the --debug flag is set, logs are written to ~/.sharedwatch/logs/ as JSON
// in addition to stderr. Rotation is serialized across processes sharing the
// same log file with an advisory lock file.
//
// By default (without --debug), logging goes to stderr only.
package logging
