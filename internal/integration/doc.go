// Package integration holds end-to-end tests that drive the public
// sharedwatch API against the real filesystem and native notifications.
package integration
