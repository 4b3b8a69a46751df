// Package configs embeds the commented configuration files written by
// `sharedwatch config init`.
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults
//  2. User config (~/.config/sharedwatch/config.yaml)
//  3. Project config (.sharedwatch.yaml)
//  4. Environment variables (SHAREDWATCH_*)
package configs

import _ "embed"

// UserConfigTemplate holds machine-level settings: source backend, loop and
// logging.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate holds settings that travel with a project: debounce
// timings and ignore rules.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
