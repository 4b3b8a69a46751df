package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	swerrors "github.com/Aman-CERP/sharedwatch/internal/errors"
	"github.com/Aman-CERP/sharedwatch/internal/ignore"
)

// Project config file names, in lookup order.
const (
	ProjectFileYAML = ".sharedwatch.yaml"
	ProjectFileYML  = ".sharedwatch.yml"
)

// Config represents the complete sharedwatch configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Debounce DebounceConfig `yaml:"debounce" json:"debounce"`
	Source   SourceConfig   `yaml:"source" json:"source"`
	Loop     LoopConfig     `yaml:"loop" json:"loop"`
	Ignore   IgnoreConfig   `yaml:"ignore" json:"ignore"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// DebounceConfig configures how bursts of changes are coalesced.
// Durations use Go syntax ("50ms", "1s").
type DebounceConfig struct {
	// MinWait is the quiet period after the last change before delivery.
	MinWait string `yaml:"min_wait" json:"min_wait"`
	// MaxWait caps how long a continuous burst can postpone delivery.
	MaxWait string `yaml:"max_wait" json:"max_wait"`
}

// SourceConfig configures how changes are detected.
type SourceConfig struct {
	// Backend is "auto" (fsnotify with polling fallback), "fsnotify" or "polling".
	Backend      string `yaml:"backend" json:"backend"`
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
	Recursive    bool   `yaml:"recursive" json:"recursive"`
}

// LoopConfig configures the consumer loop.
type LoopConfig struct {
	// MaxHandles bounds concurrently watched targets. 0 means unlimited.
	MaxHandles   int  `yaml:"max_handles" json:"max_handles"`
	LockOSThread bool `yaml:"lock_os_thread" json:"lock_os_thread"`
}

// IgnoreConfig configures paths excluded from every watch.
type IgnoreConfig struct {
	// Patterns are merged with the defaults rather than replacing them.
	Patterns []string `yaml:"patterns" json:"patterns"`
	// CacheSize bounds the number of compiled matchers kept in memory.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// Gitignore also applies the rules in the watched directory's .gitignore.
	Gitignore bool `yaml:"gitignore" json:"gitignore"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Debounce: DebounceConfig{
			MinWait: "50ms",
			MaxWait: "500ms",
		},
		Source: SourceConfig{
			Backend:      "auto",
			PollInterval: "1s",
			Recursive:    true,
		},
		Loop: LoopConfig{
			MaxHandles:   0,
			LockOSThread: false,
		},
		Ignore: IgnoreConfig{
			Patterns:  ignore.DefaultPatterns(),
			CacheSize: ignore.DefaultCacheSize,
			Gitignore: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      "", // Empty uses ~/.sharedwatch/logs/sharedwatch.log when file logging is on
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/sharedwatch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/sharedwatch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sharedwatch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "sharedwatch", "config.yaml")
	}
	return filepath.Join(home, ".config", "sharedwatch", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the given project directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/sharedwatch/config.yaml)
//  3. Project config (.sharedwatch.yaml in dir)
//  4. Environment variables (SHAREDWATCH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if path := FindProjectConfig(dir); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindProjectConfig returns the project config file in dir, or "" if none.
// .yaml takes precedence over .yml.
func FindProjectConfig(dir string) string {
	for _, name := range []string{ProjectFileYAML, ProjectFileYML} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// loadYAML overlays the keys present in the file onto c. Ignore patterns are
// appended to the current list rather than replacing it.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return swerrors.New(swerrors.ErrCodeConfigNotFound, fmt.Sprintf("cannot read config file %s", path), err).
			WithDetail("path", path)
	}

	parsed := *c
	parsed.Ignore.Patterns = nil
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return swerrors.ConfigError(fmt.Sprintf("cannot parse config file %s", path), err).
			WithDetail("path", path).
			WithSuggestion("Check the YAML syntax, or regenerate it with 'sharedwatch config init --force'")
	}

	parsed.Ignore.Patterns = mergePatterns(c.Ignore.Patterns, parsed.Ignore.Patterns)
	*c = parsed
	return nil
}

// applyEnvOverrides applies SHAREDWATCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("SHAREDWATCH_DEBOUNCE_MIN_WAIT"); v != "" {
		c.Debounce.MinWait = v
	}
	if v := os.Getenv("SHAREDWATCH_DEBOUNCE_MAX_WAIT"); v != "" {
		c.Debounce.MaxWait = v
	}
	if v := os.Getenv("SHAREDWATCH_SOURCE_BACKEND"); v != "" {
		c.Source.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("SHAREDWATCH_POLL_INTERVAL"); v != "" {
		c.Source.PollInterval = v
	}
	if v := os.Getenv("SHAREDWATCH_RECURSIVE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("SHAREDWATCH_RECURSIVE", v, err)
		}
		c.Source.Recursive = b
	}
	if v := os.Getenv("SHAREDWATCH_MAX_HANDLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("SHAREDWATCH_MAX_HANDLES", v, err)
		}
		c.Loop.MaxHandles = n
	}
	if v := os.Getenv("SHAREDWATCH_LOCK_OS_THREAD"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("SHAREDWATCH_LOCK_OS_THREAD", v, err)
		}
		c.Loop.LockOSThread = b
	}
	if v := os.Getenv("SHAREDWATCH_IGNORE"); v != "" {
		c.Ignore.Patterns = mergePatterns(c.Ignore.Patterns, strings.Split(v, ","))
	}
	if v := os.Getenv("SHAREDWATCH_GITIGNORE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("SHAREDWATCH_GITIGNORE", v, err)
		}
		c.Ignore.Gitignore = b
	}
	if v := os.Getenv("SHAREDWATCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

func envError(name, value string, err error) error {
	return swerrors.ConfigError(fmt.Sprintf("invalid value %q for %s", value, name), err).
		WithDetail("env", name)
}

// mergePatterns appends extra to base, dropping blanks and duplicates.
func mergePatterns(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, p := range append(append([]string{}, base...), extra...) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// MinWait returns the parsed debounce quiet period.
func (c *Config) MinWait() time.Duration {
	d, _ := time.ParseDuration(c.Debounce.MinWait)
	return d
}

// MaxWait returns the parsed debounce ceiling.
func (c *Config) MaxWait() time.Duration {
	d, _ := time.ParseDuration(c.Debounce.MaxWait)
	return d
}

// PollInterval returns the parsed polling interval.
func (c *Config) PollInterval() time.Duration {
	d, _ := time.ParseDuration(c.Source.PollInterval)
	return d
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	minWait, err := parsePositiveDuration("debounce.min_wait", c.Debounce.MinWait)
	if err != nil {
		return err
	}
	maxWait, err := parsePositiveDuration("debounce.max_wait", c.Debounce.MaxWait)
	if err != nil {
		return err
	}
	if maxWait < minWait {
		return swerrors.ConfigError(
			fmt.Sprintf("debounce.max_wait (%s) must not be less than debounce.min_wait (%s)", maxWait, minWait), nil)
	}

	switch c.Source.Backend {
	case "auto", "fsnotify", "polling":
	default:
		return swerrors.ConfigError(
			fmt.Sprintf("source.backend must be 'auto', 'fsnotify' or 'polling', got %q", c.Source.Backend), nil)
	}
	if _, err := parsePositiveDuration("source.poll_interval", c.Source.PollInterval); err != nil {
		return err
	}

	if c.Loop.MaxHandles < 0 {
		return swerrors.ConfigError(fmt.Sprintf("loop.max_handles must be non-negative, got %d", c.Loop.MaxHandles), nil)
	}
	if c.Ignore.CacheSize < 0 {
		return swerrors.ConfigError(fmt.Sprintf("ignore.cache_size must be non-negative, got %d", c.Ignore.CacheSize), nil)
	}
	if err := ignore.Validate(c.Ignore.Patterns); err != nil {
		return err
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return swerrors.ConfigError(
			fmt.Sprintf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level), nil)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxFiles < 0 {
		return swerrors.ConfigError("logging.max_size_mb and logging.max_files must be non-negative", nil)
	}
	return nil
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, swerrors.ConfigError(fmt.Sprintf("%s: invalid duration %q", field, value), err).
			WithSuggestion("Use Go duration syntax, e.g. 50ms or 2s")
	}
	if d <= 0 {
		return 0, swerrors.ConfigError(fmt.Sprintf("%s must be positive, got %s", field, value), nil)
	}
	return d, nil
}

// WriteYAML writes the configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// JSON returns the configuration as indented JSON.
func (c *Config) JSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
