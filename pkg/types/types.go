// Package types defines the configuration model for pybundle
package types

import (
	"fmt"
	"path/filepath"
	"strings"
)

// BuildStatus represents the outcome of a pipeline run
type BuildStatus string

const (
	BuildStatusIdle      BuildStatus = "idle"
	BuildStatusRunning   BuildStatus = "running"
	BuildStatusSucceeded BuildStatus = "succeeded"
	BuildStatusFailed    BuildStatus = "failed"
)

// Default paths of the build harness. A project with no config file at all
// builds with exactly these values.
const (
	DefaultName         = "PdfScanCompressor"
	DefaultEntryPoint   = "main.py"
	DefaultRequirements = "requirements.txt"
	DefaultVenvDir      = ".venv"
	DefaultDistDir      = "dist"
	DefaultWorkDir      = "build"
)

// NotificationConfig controls desktop notifications
type NotificationConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	SuccessSound bool `json:"successSound,omitempty" yaml:"successSound,omitempty" toml:"successSound"`
	FailureSound bool `json:"failureSound,omitempty" yaml:"failureSound,omitempty" toml:"failureSound"`
}

// WatchConfig controls the rebuild-on-change loop
type WatchConfig struct {
	Paths         []string `json:"paths,omitempty" yaml:"paths,omitempty" toml:"paths"`
	SettlingDelay int      `json:"settlingDelayMs,omitempty" yaml:"settlingDelayMs,omitempty" toml:"settlingDelayMs"`
}

// Config describes one application to freeze into a standalone bundle
type Config struct {
	Version      string `json:"version,omitempty" yaml:"version,omitempty" toml:"version"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty" toml:"name"`
	EntryPoint   string `json:"entryPoint,omitempty" yaml:"entryPoint,omitempty" toml:"entryPoint"`
	Requirements string `json:"requirements,omitempty" yaml:"requirements,omitempty" toml:"requirements"`
	VenvDir      string `json:"venvDir,omitempty" yaml:"venvDir,omitempty" toml:"venvDir"`
	DistDir      string `json:"distDir,omitempty" yaml:"distDir,omitempty" toml:"distDir"`
	WorkDir      string `json:"workDir,omitempty" yaml:"workDir,omitempty" toml:"workDir"`

	// Bundler switches. Absent means the harness default (windowed,
	// one-directory, clean caches).
	Windowed *bool `json:"windowed,omitempty" yaml:"windowed,omitempty" toml:"windowed"`
	OneDir   *bool `json:"oneDir,omitempty" yaml:"oneDir,omitempty" toml:"oneDir"`
	Clean    *bool `json:"clean,omitempty" yaml:"clean,omitempty" toml:"clean"`

	// ExtraArgs are appended verbatim to the bundler invocation
	ExtraArgs []string `json:"extraArgs,omitempty" yaml:"extraArgs,omitempty" toml:"extraArgs"`

	Notifications *NotificationConfig `json:"notifications,omitempty" yaml:"notifications,omitempty" toml:"notifications"`
	Watch         *WatchConfig        `json:"watch,omitempty" yaml:"watch,omitempty" toml:"watch"`

	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty" toml:"logLevel"`
}

// DefaultConfig returns the configuration equivalent to running with no
// config file present.
func DefaultConfig() *Config {
	cfg := &Config{Version: "1.0"}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with harness defaults
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.EntryPoint == "" {
		c.EntryPoint = DefaultEntryPoint
	}
	if c.Requirements == "" {
		c.Requirements = DefaultRequirements
	}
	if c.VenvDir == "" {
		c.VenvDir = DefaultVenvDir
	}
	if c.DistDir == "" {
		c.DistDir = DefaultDistDir
	}
	if c.WorkDir == "" {
		c.WorkDir = DefaultWorkDir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	t := true
	if c.Windowed == nil {
		c.Windowed = &t
	}
	if c.OneDir == nil {
		c.OneDir = &t
	}
	if c.Clean == nil {
		c.Clean = &t
	}
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("product name must not be empty")
	}
	if strings.ContainsAny(c.Name, `/\`) {
		return fmt.Errorf("product name must not contain path separators: %q", c.Name)
	}
	if c.EntryPoint == "" {
		return fmt.Errorf("entry point must not be empty")
	}
	if filepath.IsAbs(c.DistDir) {
		return fmt.Errorf("dist directory must be relative to the project root: %s", c.DistDir)
	}
	if filepath.IsAbs(c.WorkDir) {
		return fmt.Errorf("work directory must be relative to the project root: %s", c.WorkDir)
	}
	return nil
}

// ArtifactDir returns the expected bundle output directory relative to the
// project root. Its existence after bundling is the success criterion.
func (c *Config) ArtifactDir() string {
	return filepath.Join(c.DistDir, c.Name)
}
