// Package config loads the runloop core's tunables from TOML or YAML files
// and supports live reload.
//
// Missing files are not an error: every knob has a default, and an absent
// config simply yields Default().
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds the core's tunables.
type Config struct {
	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `toml:"log_level" yaml:"log_level"`

	// TrustedBuild marks an official, unmodified build: fatal conditions
	// exit cleanly instead of panicking, keeping dev noise out of crash
	// reporting.
	TrustedBuild bool `toml:"trusted_build" yaml:"trusted_build"`

	Queue  QueueConfig  `toml:"queue" yaml:"queue"`
	Pause  PauseConfig  `toml:"pause" yaml:"pause"`
	Interp InterpConfig `toml:"interp" yaml:"interp"`
}

// QueueConfig tunes the per-loop message-queue backlog thresholds.
type QueueConfig struct {
	// SoftLimit triggers the one-time backlog tally log and flips
	// CheckPushSafety to false.
	SoftLimit int `toml:"soft_limit" yaml:"soft_limit"`

	// HardLimit is fatal when exceeded.
	HardLimit int `toml:"hard_limit" yaml:"hard_limit"`
}

// PauseConfig tunes the coordinated-pause poll.
type PauseConfig struct {
	// BudgetMS bounds how long the coordinator polls for all loops to
	// pause before logging a warning.
	BudgetMS int `toml:"budget_ms" yaml:"budget_ms"`
}

// Budget returns the pause budget as a duration.
func (p PauseConfig) Budget() time.Duration {
	return time.Duration(p.BudgetMS) * time.Millisecond
}

// InterpConfig tunes interpreter-lock diagnostics.
type InterpConfig struct {
	// AcquireWarnMS logs a warning when reacquiring the interpreter lock
	// takes longer than this. Zero disables the warning.
	AcquireWarnMS int `toml:"acquire_warn_ms" yaml:"acquire_warn_ms"`
}

// AcquireWarn returns the acquire warning threshold as a duration.
func (i InterpConfig) AcquireWarn() time.Duration {
	return time.Duration(i.AcquireWarnMS) * time.Millisecond
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:     "info",
		TrustedBuild: false,
		Queue: QueueConfig{
			SoftLimit: 1000,
			HardLimit: 10000,
		},
		Pause: PauseConfig{
			BudgetMS: 2000,
		},
		Interp: InterpConfig{
			AcquireWarnMS: 8,
		},
	}
}

// ParseError wraps a config parse failure with its source path.
type ParseError struct {
	// Path is the file that failed to parse.
	Path string

	// Err is the underlying decode error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return "parsing config " + e.Path + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads configuration from path, selecting the decoder by extension
// (.toml, .yaml, .yml). A missing file returns Default() with no error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch filepath.Ext(path) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Default(), &ParseError{Path: path, Err: err}
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Default(), &ParseError{Path: path, Err: err}
		}
	default:
		return Default(), &ParseError{Path: path, Err: fmt.Errorf("unsupported config extension %q", filepath.Ext(path))}
	}

	return cfg, cfg.validate(path)
}

// validate rejects values the core cannot run with.
func (c Config) validate(path string) error {
	if c.Queue.SoftLimit <= 0 || c.Queue.HardLimit <= 0 {
		return &ParseError{Path: path, Err: fmt.Errorf("queue limits must be positive (soft %d, hard %d)", c.Queue.SoftLimit, c.Queue.HardLimit)}
	}
	if c.Queue.HardLimit < c.Queue.SoftLimit {
		return &ParseError{Path: path, Err: fmt.Errorf("queue hard limit %d below soft limit %d", c.Queue.HardLimit, c.Queue.SoftLimit)}
	}
	if c.Pause.BudgetMS < 0 {
		return &ParseError{Path: path, Err: fmt.Errorf("pause budget must not be negative (%dms)", c.Pause.BudgetMS)}
	}
	return nil
}
