// Package config loads xinputd's YAML configuration file.
package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatAuto LogFormat = "auto" // Text on a terminal, JSON otherwise.
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Config is the effective daemon configuration.
type Config struct {
	// Display is the X display to connect to; empty means $DISPLAY.
	Display   string    `yaml:"display"`
	LogLevel  string    `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`
	// LogFile receives logs instead of stderr when set.
	LogFile string `yaml:"log_file"`

	WatchDevices bool `yaml:"watch_devices"`
	WatchOutputs bool `yaml:"watch_outputs"`
	// RunOnStart runs the command once as soon as the daemon is watching.
	RunOnStart bool `yaml:"run_on_start"`
	// PIDFile writes <runtime dir>/xinputd[-display].pid while detached.
	PIDFile bool `yaml:"pid_file"`
}

// ValidationError points at the offending key, and its file position when
// the value came from a file.
type ValidationError struct {
	Path   string
	File   string
	Line   int
	Column int
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.File != "" && e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.File, e.Line, e.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func DefaultConfig() *Config {
	return &Config{
		Display:      "",
		LogLevel:     "info",
		LogFormat:    LogFormatAuto,
		LogFile:      "",
		WatchDevices: true,
		WatchOutputs: true,
		RunOnStart:   true,
		PIDFile:      true,
	}
}

func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return &ValidationError{Path: "log_level", Err: err}
	}
	switch c.LogFormat {
	case LogFormatAuto, LogFormatText, LogFormatJSON:
	default:
		return &ValidationError{Path: "log_format", Err: fmt.Errorf("log_format must be one of: auto, text, json")}
	}
	if !c.WatchDevices && !c.WatchOutputs {
		return &ValidationError{Path: "watch_devices", Err: fmt.Errorf("at least one of watch_devices or watch_outputs must be true")}
	}
	return nil
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
}
