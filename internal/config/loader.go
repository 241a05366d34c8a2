package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvDisplay overrides the display setting from the file.
const EnvDisplay = "XINPUTD_DISPLAY"

// Source is the position of a key in the loaded file.
type Source struct {
	File   string
	Line   int
	Column int
}

// LoadResult carries the effective config and where each key came from.
type LoadResult struct {
	Config  *Config
	Sources map[string]Source // top-level key -> position (file only)
	File    string            // empty when no file existed
}

// rawConfig mirrors Config with pointers so unset keys keep their defaults.
type rawConfig struct {
	Display      *string    `yaml:"display"`
	LogLevel     *string    `yaml:"log_level"`
	LogFormat    *LogFormat `yaml:"log_format"`
	LogFile      *string    `yaml:"log_file"`
	WatchDevices *bool      `yaml:"watch_devices"`
	WatchOutputs *bool      `yaml:"watch_outputs"`
	RunOnStart   *bool      `yaml:"run_on_start"`
	PIDFile      *bool      `yaml:"pid_file"`
}

func (r rawConfig) apply(cfg *Config) {
	if r.Display != nil {
		cfg.Display = *r.Display
	}
	if r.LogLevel != nil {
		cfg.LogLevel = *r.LogLevel
	}
	if r.LogFormat != nil {
		cfg.LogFormat = *r.LogFormat
	}
	if r.LogFile != nil {
		cfg.LogFile = *r.LogFile
	}
	if r.WatchDevices != nil {
		cfg.WatchDevices = *r.WatchDevices
	}
	if r.WatchOutputs != nil {
		cfg.WatchOutputs = *r.WatchOutputs
	}
	if r.RunOnStart != nil {
		cfg.RunOnStart = *r.RunOnStart
	}
	if r.PIDFile != nil {
		cfg.PIDFile = *r.PIDFile
	}
}

// DefaultConfigPath is $XDG_CONFIG_HOME/xinputd/config.yaml, falling back
// to ~/.config/xinputd/config.yaml.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "xinputd", "config.yaml"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "xinputd", "config.yaml"), nil
}

// Load reads the configuration from the standard location.
func Load() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	res, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// LoadFromPath reads path on top of the defaults. A missing file is not an
// error; a malformed one is.
func LoadFromPath(path string) (*LoadResult, error) {
	cfg := DefaultConfig()
	res := &LoadResult{Config: cfg, Sources: map[string]Source{}}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		raw, sources, err := parse(path, data)
		if err != nil {
			return nil, err
		}
		raw.apply(cfg)
		res.Sources = sources
		res.File = path
	}

	if display := os.Getenv(EnvDisplay); display != "" {
		cfg.Display = display
	}

	if err := cfg.Validate(); err != nil {
		return nil, attachSource(err, res.Sources)
	}
	return res, nil
}

func parse(path string, data []byte) (rawConfig, map[string]Source, error) {
	var raw rawConfig

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return raw, nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return raw, nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return raw, collectSources(&doc, path), nil
}

func collectSources(doc *yaml.Node, file string) map[string]Source {
	out := make(map[string]Source)
	if doc == nil || len(doc.Content) == 0 {
		return out
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return out
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		out[key.Value] = Source{File: file, Line: key.Line, Column: key.Column}
	}
	return out
}

func attachSource(err error, sources map[string]Source) error {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	if src, ok := sources[verr.Path]; ok {
		verr.File = src.File
		verr.Line = src.Line
		verr.Column = src.Column
	}
	return verr
}
