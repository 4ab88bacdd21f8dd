package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

const defaultConfigPath = "relay.toml"

// Config is the contents of relay.toml. Flags override individual fields.
type Config struct {
	Provider     string        `toml:"provider"`
	Model        string        `toml:"model"`
	SystemPrompt string        `toml:"system_prompt"`
	MaxSteps     int           `toml:"max_steps"`
	MaxRetries   int           `toml:"max_retries"`
	Language     string        `toml:"language"`
	LogLevel     string        `toml:"log_level"`
	Workspace    string        `toml:"workspace"`
	Database     string        `toml:"database"`
	Store        StoreConfig   `toml:"store"`
	Metrics      MetricsConfig `toml:"metrics"`
	Compact      CompactConfig `toml:"compact"`
}

// StoreConfig selects where conversations are persisted.
type StoreConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "json"
	Path   string `toml:"path"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// CompactConfig bounds history size before each model step. Zero disables a
// limit.
type CompactConfig struct {
	MaxMessages int `toml:"max_messages"`
	MaxTokens   int `toml:"max_tokens"`
	KeepRecent  int `toml:"keep_recent"`
}

func defaultConfig() Config {
	return Config{
		SystemPrompt: "You are a data analyst. Think, explore the workspace, query the database and finish with the done tool.",
		MaxSteps:     10,
		MaxRetries:   3,
		Language:     "en",
		LogLevel:     "warn",
		Workspace:    ".",
		Store:        StoreConfig{Driver: "sqlite", Path: "relay.db"},
		Compact:      CompactConfig{KeepRecent: 20},
	}
}

// loadConfig reads path over the defaults. A missing default file is not an
// error; a missing explicit file is. Unknown keys are rejected.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}
	md, err := toml.DecodeFile(path, &cfg)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		return cfg, nil
	default:
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "sqlite", "json":
	default:
		return fmt.Errorf("config: unknown store driver %q: must be \"sqlite\" or \"json\"", c.Store.Driver)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("config: max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must not be negative, got %d", c.MaxRetries)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return l, nil
}
