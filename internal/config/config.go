// Package config loads server settings from defaults, an optional TOML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultPort       = "8080"
	DefaultDBPath     = "./data/mytodos.db"
	DefaultLogLevel   = "info"
	DefaultConfigFile = "mytodos.toml"

	// ConfigFileEnv names an explicit config file. When set, the file
	// must exist.
	ConfigFileEnv = "MYTODOS_CONFIG"
)

// Config holds the server settings.
type Config struct {
	Port     string `toml:"port"`
	DBPath   string `toml:"db_path"`
	LogLevel string `toml:"log_level"`

	// MaxInFlight bounds concurrent order writes during a reorder.
	// Zero means unbounded.
	MaxInFlight int `toml:"reorder_max_in_flight"`
}

// Load builds a Config from defaults, the config file and the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	path, required := findConfigFile()
	if path != "" {
		if err := loadConfigFile(cfg, path); err != nil {
			if required || !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("port is required")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("db path is required")
	}
	if c.MaxInFlight < 0 {
		return fmt.Errorf("reorder_max_in_flight must not be negative, got %d", c.MaxInFlight)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Addr returns the listen address for Port.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// SlogLevel returns LogLevel as a slog.Level. Load has already validated it.
func (c *Config) SlogLevel() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// ParseLevel accepts debug, info, warn or error, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func setDefaults(cfg *Config) {
	cfg.Port = DefaultPort
	cfg.DBPath = DefaultDBPath
	cfg.LogLevel = DefaultLogLevel
	cfg.MaxInFlight = 0
}

// findConfigFile returns the file to load and whether it must exist.
func findConfigFile() (string, bool) {
	if path := os.Getenv(ConfigFileEnv); path != "" {
		return path, true
	}
	return DefaultConfigFile, false
}

func loadConfigFile(cfg *Config, path string) error {
	_, err := toml.DecodeFile(path, cfg)
	return err
}

func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REORDER_MAX_IN_FLIGHT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing REORDER_MAX_IN_FLIGHT: %w", err)
		}
		cfg.MaxInFlight = n
	}
	return nil
}
