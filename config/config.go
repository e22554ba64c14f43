// Package config loads the YAML configuration used by the bitcask command.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/viant/bitcask"
	"github.com/viant/bitcask/datalog"
	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Export   ExportConfig   `yaml:"export"`
}

// StoreConfig defines the store location and write behaviour.
type StoreConfig struct {
	Dir         string `yaml:"dir"`
	BaseName    string `yaml:"baseName"`
	SegmentSize int64  `yaml:"segmentSize"`
	SyncWrites  bool   `yaml:"syncWrites"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// SnapshotConfig defines where snapshots are stored.
type SnapshotConfig struct {
	URL string `yaml:"url"`
}

// ExportConfig defines the SQLite export target.
type ExportConfig struct {
	Path      string `yaml:"path"`
	Table     string `yaml:"table"`
	BatchSize int    `yaml:"batchSize"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Dir:         "~/.bitcask",
			BaseName:    bitcask.DefaultBaseName,
			SegmentSize: datalog.DefaultSegmentSize,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Export: ExportConfig{
			Table:     "entries",
			BatchSize: 1000,
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		expanded, err := ExpandUserPath(path)
		if err != nil {
			return nil, err
		}
		b, err := os.ReadFile(expanded)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	defaults := Default()
	if c.Store.BaseName == "" {
		c.Store.BaseName = defaults.Store.BaseName
	}
	if c.Store.SegmentSize <= 0 {
		c.Store.SegmentSize = defaults.Store.SegmentSize
	}
	if c.Export.Table == "" {
		c.Export.Table = defaults.Export.Table
	}
	if c.Export.BatchSize <= 0 {
		c.Export.BatchSize = defaults.Export.BatchSize
	}
	var err error
	if c.Store.Dir, err = ExpandUserPath(c.Store.Dir); err != nil {
		return err
	}
	if c.Export.Path, err = ExpandUserPath(c.Export.Path); err != nil {
		return err
	}
	if c.Snapshot.URL, err = ExpandUserPath(c.Snapshot.URL); err != nil {
		return err
	}
	return nil
}

// Options converts the store section into engine options.
func (c *Config) Options(logger *logrus.Logger) []bitcask.Option {
	opts := []bitcask.Option{
		bitcask.WithBaseName(c.Store.BaseName),
		bitcask.WithSegmentSize(c.Store.SegmentSize),
		bitcask.WithSyncWrites(c.Store.SyncWrites),
	}
	if logger != nil {
		opts = append(opts, bitcask.WithLogger(logger))
	}
	return opts
}

// Logger builds a logger from the log section.
func (c *Config) Logger() (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	level := c.Log.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger.SetLevel(lvl)
	switch strings.ToLower(c.Log.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("config: unsupported log format %q", c.Log.Format)
	}
	return logger, nil
}

// ExpandUserPath resolves a leading ~ in plain paths and file: URLs.
func ExpandUserPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return path, nil
	}
	if !strings.Contains(trimmed, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(trimmed, "file:") {
		prefix := "file://localhost"
		rest := strings.TrimPrefix(trimmed, prefix)
		if rest == trimmed {
			prefix = "file://"
			rest = strings.TrimPrefix(trimmed, prefix)
		}
		if rest == trimmed {
			prefix = "file:"
			rest = strings.TrimPrefix(trimmed, prefix)
		}
		rest = strings.TrimLeft(rest, "/")
		if !strings.HasPrefix(rest, "~") {
			return path, nil
		}
		abs := filepath.ToSlash(filepath.Join(home, strings.TrimPrefix(rest, "~")))
		if prefix == "file:" {
			if !strings.HasPrefix(abs, "/") {
				abs = "/" + abs
			}
			return prefix + abs, nil
		}
		return prefix + "/" + strings.TrimLeft(abs, "/"), nil
	}
	if trimmed[0] != '~' {
		return path, nil
	}
	if trimmed == "~" {
		return home, nil
	}
	if !strings.HasPrefix(trimmed, "~/") {
		return "", fmt.Errorf("config: unsupported ~user path: %s", path)
	}
	return filepath.Join(home, trimmed[2:]), nil
}
