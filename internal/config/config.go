// Package config loads the otmap configuration file.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/internal/logging"
)

// Config is the whole configuration file.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Progress   ProgressConfig   `yaml:"progress"`
	Limits     LimitsConfig     `yaml:"limits"`
	Conversion ConversionConfig `yaml:"conversion"`
	Items      ItemsConfig      `yaml:"items"`
	Save       SaveConfig       `yaml:"save"`
	Server     ServerConfig     `yaml:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ProgressConfig struct {
	MinInterval time.Duration `yaml:"min_interval"`
}

type LimitsConfig struct {
	MaxContainerDepth int `yaml:"max_container_depth"`
}

type ConversionConfig struct {
	// MappingTables are XML or YAML mapping files, merged in order.
	MappingTables []string `yaml:"mapping_tables"`
	// MappingDB is a SQLite mapping database loaded after the tables.
	MappingDB         string `yaml:"mapping_db"`
	Rules             string `yaml:"rules"`
	AllowUnmappedHops bool   `yaml:"allow_unmapped_hops"`
	Strict            bool   `yaml:"strict"`
}

type ItemsConfig struct {
	Catalog string `yaml:"catalog"`
}

type SaveConfig struct {
	Atomic    bool   `yaml:"atomic"`
	BackupDir string `yaml:"backup_dir"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`
	BaseDir string `yaml:"base_dir"`
	// MaxJobs bounds the jobs kept in memory; finished jobs are evicted
	// oldest first.
	MaxJobs int `yaml:"max_jobs"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		Progress: ProgressConfig{MinInterval: 200 * time.Millisecond},
		Limits:   LimitsConfig{MaxContainerDepth: 64},
		Save:     SaveConfig{Atomic: true},
		Server:   ServerConfig{Addr: "127.0.0.1:8095", BaseDir: ".", MaxJobs: 100},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.NewIO("open", path, err)
	}
	defer f.Close()
	if err := cfg.decode(f, path); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse reads a configuration document over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	err := cfg.decode(bytes.NewReader(data), "")
	return cfg, err
}

func (c *Config) decode(r io.Reader, path string) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		pe := errors.NewParse("config", path, "invalid YAML")
		pe.Err = err
		return pe
	}
	c.Normalize()
	return c.Validate()
}

// Normalize trims strings and lower-cases enumerations.
func (c *Config) Normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	if c.Server.BaseDir == "" {
		c.Server.BaseDir = "."
	}
	var tables []string
	for _, p := range c.Conversion.MappingTables {
		if p = strings.TrimSpace(p); p != "" {
			tables = append(tables, p)
		}
	}
	c.Conversion.MappingTables = tables
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return errors.NewValidation("log.level", err.Error())
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return errors.NewValidation("log.format", err.Error())
	}
	if c.Progress.MinInterval < 0 {
		return errors.NewValidation("progress.min_interval", "must not be negative")
	}
	if d := c.Limits.MaxContainerDepth; d < 1 || d > 1024 {
		return errors.NewValidation("limits.max_container_depth", fmt.Sprintf("%d is outside 1..1024", d))
	}
	if c.Server.Addr == "" {
		return errors.NewValidation("server.addr", "must not be empty")
	}
	if c.Server.MaxJobs < 1 {
		return errors.NewValidation("server.max_jobs", "must be at least 1")
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() logging.Level {
	l, _ := logging.ParseLevel(c.Log.Level)
	return l
}

// LogFormat returns the parsed log format.
func (c *Config) LogFormat() logging.Format {
	f, _ := logging.ParseFormat(c.Log.Format)
	return f
}
