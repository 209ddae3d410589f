// Package config handles cilscope.toml analysis settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"cilscope/internal/cilfmt"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "cilscope.toml"

// DefaultExclude lists the assembly and namespace prefixes skipped when no
// configuration overrides them.
var DefaultExclude = []string{"System.", "Microsoft.", "mscorlib", "netstandard"}

// Config is a cilscope.toml file.
type Config struct {
	Analysis Analysis `toml:"analysis"`
	Output   Output   `toml:"output"`
	Neo4j    Neo4j    `toml:"neo4j"`

	// Path is the file the configuration was read from; empty for defaults.
	Path string `toml:"-"`
}

// Analysis configures decoding and graph building.
type Analysis struct {
	Exclude  []string `toml:"exclude"`
	Paths    []string `toml:"paths"`
	Mode     string   `toml:"mode"`
	MaxSteps int      `toml:"max_steps"`
}

// Output configures where results are written.
type Output struct {
	Dir   string `toml:"dir"`
	Graph bool   `toml:"graph"`
}

// Neo4j configures the optional graph export. An empty URI disables it.
type Neo4j struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Clean    bool   `toml:"clean"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Analysis.Exclude == nil {
		c.Analysis.Exclude = append([]string(nil), DefaultExclude...)
	}
	if c.Analysis.Mode == "" {
		c.Analysis.Mode = cilfmt.ModeBestEffort.String()
	}
	if c.Neo4j.User == "" {
		c.Neo4j.User = "neo4j"
	}
}

// Load parses the configuration file at path. Relative search paths are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if _, err := cilfmt.ParseMode(c.Analysis.Mode); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if c.Analysis.MaxSteps < 0 {
		return nil, fmt.Errorf("%s: max_steps must not be negative", path)
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	dir := filepath.Dir(c.Path)
	for i, p := range c.Analysis.Paths {
		if !filepath.IsAbs(p) {
			c.Analysis.Paths[i] = filepath.Join(dir, p)
		}
	}
	c.applyDefaults()
	return &c, nil
}

// FindAndLoad walks up from startDir to the nearest cilscope.toml and loads
// it. With no file found it returns Default.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Options returns the decoder options for the configured mode and step cap.
func (c *Config) Options() cilfmt.Options {
	mode, _ := cilfmt.ParseMode(c.Analysis.Mode)
	return cilfmt.Options{Mode: mode, MaxSteps: c.Analysis.MaxSteps}
}
