// Package config provides configuration loading for svdb.
//
// Configuration is read from .svdb/config.yml (or .yaml) in the project
// root. Priority, highest first:
//  1. Environment variables (SVDB_*, nested keys joined with underscores,
//     e.g. SVDB_INDEX_WORKERS)
//  2. Project config file
//  3. Built-in defaults
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/mvp-joe/svdb/internal/fs"
	"github.com/mvp-joe/svdb/internal/index"
	"github.com/mvp-joe/svdb/internal/jobs"
	"github.com/mvp-joe/svdb/internal/preproc"
	"github.com/mvp-joe/svdb/internal/storage"
)

// Config represents the complete svdb configuration.
type Config struct {
	Paths   PathsConfig   `yaml:"paths" mapstructure:"paths"`
	Preproc PreprocConfig `yaml:"preproc" mapstructure:"preproc"`
	Index   IndexConfig   `yaml:"index" mapstructure:"index"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
}

// PathsConfig defines what gets indexed.
type PathsConfig struct {
	Sources   []string `yaml:"sources" mapstructure:"sources"`     // glob patterns for root files
	Headers   []string `yaml:"headers" mapstructure:"headers"`     // glob patterns for include-only files
	Ignore    []string `yaml:"ignore" mapstructure:"ignore"`       // glob patterns to skip
	Include   []string `yaml:"include" mapstructure:"include"`     // extra include directories
	ArgFiles  []string `yaml:"arg_files" mapstructure:"arg_files"` // compiler argument files (.f)
	Libraries []string `yaml:"libraries" mapstructure:"libraries"` // single-file libraries
}

// PreprocConfig configures the preprocessor.
type PreprocConfig struct {
	// Defines are NAME or NAME=VALUE entries. A list rather than a map
	// because config keys are case-folded and macro names are not.
	Defines           []string `yaml:"defines" mapstructure:"defines"`
	MaxExpansionDepth int      `yaml:"max_expansion_depth" mapstructure:"max_expansion_depth"`
}

// IndexConfig configures indexing work.
type IndexConfig struct {
	Workers       int           `yaml:"workers" mapstructure:"workers"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	FileCacheSize int           `yaml:"file_cache_size" mapstructure:"file_cache_size"` // parsed files kept resident
}

// StorageConfig defines where caches are persisted.
type StorageConfig struct {
	CacheLocation string `yaml:"cache_location" mapstructure:"cache_location"` // Override default ~/.svdb/cache
	Disabled      bool   `yaml:"disabled" mapstructure:"disabled"`             // Keep caches in memory only
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Sources: []string{"**/*.sv", "**/*.v"},
			Headers: []string{"**/*.svh", "**/*.vh"},
			Ignore: []string{
				".git/**",
				".svdb/**",
				"build/**",
				"work/**",
			},
		},
		Preproc: PreprocConfig{
			MaxExpansionDepth: preproc.DefaultMaxExpansionDepth,
		},
		Index: IndexConfig{
			Workers:       jobs.DefaultMaxWorkers,
			IdleTimeout:   jobs.DefaultIdleTimeout,
			FileCacheSize: index.DefaultFileCacheSize,
		},
	}
}

// DefineMap parses the configured defines. A later entry for a name wins.
func (c *Config) DefineMap() map[string]string {
	out := make(map[string]string, len(c.Preproc.Defines))
	for _, d := range c.Preproc.Defines {
		name, value, _ := strings.Cut(strings.TrimSpace(d), "=")
		if name != "" {
			out[name] = value
		}
	}
	return out
}

// CacheRoot returns the directory that holds persisted caches, or "" when
// persistence is disabled.
func (c *Config) CacheRoot() string {
	if c.Storage.Disabled {
		return ""
	}
	if c.Storage.CacheLocation != "" {
		return fs.ExpandHome(c.Storage.CacheLocation)
	}
	return storage.DefaultCacheRoot()
}

// IncludeDirs returns the configured include directories resolved against
// rootDir.
func (c *Config) IncludeDirs(rootDir string) []string {
	out := make([]string, 0, len(c.Paths.Include))
	for _, d := range c.Paths.Include {
		d = fs.ExpandHome(d)
		if !filepath.IsAbs(d) {
			d = filepath.Join(rootDir, d)
		}
		out = append(out, filepath.Clean(d))
	}
	return out
}
