package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (SVDB_*)
// 2. Config file (.svdb/config.yml or .svdb/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	// Configure viper
	v := viper.New()

	// Set up config file search
	configDir := filepath.Join(l.rootDir, ".svdb")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	// Enable environment variable overrides
	v.SetEnvPrefix("SVDB")
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., SVDB_INDEX_WORKERS)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind environment variables to config keys
	// Paths configuration
	v.BindEnv("paths.sources")
	v.BindEnv("paths.headers")
	v.BindEnv("paths.ignore")
	v.BindEnv("paths.include")
	v.BindEnv("paths.arg_files")
	v.BindEnv("paths.libraries")

	// Preprocessor configuration
	v.BindEnv("preproc.defines")
	v.BindEnv("preproc.max_expansion_depth")

	// Index configuration
	v.BindEnv("index.workers")
	v.BindEnv("index.idle_timeout")
	v.BindEnv("index.file_cache_size")

	// Storage configuration
	v.BindEnv("storage.cache_location")
	v.BindEnv("storage.disabled")

	// Set defaults in viper
	setDefaults(v)

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - defaults + env vars still apply
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Some other error occurred while reading the config file
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate the configuration
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	// Paths defaults
	v.SetDefault("paths.sources", defaults.Paths.Sources)
	v.SetDefault("paths.headers", defaults.Paths.Headers)
	v.SetDefault("paths.ignore", defaults.Paths.Ignore)
	v.SetDefault("paths.include", defaults.Paths.Include)
	v.SetDefault("paths.arg_files", defaults.Paths.ArgFiles)
	v.SetDefault("paths.libraries", defaults.Paths.Libraries)

	// Preprocessor defaults
	v.SetDefault("preproc.defines", defaults.Preproc.Defines)
	v.SetDefault("preproc.max_expansion_depth", defaults.Preproc.MaxExpansionDepth)

	// Index defaults
	v.SetDefault("index.workers", defaults.Index.Workers)
	v.SetDefault("index.idle_timeout", defaults.Index.IdleTimeout)
	v.SetDefault("index.file_cache_size", defaults.Index.FileCacheSize)

	// Storage defaults (empty cache_location means ~/.svdb/cache)
	v.SetDefault("storage.cache_location", defaults.Storage.CacheLocation)
	v.SetDefault("storage.disabled", defaults.Storage.Disabled)
}

// LoadConfig loads configuration with the current working directory as
// the project root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
