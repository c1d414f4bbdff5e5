package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrInvalidPattern indicates a glob pattern that does not compile
	ErrInvalidPattern = errors.New("invalid path pattern")

	// ErrInvalidDefine indicates a define entry without a valid macro name
	ErrInvalidDefine = errors.New("invalid define")

	// ErrInvalidExpansionDepth indicates a non-positive expansion limit
	ErrInvalidExpansionDepth = errors.New("invalid max expansion depth")

	// ErrInvalidWorkers indicates a non-positive worker count
	ErrInvalidWorkers = errors.New("invalid worker count")

	// ErrInvalidIdleTimeout indicates a non-positive worker idle timeout
	ErrInvalidIdleTimeout = errors.New("invalid idle timeout")

	// ErrInvalidCacheSettings indicates invalid cache configuration
	ErrInvalidCacheSettings = errors.New("invalid cache settings")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validatePaths(&cfg.Paths); err != nil {
		errs = append(errs, err)
	}
	if err := validatePreproc(&cfg.Preproc); err != nil {
		errs = append(errs, err)
	}
	if err := validateIndex(&cfg.Index); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validatePaths(cfg *PathsConfig) error {
	var errs []error

	// Empty pattern lists are fine; discovery falls back to its defaults.
	for _, group := range [][]string{cfg.Sources, cfg.Headers, cfg.Ignore} {
		for _, p := range group {
			if _, err := glob.Compile(p, '/'); err != nil {
				errs = append(errs, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err))
			}
		}
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validatePreproc(cfg *PreprocConfig) error {
	var errs []error

	for _, d := range cfg.Defines {
		name, _, _ := strings.Cut(strings.TrimSpace(d), "=")
		if !isMacroName(name) {
			errs = append(errs, fmt.Errorf("%w: %q is not NAME or NAME=VALUE", ErrInvalidDefine, d))
		}
	}

	if cfg.MaxExpansionDepth <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_expansion_depth must be positive, got %d", ErrInvalidExpansionDepth, cfg.MaxExpansionDepth))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateIndex(cfg *IndexConfig) error {
	var errs []error

	if cfg.Workers <= 0 {
		errs = append(errs, fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidWorkers, cfg.Workers))
	}
	if cfg.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: idle_timeout must be positive, got %s", ErrInvalidIdleTimeout, cfg.IdleTimeout))
	}
	// Zero means the built-in default.
	if cfg.FileCacheSize < 0 {
		errs = append(errs, fmt.Errorf("%w: file_cache_size cannot be negative, got %d", ErrInvalidCacheSettings, cfg.FileCacheSize))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func isMacroName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// joinErrors combines multiple errors into one that lists each on its own
// line and still matches every one of them with errors.Is.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	format := "validation failed:" + strings.Repeat("\n  - %w", len(errs))
	args := make([]any, len(errs))
	for i, err := range errs {
		args[i] = err
	}
	return fmt.Errorf(format, args...)
}
