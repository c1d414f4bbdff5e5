package config

import (
	"path/filepath"

	"github.com/mvp-joe/svdb/internal/fs"
	"github.com/mvp-joe/svdb/internal/index/registry"
)

// Specs returns the indices a project at rootDir is made of: one per
// library and argument file, and a source collection over rootDir itself
// unless argument files define the project.
func (c *Config) Specs(rootDir string) []registry.Spec {
	resolve := func(p string) string {
		p = fs.ExpandHome(p)
		if !filepath.IsAbs(p) {
			p = filepath.Join(rootDir, p)
		}
		return filepath.Clean(p)
	}

	var specs []registry.Spec
	for _, lib := range c.Paths.Libraries {
		specs = append(specs, registry.Spec{Kind: registry.KindLib, Location: resolve(lib)})
	}
	for _, f := range c.Paths.ArgFiles {
		specs = append(specs, registry.Spec{Kind: registry.KindArgFile, Location: resolve(f)})
	}
	if len(c.Paths.ArgFiles) == 0 {
		specs = append(specs, registry.Spec{
			Kind:           registry.KindSourceCollection,
			Location:       filepath.Clean(rootDir),
			SourcePatterns: c.Paths.Sources,
			HeaderPatterns: c.Paths.Headers,
			IgnorePatterns: c.Paths.Ignore,
		})
	}
	return specs
}

// ToCollectionOptions converts the config to collection manager options.
// The caller fills in the marker sink, progress reporter and logger.
func (c *Config) ToCollectionOptions(rootDir string) registry.Options {
	return registry.Options{
		CacheRoot:         c.CacheRoot(),
		Defines:           c.DefineMap(),
		IncludePaths:      c.IncludeDirs(rootDir),
		Workers:           c.Index.Workers,
		IdleTimeout:       c.Index.IdleTimeout,
		MaxExpansionDepth: c.Preproc.MaxExpansionDepth,
		FileCacheSize:     c.Index.FileCacheSize,
	}
}
