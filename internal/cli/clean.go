package cli

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/svdb/internal/config"
	"github.com/mvp-joe/svdb/internal/storage"
)

var cleanQuietFlag bool
var cleanAllFlag bool

// cleanCmd represents the clean command
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete persisted index caches to force a full reindex",
	Long: `Clean removes the persisted caches of the project's base locations.
The next 'svdb index' reindexes every root from scratch.

By default only this project's caches are deleted. Use --all to delete the
whole cache directory, shared by every project.

The configuration file (.svdb/config.yml) is preserved.

Examples:
  # Clean this project's caches
  svdb clean

  # Clean every cache
  svdb clean --all
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot()
		if err != nil {
			return err
		}
		return runClean(cmd.OutOrStdout(), root, cleanQuietFlag, cleanAllFlag)
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().BoolVarP(&cleanQuietFlag, "quiet", "q", false, "Suppress output messages")
	cleanCmd.Flags().BoolVarP(&cleanAllFlag, "all", "a", false, "Delete the entire cache directory")
}

func runClean(out io.Writer, root string, quiet, all bool) error {
	cfg, err := config.LoadConfigFromDir(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	cacheRoot := cfg.CacheRoot()
	if cacheRoot == "" {
		if !quiet {
			fmt.Fprintln(out, "Cache persistence is disabled; nothing to clean")
		}
		return nil
	}

	if _, err := os.Stat(cacheRoot); os.IsNotExist(err) {
		if !quiet {
			fmt.Fprintln(out, "No cache found")
		}
		return nil
	}

	if all {
		totalSize, cacheCount, err := getCacheStats(cacheRoot)
		if err != nil {
			totalSize, cacheCount = 0, 0
		}
		if err := os.RemoveAll(cacheRoot); err != nil {
			return fmt.Errorf("failed to remove cache: %w", err)
		}
		if !quiet {
			fmt.Fprintf(out, "✓ Cleaned entire cache (%d caches, ~%.1f MB)\n", cacheCount, totalSize)
			fmt.Fprintln(out, "Next 'svdb index' will perform a full reindex")
		}
		return nil
	}

	var cleaned int
	var totalSize float64
	for _, spec := range cfg.Specs(root) {
		dir := storage.CachePath(cacheRoot, spec.Location)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		size, _, _ := getCacheStats(dir)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove cache for %s: %w", spec.Location, err)
		}
		cleaned++
		totalSize += size
	}

	if !quiet {
		if cleaned == 0 {
			fmt.Fprintln(out, "No cache found for this project")
			return nil
		}
		fmt.Fprintf(out, "✓ Cleaned %d caches (~%.1f MB)\n", cleaned, totalSize)
		fmt.Fprintln(out, "Next 'svdb index' will perform a full reindex")
	}
	return nil
}

// getCacheStats returns the total size of the cache databases under dir and
// how many cache directories hold one.
func getCacheStats(dir string) (totalSizeMB float64, cacheCount int, err error) {
	dirs := make(map[string]bool)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".db" {
			return nil
		}
		dirs[filepath.Dir(path)] = true
		if info, err := d.Info(); err == nil {
			totalSizeMB += float64(info.Size()) / (1024 * 1024)
		}
		return nil
	})
	return totalSizeMB, len(dirs), err
}
