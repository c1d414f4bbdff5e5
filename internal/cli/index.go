package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/svdb/internal/fs"
)

var (
	quietFlag bool
	watchFlag bool
)

// sourceExtensions are the file types watch mode reacts to.
var sourceExtensions = []string{".sv", ".svh", ".v", ".vh", ".svi", ".f"}

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the project's SystemVerilog sources",
	Long: `Index preprocesses and parses every root file of the project and stores
the declarations in a cache that later runs reuse.

Only roots whose files, include paths or referenced macros changed since the
last run are reindexed. Diagnostics (missing includes, undefined macros,
unbalanced conditionals) are printed after the summary.

Examples:
  # Index the current directory
  svdb index

  # Index without progress output
  svdb index --quiet

  # Keep the index up to date as files change
  svdb index --watch
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		// Handle interrupt signals gracefully
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		go func() {
			select {
			case <-sigChan:
				fmt.Fprintln(cmd.ErrOrStderr(), "\nInterrupted! Cancelling indexing...")
				cancel()
			case <-ctx.Done():
			}
		}()

		root, err := projectRoot()
		if err != nil {
			return err
		}
		return runIndex(ctx, cmd.OutOrStdout(), root, quietFlag, watchFlag)
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Disable progress bars and non-error output")
	indexCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch for file changes and reindex incrementally")
}

func runIndex(ctx context.Context, out io.Writer, root string, quiet, watch bool) error {
	progress := NewCLIProgressReporter(out, quiet)
	p, err := openProject(root, progress)
	if err != nil {
		return err
	}
	defer p.Close()

	stats, err := p.rebuild(ctx)
	if err != nil {
		return err
	}
	if !quiet {
		printStats(out, stats)
	}
	printMarkers(out, p.markers.All())

	if !watch {
		return nil
	}
	return watchProject(ctx, out, p, progress, quiet)
}

// watchProject refreshes the collection whenever watched files change and
// blocks until ctx is cancelled.
func watchProject(ctx context.Context, out io.Writer, p *project, progress *CLIProgressReporter, quiet bool) error {
	log := logrus.WithField("component", "watch")

	w, err := fs.NewWatcher(p.mgr.WatchDirs(), sourceExtensions, log)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()

	err = w.Start(ctx, func(files []string) {
		log.WithField("files", len(files)).Debug("change detected")
		progress.Reset()
		stats, err := p.mgr.Refresh(ctx, files)
		if err != nil {
			if ctx.Err() == nil {
				log.Warnf("Warning: refresh failed: %v", err)
			}
			return
		}
		if !quiet && progress.Reindexed() > 0 {
			printStats(out, stats)
		}
		for _, f := range files {
			printMarkers(out, p.markers.Markers(f))
		}
	})
	if err != nil {
		return fmt.Errorf("watch mode failed: %w", err)
	}

	if !quiet {
		fmt.Fprintln(out, "Watching for changes (Ctrl+C to stop)...")
	}
	<-ctx.Done()
	if !quiet {
		fmt.Fprintln(out, "Watch mode stopped")
	}
	return nil
}
