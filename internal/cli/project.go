package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/mvp-joe/svdb/internal/config"
	"github.com/mvp-joe/svdb/internal/db"
	"github.com/mvp-joe/svdb/internal/index"
	"github.com/mvp-joe/svdb/internal/index/registry"
)

// project is a loaded configuration plus the collection built from it.
type project struct {
	root    string
	cfg     *config.Config
	mgr     *registry.CollectionMgr
	markers *db.MarkerCollector
}

// openProject loads the configuration of root and creates one index per
// configured base location. Nothing is indexed yet.
func openProject(root string, progress index.ProgressReporter) (*project, error) {
	cfg, err := config.LoadConfigFromDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	markers := db.NewMarkerCollector()
	opts := cfg.ToCollectionOptions(root)
	opts.Markers = markers
	opts.Progress = progress

	mgr := registry.NewCollectionMgr(opts)
	for _, spec := range cfg.Specs(root) {
		if _, err := mgr.Add(spec); err != nil {
			mgr.Close()
			return nil, fmt.Errorf("failed to create %s index for %s: %w", spec.Kind, spec.Location, err)
		}
	}
	return &project{root: root, cfg: cfg, mgr: mgr, markers: markers}, nil
}

// rebuild brings every index up to date.
func (p *project) rebuild(ctx context.Context) ([]*index.Stats, error) {
	stats, err := p.mgr.Rebuild(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("indexing cancelled")
		}
		return nil, fmt.Errorf("indexing failed: %w", err)
	}
	return stats, nil
}

func (p *project) Close() error {
	return p.mgr.Close()
}

func printStats(out io.Writer, stats []*index.Stats) {
	for _, s := range stats {
		if s == nil {
			continue
		}
		fmt.Fprintf(out, "✓ %s: %s roots (%s reindexed, %s reused), %s declarations in %.2fs\n",
			s.Location,
			formatNumber(s.Roots),
			formatNumber(s.Reindexed),
			formatNumber(s.Reused),
			formatNumber(s.Decls),
			s.Duration.Seconds())
		if s.Missing > 0 {
			fmt.Fprintf(out, "  %s missing includes\n", formatNumber(s.Missing))
		}
	}
}

// printMarkers writes markers as path:line: severity: message.
func printMarkers(out io.Writer, markers []db.Marker) {
	for _, m := range markers {
		fmt.Fprintf(out, "%s:%d: %s: %s\n", m.Path, m.Line, m.Severity, m.Message)
	}
}
