package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/svdb/internal/index"
)

// CLIProgressReporter draws one progress bar over the roots of every index
// in a collection. The indices rebuild concurrently, so all callbacks are
// serialized.
type CLIProgressReporter struct {
	out   io.Writer
	quiet bool

	mu         sync.Mutex
	bar        *progressbar.ProgressBar
	started    int
	completed  int
	totalRoots int
	reindexed  int
}

// NewCLIProgressReporter creates a new CLI progress reporter.
func NewCLIProgressReporter(out io.Writer, quiet bool) *CLIProgressReporter {
	return &CLIProgressReporter{out: out, quiet: quiet}
}

var _ index.ProgressReporter = (*CLIProgressReporter)(nil)

func (c *CLIProgressReporter) OnDiscoveryStart(location string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
	if c.quiet {
		return
	}
	fmt.Fprintf(c.out, "Discovering roots in %s...\n", location)
}

func (c *CLIProgressReporter) OnDiscoveryComplete(roots int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRoots += roots
	if c.quiet {
		return
	}
	if c.bar == nil {
		c.bar = progressbar.NewOptions(c.totalRoots,
			progressbar.OptionSetWriter(c.out),
			progressbar.OptionSetDescription("Indexing roots"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("roots/s"),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(c.out)
			}),
		)
		return
	}
	c.bar.ChangeMax(c.totalRoots)
}

func (c *CLIProgressReporter) OnRootProcessed(path string, reindexed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if reindexed {
		c.reindexed++
	}
	if c.bar != nil {
		c.bar.Add(1)
	}
}

func (c *CLIProgressReporter) OnComplete(stats *index.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed++
	if c.bar != nil && c.completed == c.started {
		c.bar.Finish()
		c.bar = nil
	}
}

// Reindexed returns how many roots were reindexed so far.
func (c *CLIProgressReporter) Reindexed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reindexed
}

// Reset prepares the reporter for another pass.
func (c *CLIProgressReporter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bar = nil
	c.started, c.completed, c.totalRoots, c.reindexed = 0, 0, 0, 0
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	str := fmt.Sprintf("%d", n)
	var result string
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}
