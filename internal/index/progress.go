package index

// ProgressReporter provides callbacks for reporting rebuild progress.
// OnRootProcessed may be called from several workers at once.
type ProgressReporter interface {
	// OnDiscoveryStart is called before the base location is expanded into roots.
	OnDiscoveryStart(location string)

	// OnDiscoveryComplete is called once the roots are known.
	OnDiscoveryComplete(roots int)

	// OnRootProcessed is called after each root, reindexed or reused from cache.
	OnRootProcessed(path string, reindexed bool)

	// OnComplete is called when the rebuild finishes successfully.
	OnComplete(stats *Stats)
}

// NoOpProgressReporter is a progress reporter that does nothing.
type NoOpProgressReporter struct{}

func (NoOpProgressReporter) OnDiscoveryStart(string)      {}
func (NoOpProgressReporter) OnDiscoveryComplete(int)      {}
func (NoOpProgressReporter) OnRootProcessed(string, bool) {}
func (NoOpProgressReporter) OnComplete(*Stats)            {}
