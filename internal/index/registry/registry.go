// Package registry creates indices by type and composes them into one
// queryable collection.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mvp-joe/svdb/internal/fs"
	"github.com/mvp-joe/svdb/internal/index"
)

// Index types known to a new Registry.
const (
	KindLib              = "lib"
	KindArgFile          = "argfile"
	KindSourceCollection = "source_collection"
)

// ErrUnknownKind is returned when no factory is registered for an index type.
var ErrUnknownKind = errors.New("unknown index type")

// Spec describes one index to create.
type Spec struct {
	Kind     string
	Location string

	// Discovery patterns, used by source collections only. Empty lists
	// take the defaults.
	SourcePatterns []string
	HeaderPatterns []string
	IgnorePatterns []string
}

// Factory creates the index described by spec.
type Factory func(spec Spec, opts index.Options) (index.Index, error)

// Registry maps index types to factories. Each indexing session owns its
// own Registry; there is no package-level registration.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New returns a registry with the lib, argfile and source_collection
// factories registered.
func New() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(KindLib, func(spec Spec, opts index.Options) (index.Index, error) {
		return index.NewBaseIndex(&index.LibSource{Path: spec.Location, FS: provider(opts)}, opts)
	})
	r.Register(KindArgFile, func(spec Spec, opts index.Options) (index.Index, error) {
		return index.NewBaseIndex(&index.ArgFileSource{Path: spec.Location, FS: provider(opts), Markers: opts.Markers}, opts)
	})
	r.Register(KindSourceCollection, func(spec Spec, opts index.Options) (index.Index, error) {
		return index.NewBaseIndex(&index.CollectionSource{
			Dir:            spec.Location,
			FS:             provider(opts),
			SourcePatterns: spec.SourcePatterns,
			HeaderPatterns: spec.HeaderPatterns,
			IgnorePatterns: spec.IgnorePatterns,
		}, opts)
	})
	return r
}

func provider(opts index.Options) fs.Provider {
	if opts.FS != nil {
		return opts.FS
	}
	return fs.NewOS()
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Create builds the index described by spec.
func (r *Registry) Create(spec Spec, opts index.Options) (index.Index, error) {
	r.mu.RLock()
	f, ok := r.factories[spec.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
	return f(spec, opts)
}

// Kinds returns the registered index types, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
