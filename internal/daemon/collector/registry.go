package collector

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/grovetools/pgpulse/config"
	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// Factory builds a collector from its source configuration.
type Factory func(src config.SourceConfig) (Collector, error)

// Registry maps source kinds to collector factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with every built-in kind registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(config.KindPrimary, func(src config.SourceConfig) (Collector, error) {
		return NewPrimaryCollector(src, DialPostgres)
	})
	r.Register(config.KindPooler, func(src config.SourceConfig) (Collector, error) {
		return NewPoolerCollector(src, DialPostgres)
	})
	r.Register(config.KindSystem, func(src config.SourceConfig) (Collector, error) {
		return NewSystemCollector(src)
	})
	r.Register(config.KindCloud, func(src config.SourceConfig) (Collector, error) {
		return NewCloudCollector(src)
	})
	return r
}

// Register installs or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build constructs one collector per configured source. Source ids must be unique.
func (r *Registry) Build(sources []config.SourceConfig) ([]Collector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[snapshot.SourceID]bool, len(sources))
	collectors := make([]Collector, 0, len(sources))
	for _, src := range sources {
		factory, ok := r.factories[src.Kind]
		if !ok {
			Close(collectors)
			return nil, errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("no collector registered for kind '%s'", src.Kind)).
				WithDetail("source", src.ID)
		}
		c, err := factory(src)
		if err != nil {
			Close(collectors)
			return nil, errors.Wrap(err, errors.ErrCodeConfigValidation, fmt.Sprintf("failed to build collector '%s'", src.ID)).
				WithDetail("source", src.ID)
		}
		if seen[c.Identify()] {
			Close(collectors)
			return nil, errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("duplicate source '%s'", c.Identify()))
		}
		seen[c.Identify()] = true
		collectors = append(collectors, c)
	}
	return collectors, nil
}

// Close releases resources held by collectors that implement io.Closer.
func Close(collectors []Collector) {
	for _, c := range collectors {
		if closer, ok := c.(io.Closer); ok {
			_ = closer.Close()
		}
	}
}
