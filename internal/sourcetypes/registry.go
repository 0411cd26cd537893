package sourcetypes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"ingest/internal/records"
)

// Registry maps source-type names to converters. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	converters map[string]Converter
}

// NewRegistry returns a registry with an External converter for each name.
func NewRegistry(names ...string) (*Registry, error) {
	r := &Registry{converters: make(map[string]Converter, len(names))}
	for _, name := range names {
		if err := r.Register(External(name)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a converter. Names are case-sensitive and must be unique.
func (r *Registry) Register(c Converter) error {
	if c == nil {
		return fmt.Errorf("register source type: converter is nil")
	}
	name := strings.TrimSpace(c.SourceType())
	if name == "" {
		return fmt.Errorf("register source type: name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.converters[name]; exists {
		return fmt.Errorf("register source type: %q already registered", name)
	}
	r.converters[name] = c
	return nil
}

// Lookup returns the converter for name.
func (r *Registry) Lookup(name string) (Converter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.converters[name]
	return c, ok
}

// Open reports whether the registry accepts any name.
func (r *Registry) Open() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.converters) == 0
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.converters))
	for name := range r.converters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate rejects a name the registry does not accept.
func (r *Registry) Validate(name string) error {
	if r.Open() {
		return nil
	}
	if _, ok := r.Lookup(name); !ok {
		return fmt.Errorf("%w: unsupported source type %q", records.ErrValidation, name)
	}
	return nil
}

// Resolve turns a worker's requested source types into a poll filter. Names
// that are not registered are dropped; a request with none left fails with
// ErrValidation. An empty request means every registered type; nil means no
// restriction.
func (r *Registry) Resolve(requested []string) ([]string, error) {
	if len(requested) == 0 {
		if r.Open() {
			return nil, nil
		}
		return r.Names(), nil
	}
	seen := make(map[string]struct{}, len(requested))
	out := make([]string, 0, len(requested))
	for _, name := range requested {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if r.Validate(name) != nil {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: none of the supported source types %v are enabled", records.ErrValidation, requested)
	}
	return out, nil
}

// HealthCheck reports every converter's health, sorted by name.
func (r *Registry) HealthCheck(ctx context.Context) []Health {
	names := r.Names()
	out := make([]Health, 0, len(names))
	for _, name := range names {
		if c, ok := r.Lookup(name); ok {
			out = append(out, c.HealthCheck(ctx))
		}
	}
	return out
}
