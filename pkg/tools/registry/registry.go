package registry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/toolloop/pkg/provider"
	"github.com/rhuss/toolloop/pkg/tools"
)

// entry is a registered capability together with the set that owns it.
type entry struct {
	capability tools.Capability
	set        string
}

// Registry maps capability names to capabilities. It is immutable after
// Build and safe for concurrent reads.
type Registry struct {
	sets    []tools.Set
	order   []string
	entries map[string]entry
}

var _ tools.Resolver = (*Registry)(nil)

// Build scans every set once, in argument order. Capabilities keep the
// order in which they were registered. Duplicate names, empty names and
// nil handlers fail the build.
func Build(sets ...tools.Set) (*Registry, error) {
	r := &Registry{entries: make(map[string]entry)}

	for _, set := range sets {
		if set == nil {
			continue
		}
		caps := set.Capabilities()
		for i, c := range caps {
			if c.Name == "" {
				return nil, fmt.Errorf("capability set %q: capability %d has an empty name", set.Name(), i)
			}
			if c.Handler == nil {
				return nil, fmt.Errorf("capability set %q: capability %q has no handler", set.Name(), c.Name)
			}
			if existing, ok := r.entries[c.Name]; ok {
				return nil, &DuplicateCapabilityError{Name: c.Name, First: existing.set, Second: set.Name()}
			}
			r.entries[c.Name] = entry{capability: c, set: set.Name()}
			r.order = append(r.order, c.Name)
		}
		r.sets = append(r.sets, set)

		if cs, ok := set.(CollectorSet); ok {
			registerCollectors(set.Name(), cs.Collectors())
		}

		slog.Info("registered capability set",
			"set", set.Name(),
			"capabilities", len(caps),
		)
	}

	return r, nil
}

func registerCollectors(set string, collectors []prometheus.Collector) {
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				slog.Debug("collector already registered", "set", set)
				continue
			}
			slog.Warn("failed to register collector", "set", set, "error", err)
		}
	}
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (tools.Capability, bool) {
	e, ok := r.entries[name]
	return e.capability, ok
}

// Names returns the registered names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int { return len(r.order) }

// Schema returns the descriptors in registration order.
func (r *Registry) Schema() []tools.Descriptor {
	out := make([]tools.Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].capability.Descriptor)
	}
	return out
}

// ProviderTools renders the schema as the tools field of a completion
// request.
func (r *Registry) ProviderTools() []provider.Tool {
	if len(r.order) == 0 {
		return nil
	}
	out := make([]provider.Tool, 0, len(r.order))
	for _, d := range r.Schema() {
		out = append(out, provider.Tool{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.JSONSchema(),
		})
	}
	return out
}

// Close closes every set implementing io.Closer and returns the joined
// errors.
func (r *Registry) Close() error {
	var errs []error
	for _, set := range r.sets {
		c, ok := set.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			slog.Warn("failed to close capability set", "set", set.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", set.Name(), err))
		}
	}
	return errors.Join(errs...)
}
